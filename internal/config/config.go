// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Trading selects what the pipeline trades and how often it polls.
type Trading struct {
	Symbols           []string `yaml:"symbols"`
	Timeframe         string   `yaml:"timeframe"`
	MagicNumber       int64    `yaml:"magic_number"`
	PollIntervalMs    int      `yaml:"poll_interval_ms"`
	FeedTimeoutMs     int      `yaml:"feed_timeout_ms"`
	BackgroundPolling bool     `yaml:"background_polling"`
}

// Feed configures the market data source.
type Feed struct {
	Provider    string  `yaml:"provider"` // synthetic|binance
	RestURL     string  `yaml:"rest_url"`
	WsURL       string  `yaml:"ws_url"`
	StreamTicks bool    `yaml:"stream_ticks"`
	Seed        int64   `yaml:"seed"`
	Volatility  float64 `yaml:"volatility"`
}

// Symbol is the paper venue specification of one instrument.
type Symbol struct {
	Name           string  `yaml:"name"`
	MinVolume      float64 `yaml:"min_volume"`
	MaxVolume      float64 `yaml:"max_volume"`
	VolumeStep     float64 `yaml:"volume_step"`
	Point          float64 `yaml:"point"`
	TickSize       float64 `yaml:"tick_size"`
	ContractSize   float64 `yaml:"contract_size"`
	BaseCurrency   string  `yaml:"base_currency"`
	ProfitCurrency string  `yaml:"profit_currency"`
	Digits         int     `yaml:"digits"`
	// StartPrice seeds the synthetic feed.
	StartPrice float64 `yaml:"start_price"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	Login        int64    `yaml:"login"`
	Currency     string   `yaml:"currency"`
	StartingCash float64  `yaml:"starting_cash"`
	Leverage     float64  `yaml:"leverage"`
	Symbols      []Symbol `yaml:"symbols"`
}

// MACrossover parameters.
type MACrossover struct {
	FastPeriod int `yaml:"fast_period"`
	SlowPeriod int `yaml:"slow_period"`
}

// RSIMeanReversion parameters.
type RSIMeanReversion struct {
	Period   int     `yaml:"period"`
	Upper    float64 `yaml:"upper"`
	Lower    float64 `yaml:"lower"`
	SLPoints float64 `yaml:"sl_points"`
	TPPoints float64 `yaml:"tp_points"`
}

// Signal selects the signal strategy.
type Signal struct {
	Kind             string           `yaml:"kind"`
	MACrossover      MACrossover      `yaml:"ma_crossover"`
	RSIMeanReversion RSIMeanReversion `yaml:"rsi_mean_reversion"`
}

// Sizing selects the position sizer.
type Sizing struct {
	Kind     string  `yaml:"kind"`
	FixedLot float64 `yaml:"fixed_lot"`
	RiskPct  float64 `yaml:"risk_pct"`
}

// Risk selects the risk manager.
type Risk struct {
	Kind              string  `yaml:"kind"`
	MaxLeverageFactor float64 `yaml:"max_leverage_factor"`
}

// Notify selects the notification channel.
type Notify struct {
	Provider string `yaml:"provider"` // log|telegram
	Token    string `yaml:"token"`
	ChatID   string `yaml:"chat_id"`
	Endpoint string `yaml:"endpoint"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Trading Trading `yaml:"trading"`
	Feed    Feed    `yaml:"feed"`
	Paper   Paper   `yaml:"paper"`
	Signal  Signal  `yaml:"signal"`
	Sizing  Sizing  `yaml:"sizing"`
	Risk    Risk    `yaml:"risk"`
	Notify  Notify  `yaml:"notify"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the structural rules. Strategy parameters are checked by their factories.
func (c *Config) Validate() error {
	var problems []string
	if len(c.Trading.Symbols) == 0 {
		problems = append(problems, "trading.symbols is empty")
	}
	if _, err := market.ParseTimeframe(c.Trading.Timeframe); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Trading.MagicNumber == 0 {
		problems = append(problems, "trading.magic_number must be non-zero")
	}
	if c.Signal.Kind == "" {
		problems = append(problems, "signal.kind is required")
	}
	if c.Sizing.Kind == "" {
		problems = append(problems, "sizing.kind is required")
	}
	if c.Risk.Kind == "" {
		problems = append(problems, "risk.kind is required")
	}
	switch strings.ToLower(c.Feed.Provider) {
	case "", "synthetic", "binance":
	default:
		problems = append(problems, fmt.Sprintf("unknown feed.provider %q", c.Feed.Provider))
	}
	known := make(map[string]bool, len(c.Paper.Symbols))
	for _, s := range c.Paper.Symbols {
		known[s.Name] = true
	}
	for _, sym := range c.Trading.Symbols {
		if !known[sym] {
			problems = append(problems, fmt.Sprintf("trading symbol %s has no paper.symbols entry", sym))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), exception.ErrConfiguration)
	}
	return nil
}
