package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quantbot-go/internal/exception"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "quantbot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if len(cfg.Trading.Symbols) != 1 || cfg.Trading.Symbols[0] != "EURUSD" {
		t.Fatalf("expected EURUSD symbol, got %+v", cfg.Trading.Symbols)
	}
	if cfg.Trading.MagicNumber != 12345 {
		t.Fatalf("unexpected magic number: %d", cfg.Trading.MagicNumber)
	}
	if !cfg.Trading.BackgroundPolling || cfg.Trading.PollIntervalMs != 25 || cfg.Trading.FeedTimeoutMs != 750 {
		t.Fatalf("unexpected trading timings: %+v", cfg.Trading)
	}
	if cfg.Feed.Provider != "binance" || cfg.Feed.StreamTicks {
		t.Fatalf("unexpected feed: %+v", cfg.Feed)
	}
	if cfg.Paper.StartingCash != 5000 || cfg.Paper.Leverage != 30 {
		t.Fatalf("unexpected paper account: %+v", cfg.Paper)
	}
	if len(cfg.Paper.Symbols) != 1 || cfg.Paper.Symbols[0].ContractSize != 100000 {
		t.Fatalf("unexpected paper symbols: %+v", cfg.Paper.Symbols)
	}
	if cfg.Signal.Kind != "ma_crossover" || cfg.Signal.MACrossover.FastPeriod != 5 || cfg.Signal.MACrossover.SlowPeriod != 10 {
		t.Fatalf("unexpected signal config: %+v", cfg.Signal)
	}
	if cfg.Sizing.Kind != "fixed_lot" || cfg.Sizing.FixedLot != 0.5 {
		t.Fatalf("unexpected sizing config: %+v", cfg.Sizing)
	}
	if cfg.Risk.MaxLeverageFactor != 3 {
		t.Fatalf("unexpected risk config: %+v", cfg.Risk)
	}
	if cfg.Notify.ChatID != "42" {
		t.Fatalf("unexpected chat id: %s", cfg.Notify.ChatID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := Load("config.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("shipped config invalid: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	out := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(out, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if again.Trading.MagicNumber != cfg.Trading.MagicNumber || again.Signal.Kind != cfg.Signal.Kind {
		t.Fatalf("round trip lost data: %+v", again)
	}
	if err := Save(out, nil); err == nil {
		t.Fatalf("expected error saving nil config")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Trading: Trading{Timeframe: "7min"}, Feed: Feed{Provider: "kraken"}}
	err := cfg.Validate()
	if !errors.Is(err, exception.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, want := range []string{"symbols is empty", "unknown timeframe", "magic_number", "signal.kind", "unknown feed.provider"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}

	cfg = &Config{
		Trading: Trading{Symbols: []string{"XAUUSD"}, Timeframe: "1h", MagicNumber: 1},
		Signal:  Signal{Kind: "ma_crossover"}, Sizing: Sizing{Kind: "min_lot"}, Risk: Risk{Kind: "max_leverage"},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "XAUUSD") {
		t.Fatalf("expected missing symbol entry error, got %v", err)
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envFile, []byte("TELEGRAM_CHAT_ID=777\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvTelegramToken, "env-token")
	t.Setenv(EnvTelegramChatID, "")
	os.Unsetenv(EnvTelegramChatID)

	cfg := &Config{Notify: Notify{Token: "yaml-token", ChatID: "42"}}
	cfg.ApplyEnv(envFile)
	if cfg.Notify.Token != "env-token" {
		t.Fatalf("token not overridden: %s", cfg.Notify.Token)
	}
	if cfg.Notify.ChatID != "777" {
		t.Fatalf("chat id not loaded from env file: %s", cfg.Notify.ChatID)
	}
}
