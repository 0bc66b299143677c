package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/config"
	"quantbot-go/internal/director"
	"quantbot-go/internal/event"
	"quantbot-go/internal/exchange"
	"quantbot-go/internal/execution"
	"quantbot-go/internal/fx"
	"quantbot-go/internal/market"
	"quantbot-go/internal/metrics"
	"quantbot-go/internal/notify"
	"quantbot-go/internal/paper"
	"quantbot-go/internal/portfolio"
	"quantbot-go/internal/risk"
	"quantbot-go/internal/signal"
	"quantbot-go/internal/sizing"
	"quantbot-go/internal/strategy"
	"quantbot-go/internal/util"
	"quantbot-go/internal/venue"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "path to the YAML configuration")
	envFile := flag.String("env", "", "extra .env file with secrets")
	flag.Parse()

	log := util.NewLogger("info")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *envFile != "" {
		cfg.ApplyEnv(*envFile)
	} else {
		cfg.ApplyEnv()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	log.Info().Strs("symbols", cfg.Trading.Symbols).Str("timeframe", cfg.Trading.Timeframe).
		Int64("magic", cfg.Trading.MagicNumber).Msg("paper trader started")
	if err := d.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("director halted")
	}
	log.Info().Msg("shutting down")
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*director.Director, error) {
	tf, err := market.ParseTimeframe(cfg.Trading.Timeframe)
	if err != nil {
		return nil, err
	}
	magic := cfg.Trading.MagicNumber

	seeds := make([]exchange.SymbolSeed, 0, len(cfg.Paper.Symbols))
	symbols := make([]venue.Symbol, 0, len(cfg.Paper.Symbols))
	for _, s := range cfg.Paper.Symbols {
		seeds = append(seeds, exchange.SymbolSeed{Name: s.Name, StartPrice: s.StartPrice, Point: s.Point})
		symbols = append(symbols, venue.Symbol{
			Name:           s.Name,
			MinVolume:      s.MinVolume,
			MaxVolume:      s.MaxVolume,
			VolumeStep:     s.VolumeStep,
			Point:          s.Point,
			TickSize:       s.TickSize,
			ContractSize:   s.ContractSize,
			BaseCurrency:   s.BaseCurrency,
			ProfitCurrency: s.ProfitCurrency,
			Digits:         s.Digits,
		})
	}

	feedLog := util.Component(log, "feed")
	feed, err := exchange.New(cfg.Feed.Provider, seeds, feedLog,
		exchange.WithRESTURL(cfg.Feed.RestURL),
		exchange.WithWSURL(cfg.Feed.WsURL),
		exchange.WithSeed(cfg.Feed.Seed),
		exchange.WithVolatility(cfg.Feed.Volatility),
	)
	if err != nil {
		return nil, err
	}
	if bf, ok := feed.(*exchange.BinanceFeed); ok && cfg.Feed.StreamTicks {
		go func() {
			if err := bf.Stream(ctx); err != nil && ctx.Err() == nil {
				feedLog.Error().Err(err).Msg("quote stream stopped")
			}
		}()
	}

	conv := fx.NewFeedConverter(feed)
	v := paper.NewVenue(paper.Config{
		Login:    cfg.Paper.Login,
		Currency: cfg.Paper.Currency,
		Balance:  cfg.Paper.StartingCash,
		Leverage: cfg.Paper.Leverage,
		Symbols:  symbols,
	}, feed, conv, util.Component(log, "paper"))
	book := portfolio.New(v, magic)
	queue := event.NewQueue(256)
	exec := execution.NewExecutor(v, book, queue, util.Component(log, "execution"))

	strat, err := strategy.Build(strategy.Params{
		Kind: cfg.Signal.Kind,
		MACrossover: strategy.MACrossoverParams{
			FastPeriod: cfg.Signal.MACrossover.FastPeriod,
			SlowPeriod: cfg.Signal.MACrossover.SlowPeriod,
		},
		RSI: strategy.RSIParams{
			Period:   cfg.Signal.RSIMeanReversion.Period,
			Upper:    cfg.Signal.RSIMeanReversion.Upper,
			Lower:    cfg.Signal.RSIMeanReversion.Lower,
			SLPoints: cfg.Signal.RSIMeanReversion.SLPoints,
			TPPoints: cfg.Signal.RSIMeanReversion.TPPoints,
		},
	}, strategy.Deps{
		Feed:      feed,
		Positions: book,
		Closer:    exec,
		Symbols:   v,
		Timeframe: tf,
		Magic:     magic,
		Log:       util.Component(log, "strategy"),
	})
	if err != nil {
		return nil, err
	}

	sizeStrat, err := sizing.Build(sizing.Params{
		Kind:     cfg.Sizing.Kind,
		FixedLot: cfg.Sizing.FixedLot,
		RiskPct:  cfg.Sizing.RiskPct,
	}, sizing.Deps{Venue: v, Feed: feed, Converter: conv, Log: util.Component(log, "sizing")})
	if err != nil {
		return nil, err
	}

	riskStrat, err := risk.Build(risk.Params{Kind: cfg.Risk.Kind, MaxLeverageFactor: cfg.Risk.MaxLeverageFactor})
	if err != nil {
		return nil, err
	}

	notifier, err := notify.Build(notify.Config{
		Provider: cfg.Notify.Provider,
		Token:    cfg.Notify.Token,
		ChatID:   cfg.Notify.ChatID,
		Endpoint: cfg.Notify.Endpoint,
	}, util.Component(log, "notify"))
	if err != nil {
		return nil, err
	}

	poller := market.NewPoller(feed, tf, cfg.Trading.Symbols, util.Component(log, "poller"),
		market.WithFeedTimeout(time.Duration(cfg.Trading.FeedTimeoutMs)*time.Millisecond))

	return director.New(director.Options{
		Queue:             queue,
		Poller:            poller,
		Signals:           signal.NewGenerator(strat, util.Component(log, "signal")),
		Sizer:             sizing.NewSizer(sizeStrat, v, util.Component(log, "sizing")),
		Risk:              risk.NewManager(riskStrat, book, v, feed, conv, util.Component(log, "risk")),
		Executor:          exec,
		Notifier:          notifier,
		Log:               util.Component(log, "director"),
		PollInterval:      exchange.PollInterval(cfg.Feed.Provider, time.Duration(cfg.Trading.PollIntervalMs)*time.Millisecond),
		BackgroundPolling: cfg.Trading.BackgroundPolling,
	})
}
