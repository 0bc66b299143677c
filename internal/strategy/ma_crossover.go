package strategy

import (
	"context"
	"fmt"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
)

// MACrossoverParams configures the moving-average crossover.
type MACrossoverParams struct {
	FastPeriod int
	SlowPeriod int
}

// MACrossover goes long while the fast simple moving average is above the slow one and short
// while it is below.
type MACrossover struct {
	fast int
	slow int
	deps Deps
}

// NewMACrossover clamps fast to at least 2 and slow to at least 3 and fails unless fast < slow.
func NewMACrossover(p MACrossoverParams, deps Deps) (*MACrossover, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	fast := max(p.FastPeriod, 2)
	slow := max(p.SlowPeriod, 3)
	if fast >= slow {
		return nil, fmt.Errorf("ma crossover fast period %d must be below slow period %d: %w", fast, slow, exception.ErrConfiguration)
	}
	return &MACrossover{fast: fast, slow: slow, deps: deps}, nil
}

// Name returns the configured identifier for logging.
func (s *MACrossover) Name() string { return fmt.Sprintf("MACrossover(%d,%d)", s.fast, s.slow) }

// Periods returns the effective fast and slow periods.
func (s *MACrossover) Periods() (fast, slow int) { return s.fast, s.slow }

func (s *MACrossover) Generate(ctx context.Context, data event.Data) (event.Signal, bool) {
	bars, err := s.deps.Feed.LatestClosedBars(ctx, data.Symbol, s.deps.Timeframe, s.slow)
	if err != nil {
		s.deps.Log.Debug().Err(err).Str("sym", data.Symbol).Msg("no bars for ma crossover")
		return event.Signal{}, false
	}
	if len(bars) < s.slow {
		s.deps.Log.Debug().Str("sym", data.Symbol).Int("bars", len(bars)).Int("need", s.slow).Msg("not enough history")
		return event.Signal{}, false
	}
	closes := market.Closes(bars)
	fastMA := mean(closes[len(closes)-s.fast:])
	slowMA := mean(closes)

	var dir event.Direction
	switch {
	case fastMA > slowMA:
		dir = event.Buy
	case fastMA < slowMA:
		dir = event.Sell
	default:
		return event.Signal{}, false
	}

	open, err := s.deps.Positions.CountBySymbol(ctx, data.Symbol)
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("sym", data.Symbol).Msg("position count unavailable")
		return event.Signal{}, false
	}
	if !s.deps.enter(ctx, data.Symbol, dir, open) {
		return event.Signal{}, false
	}
	s.deps.Log.Debug().Str("sym", data.Symbol).Float64("fast_ma", fastMA).Float64("slow_ma", slowMA).
		Str("dir", string(dir)).Msg("ma crossover signal")
	return event.Signal{
		Symbol:      data.Symbol,
		Direction:   dir,
		TargetOrder: event.Market,
		StrategyID:  s.deps.Magic,
	}, true
}
