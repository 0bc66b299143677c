package strategy

import (
	"context"
	"fmt"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
)

const (
	defaultRSIUpper = 70.0
	defaultRSILower = 30.0
)

// RSIParams configures the RSI mean-reversion strategy. SL/TP distances are in points.
type RSIParams struct {
	Period   int
	Upper    float64
	Lower    float64
	SLPoints float64
	TPPoints float64
}

// RSIMeanReversion buys oversold and sells overbought conditions.
type RSIMeanReversion struct {
	period   int
	upper    float64
	lower    float64
	slPoints float64
	tpPoints float64
	deps     Deps
}

// NewRSIMeanReversion clamps the period to at least 2, replaces bounds outside [0,100] with
// 70/30 and fails unless lower < upper. Negative SL/TP distances become 0.
func NewRSIMeanReversion(p RSIParams, deps Deps) (*RSIMeanReversion, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &RSIMeanReversion{
		period:   max(p.Period, 2),
		upper:    p.Upper,
		lower:    p.Lower,
		slPoints: max(p.SLPoints, 0),
		tpPoints: max(p.TPPoints, 0),
		deps:     deps,
	}
	if s.upper < 0 || s.upper > 100 {
		s.upper = defaultRSIUpper
	}
	if s.lower < 0 || s.lower > 100 {
		s.lower = defaultRSILower
	}
	if s.lower >= s.upper {
		return nil, fmt.Errorf("rsi lower bound %.1f must be below upper bound %.1f: %w", s.lower, s.upper, exception.ErrConfiguration)
	}
	return s, nil
}

// Name returns the configured identifier for logging.
func (s *RSIMeanReversion) Name() string {
	return fmt.Sprintf("RSIMeanReversion(%d,%.0f/%.0f)", s.period, s.lower, s.upper)
}

// Bounds returns the effective lower and upper thresholds.
func (s *RSIMeanReversion) Bounds() (lower, upper float64) { return s.lower, s.upper }

// RSI computes the relative strength index over the deltas of closes using simple averages of
// the last period gains and losses. With no losses the result is 100. A flat window returns 50
// rather than the 0 that RS=0 gives in the plain formula, so an unchanged market never reads as
// oversold.
func RSI(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	deltas := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas = append(deltas, closes[i]-closes[i-1])
	}
	if period > 0 && len(deltas) > period {
		deltas = deltas[len(deltas)-period:]
	}
	var gain, loss float64
	for _, d := range deltas {
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	n := float64(len(deltas))
	avgGain, avgLoss := gain/n, loss/n
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func (s *RSIMeanReversion) Generate(ctx context.Context, data event.Data) (event.Signal, bool) {
	bars, err := s.deps.Feed.LatestClosedBars(ctx, data.Symbol, s.deps.Timeframe, s.period+1)
	if err != nil {
		s.deps.Log.Debug().Err(err).Str("sym", data.Symbol).Msg("no bars for rsi")
		return event.Signal{}, false
	}
	if len(bars) < s.period+1 {
		s.deps.Log.Debug().Str("sym", data.Symbol).Int("bars", len(bars)).Int("need", s.period+1).Msg("not enough history")
		return event.Signal{}, false
	}
	rsi := RSI(market.Closes(bars), s.period)

	var dir event.Direction
	switch {
	case rsi < s.lower:
		dir = event.Buy
	case rsi > s.upper:
		dir = event.Sell
	default:
		return event.Signal{}, false
	}

	open, err := s.deps.Positions.CountBySymbol(ctx, data.Symbol)
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("sym", data.Symbol).Msg("position count unavailable")
		return event.Signal{}, false
	}
	if open.Of(dir) > 0 {
		return event.Signal{}, false
	}
	sl, tp, ok := s.stops(ctx, data.Symbol, dir)
	if !ok {
		return event.Signal{}, false
	}
	if !s.deps.enter(ctx, data.Symbol, dir, open) {
		return event.Signal{}, false
	}
	s.deps.Log.Debug().Str("sym", data.Symbol).Float64("rsi", rsi).Str("dir", string(dir)).
		Float64("sl", sl).Float64("tp", tp).Msg("rsi signal")
	return event.Signal{
		Symbol:      data.Symbol,
		Direction:   dir,
		TargetOrder: event.Market,
		StrategyID:  s.deps.Magic,
		StopLoss:    sl,
		TakeProfit:  tp,
	}, true
}

// stops places SL/TP at the configured point distances from the entry side of the last tick.
func (s *RSIMeanReversion) stops(ctx context.Context, symbol string, dir event.Direction) (sl, tp float64, ok bool) {
	if s.slPoints == 0 && s.tpPoints == 0 {
		return 0, 0, true
	}
	tick, err := s.deps.Feed.LatestTick(ctx, symbol)
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("sym", symbol).Msg("no tick for stop levels")
		return 0, 0, false
	}
	if s.deps.Symbols == nil {
		s.deps.Log.Warn().Str("sym", symbol).Msg("no symbol source for stop levels")
		return 0, 0, false
	}
	info, err := s.deps.Symbols.SymbolInfo(ctx, symbol)
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("sym", symbol).Msg("symbol info unavailable")
		return 0, 0, false
	}
	point := info.Point
	if point <= 0 {
		point = info.TickSize
	}
	entry, sign := tick.Ask, 1.0
	if dir == event.Sell {
		entry, sign = tick.Bid, -1.0
	}
	if s.slPoints > 0 {
		sl = entry - sign*s.slPoints*point
	}
	if s.tpPoints > 0 {
		tp = entry + sign*s.tpPoints*point
	}
	return sl, tp, true
}
