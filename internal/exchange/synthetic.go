package exchange

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
)

// SymbolSeed describes one synthetic instrument.
type SymbolSeed struct {
	Name       string
	StartPrice float64
	Point      float64
}

// SyntheticFeed serves a random walk per symbol and timeframe. Series are generated lazily and
// extended as the clock passes bar boundaries, so repeated queries observe the same history.
type SyntheticFeed struct {
	mu     sync.Mutex
	opts   options
	log    zerolog.Logger
	seeds  map[string]SymbolSeed
	series map[string]*syntheticSeries
}

type syntheticSeries struct {
	rng      *rand.Rand
	interval time.Duration
	bars     []event.Bar
}

// NewSyntheticFeed tracks the given instruments.
func NewSyntheticFeed(symbols []SymbolSeed, log zerolog.Logger, opts ...Option) *SyntheticFeed {
	f := &SyntheticFeed{
		opts:   buildOptions(opts),
		log:    log,
		seeds:  make(map[string]SymbolSeed, len(symbols)),
		series: make(map[string]*syntheticSeries),
	}
	for _, s := range symbols {
		if s.StartPrice <= 0 {
			s.StartPrice = 1
		}
		if s.Point <= 0 {
			s.Point = 0.00001
		}
		f.seeds[s.Name] = s
	}
	return f
}

func (f *SyntheticFeed) LatestClosedBar(ctx context.Context, symbol string, tf market.Timeframe) (event.Bar, error) {
	bars, err := f.LatestClosedBars(ctx, symbol, tf, 1)
	if err != nil {
		return event.Bar{}, err
	}
	return bars[0], nil
}

func (f *SyntheticFeed) LatestClosedBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]event.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", symbol, err, exception.ErrDataUnavailable)
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("%s timeframe %q: %w", symbol, tf, exception.ErrDataUnavailable)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.seriesLocked(symbol, tf)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	if count > len(s.bars) {
		count = len(s.bars)
	}
	out := make([]event.Bar, count)
	copy(out, s.bars[len(s.bars)-count:])
	return out, nil
}

// LatestTick quotes around the last close of the one-minute series.
func (f *SyntheticFeed) LatestTick(ctx context.Context, symbol string) (market.Tick, error) {
	if err := ctx.Err(); err != nil {
		return market.Tick{}, fmt.Errorf("%s: %v: %w", symbol, err, exception.ErrDataUnavailable)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.seriesLocked(symbol, market.M1)
	if err != nil {
		return market.Tick{}, err
	}
	last := s.bars[len(s.bars)-1]
	spread := last.Spread * f.seeds[symbol].Point
	return market.Tick{Bid: last.Close, Ask: last.Close + spread, Last: last.Close, Time: f.opts.now()}, nil
}

func (f *SyntheticFeed) seriesLocked(symbol string, tf market.Timeframe) (*syntheticSeries, error) {
	seed, ok := f.seeds[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown synthetic symbol %s: %w", symbol, exception.ErrDataUnavailable)
	}
	key := symbol + "|" + string(tf)
	now := f.opts.now()
	s := f.series[key]
	if s == nil {
		h := fnv.New64a()
		h.Write([]byte(key))
		interval := tf.Duration()
		s = &syntheticSeries{
			rng:      rand.New(rand.NewSource(f.opts.seed ^ int64(h.Sum64()))),
			interval: interval,
		}
		start := now.Truncate(interval).Add(-time.Duration(f.opts.history) * interval)
		s.extend(seed, start, seed.StartPrice, now, f.opts.volatility)
		f.series[key] = s
		f.log.Debug().Str("sym", symbol).Str("tf", string(tf)).Int("bars", len(s.bars)).Msg("synthetic series created")
		return s, nil
	}
	last := s.bars[len(s.bars)-1]
	s.extend(seed, last.Time.Add(s.interval), last.Close, now, f.opts.volatility)
	return s, nil
}

// extend appends every bar opening at or after from that has fully closed by now.
func (s *syntheticSeries) extend(seed SymbolSeed, from time.Time, price float64, now time.Time, vol float64) {
	for open := from; !open.Add(s.interval).After(now); open = open.Add(s.interval) {
		ret := s.rng.NormFloat64() * vol
		closePx := price * math.Exp(ret)
		high := math.Max(price, closePx) * (1 + math.Abs(s.rng.NormFloat64())*vol/2)
		low := math.Min(price, closePx) * (1 - math.Abs(s.rng.NormFloat64())*vol/2)
		s.bars = append(s.bars, event.Bar{
			Open:       roundTo(price, seed.Point),
			High:       roundTo(high, seed.Point),
			Low:        roundTo(low, seed.Point),
			Close:      roundTo(closePx, seed.Point),
			TickVolume: float64(50 + s.rng.Intn(200)),
			Spread:     float64(1 + s.rng.Intn(3)),
			Time:       open,
		})
		price = closePx
	}
}

func roundTo(v, point float64) float64 {
	if point <= 0 {
		return v
	}
	return math.Round(v/point) * point
}
