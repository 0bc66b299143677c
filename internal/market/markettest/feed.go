// Package markettest provides an in-memory market.Feed for tests.
package markettest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
)

// Feed serves bars and ticks set by the test. Bar requests ignore the timeframe.
type Feed struct {
	mu    sync.Mutex
	bars  map[string][]event.Bar
	ticks map[string]market.Tick
	calls int
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{bars: make(map[string][]event.Bar), ticks: make(map[string]market.Tick)}
}

// SetCloses replaces the bar history of symbol with one bar per close, spaced one minute apart
// and ending at end.
func (f *Feed) SetCloses(symbol string, end time.Time, closes ...float64) {
	bars := make([]event.Bar, len(closes))
	for i, c := range closes {
		ts := end.Add(-time.Duration(len(closes)-1-i) * time.Minute)
		bars[i] = event.Bar{Open: c, High: c, Low: c, Close: c, Time: ts}
	}
	f.mu.Lock()
	f.bars[symbol] = bars
	f.mu.Unlock()
}

// AppendBar adds a newer bar to symbol.
func (f *Feed) AppendBar(symbol string, bar event.Bar) {
	f.mu.Lock()
	f.bars[symbol] = append(f.bars[symbol], bar)
	f.mu.Unlock()
}

// SetTick sets the quote for symbol.
func (f *Feed) SetTick(symbol string, bid, ask float64) {
	f.mu.Lock()
	f.ticks[symbol] = market.Tick{Bid: bid, Ask: ask, Last: bid, Time: time.Now()}
	f.mu.Unlock()
}

// Calls reports how many bar requests were served.
func (f *Feed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Feed) LatestClosedBar(ctx context.Context, symbol string, tf market.Timeframe) (event.Bar, error) {
	bars, err := f.LatestClosedBars(ctx, symbol, tf, 1)
	if err != nil {
		return event.Bar{}, err
	}
	return bars[0], nil
}

func (f *Feed) LatestClosedBars(_ context.Context, symbol string, _ market.Timeframe, count int) ([]event.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	bars := f.bars[symbol]
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, exception.ErrDataUnavailable)
	}
	if count <= 0 {
		count = 1
	}
	if count > len(bars) {
		count = len(bars)
	}
	out := make([]event.Bar, count)
	copy(out, bars[len(bars)-count:])
	return out, nil
}

func (f *Feed) LatestTick(_ context.Context, symbol string) (market.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tick, ok := f.ticks[symbol]
	if !ok {
		return market.Tick{}, fmt.Errorf("%s tick: %w", symbol, exception.ErrDataUnavailable)
	}
	return tick, nil
}
