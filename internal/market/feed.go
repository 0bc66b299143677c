package market

import (
	"context"
	"time"

	"quantbot-go/internal/event"
)

// Tick is the last quote for a symbol.
type Tick struct {
	Bid  float64
	Ask  float64
	Last float64
	Time time.Time
}

// Feed supplies closed bars and quotes. Implementations return an error wrapping
// exception.ErrDataUnavailable for unknown symbols or transient outages; callers treat any
// error as "no data this cycle".
type Feed interface {
	LatestClosedBar(ctx context.Context, symbol string, tf Timeframe) (event.Bar, error)
	// LatestClosedBars returns up to count bars, oldest first.
	LatestClosedBars(ctx context.Context, symbol string, tf Timeframe, count int) ([]event.Bar, error)
	LatestTick(ctx context.Context, symbol string) (Tick, error)
}

// Closes extracts close prices in order.
func Closes(bars []event.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
