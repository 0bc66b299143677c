// Package portfolio is a read-only view over the venue positions opened by one strategy.
package portfolio

import (
	"context"
	"fmt"

	"quantbot-go/internal/event"
	"quantbot-go/internal/venue"
)

// Counts tallies open positions by side.
type Counts struct {
	Long  int
	Short int
}

// Total is Long + Short.
func (c Counts) Total() int { return c.Long + c.Short }

// Of returns the count for one direction.
func (c Counts) Of(dir event.Direction) int {
	if dir == event.Buy {
		return c.Long
	}
	return c.Short
}

// Portfolio filters venue positions by magic number.
type Portfolio struct {
	venue venue.Venue
	magic int64
}

// New builds a portfolio view for the strategy tagged with magic.
func New(v venue.Venue, magic int64) *Portfolio {
	return &Portfolio{venue: v, magic: magic}
}

// Magic returns the strategy identifier.
func (p *Portfolio) Magic() int64 { return p.magic }

// Positions returns every open position regardless of strategy.
func (p *Portfolio) Positions(ctx context.Context) ([]venue.Position, error) {
	return p.venue.OpenPositions(ctx, venue.Filter{})
}

// StrategyPositions returns the positions opened by this strategy.
func (p *Portfolio) StrategyPositions(ctx context.Context) ([]venue.Position, error) {
	positions, err := p.venue.OpenPositions(ctx, venue.Filter{Magic: p.magic})
	if err != nil {
		return nil, fmt.Errorf("strategy positions: %w", err)
	}
	// Filter again: a zero magic means "all" at the venue level.
	out := make([]venue.Position, 0, len(positions))
	for _, pos := range positions {
		if pos.Magic == p.magic {
			out = append(out, pos)
		}
	}
	return out, nil
}

// CountBySymbol tallies this strategy's long and short positions on symbol.
func (p *Portfolio) CountBySymbol(ctx context.Context, symbol string) (Counts, error) {
	positions, err := p.venue.OpenPositions(ctx, venue.Filter{Symbol: symbol, Magic: p.magic})
	if err != nil {
		return Counts{}, fmt.Errorf("positions %s: %w", symbol, err)
	}
	var c Counts
	for _, pos := range positions {
		if pos.Magic != p.magic || pos.Symbol != symbol {
			continue
		}
		if pos.Direction == event.Buy {
			c.Long++
		} else {
			c.Short++
		}
	}
	return c, nil
}
