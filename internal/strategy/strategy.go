// Package strategy holds the signal strategies and the factory selecting one from configuration.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
	"quantbot-go/internal/portfolio"
	"quantbot-go/internal/venue"
)

// Strategy turns a closed bar into an optional trading signal.
type Strategy interface {
	Generate(ctx context.Context, data event.Data) (event.Signal, bool)
	Name() string
}

// Positions reports how many positions this strategy holds on a symbol.
type Positions interface {
	CountBySymbol(ctx context.Context, symbol string) (portfolio.Counts, error)
}

// Closer closes every strategy position on symbol in direction dir without waiting for the venue.
type Closer interface {
	CloseAllBySymbolAndDirection(ctx context.Context, symbol string, dir event.Direction)
}

// Symbols resolves venue symbol specifications.
type Symbols interface {
	SymbolInfo(ctx context.Context, symbol string) (venue.Symbol, error)
}

// Deps are the collaborators every strategy reads from.
type Deps struct {
	Feed      market.Feed
	Positions Positions
	Closer    Closer
	Symbols   Symbols
	Timeframe market.Timeframe
	Magic     int64
	Log       zerolog.Logger
}

func (d Deps) validate() error {
	if d.Feed == nil || d.Positions == nil {
		return fmt.Errorf("strategy needs a feed and a portfolio: %w", exception.ErrConfiguration)
	}
	if !d.Timeframe.Valid() {
		return fmt.Errorf("strategy timeframe %q: %w", d.Timeframe, exception.ErrConfiguration)
	}
	return nil
}

// Kinds accepted by Build.
const (
	KindMACrossover      = "ma_crossover"
	KindRSIMeanReversion = "rsi_mean_reversion"
)

// Params is the tagged strategy configuration; only the block matching Kind is read.
type Params struct {
	Kind        string
	MACrossover MACrossoverParams
	RSI         RSIParams
}

// Build returns the strategy selected by params.Kind.
func Build(params Params, deps Deps) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case KindMACrossover:
		return NewMACrossover(params.MACrossover, deps)
	case KindRSIMeanReversion:
		return NewRSIMeanReversion(params.RSI, deps)
	default:
		return nil, fmt.Errorf("unknown strategy kind %q: %w", params.Kind, exception.ErrConfiguration)
	}
}

// enter decides whether a signal in dir may be emitted given the open positions, and requests
// closure of any opposing positions before returning true.
func (d Deps) enter(ctx context.Context, symbol string, dir event.Direction, open portfolio.Counts) bool {
	if open.Of(dir) > 0 {
		return false
	}
	if opposing := dir.Opposite(); open.Of(opposing) > 0 && d.Closer != nil {
		d.Log.Info().Str("sym", symbol).Str("dir", string(opposing)).Int("open", open.Of(opposing)).
			Msg("closing opposing positions before reversal")
		d.Closer.CloseAllBySymbolAndDirection(ctx, symbol, opposing)
	}
	return true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
