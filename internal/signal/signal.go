// Package signal is the pipeline stage turning data events into signal events.
package signal

import (
	"context"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/metrics"
	"quantbot-go/internal/strategy"
)

// Generator delegates to the configured strategy and guards what it emits.
type Generator struct {
	strategy strategy.Strategy
	log      zerolog.Logger
}

// NewGenerator wraps strat.
func NewGenerator(strat strategy.Strategy, log zerolog.Logger) *Generator {
	return &Generator{strategy: strat, log: log}
}

// Strategy returns the wrapped strategy.
func (g *Generator) Strategy() strategy.Strategy { return g.strategy }

// Generate returns the strategy's signal for data, if any. Signals that fail validation or do
// not belong to data's symbol are dropped.
func (g *Generator) Generate(ctx context.Context, data event.Data) (event.Signal, bool) {
	sig, ok := g.strategy.Generate(ctx, data)
	if !ok {
		return event.Signal{}, false
	}
	if err := sig.Validate(); err != nil {
		metrics.Reject("signal", "invalid")
		g.log.Warn().Err(err).Str("sym", data.Symbol).Str("strategy", g.strategy.Name()).Msg("strategy produced invalid signal")
		return event.Signal{}, false
	}
	if sig.Symbol != data.Symbol {
		metrics.Reject("signal", "symbol_mismatch")
		g.log.Warn().Str("sym", data.Symbol).Str("signal_sym", sig.Symbol).Msg("signal symbol does not match bar")
		return event.Signal{}, false
	}
	metrics.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Direction)).Inc()
	g.log.Info().Str("sym", sig.Symbol).Str("dir", string(sig.Direction)).Str("type", string(sig.TargetOrder)).
		Int64("magic", sig.StrategyID).Str("strategy", g.strategy.Name()).Msg("signal")
	return sig, true
}
