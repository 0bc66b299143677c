// Package sizing computes trade volumes for signals and drops those the venue cannot fill.
package sizing

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/fx"
	"quantbot-go/internal/market"
	"quantbot-go/internal/metrics"
	"quantbot-go/internal/venue"
)

// Strategy computes a volume for a signal. Zero means "do not trade".
type Strategy interface {
	Volume(ctx context.Context, sig event.Signal) float64
	Name() string
}

// Deps are the collaborators sizing strategies read from.
type Deps struct {
	Venue     venue.Info
	Feed      market.Feed
	Converter fx.Converter
	Log       zerolog.Logger
}

// Kinds accepted by Build.
const (
	KindMinLot   = "min_lot"
	KindFixedLot = "fixed_lot"
	KindRiskPct  = "risk_pct"
)

// Params is the tagged sizing configuration.
type Params struct {
	Kind     string
	FixedLot float64
	RiskPct  float64
}

// Build returns the sizing strategy selected by params.Kind.
func Build(params Params, deps Deps) (Strategy, error) {
	if deps.Venue == nil {
		return nil, fmt.Errorf("sizing needs a venue: %w", exception.ErrConfiguration)
	}
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case KindMinLot:
		return NewMinLot(deps), nil
	case KindFixedLot:
		return NewFixedLot(params.FixedLot), nil
	case KindRiskPct:
		if deps.Feed == nil || deps.Converter == nil {
			return nil, fmt.Errorf("risk pct sizing needs a feed and a converter: %w", exception.ErrConfiguration)
		}
		return NewRiskPct(params.RiskPct, deps), nil
	default:
		return nil, fmt.Errorf("unknown sizing kind %q: %w", params.Kind, exception.ErrConfiguration)
	}
}

// Sizer is the pipeline stage: it applies the strategy and gates the result on the venue's
// minimum lot.
type Sizer struct {
	strategy Strategy
	venue    venue.Info
	log      zerolog.Logger
}

// NewSizer wraps strat.
func NewSizer(strat Strategy, v venue.Info, log zerolog.Logger) *Sizer {
	return &Sizer{strategy: strat, venue: v, log: log}
}

// Size returns sig annotated with its volume, or false when the volume cannot be traded.
func (s *Sizer) Size(ctx context.Context, sig event.Signal) (event.Sizing, bool) {
	info, err := s.venue.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		s.drop(sig, 0, "symbol_info", err)
		return event.Sizing{}, false
	}
	volume := s.strategy.Volume(ctx, sig)
	if volume <= 0 || volume < info.MinVolume {
		s.drop(sig, volume, "below_min_lot", fmt.Errorf("volume %.4f below minimum %.4f: %w", volume, info.MinVolume, exception.ErrInvalidSizing))
		return event.Sizing{}, false
	}
	sized := sig.WithVolume(volume)
	s.log.Info().Str("sym", sig.Symbol).Str("dir", string(sig.Direction)).Float64("vol", volume).
		Int64("magic", sig.StrategyID).Str("sizer", s.strategy.Name()).Msg("sized")
	return sized, true
}

func (s *Sizer) drop(sig event.Signal, volume float64, reason string, err error) {
	metrics.Reject("sizing", reason)
	s.log.Warn().Err(err).Str("sym", sig.Symbol).Str("dir", string(sig.Direction)).Float64("vol", volume).
		Int64("magic", sig.StrategyID).Msg("signal dropped by sizer")
}

// MinLot trades the venue's minimum volume.
type MinLot struct {
	venue venue.Info
	log   zerolog.Logger
}

func NewMinLot(deps Deps) *MinLot { return &MinLot{venue: deps.Venue, log: deps.Log} }

func (m *MinLot) Name() string { return "MinLot" }

func (m *MinLot) Volume(ctx context.Context, sig event.Signal) float64 {
	info, err := m.venue.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		m.log.Warn().Err(err).Str("sym", sig.Symbol).Msg("min lot unavailable")
		return 0
	}
	return info.MinVolume
}

// FixedLot trades a constant volume.
type FixedLot struct{ volume float64 }

// NewFixedLot clamps negative volumes to 0, which the minimum-lot gate then rejects.
func NewFixedLot(volume float64) *FixedLot { return &FixedLot{volume: max(volume, 0)} }

func (f *FixedLot) Name() string { return "FixedLot" }

func (f *FixedLot) Volume(context.Context, event.Signal) float64 { return f.volume }

// RiskPct risks a fraction of equity between the entry price and the stop loss.
type RiskPct struct {
	pct  float64
	deps Deps
}

// NewRiskPct builds the sizer; a non-positive pct sizes every signal to 0.
func NewRiskPct(pct float64, deps Deps) *RiskPct {
	if pct <= 0 {
		deps.Log.Warn().Float64("risk_pct", pct).Msg("risk pct must be positive, every signal will size to 0")
		pct = 0
	}
	return &RiskPct{pct: pct, deps: deps}
}

func (r *RiskPct) Name() string { return fmt.Sprintf("RiskPct(%.4f)", r.pct) }

func (r *RiskPct) Volume(ctx context.Context, sig event.Signal) float64 {
	if r.pct <= 0 || sig.StopLoss <= 0 {
		r.deps.Log.Warn().Str("sym", sig.Symbol).Float64("sl", sig.StopLoss).Msg("risk pct sizing needs a stop loss")
		return 0
	}
	info, err := r.deps.Venue.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		return r.fail(sig, err)
	}
	account, err := r.deps.Venue.AccountInfo(ctx)
	if err != nil {
		return r.fail(sig, err)
	}
	entry, err := r.entryPrice(ctx, sig)
	if err != nil {
		return r.fail(sig, err)
	}
	if info.TickSize <= 0 || info.VolumeStep <= 0 {
		return r.fail(sig, fmt.Errorf("%s has no tick size or volume step", sig.Symbol))
	}
	ticks := DistanceInTicks(entry, sig.StopLoss, info.TickSize)
	tickValue, err := r.deps.Converter.Convert(ctx, info.ContractSize*info.TickSize, info.ProfitCurrency, account.Currency)
	if err != nil {
		return r.fail(sig, err)
	}
	if ticks <= 0 || tickValue <= 0 {
		return r.fail(sig, fmt.Errorf("zero stop distance or tick value"))
	}
	risk := account.Equity * r.pct
	return RoundToStep(risk/(ticks*tickValue), info.VolumeStep)
}

func (r *RiskPct) entryPrice(ctx context.Context, sig event.Signal) (float64, error) {
	if sig.TargetOrder.Pending() {
		return sig.TargetPrice, nil
	}
	tick, err := r.deps.Feed.LatestTick(ctx, sig.Symbol)
	if err != nil {
		return 0, err
	}
	if sig.Direction == event.Buy {
		return tick.Ask, nil
	}
	return tick.Bid, nil
}

func (r *RiskPct) fail(sig event.Signal, err error) float64 {
	r.deps.Log.Warn().Err(err).Str("sym", sig.Symbol).Msg("risk pct sizing failed")
	return 0
}

// DistanceInTicks is the whole number of ticks between two prices. A tiny epsilon absorbs
// binary float error so that 50 ticks is not floored to 49.
func DistanceInTicks(a, b, tickSize float64) float64 {
	if tickSize <= 0 {
		return 0
	}
	return math.Floor(math.Abs(a-b)/tickSize + 1e-9)
}

// RoundToStep rounds volume to the nearest multiple of step.
func RoundToStep(volume, step float64) float64 {
	if step <= 0 {
		return volume
	}
	steps := math.Round(volume / step)
	return math.Round(steps*step*1e8) / 1e8
}
