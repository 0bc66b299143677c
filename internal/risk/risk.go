// Package risk vets sized signals against the strategy's current exposure.
package risk

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

// Exposure is the strategy's book value before and after a prospective order, in account
// currency, with shorts counted negative.
type Exposure struct {
	Current float64
	New     float64
	Equity  float64
}

// Leverage is (Current+New)/Equity, or +Inf when equity is not positive.
func (e Exposure) Leverage() float64 {
	if e.Equity <= 0 {
		return math.Inf(1)
	}
	return (e.Current + e.New) / e.Equity
}

// Strategy returns the volume to trade for sizing given the exposure. Zero rejects the order.
type Strategy interface {
	Assess(sizing event.Sizing, exposure Exposure) float64
	Name() string
}

// Kinds accepted by Build.
const KindMaxLeverage = "max_leverage"

// Params is the tagged risk configuration.
type Params struct {
	Kind              string
	MaxLeverageFactor float64
}

// Build returns the risk strategy selected by params.Kind.
func Build(params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case KindMaxLeverage, "max_leverage_factor":
		return NewMaxLeverage(params.MaxLeverageFactor)
	default:
		return nil, fmt.Errorf("unknown risk kind %q: %w", params.Kind, exception.ErrConfiguration)
	}
}

// MaxLeverage accepts an order in full while the resulting leverage stays within the factor.
type MaxLeverage struct {
	factor float64
}

func NewMaxLeverage(factor float64) (*MaxLeverage, error) {
	if factor <= 0 || math.IsNaN(factor) {
		return nil, fmt.Errorf("max leverage factor %.2f must be positive: %w", factor, exception.ErrConfiguration)
	}
	return &MaxLeverage{factor: factor}, nil
}

func (m *MaxLeverage) Name() string { return fmt.Sprintf("MaxLeverage(%.2f)", m.factor) }

func (m *MaxLeverage) Assess(sizing event.Sizing, exposure Exposure) float64 {
	if math.Abs(exposure.Leverage()) > m.factor {
		return 0
	}
	return sizing.Volume
}

// Positions lists the strategy's open positions.
type Positions interface {
	StrategyPositions(ctx context.Context) ([]venue.Position, error)
}

// Manager is the pipeline stage computing exposure and applying the risk strategy.
type Manager struct {
	strategy  Strategy
	positions Positions
	venue     venue.Info
	feed      market.Feed
	conv      fx.Converter
	log       zerolog.Logger
}

// NewManager wires the risk stage.
func NewManager(strat Strategy, positions Positions, v venue.Info, feed market.Feed, conv fx.Converter, log zerolog.Logger) *Manager {
	return &Manager{strategy: strat, positions: positions, venue: v, feed: feed, conv: conv, log: log}
}

// Assess returns the order for sizing, or false when the strategy rejects it or the exposure
// cannot be valued.
func (m *Manager) Assess(ctx context.Context, sizing event.Sizing) (event.Order, bool) {
	exposure, err := m.Exposure(ctx, sizing)
	if err != nil {
		m.drop(sizing, "valuation", err)
		return event.Order{}, false
	}
	volume := m.strategy.Assess(sizing, exposure)
	if volume <= 0 {
		m.drop(sizing, "leverage", fmt.Errorf("leverage %.2f: %w", exposure.Leverage(), exception.ErrRiskRejected))
		return event.Order{}, false
	}
	m.log.Info().Str("sym", sizing.Symbol).Str("dir", string(sizing.Direction)).Float64("vol", volume).
		Int64("magic", sizing.StrategyID).Float64("leverage", exposure.Leverage()).Msg("order approved")
	return sizing.ToOrder(volume), true
}

// Exposure values the open strategy positions and the prospective one.
func (m *Manager) Exposure(ctx context.Context, sizing event.Sizing) (Exposure, error) {
	account, err := m.venue.AccountInfo(ctx)
	if err != nil {
		return Exposure{}, fmt.Errorf("account info: %w", err)
	}
	positions, err := m.positions.StrategyPositions(ctx)
	if err != nil {
		return Exposure{}, err
	}
	var exp Exposure
	exp.Equity = account.Equity
	for _, pos := range positions {
		v, err := m.value(ctx, pos.Symbol, pos.Volume, pos.Direction, account.Currency)
		if err != nil {
			return Exposure{}, err
		}
		exp.Current += v
	}
	exp.New, err = m.value(ctx, sizing.Symbol, sizing.Volume, sizing.Direction, account.Currency)
	if err != nil {
		return Exposure{}, err
	}
	return exp, nil
}

func (m *Manager) value(ctx context.Context, symbol string, volume float64, dir event.Direction, currency string) (float64, error) {
	info, err := m.venue.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("symbol info %s: %w", symbol, err)
	}
	tick, err := m.feed.LatestTick(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("tick %s: %w", symbol, err)
	}
	v, err := m.conv.Convert(ctx, volume*info.ContractSize*tick.Bid, info.ProfitCurrency, currency)
	if err != nil {
		return 0, fmt.Errorf("value %s: %w", symbol, err)
	}
	if dir == event.Sell {
		v = -v
	}
	return v, nil
}

func (m *Manager) drop(sizing event.Sizing, reason string, err error) {
	metrics.Reject("risk", reason)
	m.log.Warn().Err(err).Str("sym", sizing.Symbol).Str("dir", string(sizing.Direction)).Float64("vol", sizing.Volume).
		Int64("magic", sizing.StrategyID).Str("risk", m.strategy.Name()).Msg("order rejected by risk")
}
