package sizing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market/markettest"
	"quantbot-go/internal/venue"
)

type fakeVenue struct {
	account venue.Account
	symbols map[string]venue.Symbol
}

func (f *fakeVenue) AccountInfo(context.Context) (venue.Account, error) { return f.account, nil }

func (f *fakeVenue) SymbolInfo(_ context.Context, symbol string) (venue.Symbol, error) {
	info, ok := f.symbols[symbol]
	if !ok {
		return venue.Symbol{}, exception.ErrUnknownSymbol
	}
	return info, nil
}

type identity struct{ err error }

func (c identity) Convert(_ context.Context, amount float64, _, _ string) (float64, error) {
	return amount, c.err
}

func newDeps() (Deps, *markettest.Feed) {
	feed := markettest.NewFeed()
	feed.SetTick("EURUSD", 1.1998, 1.2000)
	v := &fakeVenue{
		account: venue.Account{Currency: "USD", Equity: 10000, Balance: 10000},
		symbols: map[string]venue.Symbol{"EURUSD": {
			Name: "EURUSD", MinVolume: 0.01, VolumeStep: 0.01, TickSize: 0.0001, Point: 0.0001,
			ContractSize: 10000, ProfitCurrency: "USD",
		}},
	}
	return Deps{Venue: v, Feed: feed, Converter: identity{}, Log: zerolog.Nop()}, feed
}

func buy(sl float64) event.Signal {
	return event.Signal{Symbol: "EURUSD", Direction: event.Buy, TargetOrder: event.Market, StrategyID: 12345, StopLoss: sl}
}

func TestRiskPctExample(t *testing.T) {
	deps, _ := newDeps()
	s := NewRiskPct(0.01, deps)
	assert.InDelta(t, 2.0, s.Volume(context.Background(), buy(1.1950)), 1e-9)
}

func TestRiskPctPendingUsesTargetPrice(t *testing.T) {
	deps, _ := newDeps()
	s := NewRiskPct(0.01, deps)
	sig := event.Signal{Symbol: "EURUSD", Direction: event.Sell, TargetOrder: event.Limit, TargetPrice: 1.2100, StopLoss: 1.2200}
	assert.InDelta(t, 1.0, s.Volume(context.Background(), sig), 1e-9)
}

func TestRiskPctRejects(t *testing.T) {
	deps, _ := newDeps()
	ctx := context.Background()
	assert.Zero(t, NewRiskPct(0.01, deps).Volume(ctx, buy(0)), "no stop loss")
	assert.Zero(t, NewRiskPct(-0.5, deps).Volume(ctx, buy(1.1950)), "non-positive pct")
	assert.Zero(t, NewRiskPct(0.01, deps).Volume(ctx, buy(1.2000)), "zero distance")

	deps.Converter = identity{err: errors.New("no pair")}
	assert.Zero(t, NewRiskPct(0.01, deps).Volume(ctx, buy(1.1950)), "conversion failure")
}

func TestRoundingHelpers(t *testing.T) {
	assert.Equal(t, 50.0, DistanceInTicks(1.2000, 1.1950, 0.0001))
	assert.Equal(t, 0.0, DistanceInTicks(1.2, 1.1, 0))
	assert.Equal(t, 1.23, RoundToStep(1.2345, 0.01))
	assert.Equal(t, 1.5, RoundToStep(1.26, 0.5))
	assert.Equal(t, 0.7, RoundToStep(0.7, 0))
}

func TestFixedLotClampsNegative(t *testing.T) {
	assert.Equal(t, 0.25, NewFixedLot(0.25).Volume(context.Background(), buy(0)))
	assert.Zero(t, NewFixedLot(-1).Volume(context.Background(), buy(0)))
}

func TestSizerGatesOnMinLot(t *testing.T) {
	deps, _ := newDeps()
	ctx := context.Background()

	minLot, err := Build(Params{Kind: "min_lot"}, deps)
	require.NoError(t, err)
	sized, ok := NewSizer(minLot, deps.Venue, zerolog.Nop()).Size(ctx, buy(0))
	require.True(t, ok)
	assert.Equal(t, 0.01, sized.Volume)
	assert.Equal(t, buy(0), sized.Signal)

	tiny, err := Build(Params{Kind: "fixed_lot", FixedLot: 0.001}, deps)
	require.NoError(t, err)
	_, ok = NewSizer(tiny, deps.Venue, zerolog.Nop()).Size(ctx, buy(0))
	assert.False(t, ok, "volume below min lot is dropped")

	negative, err := Build(Params{Kind: "fixed_lot", FixedLot: -3}, deps)
	require.NoError(t, err)
	_, ok = NewSizer(negative, deps.Venue, zerolog.Nop()).Size(ctx, buy(0))
	assert.False(t, ok)

	unknown := event.Signal{Symbol: "XAUUSD", Direction: event.Buy, TargetOrder: event.Market}
	_, ok = NewSizer(minLot, deps.Venue, zerolog.Nop()).Size(ctx, unknown)
	assert.False(t, ok)
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	deps, _ := newDeps()
	_, err := Build(Params{Kind: "kelly"}, deps)
	require.ErrorIs(t, err, exception.ErrConfiguration)

	_, err = Build(Params{Kind: "risk_pct", RiskPct: 0.01}, Deps{Venue: deps.Venue})
	require.ErrorIs(t, err, exception.ErrConfiguration)
}
