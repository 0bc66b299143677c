package portfolio

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/fx"
	"quantbot-go/internal/market/markettest"
	"quantbot-go/internal/paper"
	"quantbot-go/internal/venue"
)

func TestCountsFilterByMagicAndSymbol(t *testing.T) {
	feed := markettest.NewFeed()
	feed.SetTick("EURUSD", 1.1, 1.1001)
	feed.SetTick("GBPUSD", 1.3, 1.3001)
	info := func(name string) venue.Symbol {
		return venue.Symbol{Name: name, MinVolume: 0.01, VolumeStep: 0.01, ContractSize: 100000, ProfitCurrency: "USD", TickSize: 0.00001, Point: 0.00001}
	}
	v := paper.NewVenue(paper.Config{Balance: 1_000_000, Symbols: []venue.Symbol{info("EURUSD"), info("GBPUSD")}},
		feed, fx.NewFeedConverter(feed), zerolog.Nop())

	ctx := context.Background()
	open := func(sym string, typ venue.OrderType, magic int64) {
		res, err := v.SubmitOrder(ctx, venue.Request{Action: venue.ActionDeal, Symbol: sym, Volume: 0.1, Type: typ, Magic: magic})
		if err != nil || res.Retcode != venue.RetcodeDone {
			t.Fatalf("open %s failed: %v %s", sym, err, res.Retcode)
		}
	}
	open("EURUSD", venue.OrderBuy, 12345)
	open("EURUSD", venue.OrderBuy, 12345)
	open("EURUSD", venue.OrderSell, 12345)
	open("EURUSD", venue.OrderSell, 999)
	open("GBPUSD", venue.OrderSell, 12345)

	p := New(v, 12345)
	c, err := p.CountBySymbol(ctx, "EURUSD")
	if err != nil {
		t.Fatalf("CountBySymbol returned error: %v", err)
	}
	if c.Long != 2 || c.Short != 1 || c.Total() != 3 {
		t.Fatalf("unexpected counts %+v", c)
	}
	if c.Of(event.Sell) != 1 {
		t.Fatalf("expected one short")
	}

	mine, _ := p.StrategyPositions(ctx)
	if len(mine) != 4 {
		t.Fatalf("expected 4 strategy positions, got %d", len(mine))
	}
	all, _ := p.Positions(ctx)
	if len(all) != 5 {
		t.Fatalf("expected 5 positions, got %d", len(all))
	}
}

// cachedVenue hands out the same backing slice on every call and ignores the filter.
type cachedVenue struct {
	venue.Venue
	positions []venue.Position
}

func (c *cachedVenue) OpenPositions(context.Context, venue.Filter) ([]venue.Position, error) {
	return c.positions, nil
}

func TestStrategyPositionsLeavesVenueSliceIntact(t *testing.T) {
	v := &cachedVenue{positions: []venue.Position{
		{Ticket: 1, Symbol: "EURUSD", Magic: 999},
		{Ticket: 2, Symbol: "EURUSD", Magic: 12345},
		{Ticket: 3, Symbol: "GBPUSD", Magic: 999},
	}}
	mine, err := New(v, 12345).StrategyPositions(context.Background())
	if err != nil {
		t.Fatalf("StrategyPositions returned error: %v", err)
	}
	if len(mine) != 1 || mine[0].Ticket != 2 {
		t.Fatalf("unexpected strategy positions %+v", mine)
	}
	for i, want := range []uint64{1, 2, 3} {
		if v.positions[i].Ticket != want {
			t.Fatalf("venue slice modified at %d: %+v", i, v.positions)
		}
	}
}
