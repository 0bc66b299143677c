package paper

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/fx"
	"quantbot-go/internal/market/markettest"
	"quantbot-go/internal/venue"
)

var eurusd = venue.Symbol{
	Name:           "EURUSD",
	MinVolume:      0.01,
	MaxVolume:      100,
	VolumeStep:     0.01,
	Point:          0.00001,
	TickSize:       0.00001,
	ContractSize:   100000,
	BaseCurrency:   "EUR",
	ProfitCurrency: "USD",
	Digits:         5,
}

func newTestVenue(t *testing.T, balance float64) (*Venue, *markettest.Feed) {
	t.Helper()
	feed := markettest.NewFeed()
	feed.SetTick("EURUSD", 1.1000, 1.1002)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewVenue(Config{Currency: "USD", Balance: balance, Leverage: 100, Symbols: []venue.Symbol{eurusd}},
		feed, fx.NewFeedConverter(feed), zerolog.Nop(), WithClock(func() time.Time { return fixed }))
	return v, feed
}

func TestMarketBuyThenCloseRealizesPnL(t *testing.T) {
	v, feed := newTestVenue(t, 10000)
	ctx := context.Background()

	res, err := v.SubmitOrder(ctx, venue.Request{Action: venue.ActionDeal, Symbol: "EURUSD", Volume: 0.1, Type: venue.OrderBuy, Magic: 42})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if res.Retcode != venue.RetcodeDone {
		t.Fatalf("expected DONE, got %s (%s)", res.Retcode, res.Comment)
	}
	deal, err := v.Deal(ctx, res.DealID)
	if err != nil {
		t.Fatalf("Deal lookup failed: %v", err)
	}
	if deal.Price != 1.1002 || deal.Direction != event.Buy || deal.Magic != 42 {
		t.Fatalf("unexpected deal %+v", deal)
	}

	positions, _ := v.OpenPositions(ctx, venue.Filter{Magic: 42})
	if len(positions) != 1 || positions[0].Ticket != res.Ticket {
		t.Fatalf("expected one position, got %+v", positions)
	}

	feed.SetTick("EURUSD", 1.1102, 1.1104)
	closeRes, err := v.ClosePosition(ctx, res.Ticket)
	if err != nil || closeRes.Retcode != venue.RetcodeDone {
		t.Fatalf("close failed: %v %+v", err, closeRes)
	}
	acct, _ := v.AccountInfo(ctx)
	if math.Abs(acct.Balance-10100) > 1e-6 {
		t.Fatalf("expected balance 10100, got %.4f", acct.Balance)
	}
	closeDeal, _ := v.Deal(ctx, closeRes.DealID)
	if closeDeal.Direction != event.Sell {
		t.Fatalf("closing deal must be opposite side, got %s", closeDeal.Direction)
	}
}

func TestSubmitRejectsBadVolume(t *testing.T) {
	v, _ := newTestVenue(t, 10000)
	for _, vol := range []float64{0, 0.001, 0.015, 1000} {
		res, err := v.SubmitOrder(context.Background(), venue.Request{Action: venue.ActionDeal, Symbol: "EURUSD", Volume: vol, Type: venue.OrderSell})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Retcode != venue.RetcodeInvalidVolume {
			t.Fatalf("volume %.3f: expected INVALID_VOLUME, got %s", vol, res.Retcode)
		}
	}
}

func TestSubmitRejectsWithoutMargin(t *testing.T) {
	v, _ := newTestVenue(t, 100)
	res, _ := v.SubmitOrder(context.Background(), venue.Request{Action: venue.ActionDeal, Symbol: "EURUSD", Volume: 1, Type: venue.OrderBuy})
	if res.Retcode != venue.RetcodeNoMoney {
		t.Fatalf("expected NO_MONEY, got %s", res.Retcode)
	}
}

func TestPendingOrderTriggersAndCancels(t *testing.T) {
	v, feed := newTestVenue(t, 10000)
	ctx := context.Background()

	res, _ := v.SubmitOrder(ctx, venue.Request{Action: venue.ActionPending, Symbol: "EURUSD", Volume: 0.1, Type: venue.OrderBuyLimit, Price: 1.0950, Magic: 7})
	if res.Retcode != venue.RetcodeDone {
		t.Fatalf("expected pending placed, got %s", res.Retcode)
	}
	other, _ := v.SubmitOrder(ctx, venue.Request{Action: venue.ActionPending, Symbol: "EURUSD", Volume: 0.1, Type: venue.OrderSellStop, Price: 1.0500, Magic: 7})

	orders, _ := v.PendingOrders(ctx, venue.Filter{Magic: 7})
	if len(orders) != 2 {
		t.Fatalf("expected 2 resting orders, got %d", len(orders))
	}

	feed.SetTick("EURUSD", 1.0940, 1.0942)
	positions, _ := v.OpenPositions(ctx, venue.Filter{})
	if len(positions) != 1 || positions[0].PriceOpen != 1.0950 {
		t.Fatalf("expected limit to fill at 1.0950, got %+v", positions)
	}

	cancel, _ := v.CancelOrder(ctx, other.Ticket)
	if cancel.Retcode != venue.RetcodeDone {
		t.Fatalf("cancel failed: %s", cancel.Retcode)
	}
	missing, _ := v.CancelOrder(ctx, other.Ticket)
	if missing.Retcode != venue.RetcodeInvalidOrder {
		t.Fatalf("expected INVALID_ORDER for unknown ticket, got %s", missing.Retcode)
	}
}

func TestStopLossClosesPosition(t *testing.T) {
	v, feed := newTestVenue(t, 10000)
	ctx := context.Background()
	res, _ := v.SubmitOrder(ctx, venue.Request{Action: venue.ActionDeal, Symbol: "EURUSD", Volume: 0.1, Type: venue.OrderSell, StopLoss: 1.1050})
	if res.Retcode != venue.RetcodeDone {
		t.Fatalf("open failed: %s", res.Retcode)
	}
	feed.SetTick("EURUSD", 1.1060, 1.1062)
	positions, _ := v.OpenPositions(ctx, venue.Filter{})
	if len(positions) != 0 {
		t.Fatalf("expected stop-loss exit, got %+v", positions)
	}
	acct, _ := v.AccountInfo(ctx)
	if math.Abs(acct.Balance-(10000-50)) > 1e-6 {
		t.Fatalf("expected 50 loss, balance %.4f", acct.Balance)
	}
}

func TestUnknownSymbol(t *testing.T) {
	v, _ := newTestVenue(t, 10000)
	if _, err := v.SymbolInfo(context.Background(), "XAUUSD"); err == nil {
		t.Fatalf("expected unknown symbol error")
	}
	res, _ := v.SubmitOrder(context.Background(), venue.Request{Action: venue.ActionDeal, Symbol: "XAUUSD", Volume: 1, Type: venue.OrderBuy})
	if res.Retcode != venue.RetcodeInvalid {
		t.Fatalf("expected INVALID, got %s", res.Retcode)
	}
}
