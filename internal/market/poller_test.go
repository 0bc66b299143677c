package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/market"
	"quantbot-go/internal/market/markettest"
)

func TestPollPublishesNewBarsOnce(t *testing.T) {
	feed := markettest.NewFeed()
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	feed.SetCloses("EURUSD", now, 1.10, 1.11)
	feed.SetCloses("USDJPY", now, 150.1)

	q := event.NewQueue(4)
	poller := market.NewPoller(feed, market.M1, []string{"EURUSD", "USDJPY", "EURUSD", " "}, zerolog.Nop())

	if got := poller.Poll(context.Background(), q); got != 2 {
		t.Fatalf("expected 2 data events, got %d", got)
	}
	if got := poller.Poll(context.Background(), q); got != 0 {
		t.Fatalf("expected idempotent second poll, got %d events", got)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued events, got %d", q.Len())
	}

	ev, _ := q.TryPop()
	data, ok := ev.(event.Data)
	if !ok || data.Symbol != "EURUSD" || data.Bar.Close != 1.11 {
		t.Fatalf("unexpected first event %+v", ev)
	}
	if !poller.LastSeen("EURUSD").Equal(now) {
		t.Fatalf("last seen not updated: %s", poller.LastSeen("EURUSD"))
	}

	feed.AppendBar("EURUSD", event.Bar{Close: 1.12, Time: now.Add(time.Minute)})
	if got := poller.Poll(context.Background(), q); got != 1 {
		t.Fatalf("expected one new bar, got %d", got)
	}
}

func TestPollIgnoresStaleBars(t *testing.T) {
	feed := markettest.NewFeed()
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	feed.SetCloses("EURUSD", now, 1.10)
	q := event.NewQueue(1)
	poller := market.NewPoller(feed, market.M1, []string{"EURUSD"}, zerolog.Nop())
	poller.Poll(context.Background(), q)

	feed.AppendBar("EURUSD", event.Bar{Close: 1.2, Time: now.Add(-time.Minute)})
	if got := poller.Poll(context.Background(), q); got != 0 {
		t.Fatalf("older bar must not be published, got %d", got)
	}
	if !poller.LastSeen("EURUSD").Equal(now) {
		t.Fatalf("last seen moved backwards")
	}
}

func TestPollSkipsUnavailableSymbols(t *testing.T) {
	feed := markettest.NewFeed()
	q := event.NewQueue(1)
	poller := market.NewPoller(feed, market.M1, []string{"GBPUSD"}, zerolog.Nop(), market.WithFeedTimeout(time.Second))
	if got := poller.Poll(context.Background(), q); got != 0 {
		t.Fatalf("expected no events for unknown symbol, got %d", got)
	}
	if !poller.LastSeen("GBPUSD").IsZero() {
		t.Fatalf("sentinel must stay at zero time")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	feed := markettest.NewFeed()
	feed.SetCloses("EURUSD", time.Now(), 1.1)
	q := event.NewQueue(1)
	poller := market.NewPoller(feed, market.M1, []string{"EURUSD"}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx, 10*time.Millisecond, q) }()

	deadline := time.After(2 * time.Second)
	for q.Len() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for poll")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop")
	}
}
