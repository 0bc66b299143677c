package director

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/execution"
)

type stubPoller struct {
	mu      sync.Mutex
	pending []event.Data
	polls   int
}

func (p *stubPoller) Poll(_ context.Context, pub event.Publisher) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	n := len(p.pending)
	for _, d := range p.pending {
		pub.Push(d)
	}
	p.pending = nil
	return n
}

func (p *stubPoller) Run(ctx context.Context, interval time.Duration, pub event.Publisher) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p.Poll(ctx, pub)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type pipeline struct {
	mu    sync.Mutex
	trace []string
	sent  []string
}

func (p *pipeline) record(s string) {
	p.mu.Lock()
	p.trace = append(p.trace, s)
	p.mu.Unlock()
}

func (p *pipeline) Generate(_ context.Context, d event.Data) (event.Signal, bool) {
	p.record("data")
	return event.Signal{Symbol: d.Symbol, Direction: event.Buy, TargetOrder: event.Market, StrategyID: 12345}, true
}

func (p *pipeline) Size(_ context.Context, s event.Signal) (event.Sizing, bool) {
	p.record("signal")
	return s.WithVolume(0.1), true
}

func (p *pipeline) Assess(_ context.Context, s event.Sizing) (event.Order, bool) {
	p.record("sizing")
	return s.ToOrder(s.Volume), true
}

func (p *pipeline) Execute(_ context.Context, o event.Order) (event.Event, execution.State) {
	p.record("order")
	return event.Execution{Symbol: o.Symbol, Direction: o.Direction, Volume: o.Volume, FillPrice: 1.1, StrategyID: o.StrategyID}, execution.Filled
}

func (p *pipeline) Send(_ context.Context, title, _ string) error {
	p.mu.Lock()
	p.sent = append(p.sent, title)
	p.mu.Unlock()
	return errors.New("notification channel down")
}

func (p *pipeline) snapshot() ([]string, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.trace...), append([]string(nil), p.sent...)
}

func newDirector(t *testing.T, poller Poller, p *pipeline, background bool) (*Director, *event.Queue) {
	t.Helper()
	q := event.NewQueue(8)
	d, err := New(Options{
		Queue: q, Poller: poller, Signals: p, Sizer: p, Risk: p, Executor: p, Notifier: p,
		Log: zerolog.Nop(), PollInterval: time.Millisecond, BackgroundPolling: background,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, q
}

func bar(sym string) event.Data {
	return event.Data{Symbol: sym, Bar: event.Bar{Close: 1.1, Time: time.Unix(1700000000, 0)}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func runDirector(t *testing.T, background bool) {
	poller := &stubPoller{pending: []event.Data{bar("EURUSD")}}
	p := &pipeline{}
	d, _ := newDirector(t, poller, p, background)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, func() bool { _, sent := p.snapshot(); return len(sent) == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v on shutdown", err)
	}
	trace, sent := p.snapshot()
	want := []string{"data", "signal", "sizing", "order"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
	if sent[0] != "EURUSD - MARKET ORDER" {
		t.Fatalf("unexpected notification %q", sent[0])
	}
}

func TestRunDrivesPipelineInOrder(t *testing.T) { runDirector(t, false) }

func TestRunWithBackgroundPolling(t *testing.T) { runDirector(t, true) }

func TestRunHaltsOnNilEvent(t *testing.T) {
	p := &pipeline{}
	d, q := newDirector(t, &stubPoller{}, p, false)
	q.Push(nil)
	err := d.Run(context.Background())
	if !errors.Is(err, exception.ErrMalformedEvent) {
		t.Fatalf("expected malformed event error, got %v", err)
	}
}

func TestRunHaltsOnPointerEvents(t *testing.T) {
	var nilData *event.Data
	for _, ev := range []event.Event{nilData, &event.Data{Symbol: "EURUSD"}} {
		p := &pipeline{}
		d, q := newDirector(t, &stubPoller{}, p, false)
		q.Push(ev)
		err := d.Run(context.Background())
		if !errors.Is(err, exception.ErrMalformedEvent) {
			t.Fatalf("%T: expected malformed event error, got %v", ev, err)
		}
	}
}

func TestDispatchRejectsInvalidEvent(t *testing.T) {
	p := &pipeline{}
	d, q := newDirector(t, &stubPoller{}, p, false)
	err := d.Dispatch(context.Background(), event.Signal{Symbol: "EURUSD", Direction: "HOLD", TargetOrder: event.Market})
	if !errors.Is(err, exception.ErrMalformedEvent) {
		t.Fatalf("expected malformed event error, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("nothing should be enqueued")
	}
}

func TestDispatchPendingNotifies(t *testing.T) {
	p := &pipeline{}
	d, _ := newDirector(t, &stubPoller{}, p, false)
	placed := event.Signal{Symbol: "USDJPY", Direction: event.Sell, TargetOrder: event.Stop, TargetPrice: 150}.
		WithVolume(1).ToOrder(1).ToPendingPlaced(3)
	if err := d.Dispatch(context.Background(), placed); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, sent := p.snapshot(); len(sent) != 1 || sent[0] != "USDJPY - PENDING PLACED" {
		t.Fatalf("unexpected notifications %v", sent)
	}
}

func TestIdlePollIsIdempotent(t *testing.T) {
	poller := &stubPoller{}
	p := &pipeline{}
	d, q := newDirector(t, poller, p, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	poller.mu.Lock()
	polls := poller.polls
	poller.mu.Unlock()
	if polls == 0 || q.Len() != 0 {
		t.Fatalf("expected idle polls and an empty queue, got polls=%d len=%d", polls, q.Len())
	}
}

func TestNewRequiresStages(t *testing.T) {
	if _, err := New(Options{Queue: event.NewQueue(0), Poller: &stubPoller{}}); !errors.Is(err, exception.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
