// Package director runs the event loop that moves events through the pipeline stages.
package director

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/execution"
	"quantbot-go/internal/metrics"
	"quantbot-go/internal/notify"
)

const defaultPollInterval = 10 * time.Millisecond

// Poller publishes data events for newly closed bars.
type Poller interface {
	Poll(ctx context.Context, pub event.Publisher) int
	Run(ctx context.Context, interval time.Duration, pub event.Publisher) error
}

type SignalStage interface {
	Generate(ctx context.Context, data event.Data) (event.Signal, bool)
}

type SizingStage interface {
	Size(ctx context.Context, sig event.Signal) (event.Sizing, bool)
}

type RiskStage interface {
	Assess(ctx context.Context, sizing event.Sizing) (event.Order, bool)
}

type ExecutionStage interface {
	Execute(ctx context.Context, order event.Order) (event.Event, execution.State)
}

// Options wires a Director. Every stage is required.
type Options struct {
	Queue    *event.Queue
	Poller   Poller
	Signals  SignalStage
	Sizer    SizingStage
	Risk     RiskStage
	Executor ExecutionStage
	Notifier notify.Notifier
	Log      zerolog.Logger

	// PollInterval is the idle sleep between feed polls.
	PollInterval time.Duration
	// BackgroundPolling moves polling to its own goroutine; the loop then only consumes.
	BackgroundPolling bool
	Now               func() time.Time
}

// Director owns the dispatch loop. Events are processed one at a time, in queue order.
type Director struct {
	opts Options
	log  zerolog.Logger
}

// New validates opts.
func New(opts Options) (*Director, error) {
	switch {
	case opts.Queue == nil:
		return nil, fmt.Errorf("director: queue required: %w", exception.ErrConfiguration)
	case opts.Poller == nil:
		return nil, fmt.Errorf("director: poller required: %w", exception.ErrConfiguration)
	case opts.Signals == nil || opts.Sizer == nil || opts.Risk == nil || opts.Executor == nil:
		return nil, fmt.Errorf("director: all pipeline stages required: %w", exception.ErrConfiguration)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLog(opts.Log)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Director{opts: opts, log: opts.Log}, nil
}

// Run dispatches events until ctx is cancelled, returning nil, or until a malformed event
// halts the loop, returning an error wrapping exception.ErrMalformedEvent.
func (d *Director) Run(ctx context.Context) error {
	q := d.opts.Queue
	if d.opts.BackgroundPolling {
		go func() {
			if err := d.opts.Poller.Run(ctx, d.opts.PollInterval, q); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error().Err(err).Msg("background poller stopped")
			}
		}()
	}
	d.log.Info().Bool("background_polling", d.opts.BackgroundPolling).Dur("poll_interval", d.opts.PollInterval).Msg("director started")

	idle := time.NewTimer(d.opts.PollInterval)
	defer idle.Stop()
	for {
		if ctx.Err() != nil {
			d.log.Info().Int("pending_events", q.Len()).Msg("director stopped")
			return nil
		}
		ev, ok := q.TryPop()
		if ok {
			if err := d.Dispatch(ctx, ev); err != nil {
				d.log.Error().Err(err).Msg("halting on malformed event")
				return err
			}
			continue
		}
		if !d.opts.BackgroundPolling && d.opts.Poller.Poll(ctx, q) > 0 {
			continue
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(d.opts.PollInterval)
		select {
		case <-ctx.Done():
		case <-idle.C:
		}
	}
}

// Dispatch hands ev to its stage and enqueues whatever the stage derives from it.
func (d *Director) Dispatch(ctx context.Context, ev event.Event) error {
	if ev == nil {
		return fmt.Errorf("nil event: %w", exception.ErrMalformedEvent)
	}
	// Only the value records are dispatchable; a typed-nil pointer would panic in Validate.
	switch ev.(type) {
	case event.Data, event.Signal, event.Sizing, event.Order, event.Execution, event.PendingPlaced:
	default:
		return fmt.Errorf("unsupported event type %T: %w", ev, exception.ErrMalformedEvent)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%s event: %v: %w", ev.Kind(), err, exception.ErrMalformedEvent)
	}
	metrics.EventsTotal.WithLabelValues(ev.Kind().String()).Inc()
	d.log.Debug().Str("kind", ev.Kind().String()).Msg("dispatch")

	q := d.opts.Queue
	switch e := ev.(type) {
	case event.Data:
		if sig, ok := d.opts.Signals.Generate(ctx, e); ok {
			q.Push(sig)
		}
	case event.Signal:
		if sized, ok := d.opts.Sizer.Size(ctx, e); ok {
			q.Push(sized)
		}
	case event.Sizing:
		if order, ok := d.opts.Risk.Assess(ctx, e); ok {
			q.Push(order)
		}
	case event.Order:
		if out, _ := d.opts.Executor.Execute(ctx, e); out != nil {
			q.Push(out)
		}
	case event.Execution:
		title, body := notify.ExecutionMessage(e)
		d.notify(ctx, title, body)
	case event.PendingPlaced:
		title, body := notify.PendingMessage(e, d.opts.Now())
		d.notify(ctx, title, body)
	default:
		return fmt.Errorf("no handler for %s event: %w", ev.Kind(), exception.ErrMalformedEvent)
	}
	return nil
}

func (d *Director) notify(ctx context.Context, title, body string) {
	if err := d.opts.Notifier.Send(ctx, title, body); err != nil {
		d.log.Warn().Err(err).Str("title", title).Msg("notification failed")
	}
}
