package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/metrics"
)

const defaultFeedTimeout = 5 * time.Second

// Poller checks the tracked symbols for newly closed bars. It owns the per-symbol last-seen
// timestamps and must be driven from a single goroutine.
type Poller struct {
	feed      Feed
	timeframe Timeframe
	symbols   []string
	lastSeen  map[string]time.Time
	timeout   time.Duration
	log       zerolog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithFeedTimeout bounds every feed call made during a poll.
func WithFeedTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPoller tracks the given symbols (deduplicated, sorted) on one timeframe.
func NewPoller(feed Feed, tf Timeframe, symbols []string, log zerolog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		feed:      feed,
		timeframe: tf,
		lastSeen:  make(map[string]time.Time),
		timeout:   defaultFeedTimeout,
		log:       log,
	}
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if _, dup := unique[sym]; dup {
			continue
		}
		unique[sym] = struct{}{}
		p.symbols = append(p.symbols, sym)
		p.lastSeen[sym] = time.Time{}
	}
	sort.Strings(p.symbols)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Symbols returns the tracked symbols.
func (p *Poller) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// LastSeen returns the timestamp of the newest bar published for symbol.
func (p *Poller) LastSeen(symbol string) time.Time { return p.lastSeen[symbol] }

// Poll publishes one Data event per symbol whose latest closed bar is strictly newer than the
// last one seen, and reports how many were published.
func (p *Poller) Poll(ctx context.Context, pub event.Publisher) int {
	published := 0
	for _, sym := range p.symbols {
		if ctx.Err() != nil {
			return published
		}
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		bar, err := p.feed.LatestClosedBar(callCtx, sym, p.timeframe)
		cancel()
		if err != nil {
			p.log.Debug().Err(err).Str("sym", sym).Msg("no bar this cycle")
			continue
		}
		if !bar.Time.After(p.lastSeen[sym]) {
			continue
		}
		p.lastSeen[sym] = bar.Time
		pub.Push(event.Data{Symbol: sym, Bar: bar})
		metrics.BarsTotal.WithLabelValues(sym).Inc()
		published++
	}
	return published
}

// Run polls on a fixed interval until ctx is done, acting as a standalone producer.
func (p *Poller) Run(ctx context.Context, interval time.Duration, pub event.Publisher) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.Poll(ctx, pub)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx, pub)
		}
	}
}
