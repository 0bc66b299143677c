// Package exchange hosts the market data feeds behind market.Feed.
package exchange

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
)

const (
	// ProviderSynthetic generates deterministic random-walk bars (useful for tests/offline work).
	ProviderSynthetic = "synthetic"
	// ProviderBinance reads klines over REST and quotes from the bookTicker websocket stream.
	ProviderBinance = "binance"
)

const (
	defaultRESTURL     = "https://api.binance.com"
	defaultWSURL       = "wss://stream.binance.com:9443"
	defaultHTTPTimeout = 10 * time.Second
	defaultStaleAfter  = 5 * time.Second
	defaultHistory     = 500
	defaultVolatility  = 0.0005
)

type options struct {
	restURL    string
	wsURL      string
	client     *http.Client
	now        func() time.Time
	staleAfter time.Duration
	seed       int64
	volatility float64
	history    int
}

// Option configures feed construction parameters.
type Option func(*options)

// WithRESTURL overrides the Binance REST base URL.
func WithRESTURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.restURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithWSURL overrides the Binance websocket base URL.
func WithWSURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.wsURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithClock overrides the wall clock deciding which bars are closed.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStaleAfter sets how long a streamed quote is preferred over a REST lookup.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithSeed fixes the synthetic random walk.
func WithSeed(seed int64) Option { return func(o *options) { o.seed = seed } }

// WithVolatility sets the per-bar standard deviation of synthetic returns.
func WithVolatility(v float64) Option {
	return func(o *options) {
		if v > 0 {
			o.volatility = v
		}
	}
}

// WithHistory sets how many closed synthetic bars exist before the feed was created.
func WithHistory(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.history = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		restURL:    defaultRESTURL,
		wsURL:      defaultWSURL,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		now:        time.Now,
		staleAfter: defaultStaleAfter,
		seed:       1,
		volatility: defaultVolatility,
		history:    defaultHistory,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New constructs the feed backed by the requested provider. An empty provider is synthetic.
func New(provider string, symbols []SymbolSeed, log zerolog.Logger, opts ...Option) (market.Feed, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderSynthetic:
		return NewSyntheticFeed(symbols, log, opts...), nil
	case ProviderBinance:
		names := make([]string, 0, len(symbols))
		for _, s := range symbols {
			names = append(names, s.Name)
		}
		return NewBinanceFeed(names, log, opts...), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q: %w", provider, exception.ErrConfiguration)
	}
}

// binanceMinPoll keeps one klines request per symbol per second, well inside the REST weight budget.
const binanceMinPoll = time.Second

// PollInterval returns the idle poll interval to use with provider: requested, raised to the
// provider's floor.
func PollInterval(provider string, requested time.Duration) time.Duration {
	if strings.ToLower(strings.TrimSpace(provider)) == ProviderBinance {
		return max(requested, binanceMinPoll)
	}
	return requested
}
