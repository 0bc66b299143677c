package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/market"
	"quantbot-go/internal/metrics"
)

var binanceIntervals = map[market.Timeframe]string{
	market.M1:  "1m",
	market.M3:  "3m",
	market.M5:  "5m",
	market.M15: "15m",
	market.M30: "30m",
	market.H1:  "1h",
	market.H2:  "2h",
	market.H4:  "4h",
	market.H6:  "6h",
	market.H8:  "8h",
	market.H12: "12h",
	market.D1:  "1d",
	market.W1:  "1w",
	market.MN1: "1M",
}

// BinanceFeed reads closed klines over REST. Quotes come from the bookTicker stream when
// Stream is running and fresh, from the REST bookTicker endpoint otherwise.
type BinanceFeed struct {
	opts    options
	log     zerolog.Logger
	symbols []string

	mu     sync.RWMutex
	quotes map[string]market.Tick
}

// NewBinanceFeed tracks symbols (deduplicated, sorted for determinism).
func NewBinanceFeed(symbols []string, log zerolog.Logger, opts ...Option) *BinanceFeed {
	f := &BinanceFeed{opts: buildOptions(opts), log: log, quotes: make(map[string]market.Tick)}
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
	return f
}

func (f *BinanceFeed) LatestClosedBar(ctx context.Context, symbol string, tf market.Timeframe) (event.Bar, error) {
	bars, err := f.LatestClosedBars(ctx, symbol, tf, 1)
	if err != nil {
		return event.Bar{}, err
	}
	return bars[len(bars)-1], nil
}

// LatestClosedBars requests one extra kline because Binance includes the bar still forming.
func (f *BinanceFeed) LatestClosedBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]event.Bar, error) {
	interval, ok := binanceIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("binance has no %s klines: %w", tf, exception.ErrDataUnavailable)
	}
	if count <= 0 {
		count = 1
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(min(count+1, 1000)))

	var rows [][]json.RawMessage
	if err := f.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("klines %s: %v: %w", symbol, err, exception.ErrDataUnavailable)
	}
	nowMs := f.opts.now().UnixMilli()
	bars := make([]event.Bar, 0, len(rows))
	for _, row := range rows {
		bar, closeMs, err := parseKline(row)
		if err != nil {
			f.log.Warn().Err(err).Str("sym", symbol).Msg("invalid kline from binance")
			continue
		}
		if closeMs >= nowMs {
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no closed klines for %s: %w", symbol, exception.ErrDataUnavailable)
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

// binanceBookTicker is a stream frame. The quantity keys B and A must be declared: encoding/json
// matches keys case-insensitively and would otherwise overwrite b and a with them.
type binanceBookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type binanceRESTBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

func (f *BinanceFeed) LatestTick(ctx context.Context, symbol string) (market.Tick, error) {
	symbol = strings.ToUpper(symbol)
	f.mu.RLock()
	tick, ok := f.quotes[symbol]
	f.mu.RUnlock()
	if ok && f.opts.now().Sub(tick.Time) <= f.opts.staleAfter {
		return tick, nil
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	var payload binanceRESTBookTicker
	if err := f.get(ctx, "/api/v3/ticker/bookTicker", q, &payload); err != nil {
		return market.Tick{}, fmt.Errorf("book ticker %s: %v: %w", symbol, err, exception.ErrDataUnavailable)
	}
	tick, err := f.quote(payload.BidPrice, payload.AskPrice)
	if err != nil {
		return market.Tick{}, fmt.Errorf("book ticker %s: %v: %w", symbol, err, exception.ErrDataUnavailable)
	}
	f.store(symbol, tick)
	return tick, nil
}

func (f *BinanceFeed) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := f.opts.restURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "quantbot-go/1.0 (paper)")
	resp, err := f.opts.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (f *BinanceFeed) quote(bid, ask string) (market.Tick, error) {
	b, err := strconv.ParseFloat(bid, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("invalid bid %q", bid)
	}
	a, err := strconv.ParseFloat(ask, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("invalid ask %q", ask)
	}
	return market.Tick{Bid: b, Ask: a, Last: (a + b) / 2, Time: f.opts.now()}, nil
}

func (f *BinanceFeed) store(symbol string, tick market.Tick) {
	f.mu.Lock()
	f.quotes[symbol] = tick
	f.mu.Unlock()
}

// parseKline reads [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...].
func parseKline(row []json.RawMessage) (event.Bar, int64, error) {
	if len(row) < 9 {
		return event.Bar{}, 0, fmt.Errorf("kline has %d fields", len(row))
	}
	var openMs, closeMs, trades int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return event.Bar{}, 0, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return event.Bar{}, 0, fmt.Errorf("close time: %w", err)
	}
	if err := json.Unmarshal(row[8], &trades); err != nil {
		return event.Bar{}, 0, fmt.Errorf("trades: %w", err)
	}
	var px [5]float64
	for i := range px {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return event.Bar{}, 0, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return event.Bar{}, 0, fmt.Errorf("field %d: %w", i+1, err)
		}
		px[i] = v
	}
	return event.Bar{
		Open:       px[0],
		High:       px[1],
		Low:        px[2],
		Close:      px[3],
		Volume:     px[4],
		TickVolume: float64(trades),
		Time:       time.UnixMilli(openMs).UTC(),
	}, closeMs, nil
}

type binanceEnvelope struct {
	Stream string            `json:"stream"`
	Data   binanceBookTicker `json:"data"`
}

// Stream keeps the quote cache fed from the bookTicker streams until ctx is cancelled,
// reconnecting with backoff.
func (f *BinanceFeed) Stream(ctx context.Context) error {
	if len(f.symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	streams := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		streams[i] = strings.ToLower(sym) + "@bookTicker"
	}

	endpoint := fmt.Sprintf("%s/stream?streams=%s", f.opts.wsURL, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeStream(ctx, endpoint); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("binance stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *BinanceFeed) consumeStream(ctx context.Context, endpoint string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", f.symbols).Msg("connected quote stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		symbol := strings.ToUpper(env.Data.Symbol)
		if symbol == "" {
			symbol = parseBinanceSymbol(env.Stream)
		}
		tick, err := f.quote(env.Data.BidPrice, env.Data.AskPrice)
		if err != nil {
			f.log.Warn().Err(err).Str("sym", symbol).Msg("invalid quote from binance")
			continue
		}
		f.store(symbol, tick)
		metrics.TicksTotal.WithLabelValues(symbol).Inc()
	}
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
