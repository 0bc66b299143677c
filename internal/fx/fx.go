// Package fx converts monetary amounts between currencies using live FX quotes.
package fx

import (
	"context"
	"fmt"
	"strings"

	"quantbot-go/internal/market"
)

// Converter turns an amount in one currency into another.
type Converter interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
}

// MajorPairs are the FX symbols searched for a conversion rate, in priority order.
var MajorPairs = []string{
	"AUDCAD", "AUDCHF", "AUDJPY", "AUDNZD", "AUDUSD", "CADCHF", "CADJPY", "CHFJPY", "EURAUD", "EURCAD",
	"EURCHF", "EURGBP", "EURJPY", "EURNZD", "EURUSD", "GBPAUD", "GBPCAD", "GBPCHF", "GBPJPY", "GBPNZD",
	"GBPUSD", "NZDCAD", "NZDCHF", "NZDJPY", "NZDUSD", "USDCAD", "USDCHF", "USDJPY", "USDSEK", "USDNOK",
}

// FeedConverter prices conversions off the last bid of the matching FX pair.
type FeedConverter struct {
	feed  market.Feed
	pairs []string
}

// NewFeedConverter uses pairs when given, MajorPairs otherwise.
func NewFeedConverter(feed market.Feed, pairs ...string) *FeedConverter {
	if len(pairs) == 0 {
		pairs = MajorPairs
	}
	return &FeedConverter{feed: feed, pairs: pairs}
}

// Convert returns amount unchanged for identical currencies.
func (c *FeedConverter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount, nil
	}
	pair, ok := c.pairFor(from, to)
	if !ok {
		return 0, fmt.Errorf("no fx pair for %s/%s", from, to)
	}
	tick, err := c.feed.LatestTick(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("fx rate %s: %w", pair, err)
	}
	if tick.Bid <= 0 {
		return 0, fmt.Errorf("fx rate %s: non-positive bid %.6f", pair, tick.Bid)
	}
	if pair[:3] == to {
		return amount / tick.Bid, nil
	}
	return amount * tick.Bid, nil
}

func (c *FeedConverter) pairFor(from, to string) (string, bool) {
	for _, p := range c.pairs {
		if len(p) < 6 {
			continue
		}
		base, quote := p[:3], p[3:6]
		if (base == from && quote == to) || (base == to && quote == from) {
			return p, true
		}
	}
	return "", false
}
