// Package paper implements an in-memory trading venue priced off a market feed.
package paper

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/fx"
	"quantbot-go/internal/market"
	"quantbot-go/internal/venue"
)

const epsilon = 1e-9

// Config captures the paper account settings.
type Config struct {
	Login    int64
	Currency string
	Balance  float64
	Leverage float64
	Symbols  []venue.Symbol
}

// Venue fills requests against the latest feed quotes. Pending orders and stop-loss/take-profit
// levels are evaluated lazily whenever the venue is queried.
type Venue struct {
	mu         sync.Mutex
	feed       market.Feed
	conv       fx.Converter
	log        zerolog.Logger
	login      int64
	currency   string
	balance    float64
	leverage   float64
	symbols    map[string]venue.Symbol
	positions  map[uint64]venue.Position
	orders     map[uint64]venue.PendingOrder
	ledger     *Ledger
	nextTicket uint64
	now        func() time.Time
}

// Option configures a Venue.
type Option func(*Venue)

// WithClock overrides the wall clock used for deal timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Venue) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVenue builds a paper venue with the given starting balance and symbol specifications.
func NewVenue(cfg Config, feed market.Feed, conv fx.Converter, log zerolog.Logger, opts ...Option) *Venue {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 100
	}
	v := &Venue{
		feed:       feed,
		conv:       conv,
		log:        log,
		login:      cfg.Login,
		currency:   strings.ToUpper(cfg.Currency),
		balance:    cfg.Balance,
		leverage:   cfg.Leverage,
		symbols:    make(map[string]venue.Symbol, len(cfg.Symbols)),
		positions:  make(map[uint64]venue.Position),
		orders:     make(map[uint64]venue.PendingOrder),
		ledger:     NewLedger(64),
		nextTicket: 1,
		now:        time.Now,
	}
	for _, s := range cfg.Symbols {
		v.symbols[s.Name] = s
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Ledger exposes the deal history.
func (v *Venue) Ledger() *Ledger { return v.ledger }

// SubmitOrder handles deal and pending requests. Venue-level refusals are reported through the
// result's retcode, not as errors.
func (v *Venue) SubmitOrder(ctx context.Context, req venue.Request) (venue.Result, error) {
	if err := ctx.Err(); err != nil {
		return venue.Result{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweepLocked(ctx)

	info, ok := v.symbols[req.Symbol]
	if !ok {
		return venue.Result{Retcode: venue.RetcodeInvalid, Comment: "unknown symbol"}, nil
	}

	switch req.Action {
	case venue.ActionDeal:
		if req.Position != 0 {
			return v.closeLocked(ctx, req.Position)
		}
		if res, bad := checkVolume(info, req.Volume); bad {
			return res, nil
		}
		return v.openLocked(ctx, info, req)
	case venue.ActionPending:
		if res, bad := checkVolume(info, req.Volume); bad {
			return res, nil
		}
		return v.placeLocked(req)
	case venue.ActionRemove:
		return v.removeLocked(req.Order), nil
	default:
		return venue.Result{Retcode: venue.RetcodeInvalid, Comment: "unsupported action"}, nil
	}
}

// CancelOrder removes a resting order.
func (v *Venue) CancelOrder(ctx context.Context, ticket uint64) (venue.Result, error) {
	if err := ctx.Err(); err != nil {
		return venue.Result{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.removeLocked(ticket), nil
}

// ClosePosition closes the whole position at the current opposite quote.
func (v *Venue) ClosePosition(ctx context.Context, ticket uint64) (venue.Result, error) {
	if err := ctx.Err(); err != nil {
		return venue.Result{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeLocked(ctx, ticket)
}

// OpenPositions lists positions matching filter ordered by ticket.
func (v *Venue) OpenPositions(ctx context.Context, filter venue.Filter) ([]venue.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweepLocked(ctx)
	out := make([]venue.Position, 0, len(v.positions))
	for _, p := range v.positions {
		if filter.Match(p.Symbol, p.Magic, p.Ticket) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// PendingOrders lists resting orders matching filter ordered by ticket.
func (v *Venue) PendingOrders(ctx context.Context, filter venue.Filter) ([]venue.PendingOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweepLocked(ctx)
	out := make([]venue.PendingOrder, 0, len(v.orders))
	for _, o := range v.orders {
		if filter.Match(o.Symbol, o.Magic, o.Ticket) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// Deal returns a recorded fill.
func (v *Venue) Deal(_ context.Context, id uint64) (venue.Deal, error) {
	deal, ok := v.ledger.Get(id)
	if !ok {
		return venue.Deal{}, fmt.Errorf("deal %d: %w", id, exception.ErrUnknownTicket)
	}
	return deal, nil
}

// AccountInfo marks open positions to market.
func (v *Venue) AccountInfo(ctx context.Context) (venue.Account, error) {
	if err := ctx.Err(); err != nil {
		return venue.Account{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweepLocked(ctx)
	equity, margin := v.markLocked(ctx)
	return venue.Account{
		Login:      v.login,
		Currency:   v.currency,
		Balance:    v.balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: equity - margin,
		Leverage:   v.leverage,
	}, nil
}

// SymbolInfo returns the configured specification.
func (v *Venue) SymbolInfo(_ context.Context, symbol string) (venue.Symbol, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	info, ok := v.symbols[symbol]
	if !ok {
		return venue.Symbol{}, fmt.Errorf("%s: %w", symbol, exception.ErrUnknownSymbol)
	}
	return info, nil
}

func checkVolume(info venue.Symbol, volume float64) (venue.Result, bool) {
	if volume <= 0 || volume+epsilon < info.MinVolume || (info.MaxVolume > 0 && volume > info.MaxVolume+epsilon) {
		return venue.Result{Retcode: venue.RetcodeInvalidVolume, Comment: "volume out of range"}, true
	}
	if info.VolumeStep > 0 {
		steps := volume / info.VolumeStep
		if math.Abs(steps-math.Round(steps)) > 1e-6 {
			return venue.Result{Retcode: venue.RetcodeInvalidVolume, Comment: "volume not a multiple of step"}, true
		}
	}
	return venue.Result{}, false
}

func (v *Venue) openLocked(ctx context.Context, info venue.Symbol, req venue.Request) (venue.Result, error) {
	if req.Type != venue.OrderBuy && req.Type != venue.OrderSell {
		return venue.Result{Retcode: venue.RetcodeInvalid, Comment: "deal requires BUY or SELL"}, nil
	}
	tick, err := v.feed.LatestTick(ctx, info.Name)
	if err != nil {
		return venue.Result{Retcode: venue.RetcodeError, Comment: "no quotes"}, nil
	}
	dir := req.Type.Direction()
	price := tick.Ask
	if dir == event.Sell {
		price = tick.Bid
	}
	if price <= 0 {
		return venue.Result{Retcode: venue.RetcodeInvalidPrice, Comment: "no price"}, nil
	}

	required, err := v.marginFor(ctx, info, req.Volume, price)
	if err != nil {
		return venue.Result{Retcode: venue.RetcodeError, Comment: "margin conversion failed"}, nil
	}
	equity, used := v.markLocked(ctx)
	if required > equity-used+epsilon {
		return venue.Result{Retcode: venue.RetcodeNoMoney, Comment: "not enough money"}, nil
	}

	pos := venue.Position{
		Ticket:     v.ticket(),
		Symbol:     info.Name,
		Direction:  dir,
		Volume:     req.Volume,
		PriceOpen:  price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
		OpenedAt:   v.now(),
	}
	v.positions[pos.Ticket] = pos
	deal := v.recordLocked(pos.Ticket, pos.Ticket, info.Name, dir, req.Volume, price, req.Magic)
	v.log.Debug().Str("sym", info.Name).Str("dir", string(dir)).Float64("vol", req.Volume).Float64("px", price).Uint64("ticket", pos.Ticket).Msg("paper fill")
	return venue.Result{Retcode: venue.RetcodeDone, Ticket: pos.Ticket, DealID: deal.ID, Volume: req.Volume, Price: price, Comment: "done"}, nil
}

func (v *Venue) placeLocked(req venue.Request) (venue.Result, error) {
	switch req.Type {
	case venue.OrderBuyLimit, venue.OrderSellLimit, venue.OrderBuyStop, venue.OrderSellStop:
	default:
		return venue.Result{Retcode: venue.RetcodeInvalid, Comment: "pending requires LIMIT or STOP type"}, nil
	}
	if req.Price <= 0 {
		return venue.Result{Retcode: venue.RetcodeInvalidPrice, Comment: "pending price required"}, nil
	}
	order := venue.PendingOrder{
		Ticket:     v.ticket(),
		Symbol:     req.Symbol,
		Type:       req.Type,
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
		PlacedAt:   v.now(),
	}
	v.orders[order.Ticket] = order
	return venue.Result{Retcode: venue.RetcodeDone, Ticket: order.Ticket, Volume: order.Volume, Price: order.Price, Comment: "placed"}, nil
}

func (v *Venue) removeLocked(ticket uint64) venue.Result {
	if _, ok := v.orders[ticket]; !ok {
		return venue.Result{Retcode: venue.RetcodeInvalidOrder, Comment: "unknown order"}
	}
	delete(v.orders, ticket)
	return venue.Result{Retcode: venue.RetcodeDone, Ticket: ticket, Comment: "cancelled"}
}

func (v *Venue) closeLocked(ctx context.Context, ticket uint64) (venue.Result, error) {
	pos, ok := v.positions[ticket]
	if !ok {
		return venue.Result{Retcode: venue.RetcodePosition, Comment: "unknown position"}, nil
	}
	tick, err := v.feed.LatestTick(ctx, pos.Symbol)
	if err != nil {
		return venue.Result{Retcode: venue.RetcodeError, Comment: "no quotes"}, nil
	}
	price := tick.Bid
	if pos.Direction == event.Sell {
		price = tick.Ask
	}
	return v.settleLocked(ctx, pos, price)
}

func (v *Venue) settleLocked(ctx context.Context, pos venue.Position, price float64) (venue.Result, error) {
	info := v.symbols[pos.Symbol]
	pnl, err := v.profit(ctx, info, pos, price)
	if err != nil {
		return venue.Result{Retcode: venue.RetcodeError, Comment: "pnl conversion failed"}, nil
	}
	v.balance += pnl
	delete(v.positions, pos.Ticket)
	deal := v.recordLocked(pos.Ticket, pos.Ticket, pos.Symbol, pos.Direction.Opposite(), pos.Volume, price, pos.Magic)
	v.log.Debug().Str("sym", pos.Symbol).Uint64("ticket", pos.Ticket).Float64("px", price).Float64("pnl", pnl).Msg("paper close")
	return venue.Result{Retcode: venue.RetcodeDone, Ticket: pos.Ticket, DealID: deal.ID, Volume: pos.Volume, Price: price, Comment: "closed"}, nil
}

// sweepLocked triggers resting orders whose price was crossed and closes positions that hit
// their stop-loss or take-profit.
func (v *Venue) sweepLocked(ctx context.Context) {
	for _, ticket := range sortedKeys(v.orders) {
		o := v.orders[ticket]
		tick, err := v.feed.LatestTick(ctx, o.Symbol)
		if err != nil {
			continue
		}
		if !triggered(o, tick) {
			continue
		}
		delete(v.orders, ticket)
		dir := o.Type.Direction()
		pos := venue.Position{
			Ticket:     o.Ticket,
			Symbol:     o.Symbol,
			Direction:  dir,
			Volume:     o.Volume,
			PriceOpen:  o.Price,
			StopLoss:   o.StopLoss,
			TakeProfit: o.TakeProfit,
			Magic:      o.Magic,
			OpenedAt:   v.now(),
		}
		v.positions[pos.Ticket] = pos
		v.recordLocked(o.Ticket, pos.Ticket, o.Symbol, dir, o.Volume, o.Price, o.Magic)
	}

	for _, ticket := range sortedKeys(v.positions) {
		pos := v.positions[ticket]
		if pos.StopLoss <= 0 && pos.TakeProfit <= 0 {
			continue
		}
		tick, err := v.feed.LatestTick(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		if px, hit := exitLevel(pos, tick); hit {
			_, _ = v.settleLocked(ctx, pos, px)
		}
	}
}

func triggered(o venue.PendingOrder, tick market.Tick) bool {
	switch o.Type {
	case venue.OrderBuyLimit:
		return tick.Ask > 0 && tick.Ask <= o.Price
	case venue.OrderSellLimit:
		return tick.Bid >= o.Price
	case venue.OrderBuyStop:
		return tick.Ask >= o.Price
	case venue.OrderSellStop:
		return tick.Bid > 0 && tick.Bid <= o.Price
	default:
		return false
	}
}

func exitLevel(pos venue.Position, tick market.Tick) (float64, bool) {
	if pos.Direction == event.Buy {
		if pos.StopLoss > 0 && tick.Bid <= pos.StopLoss {
			return pos.StopLoss, true
		}
		if pos.TakeProfit > 0 && tick.Bid >= pos.TakeProfit {
			return pos.TakeProfit, true
		}
		return 0, false
	}
	if pos.StopLoss > 0 && tick.Ask >= pos.StopLoss {
		return pos.StopLoss, true
	}
	if pos.TakeProfit > 0 && tick.Ask > 0 && tick.Ask <= pos.TakeProfit {
		return pos.TakeProfit, true
	}
	return 0, false
}

// markLocked returns equity and used margin in account currency. Positions whose quote or
// conversion is unavailable are carried at zero unrealized PnL.
func (v *Venue) markLocked(ctx context.Context) (equity, margin float64) {
	equity = v.balance
	for _, pos := range v.positions {
		info := v.symbols[pos.Symbol]
		if m, err := v.marginFor(ctx, info, pos.Volume, pos.PriceOpen); err == nil {
			margin += m
		}
		tick, err := v.feed.LatestTick(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		mark := tick.Bid
		if pos.Direction == event.Sell {
			mark = tick.Ask
		}
		if pnl, err := v.profit(ctx, info, pos, mark); err == nil {
			equity += pnl
		}
	}
	return equity, margin
}

func (v *Venue) marginFor(ctx context.Context, info venue.Symbol, volume, price float64) (float64, error) {
	notional := volume * info.ContractSize * price
	converted, err := v.conv.Convert(ctx, notional, info.ProfitCurrency, v.currency)
	if err != nil {
		return 0, err
	}
	return converted / v.leverage, nil
}

func (v *Venue) profit(ctx context.Context, info venue.Symbol, pos venue.Position, price float64) (float64, error) {
	diff := price - pos.PriceOpen
	if pos.Direction == event.Sell {
		diff = -diff
	}
	return v.conv.Convert(ctx, diff*pos.Volume*info.ContractSize, info.ProfitCurrency, v.currency)
}

func (v *Venue) recordLocked(order, position uint64, symbol string, dir event.Direction, volume, price float64, magic int64) venue.Deal {
	deal := venue.Deal{
		ID:        v.ticket(),
		Order:     order,
		Position:  position,
		Symbol:    symbol,
		Direction: dir,
		Volume:    volume,
		Price:     price,
		Time:      v.now(),
		Magic:     magic,
	}
	v.ledger.Record(deal)
	return deal
}

func (v *Venue) ticket() uint64 {
	t := v.nextTicket
	v.nextTicket++
	return t
}

func sortedKeys[T any](m map[uint64]T) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
