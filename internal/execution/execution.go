// Package execution turns approved orders into venue requests and reports their fills.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
	"quantbot-go/internal/metrics"
	"quantbot-go/internal/portfolio"
	"quantbot-go/internal/venue"
)

// State is where an order ended up after one submission.
type State uint8

const (
	Requested State = iota
	Filled
	PartiallyFilled
	PendingPlaced
	Rejected
)

func (s State) String() string {
	switch s {
	case Requested:
		return "REQUESTED"
	case Filled:
		return "FILLED"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case PendingPlaced:
		return "PENDING_PLACED"
	default:
		return "REJECTED"
	}
}

// Success reports whether the state produces a downstream event.
func (s State) Success() bool { return s == Filled || s == PartiallyFilled || s == PendingPlaced }

// Classify maps a venue result onto the order state machine.
func Classify(res venue.Result, pending bool) State {
	switch res.Retcode {
	case venue.RetcodeDone, venue.RetcodePlaced:
		if pending {
			return PendingPlaced
		}
		if res.Retcode == venue.RetcodePlaced {
			return Rejected
		}
		return Filled
	case venue.RetcodeDonePartial:
		if pending {
			return PendingPlaced
		}
		return PartiallyFilled
	default:
		return Rejected
	}
}

const (
	commentMarket  = "quantbot market order"
	commentPending = "quantbot pending order"
)

// Executor submits orders and close/cancel requests to the venue. Fills caused by close
// requests are published directly because they originate outside the dispatch chain.
type Executor struct {
	venue     venue.Venue
	portfolio *portfolio.Portfolio
	pub       event.Publisher
	log       zerolog.Logger

	mu       sync.Mutex
	lastFill map[string]time.Time
	now      func() time.Time
}

// NewExecutor wires the executor to a venue, the strategy portfolio and the event queue.
func NewExecutor(v venue.Venue, p *portfolio.Portfolio, pub event.Publisher, log zerolog.Logger) *Executor {
	return &Executor{
		venue:     v,
		portfolio: p,
		pub:       pub,
		log:       log,
		lastFill:  make(map[string]time.Time),
		now:       time.Now,
	}
}

// Execute submits order and returns the resulting Execution or PendingPlaced event, or nil when
// the venue rejected it. Rejections are logged and never retried.
func (x *Executor) Execute(ctx context.Context, order event.Order) (event.Event, State) {
	if order.TargetOrder.Pending() {
		return x.sendPending(ctx, order)
	}
	return x.sendMarket(ctx, order)
}

func (x *Executor) sendMarket(ctx context.Context, order event.Order) (event.Event, State) {
	typ, err := venue.OrderTypeFor(order.Direction, event.Market)
	if err != nil {
		x.reject(order, err.Error())
		return nil, Rejected
	}
	req := venue.Request{
		Action:     venue.ActionDeal,
		Symbol:     order.Symbol,
		Volume:     order.Volume,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Type:       typ,
		Magic:      order.StrategyID,
		Comment:    commentMarket,
		Filling:    venue.FillFOK,
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Direction)).Inc()
	res, err := x.venue.SubmitOrder(ctx, req)
	if err != nil {
		x.reject(order, err.Error())
		return nil, Rejected
	}
	state := Classify(res, false)
	if !state.Success() {
		x.reject(order, res.Retcode.String()+": "+res.Comment)
		return nil, Rejected
	}
	x.log.Info().Str("sym", order.Symbol).Str("dir", string(order.Direction)).Float64("vol", order.Volume).
		Int64("magic", order.StrategyID).Str("state", state.String()).Msg("market order executed")
	return x.fillEvent(ctx, res, order.Symbol, order.Direction, order.StrategyID), state
}

func (x *Executor) sendPending(ctx context.Context, order event.Order) (event.Event, State) {
	typ, err := venue.OrderTypeFor(order.Direction, order.TargetOrder)
	if err != nil {
		x.reject(order, err.Error())
		return nil, Rejected
	}
	req := venue.Request{
		Action:     venue.ActionPending,
		Symbol:     order.Symbol,
		Volume:     order.Volume,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Type:       typ,
		Price:      order.TargetPrice,
		Magic:      order.StrategyID,
		Comment:    commentPending,
		Filling:    venue.FillFOK,
		Time:       venue.TimeGTC,
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Direction)).Inc()
	res, err := x.venue.SubmitOrder(ctx, req)
	if err != nil {
		x.reject(order, err.Error())
		return nil, Rejected
	}
	if Classify(res, true) != PendingPlaced {
		x.reject(order, res.Retcode.String()+": "+res.Comment)
		return nil, Rejected
	}
	x.log.Info().Str("sym", order.Symbol).Str("dir", string(order.Direction)).Str("type", string(order.TargetOrder)).
		Float64("vol", order.Volume).Float64("px", order.TargetPrice).Uint64("ticket", res.Ticket).Msg("pending order placed")
	return order.ToPendingPlaced(res.Ticket), PendingPlaced
}

// CancelPending removes a resting order. A missing ticket is a logged no-op.
func (x *Executor) CancelPending(ctx context.Context, ticket uint64) {
	orders, err := x.venue.PendingOrders(ctx, venue.Filter{Ticket: ticket})
	if err != nil {
		x.log.Warn().Err(err).Uint64("ticket", ticket).Msg("pending order lookup failed")
		return
	}
	if len(orders) == 0 {
		x.log.Warn().Uint64("ticket", ticket).Msg("no pending order with ticket")
		return
	}
	order := orders[0]
	res, err := x.venue.CancelOrder(ctx, ticket)
	if err != nil || res.Retcode != venue.RetcodeDone {
		x.log.Error().Err(err).Uint64("ticket", ticket).Str("sym", order.Symbol).Float64("vol", order.Volume).
			Str("retcode", res.Retcode.String()).Msg("cancel pending order failed")
		return
	}
	x.log.Info().Uint64("ticket", ticket).Str("sym", order.Symbol).Float64("vol", order.Volume).Msg("pending order cancelled")
}

// ClosePosition closes the position with ticket and publishes the closing fill. A missing
// ticket is a logged no-op.
func (x *Executor) ClosePosition(ctx context.Context, ticket uint64) {
	positions, err := x.venue.OpenPositions(ctx, venue.Filter{Ticket: ticket})
	if err != nil {
		x.log.Warn().Err(err).Uint64("ticket", ticket).Msg("position lookup failed")
		return
	}
	if len(positions) == 0 {
		x.log.Warn().Uint64("ticket", ticket).Msg("no position with ticket")
		return
	}
	pos := positions[0]
	res, err := x.venue.ClosePosition(ctx, ticket)
	if err != nil {
		x.log.Error().Err(err).Uint64("ticket", ticket).Str("sym", pos.Symbol).Msg("close position failed")
		return
	}
	if !Classify(res, false).Success() {
		x.log.Error().Uint64("ticket", ticket).Str("sym", pos.Symbol).Float64("vol", pos.Volume).
			Str("retcode", res.Retcode.String()).Str("comment", res.Comment).Msg("close position rejected")
		return
	}
	x.log.Info().Uint64("ticket", ticket).Str("sym", pos.Symbol).Float64("vol", pos.Volume).Msg("position closed")
	if ev := x.fillEvent(ctx, res, pos.Symbol, pos.Direction.Opposite(), pos.Magic); ev.Volume > 0 {
		x.pub.Push(ev)
	}
}

// CloseAllBySymbolAndDirection requests closure of every strategy position on symbol with the
// given direction. It does not wait for the venue to confirm.
func (x *Executor) CloseAllBySymbolAndDirection(ctx context.Context, symbol string, dir event.Direction) {
	positions, err := x.portfolio.StrategyPositions(ctx)
	if err != nil {
		x.log.Warn().Err(err).Str("sym", symbol).Msg("cannot list strategy positions")
		return
	}
	for _, pos := range positions {
		if pos.Symbol == symbol && pos.Direction == dir {
			x.ClosePosition(ctx, pos.Ticket)
		}
	}
}

func (x *Executor) fillEvent(ctx context.Context, res venue.Result, symbol string, dir event.Direction, magic int64) event.Execution {
	ev := event.Execution{
		Symbol:     symbol,
		Direction:  dir,
		FillPrice:  res.Price,
		FillTime:   x.now(),
		Volume:     res.Volume,
		StrategyID: magic,
		DealID:     res.DealID,
		Ticket:     res.Ticket,
	}
	if deal, err := x.venue.Deal(ctx, res.DealID); err == nil {
		ev.Symbol = deal.Symbol
		ev.Direction = deal.Direction
		ev.FillPrice = deal.Price
		ev.FillTime = deal.Time
		ev.Volume = deal.Volume
	} else {
		x.log.Warn().Err(err).Uint64("deal", res.DealID).Msg("deal lookup failed, using request result")
	}
	ev.FillTime = x.monotonic(ev.Symbol, ev.FillTime)
	return ev
}

// monotonic keeps fill times non-decreasing per symbol.
func (x *Executor) monotonic(symbol string, ts time.Time) time.Time {
	x.mu.Lock()
	defer x.mu.Unlock()
	if last, ok := x.lastFill[symbol]; ok && ts.Before(last) {
		ts = last
	}
	x.lastFill[symbol] = ts
	return ts
}

func (x *Executor) reject(order event.Order, reason string) {
	metrics.Reject("execution", "venue")
	x.log.Warn().Err(fmt.Errorf("%s: %w", reason, exception.ErrExecutionFailure)).Str("sym", order.Symbol).
		Str("dir", string(order.Direction)).Str("type", string(order.TargetOrder)).
		Float64("vol", order.Volume).Int64("magic", order.StrategyID).Msg("order rejected")
}
