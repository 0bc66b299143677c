// Package venue declares the order-submission contract the executor, portfolio and risk stages rely on.
package venue

import (
	"context"
	"fmt"
	"time"

	"quantbot-go/internal/event"
)

// Action selects what a Request asks the venue to do.
type Action uint8

const (
	ActionDeal Action = iota + 1
	ActionPending
	ActionRemove
)

// OrderType is the venue-level order flavor, combining side and execution style.
type OrderType uint8

const (
	OrderBuy OrderType = iota
	OrderSell
	OrderBuyLimit
	OrderSellLimit
	OrderBuyStop
	OrderSellStop
)

func (t OrderType) String() string {
	switch t {
	case OrderBuy:
		return "BUY"
	case OrderSell:
		return "SELL"
	case OrderBuyLimit:
		return "BUY_LIMIT"
	case OrderSellLimit:
		return "SELL_LIMIT"
	case OrderBuyStop:
		return "BUY_STOP"
	case OrderSellStop:
		return "SELL_STOP"
	default:
		return fmt.Sprintf("ORDER_TYPE(%d)", uint8(t))
	}
}

// Direction reports the side of the order type.
func (t OrderType) Direction() event.Direction {
	switch t {
	case OrderBuy, OrderBuyLimit, OrderBuyStop:
		return event.Buy
	default:
		return event.Sell
	}
}

// OrderTypeFor maps a pipeline direction and order style to the venue type.
func OrderTypeFor(dir event.Direction, style event.OrderType) (OrderType, error) {
	if !dir.Valid() {
		return 0, fmt.Errorf("invalid direction %q", dir)
	}
	buy := dir == event.Buy
	switch style {
	case event.Market:
		if buy {
			return OrderBuy, nil
		}
		return OrderSell, nil
	case event.Limit:
		if buy {
			return OrderBuyLimit, nil
		}
		return OrderSellLimit, nil
	case event.Stop:
		if buy {
			return OrderBuyStop, nil
		}
		return OrderSellStop, nil
	default:
		return 0, fmt.Errorf("invalid order type %q", style)
	}
}

// Filling policy for deal requests.
type Filling uint8

const (
	FillFOK Filling = iota
	FillIOC
	FillReturn
)

// TimeInForce for pending requests.
type TimeInForce uint8

const (
	TimeGTC TimeInForce = iota
	TimeDay
)

// Request is a trade request sent to SubmitOrder.
type Request struct {
	Action     Action
	Symbol     string
	Volume     float64
	Type       OrderType
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Deviation  int
	Magic      int64
	Comment    string
	Filling    Filling
	Time       TimeInForce
	// Position closes the given position when set on a deal request.
	Position uint64
	// Order identifies the pending order for ActionRemove.
	Order uint64
}

// Retcode mirrors the trade server return codes.
type Retcode uint32

const (
	RetcodeRequote       Retcode = 10004
	RetcodeReject        Retcode = 10006
	RetcodeCancel        Retcode = 10007
	RetcodePlaced        Retcode = 10008
	RetcodeDone          Retcode = 10009
	RetcodeDonePartial   Retcode = 10010
	RetcodeError         Retcode = 10011
	RetcodeInvalid       Retcode = 10013
	RetcodeInvalidVolume Retcode = 10014
	RetcodeInvalidPrice  Retcode = 10015
	RetcodeInvalidStops  Retcode = 10016
	RetcodeNoMoney       Retcode = 10019
	RetcodeInvalidOrder  Retcode = 10035
	RetcodePosition      Retcode = 10036
)

func (r Retcode) String() string {
	switch r {
	case RetcodeRequote:
		return "REQUOTE"
	case RetcodeReject:
		return "REJECT"
	case RetcodeCancel:
		return "CANCEL"
	case RetcodePlaced:
		return "PLACED"
	case RetcodeDone:
		return "DONE"
	case RetcodeDonePartial:
		return "DONE_PARTIAL"
	case RetcodeError:
		return "ERROR"
	case RetcodeInvalid:
		return "INVALID"
	case RetcodeInvalidVolume:
		return "INVALID_VOLUME"
	case RetcodeInvalidPrice:
		return "INVALID_PRICE"
	case RetcodeInvalidStops:
		return "INVALID_STOPS"
	case RetcodeNoMoney:
		return "NO_MONEY"
	case RetcodeInvalidOrder:
		return "INVALID_ORDER"
	case RetcodePosition:
		return "POSITION_CLOSED"
	default:
		return fmt.Sprintf("RETCODE(%d)", uint32(r))
	}
}

// Result is the venue's answer to a Request.
type Result struct {
	Retcode Retcode
	Ticket  uint64
	DealID  uint64
	Volume  float64
	Price   float64
	Comment string
}

// Position is an open position owned by the venue.
type Position struct {
	Ticket     uint64
	Symbol     string
	Direction  event.Direction
	Volume     float64
	PriceOpen  float64
	StopLoss   float64
	TakeProfit float64
	Magic      int64
	OpenedAt   time.Time
}

// PendingOrder is a resting LIMIT/STOP order.
type PendingOrder struct {
	Ticket     uint64
	Symbol     string
	Type       OrderType
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Magic      int64
	PlacedAt   time.Time
}

// Deal is the venue's record of a fill.
type Deal struct {
	ID        uint64
	Order     uint64
	Position  uint64
	Symbol    string
	Direction event.Direction
	Volume    float64
	Price     float64
	Time      time.Time
	Magic     int64
}

// Account is a snapshot of the trading account.
type Account struct {
	Login      int64
	Currency   string
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Leverage   float64
}

// Symbol carries the trading specification of an instrument.
type Symbol struct {
	Name           string
	MinVolume      float64
	MaxVolume      float64
	VolumeStep     float64
	Point          float64
	TickSize       float64
	ContractSize   float64
	BaseCurrency   string
	ProfitCurrency string
	Digits         int
}

// Filter narrows position and order queries; zero fields match everything.
type Filter struct {
	Symbol string
	Magic  int64
	Ticket uint64
}

// Match reports whether the given identifiers pass the filter.
func (f Filter) Match(symbol string, magic int64, ticket uint64) bool {
	if f.Symbol != "" && f.Symbol != symbol {
		return false
	}
	if f.Magic != 0 && f.Magic != magic {
		return false
	}
	if f.Ticket != 0 && f.Ticket != ticket {
		return false
	}
	return true
}

// Venue is the trading platform the pipeline submits requests to. Calls are synchronous.
type Venue interface {
	SubmitOrder(ctx context.Context, req Request) (Result, error)
	CancelOrder(ctx context.Context, ticket uint64) (Result, error)
	ClosePosition(ctx context.Context, ticket uint64) (Result, error)
	OpenPositions(ctx context.Context, filter Filter) ([]Position, error)
	PendingOrders(ctx context.Context, filter Filter) ([]PendingOrder, error)
	Deal(ctx context.Context, id uint64) (Deal, error)
	Info
}

// Info is the read-only account and instrument surface of a venue.
type Info interface {
	AccountInfo(ctx context.Context) (Account, error)
	SymbolInfo(ctx context.Context, symbol string) (Symbol, error)
}
