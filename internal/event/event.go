// Package event defines the closed set of records flowing through the trading pipeline.
package event

import (
	"fmt"
	"time"
)

// Kind tags an event with the pipeline stage that consumes it.
type Kind uint8

const (
	KindData Kind = iota + 1
	KindSignal
	KindSizing
	KindOrder
	KindExecution
	KindPending
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindSignal:
		return "SIGNAL"
	case KindSizing:
		return "SIZING"
	case KindOrder:
		return "ORDER"
	case KindExecution:
		return "EXECUTION"
	case KindPending:
		return "PENDING"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Direction is the side of a signal, order or fill.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the reversing side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether d is BUY or SELL.
func (d Direction) Valid() bool { return d == Buy || d == Sell }

// OrderType selects how an order reaches the venue.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
	Stop   OrderType = "STOP"
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool { return t == Market || t == Limit || t == Stop }

// Pending reports whether the order rests on the book instead of filling immediately.
func (t OrderType) Pending() bool { return t == Limit || t == Stop }

// Bar is one closed OHLC candle.
type Bar struct {
	Open       float64
	High       float64
	Low        float64
	Close      float64
	TickVolume float64
	Volume     float64
	Spread     float64
	Time       time.Time
}

// Event is implemented only by the record types of this package.
type Event interface {
	Kind() Kind
	Validate() error
	sealed()
}

// Data announces a newly closed bar for a symbol.
type Data struct {
	Symbol string
	Bar    Bar
}

func (Data) Kind() Kind { return KindData }
func (Data) sealed()    {}

func (e Data) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("data event without symbol")
	}
	if e.Bar.Time.IsZero() {
		return fmt.Errorf("data event for %s without bar time", e.Symbol)
	}
	return nil
}

// Signal is a strategy's trading intent.
type Signal struct {
	Symbol      string
	Direction   Direction
	TargetOrder OrderType
	TargetPrice float64
	StrategyID  int64
	StopLoss    float64
	TakeProfit  float64
}

func (Signal) Kind() Kind { return KindSignal }
func (Signal) sealed()    {}

func (e Signal) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("signal without symbol")
	}
	if !e.Direction.Valid() {
		return fmt.Errorf("signal %s: invalid direction %q", e.Symbol, e.Direction)
	}
	if !e.TargetOrder.Valid() {
		return fmt.Errorf("signal %s: invalid order type %q", e.Symbol, e.TargetOrder)
	}
	if e.TargetOrder.Pending() && e.TargetPrice <= 0 {
		return fmt.Errorf("signal %s: %s order requires a target price", e.Symbol, e.TargetOrder)
	}
	return nil
}

// WithVolume derives the sizing event carrying the computed volume.
func (e Signal) WithVolume(volume float64) Sizing {
	return Sizing{Signal: e, Volume: volume}
}

// Sizing is a signal annotated with a volume.
type Sizing struct {
	Signal
	Volume float64
}

func (Sizing) Kind() Kind { return KindSizing }

func (e Sizing) Validate() error {
	if err := e.Signal.Validate(); err != nil {
		return err
	}
	if e.Volume <= 0 {
		return fmt.Errorf("sizing %s: volume %.4f must be positive", e.Symbol, e.Volume)
	}
	return nil
}

// ToOrder derives the order event accepted by risk management at the given volume.
func (e Sizing) ToOrder(volume float64) Order {
	return Order{Signal: e.Signal, Volume: volume}
}

// Order is a risk-approved request for the executor.
type Order struct {
	Signal
	Volume float64
}

func (Order) Kind() Kind { return KindOrder }

func (e Order) Validate() error {
	if err := e.Signal.Validate(); err != nil {
		return err
	}
	if e.Volume <= 0 {
		return fmt.Errorf("order %s: volume %.4f must be positive", e.Symbol, e.Volume)
	}
	return nil
}

// ToPendingPlaced mirrors the order once the venue accepted it as a resting order.
func (e Order) ToPendingPlaced(ticket uint64) PendingPlaced {
	return PendingPlaced{Order: e, Ticket: ticket}
}

// Execution reports a venue fill.
type Execution struct {
	Symbol     string
	Direction  Direction
	FillPrice  float64
	FillTime   time.Time
	Volume     float64
	StrategyID int64
	DealID     uint64
	Ticket     uint64
}

func (Execution) Kind() Kind { return KindExecution }
func (Execution) sealed()    {}

func (e Execution) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("execution without symbol")
	}
	if !e.Direction.Valid() {
		return fmt.Errorf("execution %s: invalid direction %q", e.Symbol, e.Direction)
	}
	if e.Volume <= 0 {
		return fmt.Errorf("execution %s: volume %.4f must be positive", e.Symbol, e.Volume)
	}
	return nil
}

// PendingPlaced reports that a LIMIT/STOP order now rests at the venue.
type PendingPlaced struct {
	Order
	Ticket uint64
}

func (PendingPlaced) Kind() Kind { return KindPending }

func (e PendingPlaced) Validate() error {
	if err := e.Order.Validate(); err != nil {
		return err
	}
	if !e.TargetOrder.Pending() {
		return fmt.Errorf("pending placed %s: order type %s is not pending", e.Symbol, e.TargetOrder)
	}
	return nil
}
