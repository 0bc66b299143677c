// Package exception declares the sentinel errors shared by the trading pipeline stages.
package exception

import "errors"

var (
	// ErrConfiguration marks invalid strategy parameters; fatal at startup.
	ErrConfiguration = errors.New("configuration: invalid parameters")
	// ErrDataUnavailable is returned by feeds when a symbol has no data this cycle.
	ErrDataUnavailable = errors.New("market data: unavailable")
	// ErrInvalidSizing marks a computed volume that is non-positive or below the venue minimum.
	ErrInvalidSizing = errors.New("sizing: invalid volume")
	// ErrRiskRejected marks an order refused by the risk manager.
	ErrRiskRejected = errors.New("risk: rejected")
	// ErrExecutionFailure marks a venue result that is neither filled nor placed.
	ErrExecutionFailure = errors.New("execution: venue rejected request")
	// ErrMalformedEvent halts the director.
	ErrMalformedEvent = errors.New("director: malformed event")
)

var (
	ErrUnknownTicket = errors.New("venue: unknown ticket")
	ErrUnknownSymbol = errors.New("venue: unknown symbol")
)
