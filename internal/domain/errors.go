package domain

import "errors"

// Lifecycle errors raised by TradeSession itself. The ports package re-exports them.
var (
	ErrClosedSession       = errors.New("session is closed")
	ErrInvalidBar          = errors.New("invalid bar data")
	ErrInvalidStopDistance = errors.New("stop distance must be positive")
	ErrInvalidDirection    = errors.New("invalid direction")
)
