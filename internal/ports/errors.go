package ports

import (
	"errors"

	"energyEngine/internal/domain"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Engine Errors
	ErrUnknownTradeID       = errors.New("unknown trade id")
	ErrDuplicateTradeID     = errors.New("trade id already registered")
	ErrInvalidConfiguration = errors.New("invalid engine configuration")
	ErrMissingSignals       = errors.New("exit policy requires aux signals")

	// Session lifecycle errors, owned by the domain
	ErrClosedSession = domain.ErrClosedSession
	ErrInvalidBar    = domain.ErrInvalidBar

	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
