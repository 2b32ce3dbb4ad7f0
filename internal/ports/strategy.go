package ports

import (
	"context"

	"energyEngine/internal/domain"
)

// EntryDetector decides whether a bar opens a new session.
// Implementations must be pure functions of the bar and the bounded history before it.
type EntryDetector interface {
	// Name identifies the detector in logs and run metadata.
	Name() string
	// RequiredHistory returns the minimum number of prior bars needed for a signal.
	RequiredHistory() int
	// DetectEntry returns the candidate direction, or nil when there is no signal.
	DetectEntry(ctx context.Context, bar domain.Bar, history []domain.Bar) *domain.Direction
}

// ExitPolicy decides whether an open session may exit on the current bar, and why.
// Only one policy governs an engine instance.
type ExitPolicy interface {
	// Name identifies the policy in logs and stored trades.
	Name() string
	// RequiresSignals reports whether Evaluate needs non-nil aux signals.
	RequiresSignals() bool
	// Evaluate runs after the engine has applied defense, excursion, activation and ratchet
	// updates for the bar. It must not mutate the session.
	Evaluate(ctx context.Context, session *domain.TradeSession, bar domain.Bar, aux *domain.AuxSignals) (bool, domain.ExitCause)
	// Release drops any per-trade state kept for the given id.
	Release(tradeID string)
}

// SignalSource derives aux signals from the bar stream, one call per bar in order.
type SignalSource interface {
	Next(ctx context.Context, bar domain.Bar) domain.AuxSignals
	Reset()
}
