package policy

import (
	"context"

	"energyEngine/internal/domain"
)

const ThresholdPolicyName = "threshold_energy"

// ThresholdEnergyPolicy exits on a trailing stop hit (TRAIL_WIN) or a hard stop hit (LOSS).
// The trailing check runs first, so a bar that straddles both levels is a win.
type ThresholdEnergyPolicy struct {
	exitOnActivationBar bool
}

// NewThresholdEnergyPolicy creates the policy. exitOnActivationBar is normally true; when it is
// false the bar that activates trailing is only checked against the hard stop.
func NewThresholdEnergyPolicy(exitOnActivationBar bool) *ThresholdEnergyPolicy {
	return &ThresholdEnergyPolicy{exitOnActivationBar: exitOnActivationBar}
}

// Name returns the policy name stored with each trade.
func (p *ThresholdEnergyPolicy) Name() string { return ThresholdPolicyName }

// RequiresSignals is false: only the session and the bar are consulted.
func (p *ThresholdEnergyPolicy) RequiresSignals() bool { return false }

// Evaluate checks the trailing stop, then the (possibly tightened) hard stop.
func (p *ThresholdEnergyPolicy) Evaluate(_ context.Context, s *domain.TradeSession, bar domain.Bar, _ *domain.AuxSignals) (bool, domain.ExitCause) {
	if s.TrailingActive && (p.exitOnActivationBar || s.ActivatedAtBar != s.BarsElapsed) {
		if s.AdverseCrossed(bar, s.TrailingStop) {
			return true, domain.ExitTrailWin
		}
	}
	if s.AdverseCrossed(bar, s.StopLevel) {
		return true, domain.ExitLoss
	}
	return false, ""
}

// Release is a no-op; the policy keeps no per-trade state.
func (p *ThresholdEnergyPolicy) Release(string) {}
