package domain

import (
	"fmt"
	"math"
	"time"
)

// TradeSession holds the state of one simulated position.
type TradeSession struct {
	TradeID    string    `json:"trade_id"`
	Direction  Direction `json:"direction"`   // Set at creation, immutable
	EntryPrice float64   `json:"entry_price"` // Set at creation, immutable
	EntryTime  time.Time `json:"entry_time"`  // Set at creation, immutable

	StopLevel      float64 `json:"stop_level"`      // Active hard stop; only ever tightened
	TrailingStop   float64 `json:"trailing_stop"`   // Meaningful only when TrailingActive
	TrailingActive bool    `json:"trailing_active"` // Set once on activation, never cleared
	ActivatedAtBar int     `json:"activated_at_bar"`
	DefenseActive  bool    `json:"defense_active"` // Loss Warning State tightened the stop

	MFE         float64 `json:"mfe"` // Non-decreasing, >= 0
	MAE         float64 `json:"mae"` // Non-decreasing, >= 0
	BarsElapsed int     `json:"bars_elapsed"`

	LastClose   float64   `json:"last_close"`
	LastBarTime time.Time `json:"last_bar_time"`
	CurrentPnL  float64   `json:"current_pnl"` // Close-based, direction-adjusted

	State LifecycleState `json:"state"`
	Exit  *ExitRecord    `json:"exit,omitempty"`
}

// NewTradeSession creates an ACTIVE session with the stop placed at the default distance.
func NewTradeSession(tradeID string, direction Direction, entryPrice float64, entryTime time.Time, defaultStopDistance float64) (*TradeSession, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if !(defaultStopDistance > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidStopDistance, defaultStopDistance)
	}
	if math.IsNaN(entryPrice) || math.IsInf(entryPrice, 0) {
		return nil, fmt.Errorf("%w: entry price is %v", ErrInvalidBar, entryPrice)
	}
	return &TradeSession{
		TradeID:     tradeID,
		Direction:   direction,
		EntryPrice:  entryPrice,
		EntryTime:   entryTime,
		StopLevel:   entryPrice - direction.Sign()*defaultStopDistance,
		LastClose:   entryPrice,
		LastBarTime: entryTime,
		State:       StateActive,
	}, nil
}

// IsClosed reports whether the session reached its terminal state.
func (s *TradeSession) IsClosed() bool {
	return s.State == StateClosed
}

// FavorableExcursion is high-entry for LONG and entry-low for SHORT.
func (s *TradeSession) FavorableExcursion(high, low float64) (float64, error) {
	if s.IsClosed() {
		return 0, fmt.Errorf("favorable excursion of %s: %w", s.TradeID, ErrClosedSession)
	}
	if s.Direction == Short {
		return s.EntryPrice - low, nil
	}
	return high - s.EntryPrice, nil
}

// AdverseExcursion is entry-low for LONG and high-entry for SHORT.
func (s *TradeSession) AdverseExcursion(high, low float64) (float64, error) {
	if s.IsClosed() {
		return 0, fmt.Errorf("adverse excursion of %s: %w", s.TradeID, ErrClosedSession)
	}
	if s.Direction == Short {
		return high - s.EntryPrice, nil
	}
	return s.EntryPrice - low, nil
}

// StopDistance is the current risk distance between entry and the hard stop.
func (s *TradeSession) StopDistance() float64 {
	return math.Abs(s.StopLevel - s.EntryPrice)
}

// DirectionalPnL returns the signed gain of exiting at price.
func (s *TradeSession) DirectionalPnL(price float64) float64 {
	return s.Direction.Sign() * (price - s.EntryPrice)
}

// AdverseCrossed reports whether the adverse extreme of a bar reached level.
// Crossing is inclusive: low <= level for LONG, high >= level for SHORT.
func (s *TradeSession) AdverseCrossed(bar Bar, level float64) bool {
	if s.Direction == Short {
		return bar.High >= level
	}
	return bar.Low <= level
}

// Status returns the read-only view exposed to callers.
func (s *TradeSession) Status() PositionStatus {
	return PositionStatus{
		TradeID:        s.TradeID,
		Direction:      s.Direction,
		EntryPrice:     s.EntryPrice,
		MFE:            s.MFE,
		MAE:            s.MAE,
		CurrentPnL:     s.CurrentPnL,
		State:          s.State,
		StopLevel:      s.StopLevel,
		TrailingStop:   s.TrailingStop,
		TrailingActive: s.TrailingActive,
		BarsElapsed:    s.BarsElapsed,
		DefenseActive:  s.DefenseActive,
	}
}

// Clone returns a deep copy safe to hand to persistence or reporting.
func (s *TradeSession) Clone() *TradeSession {
	c := *s
	if s.Exit != nil {
		exit := *s.Exit
		c.Exit = &exit
	}
	return &c
}

// PositionStatus is the status view of a session.
type PositionStatus struct {
	TradeID        string         `json:"trade_id"`
	Direction      Direction      `json:"direction"`
	EntryPrice     float64        `json:"entry_price"`
	MFE            float64        `json:"mfe"`
	MAE            float64        `json:"mae"`
	CurrentPnL     float64        `json:"current_pnl"`
	State          LifecycleState `json:"state"`
	StopLevel      float64        `json:"stop_level"`
	TrailingStop   float64        `json:"trailing_stop"`
	TrailingActive bool           `json:"trailing_active"`
	BarsElapsed    int            `json:"bars_elapsed"`
	DefenseActive  bool           `json:"defense_active"`
}
