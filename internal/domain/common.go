package domain

// Direction is the side of a simulated position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Sign returns +1 for LONG and -1 for SHORT.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// LifecycleState is the state of a trade session.
type LifecycleState string

const (
	StateActive   LifecycleState = "ACTIVE"   // Open, favorable excursion below the activation threshold
	StateTrailing LifecycleState = "TRAILING" // Threshold crossed, trailing stop ratchets forward
	StateClosed   LifecycleState = "CLOSED"   // Terminal
)

// ExitCause names why a session closed.
type ExitCause string

const (
	// Threshold policy family
	ExitTrailWin ExitCause = "TRAIL_WIN"
	ExitLoss     ExitCause = "LOSS"

	// Accumulator policy family
	ExitMaxBars             ExitCause = "MAX_BARS"
	ExitMAEExcess           ExitCause = "MAE_EXCESS"
	ExitTauCollapse         ExitCause = "TAU_COLLAPSE"
	ExitForceDecay          ExitCause = "FORCE_DECAY"
	ExitConditionsExhausted ExitCause = "CONDITIONS_EXHAUSTED"

	// Terminations injected from outside the engine
	ExitEndOfData ExitCause = "END_OF_DATA" // Bar feed exhausted
	ExitManual    ExitCause = "MANUAL"      // Explicit close_position call
)

// AllExitCauses lists every cause in reporting order.
var AllExitCauses = []ExitCause{
	ExitTrailWin, ExitLoss,
	ExitMaxBars, ExitMAEExcess, ExitTauCollapse, ExitForceDecay, ExitConditionsExhausted,
	ExitEndOfData, ExitManual,
}

// Valid reports whether c is a known cause.
func (c ExitCause) Valid() bool {
	for _, known := range AllExitCauses {
		if c == known {
			return true
		}
	}
	return false
}

// External reports whether the cause is applied by the caller rather than an exit policy.
func (c ExitCause) External() bool {
	return c == ExitEndOfData || c == ExitManual
}

// HoldState is the diagnostic sub-state of a session held open by the accumulator policy.
type HoldState string

const (
	HoldDefault HoldState = "HOLD"
	HoldExtend  HoldState = "HOLD_EXTEND" // Force surged while persistence holds
	HoldSmall   HoldState = "HOLD_SMALL"  // Long-held, modestly favorable
)

// IsWin reports whether the cause is a locked-in profit exit.
func (c ExitCause) IsWin() bool {
	return c == ExitTrailWin
}
