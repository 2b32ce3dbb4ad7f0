package domain

import "time"

// Trade represents a closed simulated trade as stored for analytics.
type Trade struct {
	ID         int64     // Unique identifier (usually from DB)
	RunID      string    // Backtest or paper run that produced the trade
	TradeID    string    // Engine trade identifier, unique within a run
	Symbol     string    // Trading symbol (e.g., "ETHUSDT")
	Direction  Direction // LONG or SHORT
	Policy     string    // Exit policy that governed the session
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PNL        float64   // Realized PnL in price units
	ExitCause  ExitCause // Why the session closed
	MFE        float64   // Peak favorable excursion reached
	MAE        float64   // Peak adverse excursion reached
	BarsHeld   int
}

// NewTradeFromSession builds the closed-trade row for a session that carries an exit record.
func NewTradeFromSession(runID, symbol, policy string, s *TradeSession) *Trade {
	t := &Trade{
		RunID:      runID,
		TradeID:    s.TradeID,
		Symbol:     symbol,
		Direction:  s.Direction,
		Policy:     policy,
		EntryPrice: s.EntryPrice,
		EntryTime:  s.EntryTime,
		MFE:        s.MFE,
		MAE:        s.MAE,
		BarsHeld:   s.BarsElapsed,
	}
	if s.Exit != nil {
		t.ExitPrice = s.Exit.ExitPrice
		t.ExitTime = s.Exit.ExitTime
		t.PNL = s.Exit.RealizedPnL
		t.ExitCause = s.Exit.Cause
	}
	return t
}

// IsWin reports whether the trade closed with a positive PnL.
func (t *Trade) IsWin() bool {
	return t.PNL > 0
}
