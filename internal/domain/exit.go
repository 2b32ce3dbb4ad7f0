package domain

import "time"

// ExitRecord is produced when a session closes. It is never modified after creation.
type ExitRecord struct {
	TradeID     string    `json:"trade_id"`
	Cause       ExitCause `json:"exit_type"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	ExitTime    time.Time `json:"exit_time"`
	BarsElapsed int       `json:"bars_elapsed"`
}

// AuxSignals carries the persistence/strength inputs consumed by the accumulator policy.
type AuxSignals struct {
	Tau             int     `json:"tau"`              // Dwell counter at a channel extreme
	Force           float64 `json:"force"`            // Bar strength relative to its recent average
	DirCount        int     `json:"dir_count"`        // Sum of recent direction signs
	ChannelPosition float64 `json:"channel_position"` // Close position inside the recent channel, 0..1
}
