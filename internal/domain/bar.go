package domain

import (
	"fmt"
	"math"
	"time"
)

// Bar represents a single OHLC unit of market data.
type Bar struct {
	Time     time.Time // Open time of the interval (optional)
	Symbol   string    // Trading symbol (optional)
	Interval string    // Bar interval, e.g. "1m" (optional)
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	IsFinal  bool // Whether the interval has closed (always true for historical bars)
}

// Validate rejects bars carrying non-finite prices.
// Any finite values are accepted, gaps and inverted ranges included.
func (b Bar) Validate() error {
	for _, v := range [...]struct {
		name  string
		value float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidBar, v.name, v.value)
		}
	}
	return nil
}

// Range returns High - Low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body returns the absolute open-to-close move.
func (b Bar) Body() float64 {
	return math.Abs(b.Close - b.Open)
}
