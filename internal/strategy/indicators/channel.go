package indicators

import (
	"errors"
	"math"

	"energyEngine/internal/domain"
)

// ErrZeroVariance is returned when a series has no dispersion to normalize against.
var ErrZeroVariance = errors.New("series has zero variance")

// Channel is the high/low envelope of a bar window.
type Channel struct {
	High float64
	Low  float64
}

// NewChannel returns the highest high and lowest low of bars.
func NewChannel(bars []domain.Bar) (Channel, error) {
	if len(bars) == 0 {
		return Channel{}, insufficient("channel", 1, 0)
	}
	ch := Channel{High: bars[0].High, Low: bars[0].Low}
	for _, b := range bars[1:] {
		ch.High = math.Max(ch.High, b.High)
		ch.Low = math.Min(ch.Low, b.Low)
	}
	return ch, nil
}

// Range returns High - Low.
func (c Channel) Range() float64 {
	return c.High - c.Low
}

// Percent locates price inside the channel on a 0..100 scale.
// The second result is false for a flat channel.
func (c Channel) Percent(price float64) (float64, bool) {
	r := c.Range()
	if r <= 0 {
		return 0, false
	}
	return (price - c.Low) / r * 100, true
}

// BuyerSellerRatio compares the close-to-low leg with the high-to-close leg.
// Both legs are floored at floor so the ratio stays finite.
func BuyerSellerRatio(bar domain.Bar, floor float64) float64 {
	buyers := math.Max(bar.Close-bar.Low, floor)
	sellers := math.Max(bar.High-bar.Close, floor)
	return buyers / sellers
}

// BodyZScore scores the body of bar against the bodies of history using the population standard deviation.
func BodyZScore(bar domain.Bar, history []domain.Bar) (float64, error) {
	if len(history) == 0 {
		return 0, insufficient("body z-score", 1, 0)
	}
	mean := 0.0
	for _, b := range history {
		mean += b.Body()
	}
	mean /= float64(len(history))

	variance := 0.0
	for _, b := range history {
		d := b.Body() - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(history)))
	if std == 0 {
		return 0, ErrZeroVariance
	}
	return (bar.Body() - mean) / std, nil
}
