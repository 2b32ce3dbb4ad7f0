package indicators

import (
	"context"
	"errors"
	"fmt"

	"energyEngine/internal/domain"
)

// ErrInsufficientData is returned when a series is shorter than an indicator needs.
var ErrInsufficientData = errors.New("not enough data points")

// Indicator represents a technical indicator computed from a bar series.
// The last element of bars is the most recent one.
type Indicator interface {
	// Calculate computes the indicator value for the given bars
	Calculate(ctx context.Context, bars []domain.Bar) (float64, error)

	// RequiredDataPoints returns the minimum number of bars needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%s: %w: need %d, got %d", name, ErrInsufficientData, need, got)
}

// TrueRange is the greatest of high-low, |high-prevClose| and |low-prevClose|.
func TrueRange(bar domain.Bar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if d := bar.High - prevClose; d > tr {
		tr = d
	} else if -d > tr {
		tr = -d
	}
	if d := bar.Low - prevClose; d > tr {
		tr = d
	} else if -d > tr {
		tr = -d
	}
	return tr
}
