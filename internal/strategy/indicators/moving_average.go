package indicators

import (
	"context"
	"fmt"

	"energyEngine/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA over bar closes
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.config.Type, m.Config.Period)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	period := m.Config.Period
	if period <= 0 || len(bars) < period {
		return 0, insufficient(m.Name(), period, len(bars))
	}
	switch m.config.Type {
	case SimpleMovingAverage:
		return smaOfCloses(bars[len(bars)-period:]), nil
	case ExponentialMovingAverage:
		// Seeded with the SMA of the first period bars, then smoothed forward.
		multiplier := 2.0 / float64(period+1)
		ema := smaOfCloses(bars[:period])
		for _, b := range bars[period:] {
			ema = (b.Close-ema)*multiplier + ema
		}
		return ema, nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

func smaOfCloses(bars []domain.Bar) float64 {
	total := 0.0
	for _, b := range bars {
		total += b.Close
	}
	return total / float64(len(bars))
}
