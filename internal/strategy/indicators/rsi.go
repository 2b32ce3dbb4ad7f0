package indicators

import (
	"context"
	"math"

	"energyEngine/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index indicator
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints includes the bar that supplies the first close-to-close change.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate returns Wilder's RSI over the closes. A flat series reads 50 and a series
// without losses reads 100.
func (r *RSI) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	period := r.Config.Period
	if period <= 0 || len(bars) <= period {
		return 0, insufficient("RSI", period+1, len(bars))
	}

	n := float64(period)
	var avgGain, avgLoss float64
	for i := 1; i < len(bars); i++ {
		gain, loss := splitChange(bars[i].Close - bars[i-1].Close)
		if i <= period {
			avgGain += gain / n
			avgLoss += loss / n
			continue
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
	}

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, nil
	case avgLoss == 0:
		return 100, nil
	}
	return math.Max(0, math.Min(100, 100-100/(1+avgGain/avgLoss))), nil
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// IsOverbought checks if the RSI value indicates an overbought condition
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold checks if the RSI value indicates an oversold condition
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
