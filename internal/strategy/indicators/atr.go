package indicators

import (
	"context"

	"energyEngine/internal/domain"
)

// ATRSmoothing selects how true ranges are averaged.
type ATRSmoothing string

const (
	WilderSmoothing ATRSmoothing = "WILDER" // Seeded mean, then Wilder's recursive smoothing over the whole series
	SimpleMean      ATRSmoothing = "SIMPLE" // Plain mean of the last Period true ranges
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
	Smoothing ATRSmoothing // Defaults to WILDER when empty
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
	config ATRConfig
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	if config.Smoothing == "" {
		config.Smoothing = WilderSmoothing
	}
	return &ATR{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints includes the bar that supplies the first previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range value for the given bars
func (a *ATR) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	period := a.Config.Period
	if period <= 0 || len(bars) < period+1 {
		return 0, insufficient("ATR", period+1, len(bars))
	}

	if a.config.Smoothing == SimpleMean {
		sum := 0.0
		for i := len(bars) - period; i < len(bars); i++ {
			sum += TrueRange(bars[i], bars[i-1].Close)
		}
		return sum / float64(period), nil
	}

	// First TR has no previous close and uses the bar's own range.
	trueRanges := make([]float64, len(bars))
	trueRanges[0] = bars[0].Range()
	for i := 1; i < len(bars); i++ {
		trueRanges[i] = TrueRange(bars[i], bars[i-1].Close)
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, nil
}
