package entry

import (
	"context"
	"fmt"
	"strings"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/indicators"
)

const CrossoverDetectorName = "ma_crossover"

// Bars compared for momentum, and half of the volume comparison window.
const (
	momentumBars = 10
	volumeBars   = 5
)

// CrossoverConfig holds the moving average crossover thresholds.
type CrossoverConfig struct {
	FastMAPeriod     int     `yaml:"fast_ma_period"`    // Fast EMA (e.g., 8)
	SlowMAPeriod     int     `yaml:"slow_ma_period"`    // Slow EMA (e.g., 21)
	SignalPeriod     int     `yaml:"signal_period"`     // Signal line EMA for confirmation (e.g., 9)
	ATRPeriod        int     `yaml:"atr_period"`        // e.g., 14
	RSIPeriod        int     `yaml:"rsi_period"`        // e.g., 14
	RSILow           float64 `yaml:"rsi_low"`           // Healthy RSI band for LONG, mirrored for SHORT
	RSIHigh          float64 `yaml:"rsi_high"`          // Upper bound of the band
	MinMomentumPct   float64 `yaml:"min_momentum_pct"`  // Close change over 10 bars, percent
	MinVolumeRatio   float64 `yaml:"min_volume_ratio"`  // Last 5 bars volume over the 5 before
	MaxATRPct        float64 `yaml:"max_atr_pct"`       // ATR above this percent of price is too volatile
	MinConfirmations int     `yaml:"min_confirmations"` // Out of six
	AllowShort       bool    `yaml:"allow_short"`
}

// DefaultCrossoverConfig returns the day trading thresholds.
func DefaultCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{
		FastMAPeriod:     8,
		SlowMAPeriod:     21,
		SignalPeriod:     9,
		ATRPeriod:        14,
		RSIPeriod:        14,
		RSILow:           35,
		RSIHigh:          68,
		MinMomentumPct:   0.3,
		MinVolumeRatio:   1.1,
		MaxATRPct:        1.5,
		MinConfirmations: 2,
		AllowShort:       true,
	}
}

// Validate reports every inconsistent threshold at once.
func (c CrossoverConfig) Validate() error {
	var errs []string
	if c.FastMAPeriod <= 0 || c.SlowMAPeriod <= 0 || c.SignalPeriod <= 0 || c.ATRPeriod <= 0 || c.RSIPeriod <= 0 {
		errs = append(errs, "crossover periods must be positive")
	}
	if c.FastMAPeriod >= c.SlowMAPeriod {
		errs = append(errs, "FastMAPeriod must be less than SlowMAPeriod")
	}
	if c.RSILow < 0 || c.RSIHigh > 100 || c.RSILow >= c.RSIHigh {
		errs = append(errs, "RSI band must satisfy 0 <= RSILow < RSIHigh <= 100")
	}
	if c.MinConfirmations < 0 || c.MinConfirmations > 6 {
		errs = append(errs, "MinConfirmations must be between 0 and 6")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

// CrossoverDetector enters when the fast EMA has just crossed the slow EMA, price sits beyond
// both, and enough confirmations agree: signal line, RSI band, momentum, rising volume,
// a higher-high/higher-low pattern (mirrored for SHORT) and tame volatility.
type CrossoverDetector struct {
	cfg    CrossoverConfig
	logger ports.Logger
	fastMA *indicators.MovingAverage
	slowMA *indicators.MovingAverage
	signal *indicators.MovingAverage
	atr    *indicators.ATR
	rsi    *indicators.RSI
}

// NewCrossoverDetector creates a new crossover detector.
func NewCrossoverDetector(cfg CrossoverConfig, logger ports.Logger) (*CrossoverDetector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for entry detector")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ema := func(period int) *indicators.MovingAverage {
		return indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: period},
			Type:            indicators.ExponentialMovingAverage,
		})
	}
	return &CrossoverDetector{
		cfg:    cfg,
		logger: logger,
		fastMA: ema(cfg.FastMAPeriod),
		slowMA: ema(cfg.SlowMAPeriod),
		signal: ema(cfg.SignalPeriod),
		atr:    indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod}}),
		rsi:    indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod}}),
	}, nil
}

func (d *CrossoverDetector) Name() string { return CrossoverDetectorName }

// RequiredHistory covers the slow EMA two bars back and the momentum lookback.
func (d *CrossoverDetector) RequiredHistory() int {
	return max(d.cfg.SlowMAPeriod+2, momentumBars+1, 2*volumeBars, d.atr.RequiredDataPoints(), d.rsi.RequiredDataPoints(), d.cfg.SignalPeriod) - 1
}

// DetectEntry evaluates the crossover over history plus the current bar.
func (d *CrossoverDetector) DetectEntry(ctx context.Context, bar domain.Bar, history []domain.Bar) *domain.Direction {
	if len(history) < d.RequiredHistory() {
		return nil
	}
	series := make([]domain.Bar, 0, len(history)+1)
	series = append(series, history...)
	series = append(series, bar)
	prior := series[:len(series)-2]

	var values [7]float64
	for i, c := range []struct {
		ind  indicators.Indicator
		bars []domain.Bar
	}{
		{d.fastMA, series}, {d.slowMA, series}, {d.fastMA, prior}, {d.slowMA, prior},
		{d.signal, series}, {d.rsi, series}, {d.atr, series},
	} {
		v, err := c.ind.Calculate(ctx, c.bars)
		if err != nil {
			d.logger.Error(ctx, err, "Failed to calculate indicator", map[string]interface{}{"indicator": c.ind.Name()})
			return nil
		}
		values[i] = v
	}
	fast, slow, prevFast, prevSlow, signal, rsi, atr := values[0], values[1], values[2], values[3], values[4], values[5], values[6]
	price := bar.Close

	var dir domain.Direction
	switch {
	case fast > slow && prevFast <= prevSlow && price > fast && price > slow:
		dir = domain.Long
	case d.cfg.AllowShort && fast < slow && prevFast >= prevSlow && price < fast && price < slow:
		dir = domain.Short
	default:
		return nil
	}
	sign := dir.Sign()

	n := len(series)
	ref := series[n-1-momentumBars].Close
	momentum := sign * (price - ref) / ref * 100

	recentVolume, pastVolume := 0.0, 0.0
	for i := 0; i < volumeBars; i++ {
		recentVolume += series[n-1-i].Volume
		pastVolume += series[n-1-volumeBars-i].Volume
	}

	b0, b1, b2 := series[n-1], series[n-2], series[n-3]
	var pattern bool
	if dir == domain.Long {
		pattern = (b0.High > b1.High && b1.High > b2.High) || (b0.Low > b1.Low && b1.Low > b2.Low)
	} else {
		pattern = (b0.Low < b1.Low && b1.Low < b2.Low) || (b0.High < b1.High && b1.High < b2.High)
	}

	rsiLow, rsiHigh := d.cfg.RSILow, d.cfg.RSIHigh
	if dir == domain.Short {
		rsiLow, rsiHigh = 100-d.cfg.RSIHigh, 100-d.cfg.RSILow
	}

	confirmations := 0
	for _, ok := range []bool{
		sign*(price-signal) > 0,
		rsi > rsiLow && rsi < rsiHigh,
		momentum > d.cfg.MinMomentumPct,
		pastVolume > 0 && recentVolume/pastVolume > d.cfg.MinVolumeRatio,
		pattern,
		atr < price*d.cfg.MaxATRPct/100,
	} {
		if ok {
			confirmations++
		}
	}

	fields := map[string]interface{}{
		"detector":      CrossoverDetectorName,
		"direction":     dir,
		"close":         price,
		"fastMA":        fast,
		"slowMA":        slow,
		"signal":        signal,
		"rsi":           rsi,
		"atr":           atr,
		"momentum":      momentum,
		"confirmations": confirmations,
	}
	if confirmations < d.cfg.MinConfirmations {
		d.logger.Debug(ctx, "Crossover without confirmation", fields)
		return nil
	}
	d.logger.Debug(ctx, "Entry signal", fields)
	return &dir
}
