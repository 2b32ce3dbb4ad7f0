package entry

import (
	"context"
	"fmt"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/indicators"
)

const TrendDetectorName = "trend"

// TrendConfig holds parameters for the trend-following entry.
type TrendConfig struct {
	ShortTermMAPeriod int     `yaml:"short_ma_period"` // e.g., 20
	LongTermMAPeriod  int     `yaml:"long_ma_period"`  // e.g., 50
	EMAPeriod         int     `yaml:"ema_period"`      // e.g., 20
	RSIPeriod         int     `yaml:"rsi_period"`      // e.g., 14
	RSIOverbought     float64 `yaml:"rsi_overbought"`  // e.g., 70.0
	RSIOversold       float64 `yaml:"rsi_oversold"`    // e.g., 30.0
	AllowShort        bool    `yaml:"allow_short"`
}

// DefaultTrendConfig returns common trend-filter periods.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		ShortTermMAPeriod: 20,
		LongTermMAPeriod:  50,
		EMAPeriod:         20,
		RSIPeriod:         14,
		RSIOverbought:     70,
		RSIOversold:       30,
		AllowShort:        true,
	}
}

// TrendDetector enters LONG when price stacks above both moving averages and the EMA
// without being overbought. SHORT is the mirror image.
type TrendDetector struct {
	cfg     TrendConfig
	logger  ports.Logger
	shortMA *indicators.MovingAverage
	longMA  *indicators.MovingAverage
	ema     *indicators.MovingAverage
	rsi     *indicators.RSI
}

// NewTrendDetector creates a new trend detector.
func NewTrendDetector(cfg TrendConfig, logger ports.Logger) (*TrendDetector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for entry detector")
	}
	if cfg.ShortTermMAPeriod <= 0 || cfg.LongTermMAPeriod <= 0 || cfg.EMAPeriod <= 0 || cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("%w: trend periods must be positive", ports.ErrInvalidConfiguration)
	}
	if cfg.ShortTermMAPeriod >= cfg.LongTermMAPeriod {
		return nil, fmt.Errorf("%w: short term MA period must be less than long term MA period", ports.ErrInvalidConfiguration)
	}
	return &TrendDetector{
		cfg:    cfg,
		logger: logger,
		shortMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ShortTermMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		longMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.LongTermMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		ema: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.EMAPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
	}, nil
}

func (d *TrendDetector) Name() string { return TrendDetectorName }

// RequiredHistory is the longest indicator window; the current bar completes it.
func (d *TrendDetector) RequiredHistory() int {
	return max(d.longMA.RequiredDataPoints(), d.ema.RequiredDataPoints(), d.rsi.RequiredDataPoints()) - 1
}

// DetectEntry evaluates the indicators over history plus the current bar.
func (d *TrendDetector) DetectEntry(ctx context.Context, bar domain.Bar, history []domain.Bar) *domain.Direction {
	if len(history) < d.RequiredHistory() {
		return nil
	}
	series := make([]domain.Bar, 0, len(history)+1)
	series = append(series, history...)
	series = append(series, bar)

	var values [4]float64
	for i, ind := range []indicators.Indicator{d.shortMA, d.longMA, d.ema, d.rsi} {
		v, err := ind.Calculate(ctx, series)
		if err != nil {
			d.logger.Error(ctx, err, "Failed to calculate indicator", map[string]interface{}{"indicator": ind.Name()})
			return nil
		}
		values[i] = v
	}
	shortMA, longMA, ema, rsi := values[0], values[1], values[2], values[3]
	price := bar.Close

	var dir domain.Direction
	switch {
	case price > shortMA && shortMA > longMA && price > ema && !d.rsi.IsOverbought(rsi):
		dir = domain.Long
	case d.cfg.AllowShort && price < shortMA && shortMA < longMA && price < ema && !d.rsi.IsOversold(rsi):
		dir = domain.Short
	default:
		return nil
	}

	d.logger.Debug(ctx, "Entry signal", map[string]interface{}{
		"detector":  TrendDetectorName,
		"direction": dir,
		"close":     price,
		"shortMA":   shortMA,
		"longMA":    longMA,
		"ema":       ema,
		"rsi":       rsi,
	})
	return &dir
}
