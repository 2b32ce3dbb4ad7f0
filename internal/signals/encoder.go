// Package signals derives the aux persistence and strength signals consumed by the accumulator exit policy.
package signals

import (
	"context"

	"energyEngine/internal/domain"
	"energyEngine/internal/strategy/indicators"
)

// Config holds the encoder windows and thresholds.
type Config struct {
	ChannelBars  int     `yaml:"channel_bars"`  // Window of the channel position
	ATRPeriod    int     `yaml:"atr_period"`    // Window of the true range average behind force
	ExtremeHigh  float64 `yaml:"extreme_high"`  // Channel position counted as dwelling at the top
	ExtremeLow   float64 `yaml:"extreme_low"`   // Channel position counted as dwelling at the bottom
	DirWindow    int     `yaml:"dir_window"`    // Number of recent signs summed into DirCount
	HistoryLimit int     `yaml:"history_limit"` // Bars retained
}

// DefaultConfig returns the research windows.
func DefaultConfig() Config {
	return Config{
		ChannelBars:  20,
		ATRPeriod:    20,
		ExtremeHigh:  0.9,
		ExtremeLow:   0.1,
		DirWindow:    5,
		HistoryLimit: 100,
	}
}

// Encoder is a rule-based SignalSource. It must see every bar of the feed in order.
type Encoder struct {
	cfg Config
	atr *indicators.ATR

	history   []domain.Bar
	upDwell   int
	downDwell int
	signs     []int
}

// NewEncoder creates an encoder. Zero or negative windows fall back to the defaults.
func NewEncoder(cfg Config) *Encoder {
	def := DefaultConfig()
	if cfg.ChannelBars <= 0 {
		cfg.ChannelBars = def.ChannelBars
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.DirWindow <= 0 {
		cfg.DirWindow = def.DirWindow
	}
	if cfg.ExtremeHigh == 0 && cfg.ExtremeLow == 0 {
		cfg.ExtremeHigh, cfg.ExtremeLow = def.ExtremeHigh, def.ExtremeLow
	}
	if cfg.HistoryLimit < cfg.ChannelBars || cfg.HistoryLimit < cfg.ATRPeriod+1 {
		cfg.HistoryLimit = max(def.HistoryLimit, cfg.ChannelBars, cfg.ATRPeriod+1)
	}
	return &Encoder{
		cfg: cfg,
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod},
			Smoothing:       indicators.SimpleMean,
		}),
		history: make([]domain.Bar, 0, cfg.HistoryLimit),
		signs:   make([]int, 0, cfg.DirWindow),
	}
}

// Next consumes one bar and returns the signals as of its close.
func (e *Encoder) Next(ctx context.Context, bar domain.Bar) domain.AuxSignals {
	e.history = append(e.history, bar)
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = append(e.history[:0], e.history[len(e.history)-e.cfg.HistoryLimit:]...)
	}

	dc := e.channelPosition()

	if dc >= e.cfg.ExtremeHigh {
		e.upDwell++
	} else {
		e.upDwell = 0
	}
	if dc <= e.cfg.ExtremeLow {
		e.downDwell++
	} else {
		e.downDwell = 0
	}

	sign := -1
	if dc > 0.5 {
		sign = 1
	}
	e.signs = append(e.signs, sign)
	if len(e.signs) > e.cfg.DirWindow {
		e.signs = e.signs[1:]
	}
	dirCount := 0
	if len(e.signs) == e.cfg.DirWindow {
		for _, s := range e.signs {
			dirCount += s
		}
	}

	return domain.AuxSignals{
		Tau:             max(e.upDwell, e.downDwell),
		Force:           e.force(ctx),
		DirCount:        dirCount,
		ChannelPosition: dc,
	}
}

// channelPosition is 0.5 until two bars are seen and whenever the channel is flat.
func (e *Encoder) channelPosition() float64 {
	if len(e.history) < 2 {
		return 0.5
	}
	window := e.history
	if len(window) > e.cfg.ChannelBars {
		window = window[len(window)-e.cfg.ChannelBars:]
	}
	ch, err := indicators.NewChannel(window)
	if err != nil {
		return 0.5
	}
	pct, ok := ch.Percent(window[len(window)-1].Close)
	if !ok {
		return 0.5
	}
	return pct / 100
}

// force is the current true range relative to its average, in percent above 1x.
// It stays 0 until the average window is full.
func (e *Encoder) force(ctx context.Context) float64 {
	n := len(e.history)
	if n < e.atr.RequiredDataPoints() {
		return 0
	}
	atr, err := e.atr.Calculate(ctx, e.history[n-e.atr.RequiredDataPoints():])
	if err != nil || atr <= 0 {
		return 0
	}
	tr := indicators.TrueRange(e.history[n-1], e.history[n-2].Close)
	return (tr/atr - 1) * 100
}

// Reset clears all history, e.g. between independent feeds.
func (e *Encoder) Reset() {
	e.history = e.history[:0]
	e.signs = e.signs[:0]
	e.upDwell, e.downDwell = 0, 0
}
