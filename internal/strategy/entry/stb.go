// Package entry holds the EntryDetector implementations used to open sessions.
package entry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/indicators"
)

const STBDetectorName = "stb"

// STBConfig holds the ignition entry thresholds.
type STBConfig struct {
	HistoryBars     int     `yaml:"history_bars"`      // Prior bars required, also the body z-score window
	ChannelBars     int     `yaml:"channel_bars"`      // Prior bars forming the channel
	MinChannelRange float64 `yaml:"min_channel_range"` // Channels narrower than this are ignored
	BodyZMin        float64 `yaml:"body_z_min"`        // Minimum |z| of the current body
	ShortRatio      float64 `yaml:"short_ratio"`       // Buyer/seller ratio above this can go SHORT
	LongRatio       float64 `yaml:"long_ratio"`        // Buyer/seller ratio below this can go LONG
	ShortChannelPct float64 `yaml:"short_channel_pct"` // Close must sit above this channel percent for SHORT
	LongChannelPct  float64 `yaml:"long_channel_pct"`  // Close must sit below this channel percent for LONG
	RatioFloor      float64 `yaml:"ratio_floor"`
}

// DefaultSTBConfig returns the research thresholds.
func DefaultSTBConfig() STBConfig {
	return STBConfig{
		HistoryBars:     50,
		ChannelBars:     20,
		MinChannelRange: 30,
		BodyZMin:        1.0,
		ShortRatio:      1.5,
		LongRatio:       0.7,
		ShortChannelPct: 80,
		LongChannelPct:  20,
		RatioFloor:      0.01,
	}
}

// Validate reports every inconsistent threshold at once.
func (c STBConfig) Validate() error {
	var errs []string
	if c.HistoryBars <= 0 || c.ChannelBars <= 0 {
		errs = append(errs, "HistoryBars and ChannelBars must be positive")
	}
	if c.ChannelBars > c.HistoryBars {
		errs = append(errs, "ChannelBars must not exceed HistoryBars")
	}
	if c.LongRatio >= c.ShortRatio {
		errs = append(errs, "LongRatio must be below ShortRatio")
	}
	if c.LongChannelPct >= c.ShortChannelPct {
		errs = append(errs, "LongChannelPct must be below ShortChannelPct")
	}
	if !(c.RatioFloor > 0) {
		errs = append(errs, "RatioFloor must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: stb: %s", ports.ErrInvalidConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

// STBDetector fades an ignition bar that closes at a channel extreme with an outsized body.
// A close high in the channel with buyers dominating signals SHORT, and the mirror signals LONG.
type STBDetector struct {
	cfg    STBConfig
	logger ports.Logger
}

// NewSTBDetector validates cfg and creates the detector.
func NewSTBDetector(cfg STBConfig, logger ports.Logger) (*STBDetector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for entry detector")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &STBDetector{cfg: cfg, logger: logger}, nil
}

func (d *STBDetector) Name() string { return STBDetectorName }

func (d *STBDetector) RequiredHistory() int { return d.cfg.HistoryBars }

// DetectEntry evaluates bar against the history that precedes it.
func (d *STBDetector) DetectEntry(ctx context.Context, bar domain.Bar, history []domain.Bar) *domain.Direction {
	if len(history) < d.cfg.HistoryBars {
		return nil
	}

	ch, err := indicators.NewChannel(history[len(history)-d.cfg.ChannelBars:])
	if err != nil || ch.Range() < d.cfg.MinChannelRange {
		return nil
	}
	channelPct, ok := ch.Percent(bar.Close)
	if !ok {
		return nil
	}

	bodyZ, err := indicators.BodyZScore(bar, history[len(history)-d.cfg.HistoryBars:])
	if err != nil {
		if !errors.Is(err, indicators.ErrZeroVariance) {
			d.logger.Error(ctx, err, "Failed to score bar body")
		}
		return nil
	}
	if bodyZ < d.cfg.BodyZMin && bodyZ > -d.cfg.BodyZMin {
		return nil
	}

	ratio := indicators.BuyerSellerRatio(bar, d.cfg.RatioFloor)

	var dir domain.Direction
	switch {
	case ratio > d.cfg.ShortRatio && channelPct > d.cfg.ShortChannelPct:
		dir = domain.Short
	case ratio < d.cfg.LongRatio && channelPct < d.cfg.LongChannelPct:
		dir = domain.Long
	default:
		return nil
	}

	d.logger.Debug(ctx, "Entry signal", map[string]interface{}{
		"detector":   STBDetectorName,
		"direction":  dir,
		"close":      bar.Close,
		"ratio":      ratio,
		"channelPct": channelPct,
		"bodyZ":      bodyZ,
	})
	return &dir
}
