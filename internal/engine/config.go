package engine

import (
	"fmt"
	"strings"

	"energyEngine/internal/ports"
)

// Config holds the frozen engine constants. Values are in price units unless noted.
type Config struct {
	MFEActivationThreshold float64 `yaml:"mfe_activation_threshold"` // MFE at which trailing begins (inclusive)
	TrailOffset            float64 `yaml:"trail_offset"`             // Gap kept between peak MFE and the trailing stop
	DefaultStopDistance    float64 `yaml:"default_stop_distance"`    // Initial hard stop distance
	DefenseTriggerBars     int     `yaml:"defense_trigger_bars"`     // Bars after which the loss warning check applies
	DefenseMFECeiling      float64 `yaml:"defense_mfe_ceiling"`      // MFE below this at the trigger means the trade is stalling
	DefenseStopDistance    float64 `yaml:"defense_stop_distance"`    // Tightened stop distance once defense fires
	MinPnLFloor            float64 `yaml:"min_pnl_floor"`            // Lower bound of a TRAIL_WIN realized PnL
	DefenseEnabled         bool    `yaml:"defense_enabled"`
	ExitOnActivationBar    bool    `yaml:"exit_on_activation_bar"` // When false, the activating bar is only checked against the hard stop
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		MFEActivationThreshold: 7.0,
		TrailOffset:            1.5,
		DefaultStopDistance:    30.0,
		DefenseTriggerBars:     4,
		DefenseMFECeiling:      1.5,
		DefenseStopDistance:    12.0,
		MinPnLFloor:            1.0,
		DefenseEnabled:         true,
		ExitOnActivationBar:    true,
	}
}

// Validate checks the relationships the engine relies on.
// All failures are reported together, wrapped in ports.ErrInvalidConfiguration.
func (c Config) Validate() error {
	var errs []string

	if !(c.MFEActivationThreshold > 0) {
		errs = append(errs, "MFEActivationThreshold must be positive")
	}
	if !(c.TrailOffset > 0) {
		errs = append(errs, "TrailOffset must be positive")
	}
	if !(c.DefaultStopDistance > 0) {
		errs = append(errs, "DefaultStopDistance must be positive")
	}
	if c.DefenseTriggerBars <= 0 {
		errs = append(errs, "DefenseTriggerBars must be positive")
	}
	if !(c.DefenseMFECeiling > 0) {
		errs = append(errs, "DefenseMFECeiling must be positive")
	}
	if !(c.DefenseStopDistance > 0) {
		errs = append(errs, "DefenseStopDistance must be positive")
	}
	if !(c.MinPnLFloor >= 0) {
		errs = append(errs, "MinPnLFloor must not be negative")
	}
	if c.DefenseStopDistance >= c.DefaultStopDistance {
		errs = append(errs, fmt.Sprintf("DefenseStopDistance (%v) must be smaller than DefaultStopDistance (%v)", c.DefenseStopDistance, c.DefaultStopDistance))
	}
	if c.TrailOffset >= c.MFEActivationThreshold {
		errs = append(errs, fmt.Sprintf("TrailOffset (%v) must be smaller than MFEActivationThreshold (%v)", c.TrailOffset, c.MFEActivationThreshold))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidConfiguration, strings.Join(errs, "; "))
	}
	return nil
}
