package app

import (
	"fmt"

	"energyEngine/config"
	"energyEngine/internal/engine"
	"energyEngine/internal/ports"
	"energyEngine/internal/risk"
	"energyEngine/internal/strategy/backtesting"
	"energyEngine/internal/strategy/strategies"
)

// NewRunner assembles a runner from the application configuration.
// Every call builds fresh components, so concurrent runs never share policy or encoder state.
func NewRunner(cfg *config.Config, logger ports.Logger) (*backtesting.Runner, error) {
	return NewRunnerWith(cfg.Symbol, cfg.Engine, cfg.Strategy, cfg.Risk, logger)
}

// NewRunnerWith assembles a runner from explicit parts.
func NewRunnerWith(symbol string, engineCfg engine.Config, opts strategies.Options, gateCfg risk.Config, logger ports.Logger) (*backtesting.Runner, error) {
	opts.ExitOnActivationBar = engineCfg.ExitOnActivationBar
	set, err := strategies.New(opts, logger)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engineCfg, set.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	return backtesting.NewRunner(
		backtesting.Config{Symbol: symbol},
		eng,
		set.Detector,
		set.Signals,
		risk.NewGate(gateCfg),
		logger,
	)
}
