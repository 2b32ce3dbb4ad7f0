package optimization

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"energyEngine/internal/domain"
	"energyEngine/internal/engine"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/analytics"
	"energyEngine/internal/strategy/backtesting"
)

// Engine parameters that can be swept. Names match the engine config yaml keys.
const (
	ParamMFEActivationThreshold = "mfe_activation_threshold"
	ParamTrailOffset            = "trail_offset"
	ParamDefaultStopDistance    = "default_stop_distance"
	ParamDefenseTriggerBars     = "defense_trigger_bars"
	ParamDefenseMFECeiling      = "defense_mfe_ceiling"
	ParamDefenseStopDistance    = "defense_stop_distance"
	ParamMinPnLFloor            = "min_pnl_floor"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64 // Zero sweeps Min only
	IsInt bool
}

// OptimizationResult holds the outcome of one parameter combination.
type OptimizationResult struct {
	Parameters map[string]float64
	Config     engine.Config
	Summary    backtesting.Summary
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// Report is the ranked outcome of a sweep.
type Report struct {
	Results   []OptimizationResult // Best score first
	Evaluated int
	Skipped   int // Combinations rejected by engine.Config.Validate
}

// Components builds the per-run collaborators. Each combination gets fresh instances
// because policies, detectors and encoders keep per-run state.
type Components struct {
	Policy   func() (ports.ExitPolicy, error)   // Nil uses the threshold policy
	Detector func() (ports.EntryDetector, error) // Required
	Signals  func() ports.SignalSource           // Nil when the policy needs none
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	Base            engine.Config
	ParameterRanges []ParameterRange
	Symbol          string
	InitialBalance  float64
	Concurrency     int // Defaults to GOMAXPROCS
	ScoreFunction   func(*analytics.PerformanceMetrics) float64
}

// Optimizer sweeps engine parameters over a fixed bar series.
type Optimizer struct {
	config     OptimizerConfig
	components Components
	logger     ports.Logger
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, components Components, logger ports.Logger) (*Optimizer, error) {
	if logger == nil || components.Detector == nil {
		return nil, fmt.Errorf("missing required dependencies for Optimizer")
	}
	for _, r := range config.ParameterRanges {
		if _, err := apply(config.Base, r.Name, r.Min); err != nil {
			return nil, err
		}
		if r.Max < r.Min || r.Step < 0 {
			return nil, fmt.Errorf("%w: range %s [%v, %v] step %v", ports.ErrInvalidConfiguration, r.Name, r.Min, r.Max, r.Step)
		}
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	if config.Concurrency <= 0 {
		config.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Optimizer{config: config, components: components, logger: logger}, nil
}

// Optimize runs one backtest per valid combination and ranks them by score.
// The first failing run cancels the rest.
func (o *Optimizer) Optimize(ctx context.Context, bars []domain.Bar) (*Report, error) {
	combinations := o.generateParameterCombinations()

	type job struct {
		params map[string]float64
		cfg    engine.Config
	}
	jobs := make([]job, 0, len(combinations))
	skipped := 0
	for _, params := range combinations {
		cfg, err := configFor(o.config.Base, params)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			skipped++
			o.logger.Debug(ctx, "Skipping invalid combination", map[string]interface{}{
				"params": params,
				"reason": err.Error(),
			})
			continue
		}
		jobs = append(jobs, job{params: params, cfg: cfg})
	}

	results := make([]OptimizationResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Concurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			res, err := o.runOne(gctx, j.cfg, bars)
			if err != nil {
				return fmt.Errorf("combination %v: %w", j.params, err)
			}
			metrics := analytics.AnalyzePerformance(res.Trades, o.config.InitialBalance)
			results[i] = OptimizationResult{
				Parameters: j.params,
				Config:     j.cfg,
				Summary:    res.Summary,
				Metrics:    metrics,
				Score:      o.config.ScoreFunction(metrics),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortResultsByScore(results)

	o.logger.Info(ctx, "Optimization finished", map[string]interface{}{
		"evaluated": len(results),
		"skipped":   skipped,
	})
	return &Report{Results: results, Evaluated: len(results), Skipped: skipped}, nil
}

func (o *Optimizer) runOne(ctx context.Context, cfg engine.Config, bars []domain.Bar) (*backtesting.Result, error) {
	var exitPolicy ports.ExitPolicy
	if o.components.Policy != nil {
		p, err := o.components.Policy()
		if err != nil {
			return nil, err
		}
		exitPolicy = p
	}
	detector, err := o.components.Detector()
	if err != nil {
		return nil, err
	}
	var src ports.SignalSource
	if o.components.Signals != nil {
		src = o.components.Signals()
	}

	eng, err := engine.New(cfg, exitPolicy, o.logger)
	if err != nil {
		return nil, err
	}
	runner, err := backtesting.NewRunner(backtesting.Config{Symbol: o.config.Symbol}, eng, detector, src, nil, o.logger)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, bars)
}

// generateParameterCombinations generates all possible parameter combinations.
// Values are computed as Min+i*Step so float steps do not drift.
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	current := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(current))
			for k, v := range current {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := 0
		if param.Step > 0 {
			steps = int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		}
		for i := 0; i <= steps; i++ {
			value := param.Min + float64(i)*param.Step
			if param.IsInt {
				value = math.Round(value)
			}
			current[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

func configFor(base engine.Config, params map[string]float64) (engine.Config, error) {
	cfg := base
	for name, value := range params {
		var err error
		if cfg, err = apply(cfg, name, value); err != nil {
			return engine.Config{}, err
		}
	}
	return cfg, nil
}

func apply(cfg engine.Config, name string, value float64) (engine.Config, error) {
	switch name {
	case ParamMFEActivationThreshold:
		cfg.MFEActivationThreshold = value
	case ParamTrailOffset:
		cfg.TrailOffset = value
	case ParamDefaultStopDistance:
		cfg.DefaultStopDistance = value
	case ParamDefenseTriggerBars:
		cfg.DefenseTriggerBars = int(math.Round(value))
	case ParamDefenseMFECeiling:
		cfg.DefenseMFECeiling = value
	case ParamDefenseStopDistance:
		cfg.DefenseStopDistance = value
	case ParamMinPnLFloor:
		cfg.MinPnLFloor = value
	default:
		return cfg, fmt.Errorf("%w: unknown parameter %q", ports.ErrInvalidConfiguration, name)
	}
	return cfg, nil
}

// sortResultsByScore sorts by score, highest first. Ties keep generation order.
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DefaultScoreFunction ranks by total PnL per point of drawdown. Runs without trades rank last.
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	if metrics == nil || metrics.TotalTrades == 0 {
		return math.Inf(-1)
	}
	return metrics.TotalProfit / (1 + metrics.MaxDrawdownPoints)
}
