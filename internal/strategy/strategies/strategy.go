package strategies

import (
	"fmt"
	"sort"

	"energyEngine/internal/policy"
	"energyEngine/internal/ports"
	"energyEngine/internal/signals"
	"energyEngine/internal/strategy/entry"
)

// Options selects and configures the entry detector and exit policy of a run.
type Options struct {
	Detector            string // entry.STBDetectorName, entry.TrendDetectorName or entry.CrossoverDetectorName
	Policy              string // policy.ThresholdPolicyName or policy.AccumulatorPolicyName
	ExitOnActivationBar bool
	STB                 entry.STBConfig
	Trend               entry.TrendConfig
	Crossover           entry.CrossoverConfig
	Accumulator         policy.AccumulatorConfig
	Signals             signals.Config
}

// Set bundles the per-run components. Signals is nil when the policy needs none.
type Set struct {
	Detector ports.EntryDetector
	Policy   ports.ExitPolicy
	Signals  ports.SignalSource
}

type detectorFactory func(Options, ports.Logger) (ports.EntryDetector, error)

type policyFactory func(Options, ports.Logger) (ports.ExitPolicy, error)

var detectors = map[string]detectorFactory{
	entry.STBDetectorName: func(o Options, l ports.Logger) (ports.EntryDetector, error) {
		return entry.NewSTBDetector(o.STB, l)
	},
	entry.TrendDetectorName: func(o Options, l ports.Logger) (ports.EntryDetector, error) {
		return entry.NewTrendDetector(o.Trend, l)
	},
	entry.CrossoverDetectorName: func(o Options, l ports.Logger) (ports.EntryDetector, error) {
		return entry.NewCrossoverDetector(o.Crossover, l)
	},
}

var policies = map[string]policyFactory{
	policy.ThresholdPolicyName: func(o Options, _ ports.Logger) (ports.ExitPolicy, error) {
		return policy.NewThresholdEnergyPolicy(o.ExitOnActivationBar), nil
	},
	policy.AccumulatorPolicyName: func(o Options, l ports.Logger) (ports.ExitPolicy, error) {
		return policy.NewAccumulatorPolicy(o.Accumulator, l)
	},
}

// New builds fresh components for one run. Policies and encoders keep per-session
// state, so concurrent runs each need their own Set.
func New(opts Options, logger ports.Logger) (*Set, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategies")
	}
	newDetector, ok := detectors[opts.Detector]
	if !ok {
		return nil, fmt.Errorf("%w: unknown detector %q (have %v)", ports.ErrInvalidConfiguration, opts.Detector, Detectors())
	}
	newPolicy, ok := policies[opts.Policy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown exit policy %q (have %v)", ports.ErrInvalidConfiguration, opts.Policy, Policies())
	}

	detector, err := newDetector(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("building detector %s: %w", opts.Detector, err)
	}
	exitPolicy, err := newPolicy(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("building exit policy %s: %w", opts.Policy, err)
	}

	set := &Set{Detector: detector, Policy: exitPolicy}
	if exitPolicy.RequiresSignals() {
		set.Signals = signals.NewEncoder(opts.Signals)
	}
	return set, nil
}

// Detectors lists the registered entry detector names.
func Detectors() []string {
	return sortedKeys(detectors)
}

// Policies lists the registered exit policy names.
func Policies() []string {
	return sortedKeys(policies)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
