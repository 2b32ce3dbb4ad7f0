package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
)

const AccumulatorPolicyName = "accumulator"

// Rule names used for statistics and hold diagnostics.
const (
	RuleObservationWindow = "R1_OBSERVATION_WINDOW"
	RuleForcePersistence  = "R2_FORCE_PERSISTENCE"
	RuleStructuralHold    = "R3_STRUCTURAL_HOLD"
	RuleForceAccumulation = "R4_FORCE_ACCUMULATION"
	RuleUnifiedExit       = "R5_UNIFIED_EXIT"
)

var allRules = []string{RuleObservationWindow, RuleForcePersistence, RuleStructuralHold, RuleForceAccumulation, RuleUnifiedExit}

// AccumulatorConfig holds the orchestrator thresholds.
type AccumulatorConfig struct {
	ObservationWindowBars int     `yaml:"observation_window_bars"`
	ForceMin              float64 `yaml:"force_min"`
	TauMin                int     `yaml:"tau_min"`
	DirThreshold          int     `yaml:"dir_threshold"`
	ForceAccumulationGate float64 `yaml:"force_accumulation_gate"`
	MaxSessionBars        int     `yaml:"max_session_bars"`
	MAELimit              float64 `yaml:"mae_limit"`
	TauCollapseDrop       int     `yaml:"tau_collapse_drop"`
	HoldSmallTauMin       int     `yaml:"hold_small_tau_min"`
	HoldSmallMFEMin       float64 `yaml:"hold_small_mfe_min"`
	CapsOverrideHold      bool    `yaml:"caps_override_hold"` // MAX_BARS and MAE_EXCESS fire even while a rule blocks the exit
}

// DefaultAccumulatorConfig returns the research defaults.
func DefaultAccumulatorConfig() AccumulatorConfig {
	return AccumulatorConfig{
		ObservationWindowBars: 3,
		ForceMin:              10,
		TauMin:                5,
		DirThreshold:          3,
		ForceAccumulationGate: 100,
		MaxSessionBars:        30,
		MAELimit:              25,
		TauCollapseDrop:       3,
		HoldSmallTauMin:       6,
		HoldSmallMFEMin:       5,
		CapsOverrideHold:      true,
	}
}

// Validate reports every non-positive threshold at once.
func (c AccumulatorConfig) Validate() error {
	var errs []string
	if c.ObservationWindowBars < 0 {
		errs = append(errs, "ObservationWindowBars must not be negative")
	}
	if !(c.ForceMin > 0) {
		errs = append(errs, "ForceMin must be positive")
	}
	if c.TauMin <= 0 {
		errs = append(errs, "TauMin must be positive")
	}
	if c.DirThreshold <= 0 {
		errs = append(errs, "DirThreshold must be positive")
	}
	if c.MaxSessionBars <= 0 {
		errs = append(errs, "MaxSessionBars must be positive")
	}
	if !(c.MAELimit > 0) {
		errs = append(errs, "MAELimit must be positive")
	}
	if c.TauCollapseDrop <= 0 {
		errs = append(errs, "TauCollapseDrop must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

// HoldInfo describes why the last evaluated bar kept a session open.
type HoldInfo struct {
	BarsSinceEntry   int
	ForceAccumulated float64
	LastTau          int
	LastForce        float64
	CanExit          bool
	BlockingRules    []string
	HoldReason       string // OBSERVATION_WINDOW, STRUCTURAL_HOLD or FORCE_PERSISTENCE; empty when exit is allowed
	HoldState        domain.HoldState
}

// Statistics counts rule activity across all sessions governed by the policy.
type Statistics struct {
	RuleApplications map[string]int
	RuleBlocks       map[string]int
	HoldStates       map[domain.HoldState]int
}

// AccumulatorPolicy holds a session open while force or structure persists
// and exits only when every holding rule has broken, or a cap is reached.
type AccumulatorPolicy struct {
	cfg    AccumulatorConfig
	logger ports.Logger

	mu     sync.Mutex
	states map[string]*HoldInfo
	stats  Statistics
}

// NewAccumulatorPolicy validates cfg and creates the policy.
func NewAccumulatorPolicy(cfg AccumulatorConfig, logger ports.Logger) (*AccumulatorPolicy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &AccumulatorPolicy{
		cfg:    cfg,
		logger: logger,
		states: make(map[string]*HoldInfo),
		stats: Statistics{
			RuleApplications: make(map[string]int, len(allRules)),
			RuleBlocks:       make(map[string]int, len(allRules)),
			HoldStates:       make(map[domain.HoldState]int, 3),
		},
	}
	for _, r := range allRules {
		p.stats.RuleApplications[r] = 0
		p.stats.RuleBlocks[r] = 0
	}
	return p, nil
}

// Name returns the policy name stored with each trade.
func (p *AccumulatorPolicy) Name() string { return AccumulatorPolicyName }

// RequiresSignals is true: every rule reads tau, force or dir count.
func (p *AccumulatorPolicy) RequiresSignals() bool { return true }

// Evaluate applies the orchestrator rules. A nil aux never exits.
func (p *AccumulatorPolicy) Evaluate(ctx context.Context, s *domain.TradeSession, _ domain.Bar, aux *domain.AuxSignals) (bool, domain.ExitCause) {
	if aux == nil {
		return false, ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[s.TradeID]
	if !ok {
		st = &HoldInfo{}
		p.states[s.TradeID] = st
	}

	prevTau := st.LastTau
	seenBefore := st.BarsSinceEntry > 0
	st.BarsSinceEntry = s.BarsElapsed
	st.ForceAccumulated += aux.Force
	st.LastTau = aux.Tau
	st.LastForce = aux.Force

	st.BlockingRules = st.BlockingRules[:0]
	if st.BarsSinceEntry < p.cfg.ObservationWindowBars {
		p.block(st, RuleObservationWindow)
	}
	if aux.Force >= p.cfg.ForceMin {
		p.block(st, RuleForcePersistence)
	}
	if aux.Tau >= p.cfg.TauMin && abs(aux.DirCount) >= p.cfg.DirThreshold {
		p.block(st, RuleStructuralHold)
	}
	st.CanExit = len(st.BlockingRules) == 0
	p.stats.RuleApplications[RuleUnifiedExit]++
	st.HoldReason = holdReason(st.BlockingRules)

	duration := s.BarsElapsed
	capsApply := st.CanExit || p.cfg.CapsOverrideHold
	if capsApply && duration >= p.cfg.MaxSessionBars {
		return true, domain.ExitMaxBars
	}
	if capsApply && s.MAE > p.cfg.MAELimit {
		return true, domain.ExitMAEExcess
	}

	if st.CanExit {
		switch {
		case seenBefore && prevTau-aux.Tau >= p.cfg.TauCollapseDrop && aux.Force < p.cfg.ForceMin:
			return true, domain.ExitTauCollapse
		case aux.Force < p.cfg.ForceMin/2 && duration > 3:
			return true, domain.ExitForceDecay
		case aux.Tau < p.cfg.TauMin && aux.Force < p.cfg.ForceMin/2:
			return true, domain.ExitConditionsExhausted
		}
	}

	st.HoldState = p.classifyHold(st, s, aux, prevTau)
	p.stats.HoldStates[st.HoldState]++
	p.logger.Debug(ctx, "Session held", map[string]interface{}{
		"tradeID":    s.TradeID,
		"bar":        s.BarsElapsed,
		"holdReason": st.HoldReason,
		"holdState":  st.HoldState,
		"blocking":   strings.Join(st.BlockingRules, ","),
		"forceSum":   st.ForceAccumulated,
	})
	return false, ""
}

func (p *AccumulatorPolicy) block(st *HoldInfo, rule string) {
	st.BlockingRules = append(st.BlockingRules, rule)
	p.stats.RuleBlocks[rule]++
}

func (p *AccumulatorPolicy) classifyHold(st *HoldInfo, s *domain.TradeSession, aux *domain.AuxSignals, prevTau int) domain.HoldState {
	deltaTau := aux.Tau - prevTau
	gateReached := st.ForceAccumulated >= p.cfg.ForceAccumulationGate
	if gateReached {
		p.stats.RuleApplications[RuleForceAccumulation]++
	}
	if (aux.Force >= 2*p.cfg.ForceMin && deltaTau >= 0) || gateReached {
		return domain.HoldExtend
	}
	if aux.Tau >= p.cfg.HoldSmallTauMin && abs(deltaTau) <= 1 && aux.Force >= p.cfg.ForceMin && s.MFE > p.cfg.HoldSmallMFEMin {
		return domain.HoldSmall
	}
	return domain.HoldDefault
}

func holdReason(blocking []string) string {
	has := func(rule string) bool {
		for _, r := range blocking {
			if r == rule {
				return true
			}
		}
		return false
	}
	switch {
	case len(blocking) == 0:
		return ""
	case has(RuleObservationWindow):
		return "OBSERVATION_WINDOW"
	case has(RuleStructuralHold):
		return "STRUCTURAL_HOLD"
	default:
		return "FORCE_PERSISTENCE"
	}
}

// Hold returns a copy of the per-trade state, if the trade has been evaluated and not released.
func (p *AccumulatorPolicy) Hold(tradeID string) (HoldInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[tradeID]
	if !ok {
		return HoldInfo{}, false
	}
	c := *st
	c.BlockingRules = append([]string(nil), st.BlockingRules...)
	return c, true
}

// Release drops the per-trade state once the session is closed.
func (p *AccumulatorPolicy) Release(tradeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, tradeID)
}

// Statistics returns a snapshot of the rule counters.
func (p *AccumulatorPolicy) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := Statistics{
		RuleApplications: make(map[string]int, len(p.stats.RuleApplications)),
		RuleBlocks:       make(map[string]int, len(p.stats.RuleBlocks)),
		HoldStates:       make(map[domain.HoldState]int, len(p.stats.HoldStates)),
	}
	for k, v := range p.stats.RuleApplications {
		out.RuleApplications[k] = v
	}
	for k, v := range p.stats.RuleBlocks {
		out.RuleBlocks[k] = v
	}
	for k, v := range p.stats.HoldStates {
		out.HoldStates[k] = v
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
