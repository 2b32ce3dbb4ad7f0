package policy

import (
	"context"
	"testing"
	"time"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	debugMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func session(t *testing.T, dir domain.Direction) *domain.TradeSession {
	t.Helper()
	s, err := domain.NewTradeSession("T1", dir, 1000, time.Time{}, 30)
	require.NoError(t, err)
	return s
}

func TestThresholdEnergyPolicy_Evaluate(t *testing.T) {
	tests := []struct {
		name                string
		exitOnActivationBar bool
		prepare             func(s *domain.TradeSession)
		bar                 domain.Bar
		wantExit            bool
		wantCause           domain.ExitCause
	}{
		{
			name:    "no level reached",
			prepare: func(s *domain.TradeSession) { s.BarsElapsed = 1 },
			bar:     domain.Bar{High: 1005, Low: 995, Close: 1000},
		},
		{
			name:      "hard stop touched exactly",
			prepare:   func(s *domain.TradeSession) { s.BarsElapsed = 1 },
			bar:       domain.Bar{High: 1000, Low: 970, Close: 975},
			wantExit:  true,
			wantCause: domain.ExitLoss,
		},
		{
			name: "trailing stop hit after activation bar",
			prepare: func(s *domain.TradeSession) {
				s.BarsElapsed, s.ActivatedAtBar = 2, 1
				s.TrailingActive, s.TrailingStop = true, 1006.5
			},
			bar:       domain.Bar{High: 1006, Low: 1004, Close: 1005},
			wantExit:  true,
			wantCause: domain.ExitTrailWin,
		},
		{
			name: "trailing stop ignored on activation bar",
			prepare: func(s *domain.TradeSession) {
				s.BarsElapsed, s.ActivatedAtBar = 1, 1
				s.TrailingActive, s.TrailingStop = true, 1006.5
			},
			bar: domain.Bar{High: 1008, Low: 999, Close: 1007},
		},
		{
			name:                "trailing stop honored on activation bar when enabled",
			exitOnActivationBar: true,
			prepare: func(s *domain.TradeSession) {
				s.BarsElapsed, s.ActivatedAtBar = 1, 1
				s.TrailingActive, s.TrailingStop = true, 1006.5
			},
			bar:       domain.Bar{High: 1008, Low: 999, Close: 1007},
			wantExit:  true,
			wantCause: domain.ExitTrailWin,
		},
		{
			name: "hard stop still applies on activation bar",
			prepare: func(s *domain.TradeSession) {
				s.BarsElapsed, s.ActivatedAtBar = 1, 1
				s.TrailingActive, s.TrailingStop = true, 1006.5
			},
			bar:       domain.Bar{High: 1008, Low: 960, Close: 965},
			wantExit:  true,
			wantCause: domain.ExitLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewThresholdEnergyPolicy(tt.exitOnActivationBar)
			s := session(t, domain.Long)
			tt.prepare(s)
			before := *s

			exit, cause := p.Evaluate(context.Background(), s, tt.bar, nil)
			assert.Equal(t, tt.wantExit, exit)
			assert.Equal(t, tt.wantCause, cause)
			assert.Equal(t, before, *s, "policy must not mutate the session")
		})
	}
}

func newAccumulator(t *testing.T, mutate func(*AccumulatorConfig)) (*AccumulatorPolicy, *mockLogger) {
	t.Helper()
	cfg := DefaultAccumulatorConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger := &mockLogger{}
	p, err := NewAccumulatorPolicy(cfg, logger)
	require.NoError(t, err)
	return p, logger
}

func step(p *AccumulatorPolicy, s *domain.TradeSession, aux domain.AuxSignals) (bool, domain.ExitCause) {
	s.BarsElapsed++
	return p.Evaluate(context.Background(), s, domain.Bar{}, &aux)
}

func TestAccumulatorPolicy_ObservationWindowHolds(t *testing.T) {
	p, logger := newAccumulator(t, nil)
	s := session(t, domain.Long)

	for i := 1; i < 3; i++ {
		exit, _ := step(p, s, domain.AuxSignals{})
		assert.False(t, exit, "bar %d is inside the observation window", i)
		hold, ok := p.Hold("T1")
		require.True(t, ok)
		assert.Equal(t, "OBSERVATION_WINDOW", hold.HoldReason)
		assert.False(t, hold.CanExit)
	}
	assert.Len(t, logger.debugMsgs, 2)

	// Bar 3: window over, weak force and no structure.
	exit, cause := step(p, s, domain.AuxSignals{Tau: 0, Force: 2})
	assert.True(t, exit)
	assert.Equal(t, domain.ExitConditionsExhausted, cause)
}

func TestAccumulatorPolicy_ExitCauses(t *testing.T) {
	tests := []struct {
		name      string
		history   []domain.AuxSignals
		last      domain.AuxSignals
		mae       float64
		wantExit  bool
		wantCause domain.ExitCause
		wantHold  string
	}{
		{
			name:     "force persistence holds",
			history:  []domain.AuxSignals{{Force: 15}, {Force: 15}, {Force: 15}},
			last:     domain.AuxSignals{Force: 12},
			wantHold: "FORCE_PERSISTENCE",
		},
		{
			name:     "structural hold outranks force",
			history:  []domain.AuxSignals{{Tau: 5, DirCount: 3}, {Tau: 6, DirCount: 4}, {Tau: 6, DirCount: 5}},
			last:     domain.AuxSignals{Tau: 7, DirCount: -5, Force: 20},
			wantHold: "STRUCTURAL_HOLD",
		},
		{
			name:      "tau collapse",
			history:   []domain.AuxSignals{{Tau: 6, Force: 12}, {Tau: 7, Force: 12}, {Tau: 8, Force: 12}},
			last:      domain.AuxSignals{Tau: 5, Force: 8},
			wantExit:  true,
			wantCause: domain.ExitTauCollapse,
		},
		{
			name:      "force decay",
			history:   []domain.AuxSignals{{Tau: 6, Force: 12}, {Tau: 6, Force: 12}, {Tau: 6, Force: 12}},
			last:      domain.AuxSignals{Tau: 6, Force: 4},
			wantExit:  true,
			wantCause: domain.ExitForceDecay,
		},
		{
			name:     "moderate force without structure holds",
			history:  []domain.AuxSignals{{Tau: 6, Force: 12}, {Tau: 6, Force: 12}, {Tau: 6, Force: 12}},
			last:     domain.AuxSignals{Tau: 6, Force: 7},
			wantHold: "",
		},
		{
			name:      "mae cap overrides hold",
			history:   []domain.AuxSignals{{Force: 15}, {Force: 15}},
			last:      domain.AuxSignals{Force: 50},
			mae:       25.5,
			wantExit:  true,
			wantCause: domain.ExitMAEExcess,
		},
		{
			name:     "mae at limit is not excess",
			history:  []domain.AuxSignals{{Force: 15}, {Force: 15}},
			last:     domain.AuxSignals{Force: 50},
			mae:      25,
			wantHold: "FORCE_PERSISTENCE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newAccumulator(t, nil)
			s := session(t, domain.Long)
			for _, aux := range tt.history {
				exit, _ := step(p, s, aux)
				require.False(t, exit)
			}
			s.MAE = tt.mae

			exit, cause := step(p, s, tt.last)
			assert.Equal(t, tt.wantExit, exit)
			assert.Equal(t, tt.wantCause, cause)
			if !tt.wantExit {
				hold, ok := p.Hold("T1")
				require.True(t, ok)
				assert.Equal(t, tt.wantHold, hold.HoldReason)
			}
		})
	}
}

func TestAccumulatorPolicy_MaxBars(t *testing.T) {
	tests := []struct {
		name             string
		capsOverrideHold bool
		wantExitAt       int
	}{
		{name: "cap overrides force hold", capsOverrideHold: true, wantExitAt: 30},
		{name: "cap waits for hold to break", capsOverrideHold: false, wantExitAt: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newAccumulator(t, func(c *AccumulatorConfig) { c.CapsOverrideHold = tt.capsOverrideHold })
			s := session(t, domain.Long)
			exitAt := 0
			for i := 1; i <= 40; i++ {
				exit, cause := step(p, s, domain.AuxSignals{Force: 15})
				if exit {
					assert.Equal(t, domain.ExitMaxBars, cause)
					exitAt = i
					break
				}
			}
			assert.Equal(t, tt.wantExitAt, exitAt)
		})
	}
}

func TestAccumulatorPolicy_HoldStates(t *testing.T) {
	p, _ := newAccumulator(t, nil)
	s := session(t, domain.Long)

	step(p, s, domain.AuxSignals{Tau: 1, Force: 25})
	hold, _ := p.Hold("T1")
	assert.Equal(t, domain.HoldExtend, hold.HoldState, "force surge with rising tau")

	step(p, s, domain.AuxSignals{Tau: 0, Force: 12})
	hold, _ = p.Hold("T1")
	assert.Equal(t, domain.HoldDefault, hold.HoldState)

	s.MFE = 6
	step(p, s, domain.AuxSignals{Tau: 6, DirCount: 1, Force: 12})
	hold, _ = p.Hold("T1")
	assert.Equal(t, domain.HoldDefault, hold.HoldState, "tau jumped by more than one")

	step(p, s, domain.AuxSignals{Tau: 7, DirCount: 1, Force: 12})
	hold, _ = p.Hold("T1")
	assert.Equal(t, domain.HoldSmall, hold.HoldState)

	// Accumulated force 25+12+12+12+45 reaches the gate.
	step(p, s, domain.AuxSignals{Tau: 5, DirCount: 1, Force: 45})
	hold, _ = p.Hold("T1")
	assert.Equal(t, domain.HoldExtend, hold.HoldState)
	assert.Equal(t, 106.0, hold.ForceAccumulated)

	stats := p.Statistics()
	assert.Equal(t, 5, stats.RuleApplications[RuleUnifiedExit])
	assert.Equal(t, 1, stats.RuleApplications[RuleForceAccumulation])
	assert.Equal(t, 2, stats.RuleBlocks[RuleObservationWindow])
	assert.Equal(t, 5, stats.RuleBlocks[RuleForcePersistence])
	assert.Equal(t, 0, stats.RuleBlocks[RuleStructuralHold])
	assert.Equal(t, 2, stats.HoldStates[domain.HoldExtend])
	assert.Equal(t, 1, stats.HoldStates[domain.HoldSmall])
	assert.Equal(t, 2, stats.HoldStates[domain.HoldDefault])
}

func TestAccumulatorPolicy_ReleaseAndNilSignals(t *testing.T) {
	p, _ := newAccumulator(t, nil)
	s := session(t, domain.Long)

	exit, _ := p.Evaluate(context.Background(), s, domain.Bar{}, nil)
	assert.False(t, exit)
	_, ok := p.Hold("T1")
	assert.False(t, ok, "nil signals do not create state")

	step(p, s, domain.AuxSignals{Force: 15})
	_, ok = p.Hold("T1")
	require.True(t, ok)

	p.Release("T1")
	_, ok = p.Hold("T1")
	assert.False(t, ok)
	assert.True(t, p.RequiresSignals())
	assert.False(t, NewThresholdEnergyPolicy(false).RequiresSignals())
}

func TestAccumulatorConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultAccumulatorConfig().Validate())

	cfg := DefaultAccumulatorConfig()
	cfg.ForceMin = 0
	cfg.MaxSessionBars = -1
	err := cfg.Validate()
	assert.ErrorIs(t, err, ports.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "ForceMin")
	assert.Contains(t, err.Error(), "MaxSessionBars")
}
