package strategies

import (
	"context"
	"testing"

	"energyEngine/internal/policy"
	"energyEngine/internal/ports"
	"energyEngine/internal/signals"
	"energyEngine/internal/strategy/entry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func defaultOptions() Options {
	return Options{
		Detector:    entry.STBDetectorName,
		Policy:      policy.ThresholdPolicyName,
		STB:         entry.DefaultSTBConfig(),
		Trend:       entry.DefaultTrendConfig(),
		Crossover:   entry.DefaultCrossoverConfig(),
		Accumulator: policy.DefaultAccumulatorConfig(),
		Signals:     signals.DefaultConfig(),
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		modify       func(*Options)
		wantDetector string
		wantPolicy   string
		wantSignals  bool
		wantErr      error
	}{
		{
			name:         "stb with threshold policy",
			wantDetector: entry.STBDetectorName,
			wantPolicy:   policy.ThresholdPolicyName,
		},
		{
			name:         "trend with accumulator gets an encoder",
			modify:       func(o *Options) { o.Detector = entry.TrendDetectorName; o.Policy = policy.AccumulatorPolicyName },
			wantDetector: entry.TrendDetectorName,
			wantPolicy:   policy.AccumulatorPolicyName,
			wantSignals:  true,
		},
		{
			name:         "crossover with threshold policy",
			modify:       func(o *Options) { o.Detector = entry.CrossoverDetectorName },
			wantDetector: entry.CrossoverDetectorName,
			wantPolicy:   policy.ThresholdPolicyName,
		},
		{
			name:    "invalid crossover config",
			modify:  func(o *Options) { o.Detector = entry.CrossoverDetectorName; o.Crossover.FastMAPeriod = 30 },
			wantErr: ports.ErrInvalidConfiguration,
		},
		{
			name:    "unknown detector",
			modify:  func(o *Options) { o.Detector = "breakout" },
			wantErr: ports.ErrInvalidConfiguration,
		},
		{
			name:    "unknown policy",
			modify:  func(o *Options) { o.Policy = "take_profit" },
			wantErr: ports.ErrInvalidConfiguration,
		},
		{
			name:    "invalid accumulator config",
			modify:  func(o *Options) { o.Policy = policy.AccumulatorPolicyName; o.Accumulator.MaxSessionBars = 0 },
			wantErr: ports.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			if tt.modify != nil {
				tt.modify(&opts)
			}
			set, err := New(opts, &mockLogger{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, set)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDetector, set.Detector.Name())
			assert.Equal(t, tt.wantPolicy, set.Policy.Name())
			assert.Equal(t, tt.wantSignals, set.Signals != nil)
		})
	}
}

func TestNew_FreshInstancesPerCall(t *testing.T) {
	opts := defaultOptions()
	opts.Policy = policy.AccumulatorPolicyName

	a, err := New(opts, &mockLogger{})
	require.NoError(t, err)
	b, err := New(opts, &mockLogger{})
	require.NoError(t, err)

	assert.NotSame(t, a.Policy, b.Policy)
	assert.NotSame(t, a.Signals, b.Signals)
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(defaultOptions(), nil)
	assert.Error(t, err)
}

func TestRegisteredNames(t *testing.T) {
	assert.Equal(t, []string{entry.CrossoverDetectorName, entry.STBDetectorName, entry.TrendDetectorName}, Detectors())
	assert.Equal(t, []string{policy.AccumulatorPolicyName, policy.ThresholdPolicyName}, Policies())
}
