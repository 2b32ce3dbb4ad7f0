package optimization

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"energyEngine/internal/domain"
	"energyEngine/internal/engine"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/analytics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// firstBarDetector goes long on the first bar of a run only.
type firstBarDetector struct{}

func (firstBarDetector) Name() string         { return "first_bar" }
func (firstBarDetector) RequiredHistory() int { return 0 }
func (firstBarDetector) DetectEntry(ctx context.Context, bar domain.Bar, history []domain.Bar) *domain.Direction {
	if len(history) > 0 {
		return nil
	}
	d := domain.Long
	return &d
}

func newDetector() (ports.EntryDetector, error) { return firstBarDetector{}, nil }

func sweepBars() []domain.Bar {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	bar := func(i int, high, low, close float64) domain.Bar {
		return domain.Bar{Time: start.Add(time.Duration(i) * time.Minute), Open: close, High: high, Low: low, Close: close, IsFinal: true}
	}
	return []domain.Bar{
		bar(0, 1001, 999, 1000),
		bar(1, 1010, 999, 1009),  // MFE 10 activates every threshold and retraces through every trailing stop
		bar(2, 1010, 1000, 1002), // no session left
	}
}

func TestOptimizer_Optimize(t *testing.T) {
	opt, err := NewOptimizer(OptimizerConfig{
		Base: engine.DefaultConfig(),
		ParameterRanges: []ParameterRange{
			{Name: ParamMFEActivationThreshold, Min: 5, Max: 9, Step: 2},
			{Name: ParamTrailOffset, Min: 1.5, Max: 8, Step: 6.5},
		},
		Symbol:      "ETHUSDT",
		Concurrency: 2,
	}, Components{Detector: newDetector}, &mockLogger{})
	require.NoError(t, err)

	report, err := opt.Optimize(context.Background(), sweepBars())
	require.NoError(t, err)

	// A trail offset of 8 is only valid against the threshold of 9.
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 4, report.Evaluated)
	require.Len(t, report.Results, 4)

	best := report.Results[0]
	assert.Equal(t, map[string]float64{ParamMFEActivationThreshold: 5, ParamTrailOffset: 1.5}, best.Parameters)
	assert.Equal(t, 5.0, best.Config.MFEActivationThreshold)
	assert.Equal(t, 1, best.Summary.Trades)
	assert.InDelta(t, 8.5, best.Summary.TotalPnL, 1e-9)
	assert.InDelta(t, 8.5, best.Score, 1e-9)
	assert.Equal(t, 1, best.Metrics.ByCause[domain.ExitTrailWin].Count)

	worst := report.Results[3]
	assert.Equal(t, map[string]float64{ParamMFEActivationThreshold: 9, ParamTrailOffset: 8}, worst.Parameters)
	assert.InDelta(t, 2.0, worst.Summary.TotalPnL, 1e-9)

	for i := 1; i < len(report.Results); i++ {
		assert.GreaterOrEqual(t, report.Results[i-1].Score, report.Results[i].Score)
	}
}

func TestOptimizer_GenerateParameterCombinations(t *testing.T) {
	tests := []struct {
		name   string
		ranges []ParameterRange
		want   []map[string]float64
	}{
		{
			name:   "float steps do not drift",
			ranges: []ParameterRange{{Name: ParamTrailOffset, Min: 1.0, Max: 1.3, Step: 0.1}},
			want: []map[string]float64{
				{ParamTrailOffset: 1.0},
				{ParamTrailOffset: 1.0 + 0.1},
				{ParamTrailOffset: 1.0 + 2*0.1},
				{ParamTrailOffset: 1.0 + 3*0.1},
			},
		},
		{
			name:   "zero step sweeps min only",
			ranges: []ParameterRange{{Name: ParamMinPnLFloor, Min: 1, Max: 5}},
			want:   []map[string]float64{{ParamMinPnLFloor: 1}},
		},
		{
			name:   "integer parameters are rounded",
			ranges: []ParameterRange{{Name: ParamDefenseTriggerBars, Min: 2, Max: 3, Step: 0.5, IsInt: true}},
			want: []map[string]float64{
				{ParamDefenseTriggerBars: 2},
				{ParamDefenseTriggerBars: 3},
				{ParamDefenseTriggerBars: 3},
			},
		},
		{
			name: "cartesian product",
			ranges: []ParameterRange{
				{Name: ParamDefaultStopDistance, Min: 20, Max: 30, Step: 10},
				{Name: ParamDefenseStopDistance, Min: 8, Max: 12, Step: 4},
			},
			want: []map[string]float64{
				{ParamDefaultStopDistance: 20, ParamDefenseStopDistance: 8},
				{ParamDefaultStopDistance: 20, ParamDefenseStopDistance: 12},
				{ParamDefaultStopDistance: 30, ParamDefenseStopDistance: 8},
				{ParamDefaultStopDistance: 30, ParamDefenseStopDistance: 12},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := NewOptimizer(OptimizerConfig{Base: engine.DefaultConfig(), ParameterRanges: tt.ranges},
				Components{Detector: newDetector}, &mockLogger{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, opt.generateParameterCombinations())
		})
	}
}

func TestNewOptimizer_Errors(t *testing.T) {
	tests := []struct {
		name       string
		ranges     []ParameterRange
		components Components
		wantErr    error
	}{
		{
			name:       "unknown parameter",
			ranges:     []ParameterRange{{Name: "take_profit", Min: 1, Max: 2, Step: 1}},
			components: Components{Detector: newDetector},
			wantErr:    ports.ErrInvalidConfiguration,
		},
		{
			name:       "inverted range",
			ranges:     []ParameterRange{{Name: ParamTrailOffset, Min: 3, Max: 2, Step: 1}},
			components: Components{Detector: newDetector},
			wantErr:    ports.ErrInvalidConfiguration,
		},
		{
			name: "missing detector factory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOptimizer(OptimizerConfig{Base: engine.DefaultConfig(), ParameterRanges: tt.ranges}, tt.components, &mockLogger{})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOptimizer_FactoryErrorAbortsSweep(t *testing.T) {
	boom := errors.New("detector unavailable")
	opt, err := NewOptimizer(OptimizerConfig{
		Base:            engine.DefaultConfig(),
		ParameterRanges: []ParameterRange{{Name: ParamMinPnLFloor, Min: 0, Max: 2, Step: 1}},
	}, Components{Detector: func() (ports.EntryDetector, error) { return nil, boom }}, &mockLogger{})
	require.NoError(t, err)

	report, err := opt.Optimize(context.Background(), sweepBars())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, report)
}

func TestDefaultScoreFunction(t *testing.T) {
	assert.True(t, math.IsInf(DefaultScoreFunction(&analytics.PerformanceMetrics{}), -1))
	assert.True(t, math.IsInf(DefaultScoreFunction(nil), -1))
	assert.Equal(t, 5.0, DefaultScoreFunction(&analytics.PerformanceMetrics{TotalTrades: 3, TotalProfit: 20, MaxDrawdownPoints: 3}))
}
