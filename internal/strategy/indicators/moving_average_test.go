package indicators

import (
	"context"
	"testing"
	"time"

	"energyEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes(values ...float64) []domain.Bar {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(values))
	for i, v := range values {
		bars[i] = domain.Bar{Time: start.Add(time.Duration(i) * time.Hour), Open: v, High: v, Low: v, Close: v}
	}
	return bars
}

func TestMovingAverage_Calculate(t *testing.T) {
	bars := closes(100, 102, 101, 103, 104)

	tests := []struct {
		name          string
		config        MovingAverageConfig
		expectedValue float64
		expectError   bool
	}{
		{
			name: "SMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            SimpleMovingAverage,
			},
			expectedValue: 102.666667, // (101 + 103 + 104) / 3
		},
		{
			name: "EMA seeded with SMA",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            ExponentialMovingAverage,
			},
			expectedValue: 103.0, // seed 101, then 102, then 103
		},
		{
			name: "Insufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 6},
				Type:            SimpleMovingAverage,
			},
			expectError: true,
		},
		{
			name: "Invalid MA type",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            "INVALID",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(tt.config)
			value, err := ma.Calculate(context.Background(), bars)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedValue, value, 0.0001)
		})
	}
}

func TestMovingAverage_InsufficientDataIsSentinel(t *testing.T) {
	ma := NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 10}, Type: SimpleMovingAverage})
	_, err := ma.Calculate(context.Background(), closes(1, 2, 3))
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, 10, ma.RequiredDataPoints())
}

func TestMovingAverage_Name(t *testing.T) {
	sma := NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 20}, Type: SimpleMovingAverage})
	ema := NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 9}, Type: ExponentialMovingAverage})
	assert.Equal(t, "SMA(20)", sma.Name())
	assert.Equal(t, "EMA(9)", ema.Name())
}
