package indicators

import (
	"context"
	"math"
	"testing"

	"energyEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel(t *testing.T) {
	bars := []domain.Bar{
		{High: 110, Low: 100},
		{High: 130, Low: 105},
		{High: 120, Low: 95},
	}
	ch, err := NewChannel(bars)
	require.NoError(t, err)
	assert.Equal(t, Channel{High: 130, Low: 95}, ch)
	assert.Equal(t, 35.0, ch.Range())

	pct, ok := ch.Percent(123)
	require.True(t, ok)
	assert.InDelta(t, 80.0, pct, 1e-9)

	_, ok = Channel{High: 100, Low: 100}.Percent(100)
	assert.False(t, ok)

	_, err = NewChannel(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBuyerSellerRatio(t *testing.T) {
	tests := []struct {
		name string
		bar  domain.Bar
		want float64
	}{
		{name: "close near high", bar: domain.Bar{High: 110, Low: 100, Close: 108}, want: 4},
		{name: "close near low", bar: domain.Bar{High: 110, Low: 100, Close: 102}, want: 0.25},
		{name: "close at high uses floor", bar: domain.Bar{High: 110, Low: 100, Close: 110}, want: 1000},
		{name: "doji", bar: domain.Bar{High: 100, Low: 100, Close: 100}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BuyerSellerRatio(tt.bar, 0.01), 1e-9)
		})
	}
}

func TestBodyZScore(t *testing.T) {
	history := []domain.Bar{
		{Open: 100, Close: 102}, // 2
		{Open: 100, Close: 96},  // 4
		{Open: 100, Close: 104}, // 4
		{Open: 100, Close: 98},  // 2
	}
	// mean 3, population std 1
	z, err := BodyZScore(domain.Bar{Open: 100, Close: 105}, history)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, z, 1e-9)

	_, err = BodyZScore(domain.Bar{Open: 1, Close: 2}, []domain.Bar{{Open: 1, Close: 2}, {Open: 5, Close: 6}})
	assert.ErrorIs(t, err, ErrZeroVariance)

	_, err = BodyZScore(domain.Bar{}, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestATR_Calculate(t *testing.T) {
	bars := []domain.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},  // TR 2
		{High: 14, Low: 10, Close: 13}, // TR 4
		{High: 13, Low: 12, Close: 12}, // TR 1
		{High: 12, Low: 6, Close: 7},   // TR 6
	}

	simple := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 2}, Smoothing: SimpleMean})
	v, err := simple.Calculate(context.Background(), bars)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, v, 1e-9)

	// Wilder: seed mean(2, 2) = 2, then (2+4)/2 = 3, (3+1)/2 = 2, (2+6)/2 = 4
	wilder := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 2}})
	v, err = wilder.Calculate(context.Background(), bars)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	_, err = wilder.Calculate(context.Background(), bars[:2])
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, 3, wilder.RequiredDataPoints())
}

func TestTrueRange(t *testing.T) {
	assert.Equal(t, 5.0, TrueRange(domain.Bar{High: 15, Low: 12}, 10))
	assert.Equal(t, 6.0, TrueRange(domain.Bar{High: 8, Low: 4}, 10))
	assert.Equal(t, 3.0, TrueRange(domain.Bar{High: 13, Low: 10}, 11))
	assert.False(t, math.IsNaN(TrueRange(domain.Bar{}, 0)))
}
