package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTradeSession(t *testing.T) {
	entryTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		direction Direction
		entry     float64
		distance  float64
		wantStop  float64
		wantErr   error
	}{
		{name: "long stop below entry", direction: Long, entry: 1000, distance: 30, wantStop: 970},
		{name: "short stop above entry", direction: Short, entry: 2000, distance: 30, wantStop: 2030},
		{name: "zero distance", direction: Long, entry: 1000, distance: 0, wantErr: ErrInvalidStopDistance},
		{name: "negative distance", direction: Short, entry: 1000, distance: -5, wantErr: ErrInvalidStopDistance},
		{name: "NaN distance", direction: Long, entry: 1000, distance: math.NaN(), wantErr: ErrInvalidStopDistance},
		{name: "unknown direction", direction: Direction("SIDEWAYS"), entry: 1000, distance: 30, wantErr: ErrInvalidDirection},
		{name: "infinite entry", direction: Long, entry: math.Inf(1), distance: 30, wantErr: ErrInvalidBar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewTradeSession("T0", tt.direction, tt.entry, entryTime, tt.distance)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateActive, s.State)
			assert.Equal(t, 0.0, s.MFE)
			assert.Equal(t, 0, s.BarsElapsed)
			assert.Equal(t, tt.wantStop, s.StopLevel)
			assert.Equal(t, tt.distance, s.StopDistance())
			assert.False(t, s.TrailingActive)
		})
	}
}

func TestTradeSession_Excursions(t *testing.T) {
	long, err := NewTradeSession("L", Long, 1000, time.Time{}, 30)
	require.NoError(t, err)
	short, err := NewTradeSession("S", Short, 1000, time.Time{}, 30)
	require.NoError(t, err)

	fav, err := long.FavorableExcursion(1008, 995)
	require.NoError(t, err)
	assert.Equal(t, 8.0, fav)
	adv, err := long.AdverseExcursion(1008, 995)
	require.NoError(t, err)
	assert.Equal(t, 5.0, adv)

	fav, err = short.FavorableExcursion(1008, 995)
	require.NoError(t, err)
	assert.Equal(t, 5.0, fav)
	adv, err = short.AdverseExcursion(1008, 995)
	require.NoError(t, err)
	assert.Equal(t, 8.0, adv)

	assert.Equal(t, 7.0, long.DirectionalPnL(1007))
	assert.Equal(t, -7.0, short.DirectionalPnL(1007))
}

func TestTradeSession_ClosedRejectsExcursion(t *testing.T) {
	s, err := NewTradeSession("T1", Long, 1000, time.Time{}, 30)
	require.NoError(t, err)
	s.State = StateClosed

	_, err = s.FavorableExcursion(1010, 990)
	assert.ErrorIs(t, err, ErrClosedSession)
	_, err = s.AdverseExcursion(1010, 990)
	assert.ErrorIs(t, err, ErrClosedSession)
}

func TestTradeSession_AdverseCrossedIsInclusive(t *testing.T) {
	long, _ := NewTradeSession("L", Long, 1000, time.Time{}, 30)
	short, _ := NewTradeSession("S", Short, 1000, time.Time{}, 30)

	assert.True(t, long.AdverseCrossed(Bar{High: 1010, Low: 970}, 970))
	assert.False(t, long.AdverseCrossed(Bar{High: 1010, Low: 970.01}, 970))
	assert.True(t, short.AdverseCrossed(Bar{High: 1030, Low: 990}, 1030))
	assert.False(t, short.AdverseCrossed(Bar{High: 1029.99, Low: 990}, 1030))
}

func TestTradeSession_JSONRoundTrip(t *testing.T) {
	entryTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewTradeSession("T7", Short, 2000.25, entryTime, 30)
	require.NoError(t, err)
	s.MFE = 8.125
	s.MAE = 3.5
	s.BarsElapsed = 6
	s.TrailingActive = true
	s.TrailingStop = 1993.625
	s.ActivatedAtBar = 5
	s.State = StateClosed
	s.Exit = &ExitRecord{
		TradeID:     "T7",
		Cause:       ExitTrailWin,
		ExitPrice:   1993.625,
		RealizedPnL: 6.625,
		ExitTime:    entryTime.Add(6 * time.Minute),
		BarsElapsed: 6,
	}

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded TradeSession
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, s, &decoded)
}

func TestBar_Validate(t *testing.T) {
	assert.NoError(t, Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5}.Validate())
	assert.NoError(t, Bar{Open: 1, High: 0.5, Low: 2, Close: 1.5}.Validate(), "inverted range is still numeric")
	assert.ErrorIs(t, Bar{Open: 1, High: math.NaN(), Low: 0.5, Close: 1}.Validate(), ErrInvalidBar)
	assert.ErrorIs(t, Bar{Open: 1, High: 2, Low: 0.5, Close: math.Inf(-1)}.Validate(), ErrInvalidBar)
}

func TestExitCause_Valid(t *testing.T) {
	for _, c := range AllExitCauses {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, ExitCause("TP").Valid())
	assert.True(t, ExitEndOfData.External())
	assert.False(t, ExitLoss.External())
}
