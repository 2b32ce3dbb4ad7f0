package signals

import (
	"context"
	"testing"

	"energyEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// risingBars closes every bar at its high, one point above the previous one.
func risingBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		base := 100 + float64(i)
		bars[i] = domain.Bar{Open: base, High: base + 1, Low: base - 1, Close: base + 1}
	}
	return bars
}

func TestEncoder_WarmUp(t *testing.T) {
	e := NewEncoder(DefaultConfig())

	first := e.Next(context.Background(), risingBars(1)[0])
	assert.Equal(t, 0.5, first.ChannelPosition, "single bar has no channel")
	assert.Equal(t, 0, first.Tau)
	assert.Equal(t, 0, first.DirCount)
	assert.Equal(t, 0.0, first.Force)
}

func TestEncoder_DwellAndDirection(t *testing.T) {
	e := NewEncoder(DefaultConfig())
	var last domain.AuxSignals
	for i, b := range risingBars(6) {
		last = e.Next(context.Background(), b)
		if i > 0 {
			assert.Equal(t, 1.0, last.ChannelPosition, "bar %d closes at the channel high", i)
			assert.Equal(t, i, last.Tau)
		}
		if i < 4 {
			assert.Equal(t, 0, last.DirCount, "direction window not full at bar %d", i)
		}
	}
	assert.Equal(t, 5, last.Tau)
	assert.Equal(t, 5, last.DirCount)

	// A close back at the bottom of the channel breaks the top dwell.
	last = e.Next(context.Background(), domain.Bar{Open: 106, High: 106, Low: 99, Close: 99})
	assert.Equal(t, 0.0, last.ChannelPosition)
	assert.Equal(t, 1, last.Tau, "bottom dwell starts")
	assert.Equal(t, 3, last.DirCount)
}

func TestEncoder_Force(t *testing.T) {
	e := NewEncoder(DefaultConfig())
	bars := risingBars(25)
	var sig domain.AuxSignals
	for _, b := range bars {
		sig = e.Next(context.Background(), b)
	}
	assert.InDelta(t, 0.0, sig.Force, 1e-9, "steady true range is exactly average")

	prevClose := bars[len(bars)-1].Close
	sig = e.Next(context.Background(), domain.Bar{Open: prevClose, High: prevClose + 6, Low: prevClose - 2, Close: prevClose + 5})
	// TR 8 against a mean of (19*2 + 8) / 20 = 2.3
	assert.InDelta(t, (8/2.3-1)*100, sig.Force, 1e-9)
}

func TestEncoder_FlatChannelAndReset(t *testing.T) {
	e := NewEncoder(Config{})
	for i := 0; i < 3; i++ {
		sig := e.Next(context.Background(), domain.Bar{Open: 50, High: 50, Low: 50, Close: 50})
		assert.Equal(t, 0.5, sig.ChannelPosition)
		assert.Equal(t, 0, sig.Tau)
	}

	e.Reset()
	require.Empty(t, e.history)
	sig := e.Next(context.Background(), domain.Bar{Open: 1, High: 2, Low: 0, Close: 2})
	assert.Equal(t, 0.5, sig.ChannelPosition)
}

func TestEncoder_HistoryIsBounded(t *testing.T) {
	e := NewEncoder(DefaultConfig())
	for _, b := range risingBars(250) {
		e.Next(context.Background(), b)
	}
	assert.Len(t, e.history, 100)
	assert.Equal(t, risingBars(250)[249], e.history[99])
}
