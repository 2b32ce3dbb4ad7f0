package analytics

import (
	"testing"
	"time"

	"energyEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 1, 30, 12, 0, 0, 0, time.UTC)

func trade(id string, pnl float64, cause domain.ExitCause, exitOffset time.Duration, bars int) *domain.Trade {
	return &domain.Trade{
		TradeID:   id,
		Symbol:    "ETHUSDT",
		Direction: domain.Long,
		PNL:       pnl,
		ExitCause: cause,
		EntryTime: base.Add(exitOffset - time.Duration(bars)*time.Minute),
		ExitTime:  base.Add(exitOffset),
		BarsHeld:  bars,
		MFE:       pnl + 1.5,
	}
}

func TestAnalyzePerformance(t *testing.T) {
	trades := []*domain.Trade{
		trade("T3", 6.5, domain.ExitTrailWin, 3*24*time.Hour, 6), // February
		trade("T1", 8.5, domain.ExitTrailWin, 0, 4),
		trade("T2", -12, domain.ExitLoss, time.Hour, 8),
		trade("T4", -30, domain.ExitLoss, 4*24*time.Hour, 2),
	}

	m := AnalyzePerformance(trades, 1000)

	assert.Equal(t, "T3", trades[0].TradeID, "input order is preserved")
	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.Equal(t, 0.5, m.WinRate)
	assert.Equal(t, -27.0, m.TotalProfit)
	assert.Equal(t, 15.0, m.GrossProfit)
	assert.Equal(t, -42.0, m.GrossLoss)
	assert.Equal(t, 973.0, m.FinalBalance)
	assert.Equal(t, 7.5, m.AverageWin)
	assert.Equal(t, -21.0, m.AverageLoss)
	assert.Equal(t, -6.75, m.Expectancy)
	assert.InDelta(t, 15.0/42.0, m.ProfitFactor, 1e-12)
	assert.Equal(t, 5.0, m.AverageBarsHeld)
	assert.Equal(t, 5*time.Minute, m.AverageTradeDuration)
	assert.Equal(t, 1, m.MaxConsecutiveWins)
	assert.Equal(t, 1, m.MaxConsecutiveLosses)

	// Equity: 1008.5, 996.5, 1003, 973 against a peak of 1008.5.
	require.Len(t, m.EquityCurve, 4)
	assert.Equal(t, 973.0, m.EquityCurve[3].Value)
	assert.Equal(t, 35.5, m.MaxDrawdownPoints)
	assert.InDelta(t, 35.5/1008.5, m.MaxDrawdown, 1e-12)
	require.Len(t, m.Drawdowns, 1)
	assert.Equal(t, 1008.5, m.Drawdowns[0].StartValue)

	assert.Equal(t, map[string]float64{"2025-01": -3.5, "2025-02": -23.5}, m.MonthlyReturns)
	months := m.GetMonthlyReturns()
	require.Len(t, months, 2)
	assert.Equal(t, -3.5, months[0].Return)

	assert.Equal(t, []domain.ExitCause{domain.ExitTrailWin, domain.ExitLoss}, m.Causes())
	assert.Equal(t, CauseStats{Count: 2, TotalPnL: -42, AvgPnL: -21, AvgBars: 5, AvgMFE: -19.5}, m.ByCause[domain.ExitLoss])
	assert.Equal(t, 2, m.ByCause[domain.ExitTrailWin].Count)
	assert.Less(t, m.SharpeRatio, 0.0)
}

func TestAnalyzePerformance_Empty(t *testing.T) {
	m := AnalyzePerformance(nil, 500)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 500.0, m.FinalBalance)
	assert.Empty(t, m.ByCause)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestCompare(t *testing.T) {
	withDefense := []*domain.Trade{
		trade("T1", 6.5, domain.ExitTrailWin, 0, 3),
		trade("T2", -12, domain.ExitLoss, time.Hour, 5),
	}
	withoutDefense := []*domain.Trade{
		trade("T1", 6.5, domain.ExitTrailWin, 0, 3),
		trade("T2", -30, domain.ExitLoss, time.Hour, 9),
	}

	c := Compare(withoutDefense, withDefense)
	assert.Equal(t, StatusOK, c.Status)
	assert.Equal(t, 0.0, c.WinRateDiff)
	assert.Equal(t, 18.0, c.AvgLossDiff)
	assert.Equal(t, 9.0, c.EVDiff)
	assert.Equal(t, 18.0, c.TotalPnLDiff)

	empty := Compare(withoutDefense, nil)
	assert.Equal(t, StatusNoTrades, empty.Status)
	assert.Equal(t, 0.0, empty.TotalPnLDiff)
	assert.Equal(t, 2, empty.Base.TotalTrades)
}
