package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"energyEngine/internal/domain"
)

// PerformanceMetrics holds the performance of a set of closed trades.
// PnL values are in price units per unit of size.
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalProfit        float64
	GrossProfit        float64
	GrossLoss          float64 // <= 0
	MaxDrawdown        float64 // Fraction of the peak balance
	MaxDrawdownPoints  float64 // Peak-to-trough in price units
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64 // <= 0
	SharpeRatio        float64 // Mean over sample std of per-trade PnL
	FinalBalance       float64
	ReturnOnInvestment float64

	// Advanced Metrics
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	AverageBarsHeld      float64
	RecoveryFactor       float64
	Expectancy           float64 // Mean PnL per trade
	RiskRewardRatio      float64
	MonthlyReturns       map[string]float64
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
	ByCause              map[domain.ExitCause]CauseStats
}

// CauseStats breaks results down by exit cause.
type CauseStats struct {
	Count    int
	TotalPnL float64
	AvgPnL   float64
	AvgBars  float64
	AvgMFE   float64
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
	Duration   time.Duration
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

type causeAcc struct {
	count          int
	pnl, bars, mfe decimal.Decimal
}

// AnalyzePerformance computes metrics over trades in exit order. The input slice is not modified.
func AnalyzePerformance(trades []*domain.Trade, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
		ByCause:        make(map[domain.ExitCause]CauseStats),
	}
	if len(trades) == 0 {
		return metrics
	}

	ordered := append([]*domain.Trade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	var (
		total, gross, lossSum = decimal.Zero, decimal.Zero, decimal.Zero
		barsSum               = decimal.Zero
		monthly               = make(map[string]decimal.Decimal)
		causes                = make(map[domain.ExitCause]*causeAcc)
		initial               = decimal.NewFromFloat(initialBalance)
		balance               = initial
		peak                  = initial
		current               *Drawdown
		winStreak, lossStreak int
		totalDuration         time.Duration
	)

	for _, trade := range ordered {
		pnl := decimal.NewFromFloat(trade.PNL)
		metrics.TotalTrades++
		total = total.Add(pnl)
		barsSum = barsSum.Add(decimal.NewFromInt(int64(trade.BarsHeld)))
		totalDuration += trade.ExitTime.Sub(trade.EntryTime)

		if trade.IsWin() {
			metrics.WinningTrades++
			gross = gross.Add(pnl)
			winStreak++
			lossStreak = 0
		} else {
			metrics.LosingTrades++
			lossSum = lossSum.Add(pnl)
			lossStreak++
			winStreak = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, winStreak)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, lossStreak)

		acc, ok := causes[trade.ExitCause]
		if !ok {
			acc = &causeAcc{pnl: decimal.Zero, bars: decimal.Zero, mfe: decimal.Zero}
			causes[trade.ExitCause] = acc
		}
		acc.count++
		acc.pnl = acc.pnl.Add(pnl)
		acc.bars = acc.bars.Add(decimal.NewFromInt(int64(trade.BarsHeld)))
		acc.mfe = acc.mfe.Add(decimal.NewFromFloat(trade.MFE))

		monthKey := trade.ExitTime.Format("2006-01")
		monthly[monthKey] = monthly[monthKey].Add(pnl)

		balance = balance.Add(pnl)
		if balance.GreaterThan(peak) {
			peak = balance
			if current != nil {
				current.EndTime = trade.ExitTime
				current.EndValue = balance.InexactFloat64()
				current.Duration = current.EndTime.Sub(current.StartTime)
				metrics.Drawdowns = append(metrics.Drawdowns, *current)
				current = nil
			}
		} else if balance.LessThan(peak) {
			depth := ratio(peak.Sub(balance), peak)
			if current == nil {
				current = &Drawdown{StartTime: trade.ExitTime, StartValue: peak.InexactFloat64(), Depth: depth}
			} else {
				current.Depth = math.Max(current.Depth, depth)
			}
			metrics.MaxDrawdown = math.Max(metrics.MaxDrawdown, depth)
			metrics.MaxDrawdownPoints = math.Max(metrics.MaxDrawdownPoints, peak.Sub(balance).InexactFloat64())
		}

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     trade.ExitTime,
			Value:    balance.InexactFloat64(),
			Drawdown: ratio(peak.Sub(balance), peak),
		})
	}

	if current != nil {
		current.EndTime = ordered[len(ordered)-1].ExitTime
		current.EndValue = balance.InexactFloat64()
		current.Duration = current.EndTime.Sub(current.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *current)
	}

	n := decimal.NewFromInt(int64(metrics.TotalTrades))
	metrics.TotalProfit = total.InexactFloat64()
	metrics.GrossProfit = gross.InexactFloat64()
	metrics.GrossLoss = lossSum.InexactFloat64()
	metrics.FinalBalance = balance.InexactFloat64()
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	metrics.Expectancy = total.Div(n).InexactFloat64()
	metrics.AverageBarsHeld = barsSum.Div(n).InexactFloat64()
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = gross.Div(decimal.NewFromInt(int64(metrics.WinningTrades))).InexactFloat64()
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = lossSum.Div(decimal.NewFromInt(int64(metrics.LosingTrades))).InexactFloat64()
	}
	if !lossSum.IsZero() {
		metrics.ProfitFactor = gross.Div(lossSum.Neg()).InexactFloat64()
	}
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}
	if initialBalance != 0 {
		metrics.ReturnOnInvestment = ratio(total, initial)
	}
	if metrics.MaxDrawdownPoints > 0 {
		metrics.RecoveryFactor = metrics.TotalProfit / metrics.MaxDrawdownPoints
	}
	metrics.SharpeRatio = sharpe(ordered)

	for month, v := range monthly {
		metrics.MonthlyReturns[month] = v.InexactFloat64()
	}
	for cause, acc := range causes {
		c := decimal.NewFromInt(int64(acc.count))
		metrics.ByCause[cause] = CauseStats{
			Count:    acc.count,
			TotalPnL: acc.pnl.InexactFloat64(),
			AvgPnL:   acc.pnl.Div(c).InexactFloat64(),
			AvgBars:  acc.bars.Div(c).InexactFloat64(),
			AvgMFE:   acc.mfe.Div(c).InexactFloat64(),
		}
	}
	return metrics
}

func ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.Div(den).InexactFloat64()
}

// sharpe is mean over sample standard deviation of per-trade PnL, with a zero risk-free rate.
func sharpe(trades []*domain.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	mean := 0.0
	for _, t := range trades {
		mean += t.PNL
	}
	mean /= float64(len(trades))

	variance := 0.0
	for _, t := range trades {
		variance += (t.PNL - mean) * (t.PNL - mean)
	}
	std := math.Sqrt(variance / float64(len(trades)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// Causes returns the exit causes present in m in reporting order.
func (m *PerformanceMetrics) Causes() []domain.ExitCause {
	var out []domain.ExitCause
	for _, c := range domain.AllExitCauses {
		if _, ok := m.ByCause[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
