package analytics

import "energyEngine/internal/domain"

// Comparison statuses.
const (
	StatusOK       = "OK"
	StatusNoTrades = "NO_TRADES"
)

// Comparison reports variant minus base for the headline metrics of two runs over the same feed,
// typically loss defense enabled against disabled.
type Comparison struct {
	Status       string
	Base         *PerformanceMetrics
	Variant      *PerformanceMetrics
	WinRateDiff  float64
	EVDiff       float64
	AvgLossDiff  float64
	TotalPnLDiff float64
}

// Compare analyzes both trade sets and returns their differences.
// The status is NO_TRADES when either side is empty; the diffs are then left at zero.
func Compare(base, variant []*domain.Trade) Comparison {
	c := Comparison{
		Status:  StatusOK,
		Base:    AnalyzePerformance(base, 0),
		Variant: AnalyzePerformance(variant, 0),
	}
	if c.Base.TotalTrades == 0 || c.Variant.TotalTrades == 0 {
		c.Status = StatusNoTrades
		return c
	}
	c.WinRateDiff = c.Variant.WinRate - c.Base.WinRate
	c.EVDiff = c.Variant.Expectancy - c.Base.Expectancy
	c.AvgLossDiff = c.Variant.AverageLoss - c.Base.AverageLoss
	c.TotalPnLDiff = c.Variant.TotalProfit - c.Base.TotalProfit
	return c
}
