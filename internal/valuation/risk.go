package valuation

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// hoursPerYear is the annualization fallback when the snapshot cadence
// cannot be derived (fewer than two distinct intervals).
const hoursPerYear = 8760

// computeRisk derives volatility, an annualized Sharpe ratio, and the
// maximum drawdown from the snapshot series. The statistics are
// dimensionless ratios, so the math runs in float64; money stays in
// decimal everywhere else. Returns nil with fewer than two snapshots.
func computeRisk(snapshots []model.PortfolioSnapshot) *model.RiskMetrics {
	if len(snapshots) < 2 {
		return nil
	}

	values := make([]float64, len(snapshots))
	for i, s := range snapshots {
		values[i] = s.PortfolioValue.InexactFloat64()
	}

	// Step returns; intervals starting from a non-positive value are
	// skipped rather than producing infinities.
	var returns []float64
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, (values[i]-values[i-1])/values[i-1])
		}
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	if len(returns) > 0 {
		mean /= float64(len(returns))
	}

	// Population standard deviation.
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	vol := 0.0
	if len(returns) > 0 {
		vol = math.Sqrt(variance / float64(len(returns)))
	}

	sharpe := 0.0
	if vol > 0 {
		a := periodsPerYear(snapshots)
		sharpe = (mean * a) / (vol * math.Sqrt(a))
	}

	return &model.RiskMetrics{
		Volatility:  vol,
		SharpeRatio: sharpe,
		MaxDrawdown: maxDrawdown(values),
	}
}

// periodsPerYear derives the annualization factor from the median
// spacing of the actual snapshot series, so a downsampled or daily
// series is not annualized as if it were hourly. Falls back to hourly
// cadence when no usable spacing exists.
func periodsPerYear(snapshots []model.PortfolioSnapshot) float64 {
	var gaps []float64
	for i := 1; i < len(snapshots); i++ {
		gap := snapshots[i].Timestamp.Sub(snapshots[i-1].Timestamp).Seconds()
		if gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return hoursPerYear
	}

	sort.Float64s(gaps)
	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2
	}

	const secondsPerYear = 365 * 24 * 3600
	return secondsPerYear / median
}

// maxDrawdown is the deepest decline from a running peak, as a negative
// fraction. Zero when the series never falls below its peak.
func maxDrawdown(values []float64) float64 {
	worst := 0.0
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// computeTradeStats summarizes the realized P&L deltas produced by
// closing sells. Nil when no sell realized a nonzero amount.
func computeTradeStats(deltas []decimal.Decimal) *model.TradeStats {
	if len(deltas) == 0 {
		return nil
	}

	wins := 0
	sum := decimal.Zero
	best := deltas[0]
	worst := deltas[0]
	for _, d := range deltas {
		if d.IsPositive() {
			wins++
		}
		sum = sum.Add(d)
		if d.GreaterThan(best) {
			best = d
		}
		if d.LessThan(worst) {
			worst = d
		}
	}

	n := decimal.NewFromInt(int64(len(deltas)))
	return &model.TradeStats{
		ClosedTrades: len(deltas),
		WinRate:      decimal.NewFromInt(int64(wins)).Div(n).Mul(decimal.NewFromInt(100)).Round(2),
		AvgTradePnL:  sum.Div(n),
		BestTrade:    best,
		WorstTrade:   worst,
	}
}
