package valuation

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
)

func snapshotSeries(start time.Time, spacing time.Duration, values ...float64) []model.PortfolioSnapshot {
	out := make([]model.PortfolioSnapshot, len(values))
	for i, v := range values {
		out[i] = model.PortfolioSnapshot{
			Timestamp:      start.Add(time.Duration(i) * spacing),
			PortfolioValue: decimal.NewFromFloat(v),
		}
	}
	return out
}

var riskBase = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func TestComputeRisk_TooFewSnapshots(t *testing.T) {
	if computeRisk(nil) != nil {
		t.Error("nil series must yield nil metrics")
	}
	if computeRisk(snapshotSeries(riskBase, time.Hour, 100)) != nil {
		t.Error("single snapshot must yield nil metrics")
	}
}

func TestComputeRisk_FlatSeries(t *testing.T) {
	r := computeRisk(snapshotSeries(riskBase, time.Hour, 100, 100, 100, 100))
	if r == nil {
		t.Fatal("expected metrics")
	}
	if r.Volatility != 0 {
		t.Errorf("flat series volatility: want 0, got %g", r.Volatility)
	}
	if r.SharpeRatio != 0 {
		t.Errorf("flat series sharpe: want 0, got %g", r.SharpeRatio)
	}
	if r.MaxDrawdown != 0 {
		t.Errorf("flat series drawdown: want 0, got %g", r.MaxDrawdown)
	}
}

func TestComputeRisk_Bounds(t *testing.T) {
	r := computeRisk(snapshotSeries(riskBase, time.Hour, 100, 120, 80, 90, 130, 70))
	if r == nil {
		t.Fatal("expected metrics")
	}
	if r.Volatility < 0 {
		t.Errorf("volatility must be >= 0, got %g", r.Volatility)
	}
	if r.MaxDrawdown > 0 {
		t.Errorf("max drawdown must be <= 0, got %g", r.MaxDrawdown)
	}
}

func TestComputeRisk_MaxDrawdown(t *testing.T) {
	// Peak 200, trough 100: drawdown -0.5.
	r := computeRisk(snapshotSeries(riskBase, time.Hour, 100, 200, 100, 150))
	if r == nil {
		t.Fatal("expected metrics")
	}
	if math.Abs(r.MaxDrawdown-(-0.5)) > 1e-12 {
		t.Errorf("max drawdown: want -0.5, got %g", r.MaxDrawdown)
	}
}

func TestComputeRisk_VolatilityKnownSeries(t *testing.T) {
	// Returns: +0.10, -0.10. Mean 0, population stddev 0.10.
	r := computeRisk(snapshotSeries(riskBase, time.Hour, 100, 110, 99))
	if r == nil {
		t.Fatal("expected metrics")
	}
	if math.Abs(r.Volatility-0.10) > 1e-12 {
		t.Errorf("volatility: want 0.10, got %g", r.Volatility)
	}
	// Zero mean return → zero Sharpe regardless of annualization.
	if math.Abs(r.SharpeRatio) > 1e-9 {
		t.Errorf("sharpe: want ~0, got %g", r.SharpeRatio)
	}
}

func TestPeriodsPerYear_FromMedianSpacing(t *testing.T) {
	daily := snapshotSeries(riskBase, 24*time.Hour, 100, 101, 102, 103)
	got := periodsPerYear(daily)
	if math.Abs(got-365) > 1e-9 {
		t.Errorf("daily cadence: want 365 periods/year, got %g", got)
	}

	hourly := snapshotSeries(riskBase, time.Hour, 100, 101, 102)
	got = periodsPerYear(hourly)
	if math.Abs(got-8760) > 1e-9 {
		t.Errorf("hourly cadence: want 8760 periods/year, got %g", got)
	}
}

func TestPeriodsPerYear_FallbackWithoutSpacing(t *testing.T) {
	// Two snapshots at the same instant: no usable gap.
	series := snapshotSeries(riskBase, 0, 100, 101)
	if got := periodsPerYear(series); got != hoursPerYear {
		t.Errorf("want fallback %d, got %g", hoursPerYear, got)
	}
}

func TestComputeTradeStats(t *testing.T) {
	dd := func(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

	if computeTradeStats(nil) != nil {
		t.Error("no realized deltas must yield nil stats")
	}

	stats := computeTradeStats([]decimal.Decimal{dd(30), dd(-10), dd(5), dd(-5)})
	if stats == nil {
		t.Fatal("expected stats")
	}
	if stats.ClosedTrades != 4 {
		t.Errorf("closed trades: want 4, got %d", stats.ClosedTrades)
	}
	if !stats.WinRate.Equal(dd(50)) {
		t.Errorf("win rate: want 50, got %s", stats.WinRate)
	}
	if !stats.AvgTradePnL.Equal(dd(5)) {
		t.Errorf("avg: want 5, got %s", stats.AvgTradePnL)
	}
	if !stats.BestTrade.Equal(dd(30)) {
		t.Errorf("best: want 30, got %s", stats.BestTrade)
	}
	if !stats.WorstTrade.Equal(dd(-10)) {
		t.Errorf("worst: want -10, got %s", stats.WorstTrade)
	}
}
