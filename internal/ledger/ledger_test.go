package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/ledger"
	"github.com/polyfolio/valuation-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestApplyTrade_BuyVWAP(t *testing.T) {
	var p ledger.Position

	p.ApplyTrade(model.SideBuy, d(100), d(0.40))
	if !p.AverageEntryPrice.Equal(d(0.40)) {
		t.Errorf("avg after first buy: want 0.40, got %s", p.AverageEntryPrice)
	}

	p.ApplyTrade(model.SideBuy, d(100), d(0.60))
	if !p.Quantity.Equal(d(200)) {
		t.Errorf("quantity: want 200, got %s", p.Quantity)
	}
	if !p.CostBasis.Equal(d(100)) {
		t.Errorf("cost basis: want 100, got %s", p.CostBasis)
	}
	if !p.AverageEntryPrice.Equal(d(0.50)) {
		t.Errorf("avg: want 0.50, got %s", p.AverageEntryPrice)
	}
}

// The average entry price after any sequence of buys must equal the
// volume-weighted average of the buy prices.
func TestApplyTrade_VWAPProperty(t *testing.T) {
	buys := []struct{ qty, price float64 }{
		{10, 0.10}, {50, 0.25}, {3, 0.90}, {120, 0.55}, {1, 0.01},
	}

	var p ledger.Position
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, b := range buys {
		p.ApplyTrade(model.SideBuy, d(b.qty), d(b.price))
		totalQty = totalQty.Add(d(b.qty))
		totalCost = totalCost.Add(d(b.qty).Mul(d(b.price)))
	}

	want := totalCost.Div(totalQty)
	if !p.AverageEntryPrice.Equal(want) {
		t.Errorf("avg entry price: want %s, got %s", want, p.AverageEntryPrice)
	}
	if !p.CostBasis.Equal(totalCost) {
		t.Errorf("cost basis: want %s, got %s", totalCost, p.CostBasis)
	}
}

// Cost basis is maintained from trade notionals, so the rounding in the
// derived average can never feed back into the ledger across a long
// buy/sell sequence.
func TestApplyTrade_BuyRoundingDoesNotCompound(t *testing.T) {
	var p ledger.Position
	p.ApplyTrade(model.SideBuy, d(3), d(0.10))
	p.ApplyTrade(model.SideBuy, d(3), d(0.20))
	p.ApplyTrade(model.SideSell, d(2), d(0.50))
	p.ApplyTrade(model.SideBuy, d(5), d(0.30)) // avg 2.1/9 rounds here
	p.ApplyTrade(model.SideBuy, d(9), d(0.70))

	if !p.CostBasis.Equal(d(8.4)) {
		t.Errorf("cost basis: want exactly 8.4, got %s", p.CostBasis)
	}
	if !p.AverageEntryPrice.Equal(d(8.4).Div(d(18))) {
		t.Errorf("avg: want 8.4/18, got %s", p.AverageEntryPrice)
	}
}

func TestApplyTrade_SellRealizes(t *testing.T) {
	var p ledger.Position
	p.ApplyTrade(model.SideBuy, d(100), d(0.40))
	p.ApplyTrade(model.SideBuy, d(100), d(0.60))

	res := p.ApplyTrade(model.SideSell, d(150), d(0.70))
	if !res.RealizedDelta.Equal(d(30)) {
		t.Errorf("realized delta: want 30, got %s", res.RealizedDelta)
	}
	if res.Capped {
		t.Error("sell within held quantity should not be capped")
	}
	if !p.Quantity.Equal(d(50)) {
		t.Errorf("quantity: want 50, got %s", p.Quantity)
	}
	// Selling never moves the per-unit cost basis.
	if !p.AverageEntryPrice.Equal(d(0.50)) {
		t.Errorf("avg must stay 0.50 after sell, got %s", p.AverageEntryPrice)
	}
	if !p.CostBasis.Equal(d(25)) {
		t.Errorf("cost basis: want 25, got %s", p.CostBasis)
	}

	if !p.UnrealizedPnL(d(0.70)).Equal(d(10)) {
		t.Errorf("unrealized at 0.70: want 10, got %s", p.UnrealizedPnL(d(0.70)))
	}
	if !p.TotalPnL(d(0.70)).Equal(d(40)) {
		t.Errorf("total pnl at 0.70: want 40, got %s", p.TotalPnL(d(0.70)))
	}
}

func TestApplyTrade_FullLiquidation(t *testing.T) {
	var p ledger.Position
	p.ApplyTrade(model.SideBuy, d(25), d(0.33))
	p.ApplyTrade(model.SideSell, d(25), d(0.50))

	if !p.Quantity.IsZero() {
		t.Errorf("quantity: want exactly 0, got %s", p.Quantity)
	}
	if !p.AverageEntryPrice.IsZero() {
		t.Errorf("avg entry price: want exactly 0, got %s", p.AverageEntryPrice)
	}
	if !p.CostBasis.IsZero() {
		t.Errorf("cost basis: want exactly 0, got %s", p.CostBasis)
	}
	if p.Open() {
		t.Error("position should be flat")
	}
	if !p.UnrealizedPnL(d(0.99)).IsZero() {
		t.Error("flat position must have zero unrealized P&L")
	}
}

func TestApplyTrade_DustRemainderSnapsToZero(t *testing.T) {
	var p ledger.Position
	p.ApplyTrade(model.SideBuy, d(10), d(0.50))

	// Leaves 0.0001 behind — exactly at the dust threshold.
	p.ApplyTrade(model.SideSell, d(9.9999), d(0.50))
	if !p.Quantity.IsZero() {
		t.Errorf("dust remainder should snap to 0, got %s", p.Quantity)
	}

	var q ledger.Position
	q.ApplyTrade(model.SideBuy, d(10), d(0.50))
	// Leaves 0.0002 behind — above the threshold, stays open.
	q.ApplyTrade(model.SideSell, d(9.9998), d(0.50))
	if !q.Quantity.Equal(d(0.0002)) {
		t.Errorf("remainder above dust threshold should survive, got %s", q.Quantity)
	}
	if !q.Open() {
		t.Error("position above dust threshold should remain open")
	}
}

func TestApplyTrade_OversellCapped(t *testing.T) {
	var p ledger.Position
	p.ApplyTrade(model.SideBuy, d(10), d(0.40))

	res := p.ApplyTrade(model.SideSell, d(25), d(0.60))
	if !res.Capped {
		t.Error("oversell should report capped")
	}
	if !res.AppliedQuantity.Equal(d(10)) {
		t.Errorf("applied quantity: want 10, got %s", res.AppliedQuantity)
	}
	// Realized only on the held amount: 10 * (0.60 - 0.40) = 2.
	if !res.RealizedDelta.Equal(d(2)) {
		t.Errorf("realized delta: want 2, got %s", res.RealizedDelta)
	}
	if !p.Quantity.IsZero() {
		t.Errorf("position should be flat after capped sell, got %s", p.Quantity)
	}
}

func TestApplyTrade_SellFromFlatPosition(t *testing.T) {
	var p ledger.Position

	res := p.ApplyTrade(model.SideSell, d(5), d(0.50))
	if !res.Capped {
		t.Error("sell from flat position should be capped")
	}
	if !res.AppliedQuantity.IsZero() {
		t.Errorf("applied quantity: want 0, got %s", res.AppliedQuantity)
	}
	if !res.RealizedDelta.IsZero() {
		t.Errorf("realized delta: want 0, got %s", res.RealizedDelta)
	}
}

func TestApplyTrade_UnknownSideIsNoop(t *testing.T) {
	var p ledger.Position
	res := p.ApplyTrade("HOLD", d(5), d(0.50))
	if !res.AppliedQuantity.IsZero() || p.Open() {
		t.Error("unknown side must not move the ledger")
	}
}
