// Package ledger implements the per-position cost-basis state machine.
//
// Buys move the average entry price under a volume-weighted average
// (VWAP) rule; sells realize P&L against that average without touching
// the per-unit cost basis. All monetary values use shopspring/decimal —
// never float64 for money.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// DustThreshold is the residual quantity below which a position is
// considered fully closed. Selling down to a remainder at or below this
// snaps quantity, average entry price, and cost basis to exactly zero.
var DustThreshold = decimal.NewFromFloat(0.0001)

// Position is the cost-basis ledger for one (market, outcome) pair.
// It is mutated exclusively by ApplyTrade; valuation reads never mutate.
// The zero value is a flat position and is ready to use.
type Position struct {
	Quantity          decimal.Decimal
	AverageEntryPrice decimal.Decimal
	CostBasis         decimal.Decimal // exact running cost of the open quantity
	RealizedPnL       decimal.Decimal
}

// TradeResult reports the effect of one ApplyTrade call.
type TradeResult struct {
	// RealizedDelta is the P&L locked in by this trade. Zero for buys.
	RealizedDelta decimal.Decimal

	// AppliedQuantity is the quantity actually applied to the ledger.
	// For sells this may be less than requested (see Capped).
	AppliedQuantity decimal.Decimal

	// Capped reports that a sell requested more than the held quantity
	// and was reduced to the held amount. Surfaced so callers can tell
	// a capped fill apart from a clean one.
	Capped bool
}

// ApplyTrade applies one trade to the position and returns its effect.
//
// Buy: quantity and cost basis grow; the average entry price becomes the
// volume-weighted average of all buys. Sell: realizes
// soldQty * (price - averageEntryPrice); the average entry price is
// untouched — selling never changes cost basis per unit. A sell that
// leaves at most DustThreshold behind closes the position exactly.
func (p *Position) ApplyTrade(side string, qty, price decimal.Decimal) TradeResult {
	switch side {
	case model.SideBuy:
		// The running cost is maintained exactly from trade notionals.
		// AverageEntryPrice is derived from it, never fed back into it,
		// so Div's rounding cannot compound across buys.
		p.CostBasis = p.CostBasis.Add(qty.Mul(price))
		p.Quantity = p.Quantity.Add(qty)
		if p.Quantity.IsPositive() {
			p.AverageEntryPrice = p.CostBasis.Div(p.Quantity)
		}
		return TradeResult{AppliedQuantity: qty}

	case model.SideSell:
		sellQty := qty
		capped := false
		if sellQty.GreaterThan(p.Quantity) {
			sellQty = p.Quantity
			capped = true
		}

		delta := sellQty.Mul(price.Sub(p.AverageEntryPrice))
		p.RealizedPnL = p.RealizedPnL.Add(delta)
		p.Quantity = p.Quantity.Sub(sellQty)
		p.CostBasis = p.Quantity.Mul(p.AverageEntryPrice)

		if p.Quantity.LessThanOrEqual(DustThreshold) {
			p.Quantity = decimal.Zero
			p.AverageEntryPrice = decimal.Zero
			p.CostBasis = decimal.Zero
		}
		return TradeResult{RealizedDelta: delta, AppliedQuantity: sellQty, Capped: capped}
	}

	// Unknown side: no ledger effect. Sides are validated at the API
	// boundary before a trade is ever persisted.
	return TradeResult{}
}

// Open reports whether the position holds any quantity.
func (p *Position) Open() bool {
	return p.Quantity.IsPositive()
}

// UnrealizedPnL is the paper P&L of the open quantity at the given
// market price. Zero for flat positions.
func (p *Position) UnrealizedPnL(marketPrice decimal.Decimal) decimal.Decimal {
	if p.Quantity.IsPositive() && p.AverageEntryPrice.IsPositive() {
		return p.Quantity.Mul(marketPrice.Sub(p.AverageEntryPrice))
	}
	return decimal.Zero
}

// TotalPnL is realized plus unrealized P&L at the given market price.
func (p *Position) TotalPnL(marketPrice decimal.Decimal) decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL(marketPrice))
}

// Value is the mark-to-market value of the open quantity.
func (p *Position) Value(marketPrice decimal.Decimal) decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.Quantity.Mul(marketPrice)
}
