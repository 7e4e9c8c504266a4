package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
	"github.com/polyfolio/valuation-engine/internal/store"
)

// A pair that ends up without any price history — whether the lookup
// errored or the store simply has nothing — marks the run degraded, so
// the degraded counter covers valuations priced off trade fallbacks.
func TestFetchHistories_EmptyHistoryMarksDegraded(t *testing.T) {
	ms := store.NewMemoryStore()
	e := NewEngine(ms)

	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	trades := []model.Trade{{
		MarketID:  "mkt-1",
		Outcome:   "Yes",
		Side:      model.SideBuy,
		Quantity:  decimal.NewFromInt(1),
		Price:     decimal.NewFromFloat(0.5),
		Timestamp: ts,
	}}

	positions, _ := buildPositions(trades)
	if !e.fetchHistories(context.Background(), positions) {
		t.Error("pair without history must mark the run degraded")
	}

	ms.SeedPriceHistory("mkt-1", "Yes", []model.PricePoint{
		{Timestamp: ts, Price: decimal.NewFromFloat(0.5)},
	})
	positions, _ = buildPositions(trades)
	if e.fetchHistories(context.Background(), positions) {
		t.Error("pair with history must not mark the run degraded")
	}
	if len(positions["mkt-1|Yes"].history) != 1 {
		t.Error("fetched history must land on the position state")
	}
}
