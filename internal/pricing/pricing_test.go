package pricing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
	"github.com/polyfolio/valuation-engine/internal/pricing"
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func history(points ...float64) []model.PricePoint {
	h := make([]model.PricePoint, len(points))
	for i, p := range points {
		h[i] = model.PricePoint{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Price:     d(p),
		}
	}
	return h
}

func TestPriceAt_ExactMatch(t *testing.T) {
	h := history(0.30, 0.40, 0.50)

	got := pricing.PriceAt(base.Add(time.Hour), h, d(0.99))
	if !got.Equal(d(0.40)) {
		t.Errorf("exact match: want 0.40, got %s", got)
	}
}

func TestPriceAt_CarriesLastObservationForward(t *testing.T) {
	h := history(0.30, 0.40, 0.50)

	// Between the second and third observations.
	got := pricing.PriceAt(base.Add(90*time.Minute), h, d(0.99))
	if !got.Equal(d(0.40)) {
		t.Errorf("step interpolation: want 0.40, got %s", got)
	}

	// Long after the final observation.
	got = pricing.PriceAt(base.Add(100*time.Hour), h, d(0.99))
	if !got.Equal(d(0.50)) {
		t.Errorf("after last observation: want 0.50, got %s", got)
	}
}

func TestPriceAt_BeforeFirstObservationFallsBack(t *testing.T) {
	h := history(0.30, 0.40)

	got := pricing.PriceAt(base.Add(-time.Hour), h, d(0.42))
	if !got.Equal(d(0.42)) {
		t.Errorf("before history: want lastKnown 0.42, got %s", got)
	}
}

func TestPriceAt_EmptyHistoryFallsBack(t *testing.T) {
	got := pricing.PriceAt(base, nil, d(0.42))
	if !got.Equal(d(0.42)) {
		t.Errorf("empty history: want lastKnown 0.42, got %s", got)
	}
}

func TestOutcomePrice(t *testing.T) {
	m := &model.Market{
		ID:            "m1",
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []decimal.Decimal{d(0.63), d(0.37)},
	}

	p, ok := pricing.OutcomePrice(m, "No")
	if !ok || !p.Equal(d(0.37)) {
		t.Errorf("want 0.37/true, got %s/%v", p, ok)
	}

	if _, ok := pricing.OutcomePrice(m, "Maybe"); ok {
		t.Error("unknown outcome must report no price")
	}
	if _, ok := pricing.OutcomePrice(nil, "Yes"); ok {
		t.Error("nil market must report no price")
	}

	// Price array shorter than the outcome list.
	m.OutcomePrices = m.OutcomePrices[:1]
	if _, ok := pricing.OutcomePrice(m, "No"); ok {
		t.Error("missing price index must report no price")
	}
}
