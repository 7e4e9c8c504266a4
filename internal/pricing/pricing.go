// Package pricing resolves the best-known price for a position at a
// point in time: exact history match first, then step interpolation
// (last observation carried forward), then a caller-supplied seed.
package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// PriceAt returns the price for a position at target. If target matches
// a history point exactly, that price is returned. Otherwise the most
// recent observation at or before target is carried forward. With no
// qualifying observation, lastKnown is returned — which may itself be a
// seed taken from the position's first trade price, so every position
// has a usable price even before its market ever ticked.
//
// The history must be ascending by timestamp.
func PriceAt(target time.Time, history []model.PricePoint, lastKnown decimal.Decimal) decimal.Decimal {
	if len(history) == 0 {
		return lastKnown
	}

	// First index strictly after target.
	i := sort.Search(len(history), func(i int) bool {
		return history[i].Timestamp.After(target)
	})
	if i == 0 {
		// All observations are after target.
		return lastKnown
	}
	return history[i-1].Price
}

// OutcomePrice looks up the live price of one outcome in a market's
// current outcome price array, matching the outcome label to its index.
// The second return is false when the market carries no usable price for
// that outcome; callers must then fall back to historical interpolation.
func OutcomePrice(m *model.Market, outcome string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	for i, name := range m.Outcomes {
		if name != outcome {
			continue
		}
		if i >= len(m.OutcomePrices) {
			return decimal.Zero, false
		}
		return m.OutcomePrices[i], true
	}
	return decimal.Zero, false
}
