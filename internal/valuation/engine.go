// Package valuation implements the portfolio mark-to-market engine and
// its HTTP handlers: it replays a portfolio's full trade history against
// the merged price timeline of every traded position and emits a
// time-indexed P&L series with risk statistics.
//
// All monetary values use shopspring/decimal — never float64 for money.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/ledger"
	"github.com/polyfolio/valuation-engine/internal/metrics"
	"github.com/polyfolio/valuation-engine/internal/model"
	"github.com/polyfolio/valuation-engine/internal/pricing"
	"github.com/polyfolio/valuation-engine/internal/store"
	"github.com/polyfolio/valuation-engine/internal/timeline"
)

// Options controls one valuation run.
type Options struct {
	// AsOf is the valuation instant. Zero means now. Callers that need
	// reproducible output must pass an explicit instant.
	AsOf time.Time

	// Resolution downsamples the output timeline to roughly one point
	// per interval. Trade timestamps are never dropped. Zero or
	// negative keeps every price observation.
	Resolution time.Duration
}

// Engine computes mark-to-market valuations. It is read-only with
// respect to the store and keeps no state between calls, so concurrent
// valuations need no synchronization.
type Engine struct {
	store store.Store
}

// NewEngine creates a valuation engine on top of the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// position is the walk state for one (market, outcome) pair. Created
// lazily at the pair's first trade and discarded when the run ends.
type position struct {
	marketID string
	outcome  string
	question string

	ledger  ledger.Position
	history []model.PricePoint

	// lastKnown carries the most recent resolved price forward. Seeded
	// from the pair's trades, so the position is valuable even if its
	// market never ticked; the walk keeps it at the last trade price
	// until a real observation takes over.
	lastKnown    decimal.Decimal
	currentPrice decimal.Decimal

	series []model.SeriesPoint
}

func pairKey(marketID, outcome string) string {
	return marketID + "|" + outcome
}

// Valuate computes the full mark-to-market result for one portfolio.
// Returns store.ErrNotFound when the portfolio does not exist or is not
// owned by ownerID. Every other external failure degrades to fallback
// prices rather than aborting.
func (e *Engine) Valuate(ctx context.Context, portfolioID, ownerID string, opts Options) (*model.MTMResult, error) {
	start := time.Now()

	pf, err := e.store.GetPortfolio(ctx, portfolioID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.ValuationsTotal.WithLabelValues("not_found").Inc()
			return nil, err
		}
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOf = asOf.UTC()

	trades, err := e.store.ListTrades(ctx, portfolioID)
	if err != nil {
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load trades: %w", err)
	}

	// Trades after the valuation instant do not exist yet from the
	// walk's point of view.
	trades = tradesUpTo(trades, asOf)

	if len(trades) == 0 {
		result := emptyResult(pf, asOf)
		metrics.ValuationsTotal.WithLabelValues("ok").Inc()
		metrics.ValuationDuration.Observe(time.Since(start).Seconds())
		return result, nil
	}

	positions, order := buildPositions(trades)
	degraded := e.fetchHistories(ctx, positions)

	ticks := buildTimeline(pf, trades, positions, asOf, opts.Resolution)

	walk := e.walk(pf, trades, positions, order, ticks)
	e.applyLiveCorrection(ctx, pf, positions, order, walk)

	result := assembleResult(pf, asOf, positions, order, walk)

	metrics.ValuationsTotal.WithLabelValues("ok").Inc()
	metrics.ValuationDuration.Observe(time.Since(start).Seconds())
	if walk.capped > 0 {
		metrics.CappedSellsTotal.Add(float64(walk.capped))
	}
	if degraded {
		metrics.DegradedValuations.Inc()
	}

	slog.Info("valuation complete",
		"portfolio_id", portfolioID,
		"trades", len(trades),
		"positions", len(positions),
		"snapshots", len(walk.snapshots),
		"capped_sells", walk.capped,
		"degraded", degraded,
		"elapsed", time.Since(start),
	)
	return result, nil
}

// tradesUpTo filters out trades after asOf, preserving input order.
func tradesUpTo(trades []model.Trade, asOf time.Time) []model.Trade {
	out := trades[:0:0]
	for _, t := range trades {
		if !t.Timestamp.After(asOf) {
			out = append(out, t)
		}
	}
	return out
}

// buildPositions creates one walk state per distinct (market, outcome)
// pair, in order of first appearance. lastKnown is seeded with the
// pair's first trade price.
func buildPositions(trades []model.Trade) (map[string]*position, []string) {
	positions := make(map[string]*position)
	var order []string
	for _, t := range trades {
		key := pairKey(t.MarketID, t.Outcome)
		if _, ok := positions[key]; ok {
			continue
		}
		positions[key] = &position{
			marketID:  t.MarketID,
			outcome:   t.Outcome,
			lastKnown: t.Price,
		}
		order = append(order, key)
	}
	return positions, order
}

// fetchHistories loads every pair's price history concurrently. A pair
// left without history — a hard lookup error, or an upstream refetch
// that degraded to empty in the cache layer — is valued off its trade
// prices, and the run is reported degraded either way.
func (e *Engine) fetchHistories(ctx context.Context, positions map[string]*position) bool {
	var wg sync.WaitGroup
	var mu sync.Mutex
	degraded := false

	for _, st := range positions {
		wg.Add(1)
		go func(st *position) {
			defer wg.Done()
			points, err := e.store.GetPriceHistory(ctx, st.marketID, st.outcome)
			if err != nil {
				slog.Warn("price history unavailable, valuing off trade prices",
					"market_id", st.marketID, "outcome", st.outcome, "err", err)
			}
			mu.Lock()
			st.history = points
			if len(points) == 0 {
				degraded = true
			}
			mu.Unlock()
		}(st)
	}
	wg.Wait()
	return degraded
}

// buildTimeline merges trade timestamps, in-range price observations,
// and the valuation instant into one ascending timeline, downsampled to
// the requested resolution with trade timestamps protected.
func buildTimeline(pf *model.Portfolio, trades []model.Trade, positions map[string]*position, asOf time.Time, resolution time.Duration) []time.Time {
	tradeTimes := make([]time.Time, len(trades))
	for i, t := range trades {
		tradeTimes[i] = t.Timestamp
	}

	var priceTimes []time.Time
	for _, st := range positions {
		for _, pt := range st.history {
			// Observations before the portfolio existed or after the
			// valuation instant are irrelevant to this walk.
			if pt.Timestamp.Before(pf.CreatedAt) || pt.Timestamp.After(asOf) {
				continue
			}
			priceTimes = append(priceTimes, pt.Timestamp)
		}
	}

	merged := timeline.Merge(tradeTimes, priceTimes, []time.Time{asOf})
	return timeline.Downsample(merged, resolution, timeline.KeepSet(tradeTimes))
}

// walkResult carries everything the timeline walk produced.
type walkResult struct {
	snapshots      []model.PortfolioSnapshot
	cash           decimal.Decimal
	realizedDeltas []decimal.Decimal
	capped         int
}

// walk is the core state machine: one pass over the timeline, applying
// trades as their timestamps come up, resolving a price for every
// position at every tick, and emitting a portfolio snapshot plus one
// series point per open position.
func (e *Engine) walk(pf *model.Portfolio, trades []model.Trade, positions map[string]*position, order []string, ticks []time.Time) *walkResult {
	byTick := make(map[int64][]model.Trade)
	for _, t := range trades {
		key := t.Timestamp.Unix()
		byTick[key] = append(byTick[key], t)
	}

	w := &walkResult{
		snapshots: make([]model.PortfolioSnapshot, 0, len(ticks)),
		cash:      pf.InitialBalance,
	}

	for _, tick := range ticks {
		// 1. Apply this tick's trades in input order.
		for _, t := range byTick[tick.Unix()] {
			st := positions[pairKey(t.MarketID, t.Outcome)]
			res := st.ledger.ApplyTrade(t.Side, t.Quantity, t.Price)

			// Cash moves by the applied quantity, so a capped sell
			// cannot credit cash for shares that were never held.
			notional := res.AppliedQuantity.Mul(t.Price)
			if t.Side == model.SideBuy {
				w.cash = w.cash.Sub(notional)
			} else {
				w.cash = w.cash.Add(notional)
			}
			if res.Capped {
				w.capped++
			}
			if t.Side == model.SideSell && !res.RealizedDelta.IsZero() {
				w.realizedDeltas = append(w.realizedDeltas, res.RealizedDelta)
			}

			// Without a price history the trade itself is the freshest
			// observation, so the fallback tracks the last trade price,
			// not the first.
			if len(st.history) == 0 {
				st.lastKnown = t.Price
			}
		}

		// 2.-3. Resolve prices and sum across positions.
		positionValue := decimal.Zero
		unrealized := decimal.Zero
		realized := decimal.Zero
		for _, key := range order {
			st := positions[key]
			price := pricing.PriceAt(tick, st.history, st.lastKnown)
			st.lastKnown = price

			realized = realized.Add(st.ledger.RealizedPnL)
			if !st.ledger.Open() {
				continue
			}
			positionValue = positionValue.Add(st.ledger.Value(price))
			unrealized = unrealized.Add(st.ledger.UnrealizedPnL(price))
			st.series = append(st.series, model.SeriesPoint{
				Timestamp:     tick,
				Price:         price,
				UnrealizedPnL: st.ledger.UnrealizedPnL(price),
				TotalPnL:      st.ledger.TotalPnL(price),
			})
		}

		// 4. Portfolio snapshot.
		w.snapshots = append(w.snapshots,
			snapshotAt(tick, w.cash, positionValue, unrealized, realized, pf.InitialBalance))
	}
	return w
}

// applyLiveCorrection re-prices the terminal snapshot with live outcome
// prices for every position ever traded and replaces the last element of
// the snapshot series, so the headline figures match a true real-time
// valuation even when the recorded price history has gone stale. Live
// lookups that fail fall back to the interpolated price at the final
// tick.
func (e *Engine) applyLiveCorrection(ctx context.Context, pf *model.Portfolio, positions map[string]*position, order []string, w *walkResult) {
	if len(w.snapshots) == 0 {
		return
	}

	markets := e.fetchMarkets(ctx, positions)

	final := w.snapshots[len(w.snapshots)-1].Timestamp
	positionValue := decimal.Zero
	unrealized := decimal.Zero
	realized := decimal.Zero

	for _, key := range order {
		st := positions[key]
		st.currentPrice = st.lastKnown
		if m := markets[st.marketID]; m != nil {
			st.question = m.Question
			if live, ok := pricing.OutcomePrice(m, st.outcome); ok {
				st.currentPrice = live
			}
		}

		realized = realized.Add(st.ledger.RealizedPnL)
		if !st.ledger.Open() {
			continue
		}
		positionValue = positionValue.Add(st.ledger.Value(st.currentPrice))
		unrealized = unrealized.Add(st.ledger.UnrealizedPnL(st.currentPrice))

		// Re-price the position's terminal series point too.
		if n := len(st.series); n > 0 && st.series[n-1].Timestamp.Equal(final) {
			st.series[n-1] = model.SeriesPoint{
				Timestamp:     final,
				Price:         st.currentPrice,
				UnrealizedPnL: st.ledger.UnrealizedPnL(st.currentPrice),
				TotalPnL:      st.ledger.TotalPnL(st.currentPrice),
			}
		}
	}

	w.snapshots[len(w.snapshots)-1] =
		snapshotAt(final, w.cash, positionValue, unrealized, realized, pf.InitialBalance)
}

// fetchMarkets loads live metadata for every distinct traded market
// concurrently. Lookup failures leave the market absent; callers fall
// back to interpolated prices.
func (e *Engine) fetchMarkets(ctx context.Context, positions map[string]*position) map[string]*model.Market {
	ids := make(map[string]struct{})
	for _, st := range positions {
		ids[st.marketID] = struct{}{}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	markets := make(map[string]*model.Market, len(ids))

	for id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m, err := e.store.GetMarket(ctx, id)
			if err != nil {
				slog.Warn("live market lookup failed, using last known price",
					"market_id", id, "err", err)
				return
			}
			mu.Lock()
			markets[id] = m
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return markets
}

// snapshotAt assembles one snapshot, keeping the accounting identity
// portfolioValue = cash + positionValue and totalPnL = portfolioValue -
// initialBalance by construction.
func snapshotAt(ts time.Time, cash, positionValue, unrealized, realized, initialBalance decimal.Decimal) model.PortfolioSnapshot {
	portfolioValue := cash.Add(positionValue)
	totalPnL := portfolioValue.Sub(initialBalance)

	percent := decimal.Zero
	if initialBalance.IsPositive() {
		percent = totalPnL.Div(initialBalance).Mul(decimal.NewFromInt(100))
	}

	return model.PortfolioSnapshot{
		Timestamp:       ts,
		CashBalance:     cash,
		PositionValue:   positionValue,
		PortfolioValue:  portfolioValue,
		UnrealizedPnL:   unrealized,
		RealizedPnL:     realized,
		TotalPnL:        totalPnL,
		TotalPnLPercent: percent,
	}
}

// emptyResult covers a portfolio with no trades: one snapshot at the
// valuation instant, everything flat.
func emptyResult(pf *model.Portfolio, asOf time.Time) *model.MTMResult {
	snap := snapshotAt(asOf, pf.InitialBalance, decimal.Zero, decimal.Zero, decimal.Zero, pf.InitialBalance)
	return &model.MTMResult{
		PortfolioID:     pf.ID,
		AsOf:            asOf,
		InitialBalance:  pf.InitialBalance,
		CashBalance:     pf.InitialBalance,
		TotalValue:      pf.InitialBalance,
		TotalPnL:        decimal.Zero,
		TotalPnLPercent: decimal.Zero,
		PnLSeries:       []model.PortfolioSnapshot{snap},
		Positions:       []model.PositionSeries{},
	}
}

// assembleResult builds the MTMResult from the corrected walk. Only
// positions still holding quantity or carrying realized P&L are
// retained.
func assembleResult(pf *model.Portfolio, asOf time.Time, positions map[string]*position, order []string, w *walkResult) *model.MTMResult {
	series := make([]model.PositionSeries, 0, len(order))
	for _, key := range order {
		st := positions[key]
		if !st.ledger.Open() && st.ledger.RealizedPnL.IsZero() {
			continue
		}
		series = append(series, model.PositionSeries{
			MarketID:          st.marketID,
			Outcome:           st.outcome,
			Question:          st.question,
			Series:            st.series,
			CurrentQuantity:   st.ledger.Quantity,
			AverageEntryPrice: st.ledger.AverageEntryPrice,
			CurrentPrice:      st.currentPrice,
			RealizedPnL:       st.ledger.RealizedPnL,
			TotalPnL:          st.ledger.TotalPnL(st.currentPrice),
		})
	}

	final := w.snapshots[len(w.snapshots)-1]
	return &model.MTMResult{
		PortfolioID:     pf.ID,
		AsOf:            asOf,
		InitialBalance:  pf.InitialBalance,
		CashBalance:     final.CashBalance,
		TotalValue:      final.PortfolioValue,
		TotalPnL:        final.TotalPnL,
		TotalPnLPercent: final.TotalPnLPercent,
		Risk:            computeRisk(w.snapshots),
		TradeStats:      computeTradeStats(w.realizedDeltas),
		CappedSells:     w.capped,
		PnLSeries:       w.snapshots,
		Positions:       series,
	}
}
