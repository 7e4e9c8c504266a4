package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polyfolio/valuation-engine/internal/metrics"
	"github.com/polyfolio/valuation-engine/internal/model"
)

// Refetcher fetches market data on demand from the upstream provider.
// Used as a last resort when neither the cache nor the primary store
// holds what the engine needs.
type Refetcher interface {
	FetchMarket(ctx context.Context, marketID string) (*model.Market, error)
	FetchPriceHistory(ctx context.Context, m *model.Market, outcome string) ([]model.PricePoint, error)
}

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache for market metadata and price histories. When the
// primary store has no price history for a pair, the upstream refetcher
// fills the gap on demand and the result is cached; a refetch failure
// degrades to an empty history rather than an error, so a valuation
// never aborts on missing market data.
type CachedStore struct {
	primary  Store
	rdb      *redis.Client
	upstream Refetcher // may be nil
	ttl      time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
// Pass nil for upstream to disable the refetch fallback.
func NewCachedStore(primary Store, rdb *redis.Client, upstream Refetcher, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary:  primary,
		rdb:      rdb,
		upstream: upstream,
		ttl:      ttl,
	}
}

// --- Writes (passthrough to primary, invalidate what they touch) ---

func (s *CachedStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	return s.primary.CreatePortfolio(ctx, p)
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.InsertTrade(ctx, t)
}

// --- Reads ---

func (s *CachedStore) GetPortfolio(ctx context.Context, id, ownerID string) (*model.Portfolio, error) {
	return s.primary.GetPortfolio(ctx, id, ownerID)
}

func (s *CachedStore) ListTrades(ctx context.Context, portfolioID string) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, portfolioID)
}

func (s *CachedStore) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	key := marketCacheKey(marketID)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			metrics.CacheHits.WithLabelValues("market").Inc()
			return &m, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("market").Inc()

	m, err := s.primary.GetMarket(ctx, marketID)
	if errors.Is(err, ErrNotFound) && s.upstream != nil {
		m, err = s.upstream.FetchMarket(ctx, marketID)
	}
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, key, m)
	return m, nil
}

func (s *CachedStore) GetPriceHistory(ctx context.Context, marketID, outcome string) ([]model.PricePoint, error) {
	key := historyCacheKey(marketID, outcome)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var points []model.PricePoint
		if json.Unmarshal(data, &points) == nil {
			metrics.CacheHits.WithLabelValues("price_history").Inc()
			return points, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("price_history").Inc()

	points, err := s.primary.GetPriceHistory(ctx, marketID, outcome)
	if err != nil {
		return nil, err
	}

	if len(points) == 0 && s.upstream != nil {
		points = s.refetchHistory(ctx, marketID, outcome)
	}

	// An empty history is cached only briefly, so a refetch failure or
	// a not-yet-backfilled pair is retried soon instead of pinning
	// emptiness for the full TTL.
	if len(points) == 0 {
		s.cacheJSONTTL(ctx, key, points, negativeTTL)
		return points, nil
	}

	s.cacheJSON(ctx, key, points)
	return points, nil
}

// refetchHistory pulls a price history from upstream. Failures degrade
// to an empty history; the engine then values the position off its trade
// prices.
func (s *CachedStore) refetchHistory(ctx context.Context, marketID, outcome string) []model.PricePoint {
	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		slog.Warn("price history refetch: market unavailable",
			"market_id", marketID, "outcome", outcome, "err", err)
		return nil
	}

	points, err := s.upstream.FetchPriceHistory(ctx, m, outcome)
	if err != nil {
		slog.Warn("price history refetch failed",
			"market_id", marketID, "outcome", outcome, "err", err)
		return nil
	}
	return points
}

// negativeTTL bounds how long an empty price history stays cached.
const negativeTTL = 15 * time.Second

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	s.cacheJSONTTL(ctx, key, v, s.ttl)
}

func (s *CachedStore) cacheJSONTTL(ctx context.Context, key string, v any, ttl time.Duration) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, ttl)
	}
}

func marketCacheKey(id string) string { return fmt.Sprintf("market:%s", id) }

func historyCacheKey(marketID, outcome string) string {
	return fmt.Sprintf("pricehist:%s:%s", marketID, outcome)
}
