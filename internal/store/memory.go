package store

import (
	"context"
	"sort"
	"sync"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]*model.Portfolio
	trades     []model.Trade
	markets    map[string]*model.Market
	history    map[string][]model.PricePoint // marketID|outcome
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*model.Portfolio),
		markets:    make(map[string]*model.Market),
		history:    make(map[string][]model.PricePoint),
	}
}

func historyKey(marketID, outcome string) string {
	return marketID + "|" + outcome
}

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.portfolios[p.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, id, ownerID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, portfolioID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.PortfolioID == portfolioID {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *MemoryStore) GetMarket(_ context.Context, marketID string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, marketID, outcome string) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.history[historyKey(marketID, outcome)]
	out := make([]model.PricePoint, len(points))
	copy(out, points)
	return out, nil
}

// SeedMarket stores market metadata directly, bypassing any upstream
// fetch. Test helper.
func (s *MemoryStore) SeedMarket(m *model.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *m
	s.markets[m.ID] = &copy
}

// SeedPriceHistory stores a price history directly. Points are sorted
// ascending on insert. Test helper.
func (s *MemoryStore) SeedPriceHistory(marketID, outcome string, points []model.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]model.PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	s.history[historyKey(marketID, outcome)] = sorted
}
