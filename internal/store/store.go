// Package store defines the persistence interface for the valuation
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache with an upstream refetch fallback for market data),
// and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// ErrNotFound is returned when a portfolio or market does not exist (or,
// for portfolios, is not owned by the caller). Callers map it to 404.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface consumed by the valuation engine.
// All engine reads are non-mutating; the write operations exist for the
// recording API only.
type Store interface {
	// --- Portfolios ---

	// CreatePortfolio persists a new portfolio record.
	CreatePortfolio(ctx context.Context, p *model.Portfolio) error

	// GetPortfolio retrieves a portfolio by ID, scoped to its owner.
	// Returns ErrNotFound for a missing or foreign portfolio.
	GetPortfolio(ctx context.Context, id, ownerID string) (*model.Portfolio, error)

	// --- Immutable trade ledger ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// ListTrades returns all trades of a portfolio, ascending by
	// timestamp. Empty slice for a portfolio with no trades.
	ListTrades(ctx context.Context, portfolioID string) ([]model.Trade, error)

	// --- Market data ---

	// GetMarket retrieves market metadata (outcomes, current outcome
	// prices, CLOB token IDs). Returns ErrNotFound when unknown.
	GetMarket(ctx context.Context, marketID string) (*model.Market, error)

	// GetPriceHistory returns the ascending price history of one
	// (market, outcome) pair. Empty slice when nothing is recorded.
	GetPriceHistory(ctx context.Context, marketID, outcome string) ([]model.PricePoint, error)
}
