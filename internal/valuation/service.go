package valuation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/metrics"
	"github.com/polyfolio/valuation-engine/internal/model"
	"github.com/polyfolio/valuation-engine/internal/store"
)

// Service exposes portfolio bookkeeping and the valuation engine over
// HTTP. Trade recording is persistence only — there is no order
// execution anywhere in this service.
type Service struct {
	store  store.Store
	engine *Engine
}

// NewService creates the HTTP service on top of a store.
func NewService(st store.Store) *Service {
	return &Service{
		store:  st,
		engine: NewEngine(st),
	}
}

// Engine returns the underlying valuation engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// --- Request types ---

// CreatePortfolioRequest is the JSON body for POST /portfolios.
type CreatePortfolioRequest struct {
	OwnerID        string          `json:"owner_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// RecordTradeRequest is the JSON body for POST /portfolios/{id}/trades.
type RecordTradeRequest struct {
	MarketID  string          `json:"market_id"`
	Outcome   string          `json:"outcome"`
	Side      string          `json:"side"` // BUY or SELL
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`     // in [0,1]
	Timestamp time.Time       `json:"timestamp"` // zero = now
}

// --- HTTP Handlers ---

// CreatePortfolio handles POST /api/v1/portfolios
func (s *Service) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		writeError(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	if req.InitialBalance.IsNegative() {
		writeError(w, "initial_balance must not be negative", http.StatusBadRequest)
		return
	}

	pf := &model.Portfolio{
		ID:             uuid.New().String(),
		OwnerID:        req.OwnerID,
		InitialBalance: req.InitialBalance,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreatePortfolio(r.Context(), pf); err != nil {
		writeError(w, "failed to create portfolio", http.StatusInternalServerError)
		return
	}

	slog.Info("portfolio created",
		"id", pf.ID,
		"owner", pf.OwnerID,
		"initial_balance", pf.InitialBalance.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pf)
}

// GetPortfolio handles GET /api/v1/portfolios/{portfolioID}?owner_id=...
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	pf, err := s.store.GetPortfolio(r.Context(), portfolioID, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pf)
}

// RecordTrade handles POST /api/v1/portfolios/{portfolioID}/trades
func (s *Service) RecordTrade(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	var req RecordTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.MarketID == "" || req.Outcome == "" {
		writeError(w, "market_id and outcome are required", http.StatusBadRequest)
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	if req.Price.IsNegative() || req.Price.GreaterThan(decimal.NewFromInt(1)) {
		writeError(w, "price must be between 0 and 1", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Ownership check before touching the ledger.
	if _, err := s.store.GetPortfolio(ctx, portfolioID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "portfolio not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	trade := &model.Trade{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		MarketID:    req.MarketID,
		Outcome:     req.Outcome,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Timestamp:   ts.UTC(),
	}
	if err := s.store.InsertTrade(ctx, trade); err != nil {
		writeError(w, "failed to record trade", http.StatusInternalServerError)
		return
	}

	metrics.TradesRecorded.WithLabelValues(trade.Side).Inc()
	slog.Info("trade recorded",
		"trade_id", trade.ID,
		"portfolio_id", portfolioID,
		"market_id", trade.MarketID,
		"outcome", trade.Outcome,
		"side", trade.Side,
		"qty", trade.Quantity.String(),
		"price", trade.Price.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(trade)
}

// ListTrades handles GET /api/v1/portfolios/{portfolioID}/trades
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	trades, err := s.store.ListTrades(r.Context(), portfolioID)
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// GetPortfolioValue handles GET /api/v1/portfolios/{portfolioID}/value
// Query params: owner_id (required), resolution (Go duration, optional),
// as_of (RFC3339, optional — omit for a live valuation).
func (s *Service) GetPortfolioValue(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	var opts Options
	if raw := r.URL.Query().Get("resolution"); raw != "" {
		res, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, "invalid resolution: "+raw, http.StatusBadRequest)
			return
		}
		opts.Resolution = res
	}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, "invalid as_of: "+raw, http.StatusBadRequest)
			return
		}
		opts.AsOf = asOf
	}

	result, err := s.engine.Valuate(r.Context(), portfolioID, ownerID, opts)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "valuation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
