package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portfolios (id, owner_id, initial_balance, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		p.ID, p.OwnerID, p.InitialBalance.String(), p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, id, ownerID string) (*model.Portfolio, error) {
	var p model.Portfolio
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, initial_balance::TEXT, created_at
		 FROM portfolios WHERE id = $1 AND owner_id = $2`, id, ownerID).
		Scan(&p.ID, &p.OwnerID, &balance, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", id, err)
	}

	p.InitialBalance, _ = decimal.NewFromString(balance)
	return &p, nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, portfolio_id, market_id, outcome, side, quantity, price, traded_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
		t.ID, t.PortfolioID, t.MarketID, t.Outcome, t.Side,
		t.Quantity.String(), t.Price.String(), t.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, portfolioID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portfolio_id, market_id, outcome, side,
		        quantity::TEXT, price::TEXT, traded_at
		 FROM trades WHERE portfolio_id = $1 ORDER BY traded_at, id`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var qtyS, priceS string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.MarketID, &t.Outcome, &t.Side,
			&qtyS, &priceS, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(qtyS)
		t.Price, _ = decimal.NewFromString(priceS)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	var m model.Market
	var prices []string

	err := s.pool.QueryRow(ctx,
		`SELECT id, question, outcomes, outcome_prices, clob_token_ids
		 FROM markets WHERE id = $1`, marketID).
		Scan(&m.ID, &m.Question, &m.Outcomes, &prices, &m.ClobTokenIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}

	m.OutcomePrices = make([]decimal.Decimal, len(prices))
	for i, p := range prices {
		m.OutcomePrices[i], _ = decimal.NewFromString(p)
	}
	return &m, nil
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, marketID, outcome string) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT observed_at, price::TEXT
		 FROM price_history
		 WHERE market_id = $1 AND outcome = $2
		 ORDER BY observed_at`, marketID, outcome)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var pt model.PricePoint
		var priceS string
		if err := rows.Scan(&pt.Timestamp, &priceS); err != nil {
			return nil, err
		}
		pt.Price, _ = decimal.NewFromString(priceS)
		points = append(points, pt)
	}
	return points, rows.Err()
}
