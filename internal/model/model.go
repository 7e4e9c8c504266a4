// Package model defines the core domain types shared across the valuation
// engine. All monetary values use shopspring/decimal — never float64 for
// money. Risk ratios (volatility, Sharpe, drawdown) are float64, since they
// are dimensionless statistics rather than money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides. Trades are recorded against one outcome of one market.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade is an immutable record of a portfolio trade. Once created, these
// are never modified or deleted; the valuation engine rebuilds all position
// state from the full trade history on every run.
type Trade struct {
	ID          string          `json:"id" db:"id"`
	PortfolioID string          `json:"portfolio_id" db:"portfolio_id"`
	MarketID    string          `json:"market_id" db:"market_id"`
	Outcome     string          `json:"outcome" db:"outcome"` // e.g. "Yes" or "No"
	Side        string          `json:"side" db:"side"`       // BUY or SELL
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"` // in [0,1]
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// PricePoint is one observation in the price history of a (market, outcome)
// pair. Histories are ascending by timestamp and deduplicated.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// Portfolio is the owning record for a trade history.
type Portfolio struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	InitialBalance decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Market holds the metadata for one binary (or categorical) market:
// outcome labels, current outcome prices, and the CLOB token ID per
// outcome, index-aligned.
type Market struct {
	ID            string            `json:"id"`
	Question      string            `json:"question"`
	Outcomes      []string          `json:"outcomes"`
	OutcomePrices []decimal.Decimal `json:"outcome_prices"`
	ClobTokenIDs  []string          `json:"clob_token_ids"`
}

// PortfolioSnapshot is one point of the mark-to-market output series.
// PortfolioValue = CashBalance + PositionValue, and
// TotalPnL = PortfolioValue - InitialBalance holds at every point.
type PortfolioSnapshot struct {
	Timestamp       time.Time       `json:"timestamp"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	PositionValue   decimal.Decimal `json:"position_value"`
	PortfolioValue  decimal.Decimal `json:"portfolio_value"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
}

// SeriesPoint is one point of a per-position time series, aligned to the
// portfolio snapshot timeline. Points exist only while the position is open.
type SeriesPoint struct {
	Timestamp     time.Time       `json:"timestamp"`
	Price         decimal.Decimal `json:"price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
}

// PositionSeries is the per-position valuation series plus the terminal
// position state after the full trade history has been applied.
type PositionSeries struct {
	MarketID          string          `json:"market_id"`
	Outcome           string          `json:"outcome"`
	Question          string          `json:"question,omitempty"`
	Series            []SeriesPoint   `json:"series"`
	CurrentQuantity   decimal.Decimal `json:"current_quantity"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
}

// RiskMetrics are portfolio-level statistics derived from the snapshot
// series. They are undefined (nil in MTMResult) with fewer than two
// snapshots.
type RiskMetrics struct {
	Volatility  float64 `json:"volatility"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"` // <= 0
}

// TradeStats are computed from realized P&L deltas of closing sells,
// independent of the snapshot series. Nil when no sell realized anything.
type TradeStats struct {
	ClosedTrades int             `json:"closed_trades"`
	WinRate      decimal.Decimal `json:"win_rate"` // percent, 0-100
	AvgTradePnL  decimal.Decimal `json:"avg_trade_pnl"`
	BestTrade    decimal.Decimal `json:"best_trade"`
	WorstTrade   decimal.Decimal `json:"worst_trade"`
}

// MTMResult is the full output of one mark-to-market computation.
type MTMResult struct {
	PortfolioID     string              `json:"portfolio_id"`
	AsOf            time.Time           `json:"as_of"`
	InitialBalance  decimal.Decimal     `json:"initial_balance"`
	CashBalance     decimal.Decimal     `json:"cash_balance"`
	TotalValue      decimal.Decimal     `json:"total_value"`
	TotalPnL        decimal.Decimal     `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal     `json:"total_pnl_percent"`
	Risk            *RiskMetrics        `json:"risk_metrics"`
	TradeStats      *TradeStats         `json:"trade_stats"`
	CappedSells     int                 `json:"capped_sells"`
	PnLSeries       []PortfolioSnapshot `json:"pnl_series"`
	Positions       []PositionSeries    `json:"positions"`
}
