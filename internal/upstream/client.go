// Package upstream implements the market-data provider client used for
// on-demand refetch of market metadata and price histories. It speaks
// the Polymarket Gamma API (market metadata) and CLOB API (per-token
// price history).
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
)

// Default API endpoints.
const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultClobURL  = "https://clob.polymarket.com"
)

// Client fetches market metadata and price histories over HTTP.
type Client struct {
	gammaURL   string
	clobURL    string
	httpClient *http.Client
}

// NewClient creates an upstream client. Empty URLs fall back to the
// public endpoints.
func NewClient(gammaURL, clobURL string) *Client {
	if gammaURL == "" {
		gammaURL = DefaultGammaURL
	}
	if clobURL == "" {
		clobURL = DefaultClobURL
	}
	return &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// gammaMarket mirrors the Gamma API market payload. The array fields
// arrive as stringified JSON arrays, not real arrays.
type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
}

// FetchMarket retrieves metadata for one market.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (*model.Market, error) {
	body, err := c.get(ctx, c.gammaURL+"/markets/"+url.PathEscape(marketID))
	if err != nil {
		return nil, err
	}

	var gm gammaMarket
	if err := json.Unmarshal(body, &gm); err != nil {
		return nil, fmt.Errorf("decode market %s: %w", marketID, err)
	}

	outcomes, err := parseStringArray(gm.Outcomes)
	if err != nil {
		return nil, fmt.Errorf("market %s outcomes: %w", marketID, err)
	}
	priceStrs, err := parseStringArray(gm.OutcomePrices)
	if err != nil {
		return nil, fmt.Errorf("market %s outcome prices: %w", marketID, err)
	}
	tokens, err := parseStringArray(gm.ClobTokenIDs)
	if err != nil {
		return nil, fmt.Errorf("market %s clob token ids: %w", marketID, err)
	}

	prices := make([]decimal.Decimal, len(priceStrs))
	for i, p := range priceStrs {
		prices[i], err = decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("market %s outcome price %q: %w", marketID, p, err)
		}
	}

	id := gm.ID
	if id == "" {
		id = marketID
	}
	return &model.Market{
		ID:            id,
		Question:      gm.Question,
		Outcomes:      outcomes,
		OutcomePrices: prices,
		ClobTokenIDs:  tokens,
	}, nil
}

// priceHistoryResponse mirrors the CLOB prices-history payload.
type priceHistoryResponse struct {
	History []struct {
		T int64   `json:"t"`
		P float64 `json:"p"`
	} `json:"history"`
}

// FetchPriceHistory retrieves the full price history for one outcome of
// a market, resolving the outcome label to its CLOB token ID by index.
// The returned points are ascending and deduplicated by timestamp.
func (c *Client) FetchPriceHistory(ctx context.Context, m *model.Market, outcome string) ([]model.PricePoint, error) {
	token := ""
	for i, name := range m.Outcomes {
		if name == outcome && i < len(m.ClobTokenIDs) {
			token = m.ClobTokenIDs[i]
			break
		}
	}
	if token == "" {
		return nil, fmt.Errorf("market %s has no clob token for outcome %q", m.ID, outcome)
	}

	endpoint := fmt.Sprintf("%s/prices-history?market=%s&interval=max&fidelity=60",
		c.clobURL, url.QueryEscape(token))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp priceHistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode price history for %s/%s: %w", m.ID, outcome, err)
	}

	seen := make(map[int64]struct{}, len(resp.History))
	points := make([]model.PricePoint, 0, len(resp.History))
	for _, h := range resp.History {
		if _, dup := seen[h.T]; dup {
			continue
		}
		seen[h.T] = struct{}{}
		points = append(points, model.PricePoint{
			Timestamp: time.Unix(h.T, 0).UTC(),
			Price:     decimal.NewFromFloat(h.P),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parseStringArray decodes the Gamma convention of JSON arrays shipped
// as strings, e.g. `"[\"Yes\",\"No\"]"`. An empty input yields nil.
func parseStringArray(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
