package upstream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyfolio/valuation-engine/internal/model"
	"github.com/polyfolio/valuation-engine/internal/upstream"
)

func TestFetchMarket_ParsesStringifiedArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/mkt-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": "mkt-1",
			"question": "Will it rain tomorrow?",
			"outcomes": "[\"Yes\",\"No\"]",
			"outcomePrices": "[\"0.63\",\"0.37\"]",
			"clobTokenIds": "[\"111\",\"222\"]"
		}`))
	}))
	defer srv.Close()

	c := upstream.NewClient(srv.URL, srv.URL)
	m, err := c.FetchMarket(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("FetchMarket: %v", err)
	}

	if m.Question != "Will it rain tomorrow?" {
		t.Errorf("unexpected question %q", m.Question)
	}
	if len(m.Outcomes) != 2 || m.Outcomes[0] != "Yes" || m.Outcomes[1] != "No" {
		t.Errorf("unexpected outcomes %v", m.Outcomes)
	}
	if !m.OutcomePrices[0].Equal(decimal.NewFromFloat(0.63)) {
		t.Errorf("unexpected yes price %s", m.OutcomePrices[0])
	}
	if m.ClobTokenIDs[1] != "222" {
		t.Errorf("unexpected token ids %v", m.ClobTokenIDs)
	}
}

func TestFetchMarket_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := upstream.NewClient(srv.URL, srv.URL)
	if _, err := c.FetchMarket(context.Background(), "mkt-1"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestFetchPriceHistory_SortsAndDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("market"); got != "222" {
			t.Errorf("expected token 222, got %q", got)
		}
		// Out of order with a duplicate timestamp.
		w.Write([]byte(`{"history":[
			{"t": 1717250400, "p": 0.42},
			{"t": 1717246800, "p": 0.40},
			{"t": 1717250400, "p": 0.43}
		]}`))
	}))
	defer srv.Close()

	c := upstream.NewClient(srv.URL, srv.URL)
	m := &model.Market{
		ID:           "mkt-1",
		Outcomes:     []string{"Yes", "No"},
		ClobTokenIDs: []string{"111", "222"},
	}

	points, err := c.FetchPriceHistory(context.Background(), m, "No")
	if err != nil {
		t.Fatalf("FetchPriceHistory: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("want 2 deduplicated points, got %d", len(points))
	}
	if !points[0].Timestamp.Before(points[1].Timestamp) {
		t.Error("points must be ascending")
	}
	if !points[0].Price.Equal(decimal.NewFromFloat(0.40)) {
		t.Errorf("unexpected first price %s", points[0].Price)
	}
}

func TestFetchPriceHistory_UnknownOutcome(t *testing.T) {
	c := upstream.NewClient("http://unused", "http://unused")
	m := &model.Market{ID: "mkt-1", Outcomes: []string{"Yes"}, ClobTokenIDs: []string{"111"}}

	if _, err := c.FetchPriceHistory(context.Background(), m, "No"); err == nil {
		t.Fatal("expected error for unknown outcome")
	}
}
