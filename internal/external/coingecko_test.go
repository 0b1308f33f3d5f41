package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchUSDPrices(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"filecoin": {"usd": 2.85},
			"litecoin": {"usd": 84.123456789012345678901},
			"siren": {"eur": 0.1}
		}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, 0, 1)
	prices, err := client.FetchUSDPrices(context.Background(), []string{"litecoin", "filecoin", "siren", "filecoin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(gotQuery, "ids=filecoin,litecoin,siren") || !strings.Contains(gotQuery, "vs_currencies=usd") {
		t.Errorf("query = %q, want sorted unique ids in usd", gotQuery)
	}
	if prices["filecoin"].String() != "2.85" {
		t.Errorf("filecoin = %s, want 2.85", prices["filecoin"])
	}
	// No float rounding on the way through.
	if prices["litecoin"].String() != "84.123456789012345678901" {
		t.Errorf("litecoin = %s", prices["litecoin"])
	}
	if _, ok := prices["siren"]; ok {
		t.Error("siren has no usd price and should be absent")
	}
}

func TestFetchUSDPricesNoIDs(t *testing.T) {
	client := NewCoinGeckoClient("http://127.0.0.1:0", 0, 0)
	prices, err := client.FetchUSDPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("prices = %v, want empty", prices)
	}
}

func TestFetchUSDPricesRetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"filecoin": {"usd": 3}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, 10*time.Millisecond, 2)
	prices, err := client.FetchUSDPrices(context.Background(), []string{"filecoin"})
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if prices["filecoin"].String() != "3" {
		t.Errorf("filecoin = %s, want 3", prices["filecoin"])
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestFetchUSDPricesRateLimitedExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 1)
	if _, err := client.FetchUSDPrices(context.Background(), []string{"filecoin"}); err == nil {
		t.Fatal("expected rate limit error")
	}
}

func TestFetchUSDPricesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, 0, 3)
	_, err := client.FetchUSDPrices(context.Background(), []string{"filecoin"})
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("err = %v, want HTTP 500", err)
	}
}

func TestFetchUSDPricesContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1 * time.Second)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	client := NewCoinGeckoClient(server.URL, 0, 1)
	if _, err := client.FetchUSDPrices(ctx, []string{"filecoin"}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
