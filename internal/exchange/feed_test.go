package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/signal"
)

func TestSetTokensDedupesAndSorts(t *testing.T) {
	f := NewFeed(ProviderStub, []string{"bbb", " aaa ", "bbb", ""}, zerolog.Nop())
	got := f.snapshotTokens()
	if len(got) != 2 || got[0] != "aaa" || got[1] != "bbb" {
		t.Fatalf("unexpected tokens: %v", got)
	}
}

func TestStubFeedEmitsTicks(t *testing.T) {
	f := NewFeed(ProviderStub, []string{"MINT"}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ticks := make(chan signal.Tick, 8)
	go func() { _ = f.Run(ctx, ticks) }()

	select {
	case tk := <-ticks:
		if tk.Token != "MINT" || tk.Price <= 0 {
			t.Fatalf("unexpected tick: %+v", tk)
		}
		if px, ok := f.LastPrice("MINT"); !ok || px != tk.Price {
			t.Fatalf("last price not recorded: %v %v", px, ok)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for stub tick")
	}
}

func TestFetchDexScreenerPicksDeepestPair(t *testing.T) {
	payload := `{"pairs": [
		{"chainId": "solana", "priceUsd": "0.5", "liquidity": {"usd": 10000}},
		{"chainId": "solana", "priceUsd": "1.25", "liquidity": {"usd": 500000}}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/latest/dex/tokens/") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	f := NewFeed(ProviderDexScreener, []string{"MINT"}, zerolog.Nop(),
		WithDexScreenerBaseURL(server.URL))
	tick, err := f.fetchDexScreener(context.Background(), server.Client(), "MINT")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tick.Price != 1.25 {
		t.Fatalf("expected deepest pair price 1.25, got %v", tick.Price)
	}
	if tick.Liquidity != 500000 {
		t.Fatalf("expected liquidity 500000, got %v", tick.Liquidity)
	}
}

func TestFetchDexScreenerNoPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": []}`))
	}))
	defer server.Close()

	f := NewFeed(ProviderDexScreener, []string{"MINT"}, zerolog.Nop(),
		WithDexScreenerBaseURL(server.URL))
	if _, err := f.fetchDexScreener(context.Background(), server.Client(), "MINT"); err == nil {
		t.Fatalf("expected error for empty pair list")
	}
}

func TestParseDexScreenerPrice(t *testing.T) {
	if _, err := parseDexScreenerPrice(&dexscreenerPair{}); err == nil {
		t.Fatalf("expected error for missing price")
	}
	px, err := parseDexScreenerPrice(&dexscreenerPair{PriceNative: "0.004"})
	if err != nil || px != 0.004 {
		t.Fatalf("native fallback failed: %v %v", px, err)
	}
}
