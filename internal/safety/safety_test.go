package safety

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func cleanFacts() Facts {
	return Facts{
		MintRevoked:      true,
		FreezeRevoked:    true,
		LPLockedOrBurned: true,
		BuyTaxPct:        0.01,
		SellTaxPct:       0.01,
		LiquidityUSD:     250000,
		Volume24hUSD:     120000,
		Top10HolderPct:   0.20,
		TokenAgeHours:    72,
	}
}

func TestEvaluateCleanToken(t *testing.T) {
	v := Evaluate(cleanFacts(), false, Thresholds{})
	if !v.HardPass {
		t.Fatalf("expected hard pass, fails: %v", v.HardFails)
	}
	if v.SoftRisk != 0 {
		t.Fatalf("expected zero soft risk, got %.2f", v.SoftRisk)
	}
}

func TestEvaluateHardFails(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Facts)
		want   string
	}{
		{"mint", func(f *Facts) { f.MintRevoked = false }, FailMintAuthority},
		{"freeze", func(f *Facts) { f.FreezeRevoked = false }, FailFreezeAuthority},
		{"lp", func(f *Facts) { f.LPLockedOrBurned = false }, FailLPUnlocked},
		{"tax", func(f *Facts) { f.BuyTaxPct = 0.08; f.SellTaxPct = 0.08 }, FailTaxTooHigh},
		{"blacklist", func(f *Facts) { f.HasBlacklist = true }, FailBlacklist},
		{"pause", func(f *Facts) { f.CanPauseTrading = true }, FailPausable},
	}
	for _, tc := range cases {
		facts := cleanFacts()
		tc.mutate(&facts)
		v := Evaluate(facts, false, Thresholds{})
		if v.HardPass {
			t.Fatalf("%s: expected hard fail", tc.name)
		}
		found := false
		for _, f := range v.HardFails {
			if f == tc.want {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: expected %s in %v", tc.name, tc.want, v.HardFails)
		}
	}
}

func TestEvaluateSoftRiskAccumulates(t *testing.T) {
	facts := cleanFacts()
	facts.Volume24hUSD = 1000
	facts.LiquidityUSD = 5000
	facts.Top10HolderPct = 0.80
	facts.TokenAgeHours = 2
	v := Evaluate(facts, true, Thresholds{})
	if !v.HardPass {
		t.Fatalf("soft factors must not hard-fail: %v", v.HardFails)
	}
	if v.SoftRisk != 1 {
		t.Fatalf("expected saturated soft risk, got %.2f", v.SoftRisk)
	}
}

func TestUnavailableFailsClosed(t *testing.T) {
	v := Unavailable()
	if v.HardPass {
		t.Fatalf("unavailable verdict must not pass")
	}
	if len(v.HardFails) != 1 || v.HardFails[0] != FailProvider {
		t.Fatalf("expected provider fail, got %v", v.HardFails)
	}
	if v.SoftRisk != 1 {
		t.Fatalf("expected max soft risk, got %.2f", v.SoftRisk)
	}
}

type stubProvider struct {
	facts Facts
	err   error
	calls int
}

func (p *stubProvider) Fetch(ctx context.Context, token string) (Facts, error) {
	p.calls++
	if p.err != nil {
		return Facts{}, p.err
	}
	return p.facts, nil
}

func TestGateFailsClosedOnProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("boom")}
	gate := NewGate(provider, Thresholds{}, time.Second, 0, zerolog.Nop())
	v := gate.Check(context.Background(), "TOKEN", false)
	if v.HardPass {
		t.Fatalf("expected fail-closed verdict")
	}
	if v.HardFails[0] != FailProvider {
		t.Fatalf("expected provider fail, got %v", v.HardFails)
	}
}

func TestGateCachesVerdicts(t *testing.T) {
	provider := &stubProvider{facts: cleanFacts()}
	gate := NewGate(provider, Thresholds{}, time.Second, time.Minute, zerolog.Nop())
	for i := 0; i < 5; i++ {
		if v := gate.Check(context.Background(), "TOKEN", false); !v.HardPass {
			t.Fatalf("expected pass")
		}
	}
	if provider.calls != 1 {
		t.Fatalf("expected single fetch, got %d", provider.calls)
	}
	// A different suspicion flag is a different cache entry.
	gate.Check(context.Background(), "TOKEN", true)
	if provider.calls != 2 {
		t.Fatalf("expected second fetch, got %d", provider.calls)
	}
}

func TestHTTPProviderParsesReport(t *testing.T) {
	report := `{
		"token": {"mintAuthority": null, "freezeAuthority": null,
		          "transferFee": {"buyPct": 0.01, "sellPct": 0.02},
		          "ageHours": 48},
		"totalMarketLiquidity": 150000,
		"volume24h": 90000,
		"markets": [{"lp": {"lpLockedPct": 95, "lpBurned": false}}],
		"topHolders": [{"pct": 0.05}, {"pct": 0.04}],
		"risks": [{"name": "Blacklist function"}, {"name": "Can pause trading"}]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tokens/MINT/report" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(report))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, time.Second)
	facts, err := provider.Fetch(context.Background(), "MINT")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !facts.MintRevoked || !facts.FreezeRevoked {
		t.Fatalf("null authorities should mean revoked: %+v", facts)
	}
	if !facts.LPLockedOrBurned {
		t.Fatalf("95%% locked LP should count as locked")
	}
	if facts.BuyTaxPct != 0.01 || facts.SellTaxPct != 0.02 {
		t.Fatalf("unexpected taxes: %+v", facts)
	}
	if facts.LiquidityUSD != 150000 || facts.Volume24hUSD != 90000 {
		t.Fatalf("unexpected market facts: %+v", facts)
	}
	if facts.Top10HolderPct < 0.089 || facts.Top10HolderPct > 0.091 {
		t.Fatalf("expected summed top10 ~0.09, got %.4f", facts.Top10HolderPct)
	}
	if !facts.HasBlacklist || !facts.CanPauseTrading {
		t.Fatalf("risk flags not detected: %+v", facts)
	}
}

func TestHTTPProviderBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, time.Second)
	if _, err := provider.Fetch(context.Background(), "MINT"); err == nil {
		t.Fatalf("expected error on 429")
	}
}
