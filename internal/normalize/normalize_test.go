package normalize

import (
	"testing"

	"github.com/Carl590/ai-trading-bot/internal/signal"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestNormalizeExtractsAddressAndSymbol(t *testing.T) {
	n := New()
	out, reason := n.Normalize(signal.Signal{
		Channel: "alpha",
		Text:    "new token on solana $BONK " + bonkMint,
	})
	if reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if out.Address != bonkMint {
		t.Fatalf("expected address %s, got %s", bonkMint, out.Address)
	}
	if out.Symbol != "BONK" {
		t.Fatalf("expected symbol BONK, got %q", out.Symbol)
	}
}

func TestNormalizeNoAddress(t *testing.T) {
	n := New()
	_, reason := n.Normalize(signal.Signal{Text: "gm frens, big things coming"})
	if reason != signal.ReasonInvalidFormat {
		t.Fatalf("expected INVALID_FORMAT, got %s", reason)
	}
}

func TestNormalizeRejectsMalformedAddress(t *testing.T) {
	n := New()
	// Base58 shape but not a decodable 32-byte key.
	_, reason := n.Normalize(signal.Signal{Address: "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"})
	if reason != signal.ReasonInvalidFormat && reason != signal.ReasonSuspiciousPattern {
		t.Fatalf("expected rejection, got %s", reason)
	}
}

func TestNormalizeExcludedAddress(t *testing.T) {
	n := New()
	_, reason := n.Normalize(signal.Signal{Text: "buy now " + usdcMint})
	if reason != signal.ReasonExcludedAddress {
		t.Fatalf("expected EXCLUDED_ADDRESS, got %s", reason)
	}
}

func TestNormalizeCustomExclusion(t *testing.T) {
	n := New(WithExclusions([]string{bonkMint}))
	_, reason := n.Normalize(signal.Signal{Text: "ape " + bonkMint})
	if reason != signal.ReasonExcludedAddress {
		t.Fatalf("expected EXCLUDED_ADDRESS, got %s", reason)
	}
}

func TestNormalizeSkipsExcludedThenAcceptsNext(t *testing.T) {
	n := New()
	out, reason := n.Normalize(signal.Signal{
		Text: "pair vs " + usdcMint + " mint " + bonkMint,
	})
	if reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if out.Address != bonkMint {
		t.Fatalf("expected fallthrough to %s, got %s", bonkMint, out.Address)
	}
}

func TestSymbolPatterns(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"$WIF is mooning " + bonkMint, "WIF"},
		{"CA: PEPE " + bonkMint, "PEPE"},
		{"grab the DOGE token now " + bonkMint, "DOGE"},
		{"token: SHIB " + bonkMint, "SHIB"},
		{"no ticker here " + bonkMint, ""},
	}
	n := New()
	for _, tc := range cases {
		out, reason := n.Normalize(signal.Signal{Text: tc.text})
		if reason != "" {
			t.Fatalf("%q: unexpected rejection %s", tc.text, reason)
		}
		if out.Symbol != tc.want {
			t.Fatalf("%q: expected symbol %q, got %q", tc.text, tc.want, out.Symbol)
		}
	}
}

func TestLongestRunAndDistinct(t *testing.T) {
	if got := longestRun("aaabbc"); got != 3 {
		t.Fatalf("expected run 3, got %d", got)
	}
	if got := distinctChars("aabbcc"); got != 3 {
		t.Fatalf("expected 3 distinct, got %d", got)
	}
}
