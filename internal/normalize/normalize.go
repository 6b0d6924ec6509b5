// Package normalize extracts and validates token addresses and symbols from
// raw channel messages. Everything here is pure: same input, same output, no
// network calls.
package normalize

import (
	"regexp"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	"github.com/Carl590/ai-trading-bot/internal/signal"
)

var (
	// Base58 alphabet, 32-44 chars: the shape of a Solana mint.
	addressPattern = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)

	symbolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9]{1,5})\b`),
		regexp.MustCompile(`(?i)\bCA:\s*([A-Za-z][A-Za-z0-9]{1,5})\b`),
		regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9]{1,5})\s+(?:token|coin|mint)\b`),
		regexp.MustCompile(`(?i)\b(?:token|coin|mint|contract):\s*([A-Za-z][A-Za-z0-9]{1,5})\b`),
	}
)

// Known program and quote-asset addresses that show up in messages but are
// never tradeable meme tokens.
func defaultExclusions() map[string]struct{} {
	return map[string]struct{}{
		"11111111111111111111111111111111":             {}, // System Program
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  {}, // Token Program
		"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL": {}, // Associated Token Program
		"So11111111111111111111111111111111111111112":  {}, // Wrapped SOL
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {}, // USDC
		"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {}, // USDT
	}
}

// Fragments that occasionally match the base58 shape but are never addresses
// (links, venue names pasted without spaces).
var embeddedWords = []string{
	"twitter", "telegram", "website", "medium", "github", "discord",
	"youtube", "instagram", "http", "www",
}

// Normalized is a signal with a validated address and any extracted symbol.
// Suspicious marks borderline structure that passes validation but should
// count against the confidence score and the safety soft risk.
type Normalized struct {
	signal.Signal
	Suspicious bool
}

// Normalizer validates candidate addresses against the chain alphabet, an
// exclusion set, and structural sanity checks.
type Normalizer struct {
	excluded    map[string]struct{}
	maxRun      int // reject when one char repeats this many times in a row
	minDistinct int // reject below this many unique chars
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithExclusions adds addresses to the exclusion set.
func WithExclusions(addrs []string) Option {
	return func(n *Normalizer) {
		for _, a := range addrs {
			if a = strings.TrimSpace(a); a != "" {
				n.excluded[a] = struct{}{}
			}
		}
	}
}

// WithStructureLimits overrides the repetition and diversity thresholds.
func WithStructureLimits(maxRun, minDistinct int) Option {
	return func(n *Normalizer) {
		if maxRun > 0 {
			n.maxRun = maxRun
		}
		if minDistinct > 0 {
			n.minDistinct = minDistinct
		}
	}
}

// New builds a Normalizer with the default exclusion set and limits.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		excluded:    defaultExclusions(),
		maxRun:      7,
		minDistinct: 8,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates the signal's address (extracting one from the text if
// unset) and extracts a symbol. Returns nil plus a reason code on rejection.
func (n *Normalizer) Normalize(s signal.Signal) (*Normalized, signal.Reason) {
	candidates := []string{}
	if s.Address != "" {
		candidates = append(candidates, s.Address)
	} else {
		candidates = addressPattern.FindAllString(s.Text, -1)
	}
	if len(candidates) == 0 {
		return nil, signal.ReasonInvalidFormat
	}

	var firstReason signal.Reason
	for _, addr := range candidates {
		reason := n.validate(addr)
		if reason != "" {
			if firstReason == "" {
				firstReason = reason
			}
			continue
		}
		out := &Normalized{Signal: s, Suspicious: n.isBorderline(addr)}
		out.Address = addr
		if out.Symbol == "" {
			out.Symbol = extractSymbol(s.Text, addr)
		}
		return out, ""
	}
	return nil, firstReason
}

func (n *Normalizer) validate(addr string) signal.Reason {
	if len(addr) < 32 || len(addr) > 44 {
		return signal.ReasonInvalidFormat
	}
	// The regex guarantees the alphabet; the decode guarantees it is a real
	// 32-byte key, which catches well-formed but truncated strings.
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		return signal.ReasonInvalidFormat
	}
	if _, ok := n.excluded[addr]; ok {
		return signal.ReasonExcludedAddress
	}

	lower := strings.ToLower(addr)
	for _, word := range embeddedWords {
		if strings.Contains(lower, word) {
			return signal.ReasonSuspiciousPattern
		}
	}
	if longestRun(addr) >= n.maxRun {
		return signal.ReasonSuspiciousPattern
	}
	if distinctChars(addr) < n.minDistinct {
		return signal.ReasonSuspiciousPattern
	}
	return ""
}

// isBorderline flags structure that passes validation but sits near the
// rejection thresholds.
func (n *Normalizer) isBorderline(addr string) bool {
	if longestRun(addr) >= n.maxRun-2 {
		return true
	}
	return distinctChars(addr) < n.minDistinct+4
}

// extractSymbol searches the text near the address for a ticker pattern,
// widening to the whole message when nothing is nearby.
func extractSymbol(text, addr string) string {
	idx := strings.Index(text, addr)
	window := text
	if idx >= 0 {
		start := idx - 120
		if start < 0 {
			start = 0
		}
		end := idx + len(addr) + 120
		if end > len(text) {
			end = len(text)
		}
		window = text[start:end]
	}
	for _, zone := range []string{window, text} {
		for _, pattern := range symbolPatterns {
			if m := pattern.FindStringSubmatch(zone); m != nil {
				return strings.ToUpper(m[1])
			}
		}
	}
	return ""
}

func longestRun(s string) int {
	best, run := 0, 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = r
	}
	return best
}

func distinctChars(s string) int {
	seen := make(map[rune]struct{}, len(s))
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}
