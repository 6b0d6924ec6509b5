// Package exchange hosts the market data feeds that drive the trailing stop
// engine. All feeds emit ticks keyed by token mint address.
package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/metrics"
	"github.com/Carl590/ai-trading-bot/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderDexScreener polls the Dexscreener HTTP API for token pairs.
	ProviderDexScreener = "dexscreener"
	// ProviderPumpPortal streams token trades from the PumpPortal websocket.
	ProviderPumpPortal = "pumpportal"
)

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider           string
	tokens             []string
	log                zerolog.Logger
	pollInterval       time.Duration
	dexscreenerBaseURL string
	pumpportalURL      string
	lastPrices         map[string]float64
	mu                 sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultPollInterval       = 2 * time.Second
	defaultDexScreenerBaseURL = "https://api.dexscreener.com"
	defaultPumpPortalURL      = "wss://pumpportal.fun/api/data"
)

// WithPollInterval overrides the default polling cadence for HTTP-based feeds.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithDexScreenerBaseURL overrides the Dexscreener endpoint.
func WithDexScreenerBaseURL(baseURL string) Option {
	return func(f *Feed) {
		if baseURL != "" {
			f.dexscreenerBaseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithPumpPortalURL overrides the PumpPortal websocket endpoint.
func WithPumpPortalURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.pumpportalURL = url
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, tokens []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:           strings.ToLower(provider),
		log:                log,
		pollInterval:       defaultPollInterval,
		dexscreenerBaseURL: defaultDexScreenerBaseURL,
		pumpportalURL:      defaultPumpPortalURL,
		lastPrices:         make(map[string]float64),
	}
	f.setTokens(tokens)
	for _, opt := range opts {
		opt(f)
	}
	if f.pollInterval <= 0 {
		f.pollInterval = defaultPollInterval
	}
	return f
}

// SetTokens replaces the tracked token list (deduplicated, sorted for
// determinism). The engine calls this whenever a position opens or closes.
func (f *Feed) SetTokens(tokens []string) {
	f.setTokens(tokens)
}

func (f *Feed) setTokens(tokens []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		unique[t] = struct{}{}
	}
	f.tokens = f.tokens[:0]
	for t := range unique {
		f.tokens = append(f.tokens, t)
	}
	sort.Strings(f.tokens)
}

func (f *Feed) snapshotTokens() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// LastPrice returns the most recent price seen for a token.
func (f *Feed) LastPrice(token string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	px, ok := f.lastPrices[token]
	return px, ok
}

func (f *Feed) recordPrice(token string, price float64) {
	f.mu.Lock()
	f.lastPrices[token] = price
	f.mu.Unlock()
}

// Run pushes ticks onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Tick) error {
	switch f.provider {
	case ProviderDexScreener:
		return f.runDexScreener(ctx, out)
	case ProviderPumpPortal:
		return f.runPumpPortal(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Tick) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var px float64 = 100.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			px += 0.1
			for _, token := range f.snapshotTokens() {
				f.recordPrice(token, px)
				tick := signal.Tick{Token: token, Price: px, Liquidity: 1_000_000, Ts: ts}
				select {
				case out <- tick:
					metrics.TicksTotal.WithLabelValues(f.provider).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
