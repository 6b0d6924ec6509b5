// Package safety decides whether a token is admissible for auto-trading.
// Hard requirements block unconditionally; soft risk feeds into sizing.
package safety

import (
	"context"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/signal"
)

// Hard-fail reason codes. PROVIDER_UNAVAILABLE comes from the shared signal
// reason set so callers see one vocabulary.
const (
	FailMintAuthority   = "MINT_AUTHORITY_ACTIVE"
	FailFreezeAuthority = "FREEZE_AUTHORITY_ACTIVE"
	FailLPUnlocked      = "LP_NOT_LOCKED_OR_BURNED"
	FailTaxTooHigh      = "TAX_ABOVE_CEILING"
	FailBlacklist       = "BLACKLIST_CAPABLE"
	FailPausable        = "TRADING_PAUSABLE"
	FailProvider        = string(signal.ReasonProviderUnavailable)
)

// Facts is the snapshot of token-safety data fetched from the provider at a
// point in time.
type Facts struct {
	MintRevoked     bool
	FreezeRevoked   bool
	LPLockedOrBurned bool
	BuyTaxPct       float64
	SellTaxPct      float64
	HasBlacklist    bool
	CanPauseTrading bool
	LiquidityUSD    float64
	Volume24hUSD    float64
	Top10HolderPct  float64
	TokenAgeHours   float64
}

// Verdict is one evaluation of a token: admissible or hard-blocked, plus a
// graded soft risk in [0,1].
type Verdict struct {
	HardPass  bool
	HardFails []string
	SoftRisk  float64
	Facts     Facts
	CheckedAt time.Time
}

// Thresholds configure the hard limits and soft-risk weights.
type Thresholds struct {
	MaxTaxPct        float64 `yaml:"max_tax_pct"`
	MinLiquidityUSD  float64 `yaml:"min_liquidity_usd"`
	MinVolume24hUSD  float64 `yaml:"min_volume_24h_usd"`
	MaxTop10Pct      float64 `yaml:"max_top10_pct"`
	MinTokenAgeHours float64 `yaml:"min_token_age_hours"`

	WeightLowVolume     float64 `yaml:"weight_low_volume"`
	WeightLowLiquidity  float64 `yaml:"weight_low_liquidity"`
	WeightConcentration float64 `yaml:"weight_concentration"`
	WeightYoungToken    float64 `yaml:"weight_young_token"`
	WeightSuspicion     float64 `yaml:"weight_suspicion"`
}

// DefaultThresholds mirrors the limits the bot has always shipped with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxTaxPct:        0.10,
		MinLiquidityUSD:  100000,
		MinVolume24hUSD:  50000,
		MaxTop10Pct:      0.35,
		MinTokenAgeHours: 24,

		WeightLowVolume:     0.25,
		WeightLowLiquidity:  0.25,
		WeightConcentration: 0.20,
		WeightYoungToken:    0.15,
		WeightSuspicion:     0.15,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MaxTaxPct == 0 {
		t.MaxTaxPct = d.MaxTaxPct
	}
	if t.MinLiquidityUSD == 0 {
		t.MinLiquidityUSD = d.MinLiquidityUSD
	}
	if t.MinVolume24hUSD == 0 {
		t.MinVolume24hUSD = d.MinVolume24hUSD
	}
	if t.MaxTop10Pct == 0 {
		t.MaxTop10Pct = d.MaxTop10Pct
	}
	if t.MinTokenAgeHours == 0 {
		t.MinTokenAgeHours = d.MinTokenAgeHours
	}
	if t.WeightLowVolume == 0 {
		t.WeightLowVolume = d.WeightLowVolume
	}
	if t.WeightLowLiquidity == 0 {
		t.WeightLowLiquidity = d.WeightLowLiquidity
	}
	if t.WeightConcentration == 0 {
		t.WeightConcentration = d.WeightConcentration
	}
	if t.WeightYoungToken == 0 {
		t.WeightYoungToken = d.WeightYoungToken
	}
	if t.WeightSuspicion == 0 {
		t.WeightSuspicion = d.WeightSuspicion
	}
	return t
}

// Evaluate applies the hard requirements and accumulates soft risk from a
// facts snapshot. Pure; the Gate handles fetching and caching.
func Evaluate(facts Facts, suspicious bool, t Thresholds) Verdict {
	t = t.withDefaults()
	v := Verdict{Facts: facts, CheckedAt: time.Now().UTC()}

	if !facts.MintRevoked {
		v.HardFails = append(v.HardFails, FailMintAuthority)
	}
	if !facts.FreezeRevoked {
		v.HardFails = append(v.HardFails, FailFreezeAuthority)
	}
	if !facts.LPLockedOrBurned {
		v.HardFails = append(v.HardFails, FailLPUnlocked)
	}
	if facts.BuyTaxPct+facts.SellTaxPct > t.MaxTaxPct {
		v.HardFails = append(v.HardFails, FailTaxTooHigh)
	}
	if facts.HasBlacklist {
		v.HardFails = append(v.HardFails, FailBlacklist)
	}
	if facts.CanPauseTrading {
		v.HardFails = append(v.HardFails, FailPausable)
	}
	v.HardPass = len(v.HardFails) == 0

	risk := 0.0
	if facts.Volume24hUSD < t.MinVolume24hUSD {
		risk += t.WeightLowVolume
	}
	if facts.LiquidityUSD < t.MinLiquidityUSD {
		risk += t.WeightLowLiquidity
	}
	if facts.Top10HolderPct > t.MaxTop10Pct {
		risk += t.WeightConcentration
	}
	if facts.TokenAgeHours < t.MinTokenAgeHours {
		risk += t.WeightYoungToken
	}
	if suspicious {
		risk += t.WeightSuspicion
	}
	if risk > 1 {
		risk = 1
	}
	v.SoftRisk = risk
	return v
}

// Unavailable is the fail-closed verdict used when the facts provider cannot
// be reached.
func Unavailable() Verdict {
	return Verdict{
		HardPass:  false,
		HardFails: []string{FailProvider},
		SoftRisk:  1,
		CheckedAt: time.Now().UTC(),
	}
}

// FactsProvider fetches a facts snapshot for a token. Implementations must
// honor the context deadline.
type FactsProvider interface {
	Fetch(ctx context.Context, token string) (Facts, error)
}

// Gate wraps a FactsProvider with a bounded timeout and a short TTL cache so
// bursts of signals for the same token do not hammer the provider.
type Gate struct {
	provider   FactsProvider
	thresholds Thresholds
	timeout    time.Duration
	verdicts   *cache.Cache
	log        zerolog.Logger
}

// NewGate builds a Gate. cacheTTL bounds verdict staleness; zero disables
// caching entirely.
func NewGate(provider FactsProvider, t Thresholds, timeout, cacheTTL time.Duration, log zerolog.Logger) *Gate {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	var verdicts *cache.Cache
	if cacheTTL > 0 {
		verdicts = cache.New(cacheTTL, 2*cacheTTL)
	}
	return &Gate{
		provider:   provider,
		thresholds: t.withDefaults(),
		timeout:    timeout,
		verdicts:   verdicts,
		log:        log,
	}
}

// Check fetches (or reuses) facts for the token and evaluates them. Provider
// errors and timeouts fail closed.
func (g *Gate) Check(ctx context.Context, token string, suspicious bool) Verdict {
	key := cacheKey(token, suspicious)
	if g.verdicts != nil {
		if cached, ok := g.verdicts.Get(key); ok {
			return cached.(Verdict)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	facts, err := g.provider.Fetch(fetchCtx, token)
	if err != nil {
		g.log.Warn().Err(err).Str("token", token).Msg("safety facts unavailable, failing closed")
		return Unavailable()
	}

	v := Evaluate(facts, suspicious, g.thresholds)
	if g.verdicts != nil {
		g.verdicts.Set(key, v, cache.DefaultExpiration)
	}
	return v
}

func cacheKey(token string, suspicious bool) string {
	return fmt.Sprintf("%s|%t", token, suspicious)
}
