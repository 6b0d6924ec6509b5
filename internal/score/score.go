// Package score turns a normalized signal into a deterministic confidence
// estimate in [0,1] with per-factor contributions for auditability.
package score

import (
	"fmt"
	"strings"
)

// Band is the eligibility tier a score falls into.
type Band string

const (
	BandAuto    Band = "auto"
	BandManual  Band = "manual"
	BandCaution Band = "caution"
	BandIgnore  Band = "ignore"
)

// Params supplies keyword groups, weights, and band thresholds. Zero-value
// fields fall back to the defaults the bot ships with.
type Params struct {
	EcosystemKeywords []string `yaml:"ecosystem_keywords"`
	LaunchKeywords    []string `yaml:"launch_keywords"`
	TechnicalKeywords []string `yaml:"technical_keywords"`
	ContextKeywords   []string `yaml:"context_keywords"`
	ScamKeywords      []string `yaml:"scam_keywords"`
	WarningKeywords   []string `yaml:"warning_keywords"`

	EcosystemWeight  float64 `yaml:"ecosystem_weight"`
	LaunchWeight     float64 `yaml:"launch_weight"`
	TechnicalWeight  float64 `yaml:"technical_weight"`
	ContextWeight    float64 `yaml:"context_weight"`
	ScamPenalty      float64 `yaml:"scam_penalty"`
	WarningPenalty   float64 `yaml:"warning_penalty"`
	SymbolBonus      float64 `yaml:"symbol_bonus"`
	SymbolLenBonus   float64 `yaml:"symbol_len_bonus"`
	AddrLenBonus     float64 `yaml:"addr_len_bonus"`
	AddrLenBonusLow  float64 `yaml:"addr_len_bonus_low"`
	SuspicionPenalty float64 `yaml:"suspicion_penalty"`

	AutoThreshold    float64 `yaml:"auto_threshold"`
	ManualThreshold  float64 `yaml:"manual_threshold"`
	CautionThreshold float64 `yaml:"caution_threshold"`
}

func defaultParams() Params {
	return Params{
		EcosystemKeywords: []string{
			"solana", "spl token", "raydium", "jupiter", "pump.fun",
			"dexscreener", "birdeye", "bonding curve",
		},
		LaunchKeywords: []string{
			"new token", "launch", "presale", "fair launch", "stealth launch",
			"contract address", "ca:", "token address", "mint address",
			"just launched", "new mint", "fresh token",
		},
		TechnicalKeywords: []string{
			"decimals", "supply", "total supply", "max supply",
			"liquidity pool", "mint authority", "freeze authority",
		},
		ContextKeywords: []string{
			"0 tax", "no tax", "renounced", "burned", "locked", "liquidity",
			"mcap", "market cap",
		},
		ScamKeywords: []string{
			"rug", "rugpull", "scam", "honeypot", "exit scam",
		},
		WarningKeywords: []string{
			"fake", "warning", "avoid", "hacked", "dump", "dumped",
			"mint disabled", "frozen", "blacklist", "high tax", "sell tax",
		},
		EcosystemWeight:  0.20,
		LaunchWeight:     0.15,
		TechnicalWeight:  0.05,
		ContextWeight:    0.08,
		ScamPenalty:      0.40,
		WarningPenalty:   0.20,
		SymbolBonus:      0.25,
		SymbolLenBonus:   0.10,
		AddrLenBonus:     0.15,
		AddrLenBonusLow:  0.10,
		SuspicionPenalty: 0.15,
		AutoThreshold:    0.80,
		ManualThreshold:  0.60,
		CautionThreshold: 0.40,
	}
}

// Factor records one scored indicator and its signed contribution.
type Factor struct {
	Name         string
	Contribution float64
}

// Score is the clamped confidence value with its audit trail.
type Score struct {
	Value   float64
	Band    Band
	Factors []Factor
}

// Scorer evaluates signals against a fixed parameter set. Construct once,
// reuse everywhere; it holds no mutable state.
type Scorer struct {
	p Params
}

// New fills unset params from the defaults and returns a Scorer.
func New(p Params) *Scorer {
	d := defaultParams()
	if len(p.EcosystemKeywords) == 0 {
		p.EcosystemKeywords = d.EcosystemKeywords
	}
	if len(p.LaunchKeywords) == 0 {
		p.LaunchKeywords = d.LaunchKeywords
	}
	if len(p.TechnicalKeywords) == 0 {
		p.TechnicalKeywords = d.TechnicalKeywords
	}
	if len(p.ContextKeywords) == 0 {
		p.ContextKeywords = d.ContextKeywords
	}
	if len(p.ScamKeywords) == 0 {
		p.ScamKeywords = d.ScamKeywords
	}
	if len(p.WarningKeywords) == 0 {
		p.WarningKeywords = d.WarningKeywords
	}
	if p.EcosystemWeight == 0 {
		p.EcosystemWeight = d.EcosystemWeight
	}
	if p.LaunchWeight == 0 {
		p.LaunchWeight = d.LaunchWeight
	}
	if p.TechnicalWeight == 0 {
		p.TechnicalWeight = d.TechnicalWeight
	}
	if p.ContextWeight == 0 {
		p.ContextWeight = d.ContextWeight
	}
	if p.ScamPenalty == 0 {
		p.ScamPenalty = d.ScamPenalty
	}
	if p.WarningPenalty == 0 {
		p.WarningPenalty = d.WarningPenalty
	}
	if p.SymbolBonus == 0 {
		p.SymbolBonus = d.SymbolBonus
	}
	if p.SymbolLenBonus == 0 {
		p.SymbolLenBonus = d.SymbolLenBonus
	}
	if p.AddrLenBonus == 0 {
		p.AddrLenBonus = d.AddrLenBonus
	}
	if p.AddrLenBonusLow == 0 {
		p.AddrLenBonusLow = d.AddrLenBonusLow
	}
	if p.SuspicionPenalty == 0 {
		p.SuspicionPenalty = d.SuspicionPenalty
	}
	if p.AutoThreshold == 0 {
		p.AutoThreshold = d.AutoThreshold
	}
	if p.ManualThreshold == 0 {
		p.ManualThreshold = d.ManualThreshold
	}
	if p.CautionThreshold == 0 {
		p.CautionThreshold = d.CautionThreshold
	}
	return &Scorer{p: p}
}

// Evaluate scores the message text plus extracted address/symbol. Keyword
// groups are walked in declaration order so identical inputs always produce
// the same factor list.
func (s *Scorer) Evaluate(text, address, symbol string, suspicious bool) Score {
	lower := strings.ToLower(text)
	var factors []Factor
	total := 0.0

	add := func(name string, contribution float64) {
		factors = append(factors, Factor{Name: name, Contribution: contribution})
		total += contribution
	}

	for _, kw := range s.p.EcosystemKeywords {
		if strings.Contains(lower, kw) {
			add("ecosystem:"+kw, s.p.EcosystemWeight)
		}
	}
	for _, kw := range s.p.LaunchKeywords {
		if strings.Contains(lower, kw) {
			add("launch:"+kw, s.p.LaunchWeight)
		}
	}
	for _, kw := range s.p.TechnicalKeywords {
		if strings.Contains(lower, kw) {
			add("technical:"+kw, s.p.TechnicalWeight)
		}
	}
	for _, kw := range s.p.ContextKeywords {
		if strings.Contains(lower, kw) {
			add("context:"+kw, s.p.ContextWeight)
		}
	}

	if symbol != "" {
		add("symbol:present", s.p.SymbolBonus)
		if n := len(symbol); n >= 2 && n <= 6 {
			add("symbol:length", s.p.SymbolLenBonus)
		}
	}
	switch n := len(address); {
	case n >= 43 && n <= 44:
		add(fmt.Sprintf("address:length=%d", n), s.p.AddrLenBonus)
	case n >= 40 && n <= 42:
		add(fmt.Sprintf("address:length=%d", n), s.p.AddrLenBonusLow)
	}

	for _, kw := range s.p.ScamKeywords {
		if strings.Contains(lower, kw) {
			add("scam:"+kw, -s.p.ScamPenalty)
		}
	}
	for _, kw := range s.p.WarningKeywords {
		if strings.Contains(lower, kw) {
			add("warning:"+kw, -s.p.WarningPenalty)
		}
	}
	if suspicious {
		add("structure:suspicious", -s.p.SuspicionPenalty)
	}

	value := clamp(total, 0, 1)
	return Score{Value: value, Band: s.band(value), Factors: factors}
}

func (s *Scorer) band(v float64) Band {
	switch {
	case v >= s.p.AutoThreshold:
		return BandAuto
	case v >= s.p.ManualThreshold:
		return BandManual
	case v >= s.p.CautionThreshold:
		return BandCaution
	default:
		return BandIgnore
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
