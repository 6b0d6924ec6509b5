// Package policy holds per-user trading configuration and the pure entry
// decision function that combines confidence, safety, and budget.
package policy

import (
	"fmt"
	"time"

	"github.com/Carl590/ai-trading-bot/internal/safety"
	"github.com/Carl590/ai-trading-bot/internal/signal"
)

// Policy is one user's trading configuration. Mutated only by explicit user
// action through the Store; the engine treats values as read-only.
type Policy struct {
	User    string `json:"user"`
	Enabled bool   `json:"enabled"`

	MaxPositionUSD float64 `json:"max_position_usd"`
	DailyBudgetUSD float64 `json:"daily_budget_usd"`
	MinConfidence  float64 `json:"min_confidence"`

	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	MaxAgeSecs    int     `json:"max_age_secs"`

	WhitelistChannels []string `json:"whitelist_channels"`
	BlacklistChannels []string `json:"blacklist_channels"`
	Restrictive       bool     `json:"restrictive"`

	DuplicateWindowHours int `json:"duplicate_window_hours"`

	Version int64 `json:"version"`
}

// Default returns the settings a new user starts with.
func Default(user string) Policy {
	return Policy{
		User:                 user,
		Enabled:              false,
		MaxPositionUSD:       100,
		DailyBudgetUSD:       500,
		MinConfidence:        0.8,
		StopLossPct:          0.20,
		TakeProfitPct:        0.50,
		MaxAgeSecs:           0, // no forced exit by default
		DuplicateWindowHours: 24,
	}
}

// MaxAge returns the forced-exit age, zero meaning disabled.
func (p Policy) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeSecs) * time.Second
}

// DuplicateWindow returns the duplicate-buy protection window.
func (p Policy) DuplicateWindow() time.Duration {
	return time.Duration(p.DuplicateWindowHours) * time.Hour
}

// ChannelAllowed applies the blacklist-over-whitelist rule: a blacklisted
// channel is always refused; an empty whitelist allows everything else
// unless the policy is restrictive.
func (p Policy) ChannelAllowed(channel string) (bool, signal.Reason) {
	for _, c := range p.BlacklistChannels {
		if c == channel {
			return false, signal.ReasonBlacklisted
		}
	}
	if len(p.WhitelistChannels) == 0 {
		if p.Restrictive {
			return false, signal.ReasonNotWhitelisted
		}
		return true, ""
	}
	for _, c := range p.WhitelistChannels {
		if c == channel {
			return true, ""
		}
	}
	return false, signal.ReasonNotWhitelisted
}

// Sizing configures how soft risk shrinks position size. Dampening is the
// fraction of the size removed at soft risk 1.0.
type Sizing struct {
	SoftRiskDampening float64 `yaml:"soft_risk_dampening"`
}

// Decision is the result of the risk & sizing policy: either an entry with a
// positive size or a single rejection reason.
type Decision struct {
	Enter     bool
	SizeUSD   float64
	Reason    signal.Reason
	Rationale []string
}

// Decide applies the user's policy to a scored, safety-checked signal.
// committedToday is the quote-currency total already committed by this user
// since midnight UTC. Pure: no I/O, no clock reads.
func Decide(channel string, confidence float64, verdict safety.Verdict, p Policy, committedToday float64, sizing Sizing) Decision {
	if !p.Enabled {
		return reject(signal.ReasonPolicyDisabled)
	}
	if ok, reason := p.ChannelAllowed(channel); !ok {
		return reject(reason)
	}
	if confidence < p.MinConfidence {
		return reject(signal.ReasonConfidenceBelow)
	}
	if !verdict.HardPass {
		return reject(signal.ReasonSafetyHardFail)
	}

	remaining := p.DailyBudgetUSD - committedToday
	if remaining <= 0 {
		return reject(signal.ReasonDailyBudget)
	}

	size := p.MaxPositionUSD
	if remaining < size {
		size = remaining
	}
	dampening := sizing.SoftRiskDampening
	if dampening < 0 {
		dampening = 0
	}
	if dampening > 1 {
		dampening = 1
	}
	size *= 1 - dampening*verdict.SoftRisk
	if size <= 0 {
		return reject(signal.ReasonBudgetExhausted)
	}

	return Decision{
		Enter:   true,
		SizeUSD: size,
		Rationale: []string{
			fmt.Sprintf("confidence=%.2f min=%.2f", confidence, p.MinConfidence),
			fmt.Sprintf("soft_risk=%.2f dampening=%.2f", verdict.SoftRisk, dampening),
			fmt.Sprintf("budget_remaining=%.2f cap=%.2f", remaining, p.MaxPositionUSD),
		},
	}
}

func reject(reason signal.Reason) Decision {
	return Decision{Reason: reason}
}
