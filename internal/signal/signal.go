// Package signal standardizes payloads shared between intake, scoring, and
// the decision engine.
package signal

import "time"

// Signal is a raw or normalized trading signal observed in a monitored
// channel. Immutable once created; normalization returns a copy with the
// extracted fields populated.
type Signal struct {
	Channel  string
	Text     string
	Received time.Time
	Address  string // token mint, empty until extracted
	Symbol   string // ticker symbol, empty if none found
}

// Tick is a single price/liquidity observation for a token. Ts is the feed's
// logical timestamp; observations arriving out of order are discarded per
// position, never reapplied.
type Tick struct {
	Token     string
	Price     float64
	Liquidity float64
	Ts        time.Time
}

// Reason identifies why a signal or decision was rejected at some stage.
type Reason string

const (
	// Normalizer rejections.
	ReasonInvalidFormat     Reason = "INVALID_FORMAT"
	ReasonExcludedAddress   Reason = "EXCLUDED_ADDRESS"
	ReasonSuspiciousPattern Reason = "SUSPICIOUS_PATTERN"

	// Policy rejections.
	ReasonConfidenceBelow   Reason = "CONFIDENCE_BELOW_THRESHOLD"
	ReasonSafetyHardFail    Reason = "SAFETY_HARD_FAIL"
	ReasonDailyBudget       Reason = "DAILY_BUDGET_EXCEEDED"
	ReasonBudgetExhausted   Reason = "BUDGET_EXHAUSTED"
	ReasonPolicyDisabled    Reason = "POLICY_DISABLED"
	ReasonDuplicatePosition Reason = "DUPLICATE_OPEN_POSITION"
	ReasonNotWhitelisted    Reason = "CHANNEL_NOT_WHITELISTED"
	ReasonBlacklisted       Reason = "CHANNEL_BLACKLISTED"
	ReasonDuplicateWindow   Reason = "DUPLICATE_BUY_WINDOW"

	// Transient failures.
	ReasonProviderUnavailable Reason = "PROVIDER_UNAVAILABLE"
	ReasonExecutionFailed     Reason = "EXECUTION_FAILED"
)

// Stage names the pipeline stage that produced a rejection.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageScore     Stage = "score"
	StageSafety    Stage = "safety"
	StagePolicy    Stage = "policy"
	StageDispatch  Stage = "dispatch"
)

// UserResult is the per-user outcome of processing one signal.
type UserResult struct {
	User    string
	Entered bool
	SizeUSD float64
	Stage   Stage
	Reason  Reason
}

// Outcome reports what happened to a submitted signal: either a signal-level
// rejection (Stage/Reason set) or per-user decision results.
type Outcome struct {
	Token  string
	Symbol string
	Score  float64
	Band   string
	Stage  Stage
	Reason Reason
	Users  []UserResult
}

// Rejected reports whether the signal was rejected before any user was
// considered.
func (o Outcome) Rejected() bool { return o.Reason != "" }
