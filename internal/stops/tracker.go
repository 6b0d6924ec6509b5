package stops

import (
	"time"

	"github.com/Carl590/ai-trading-bot/internal/ledger"
)

// State of a tracker. ARMED until the price first exceeds entry, TRAILING
// while the watermark leads the entry, CLOSED after an exit fires.
type State string

const (
	StateArmed    State = "ARMED"
	StateTrailing State = "TRAILING"
	StateClosed   State = "CLOSED"
)

// Event is the outcome of one price observation.
type Event struct {
	Exit      bool
	Reason    ledger.CloseReason
	Price     float64
	StopPrice float64
	Watermark float64
}

// Tracker follows a single open position. Not safe for concurrent use; the
// Manager serializes observations per position.
type Tracker struct {
	PositionID int64
	User       string
	Token      string

	entryPrice    float64
	widthPct      float64
	takeProfitPct float64
	maxAge        time.Duration
	openedAt      time.Time

	state     State
	watermark float64
	stopPrice float64
	lastTs    time.Time
}

// NewTracker arms a tracker at entry. The initial stop sits one width below
// the entry price.
func NewTracker(positionID int64, user, token string, entryPrice, widthPct, takeProfitPct float64, maxAge time.Duration, openedAt time.Time) *Tracker {
	return &Tracker{
		PositionID:    positionID,
		User:          user,
		Token:         token,
		entryPrice:    entryPrice,
		widthPct:      widthPct,
		takeProfitPct: takeProfitPct,
		maxAge:        maxAge,
		openedAt:      openedAt,
		state:         StateArmed,
		watermark:     entryPrice,
		stopPrice:     entryPrice * (1 - widthPct),
		lastTs:        openedAt,
	}
}

// Restore rebuilds a tracker from its persisted state after a restart.
func Restore(positionID int64, user, token string, entryPrice, takeProfitPct float64, maxAge time.Duration, openedAt time.Time, st ledger.StopState) *Tracker {
	return &Tracker{
		PositionID:    positionID,
		User:          user,
		Token:         token,
		entryPrice:    entryPrice,
		widthPct:      st.WidthPct,
		takeProfitPct: takeProfitPct,
		maxAge:        maxAge,
		openedAt:      openedAt,
		state:         State(st.State),
		watermark:     st.Watermark,
		stopPrice:     st.StopPrice,
		lastTs:        st.LastTs,
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// StopPrice returns the current stop level.
func (t *Tracker) StopPrice() float64 { return t.stopPrice }

// Watermark returns the highest price seen since entry.
func (t *Tracker) Watermark() float64 { return t.watermark }

// Snapshot returns the persistable view of the tracker.
func (t *Tracker) Snapshot() ledger.StopState {
	return ledger.StopState{
		PositionID: t.PositionID,
		State:      string(t.state),
		Watermark:  t.watermark,
		StopPrice:  t.stopPrice,
		WidthPct:   t.widthPct,
		LastTs:     t.lastTs,
	}
}

// Observe feeds one price tick. Returns the event and whether persisted
// state changed. Ticks older than the last seen timestamp are discarded so
// late-arriving data can never lower the watermark or re-trigger an exit.
func (t *Tracker) Observe(price float64, ts time.Time) (Event, bool) {
	ev := Event{Price: price, StopPrice: t.stopPrice, Watermark: t.watermark}
	if t.state == StateClosed {
		return ev, false
	}
	if ts.Before(t.lastTs) {
		return ev, false
	}
	t.lastTs = ts
	changed := true

	if t.maxAge > 0 && ts.Sub(t.openedAt) > t.maxAge {
		return t.exit(ledger.CloseTimedOut, ev), true
	}
	if t.takeProfitPct > 0 && price >= t.entryPrice*(1+t.takeProfitPct) {
		return t.exit(ledger.CloseTookProfit, ev), true
	}

	if price > t.watermark {
		t.watermark = price
		if t.state == StateArmed && price > t.entryPrice {
			t.state = StateTrailing
		}
		// Stop only ever moves up.
		if s := price * (1 - t.widthPct); s > t.stopPrice {
			t.stopPrice = s
		}
	}
	ev.StopPrice = t.stopPrice
	ev.Watermark = t.watermark

	if price <= t.stopPrice {
		return t.exit(ledger.CloseStoppedOut, ev), true
	}
	return ev, changed
}

// Reopen re-arms a closed tracker after a failed exit so the next tick can
// retry. The watermark and stop survive; only the lifecycle state rolls back.
func (t *Tracker) Reopen() {
	if t.state != StateClosed {
		return
	}
	if t.watermark > t.entryPrice {
		t.state = StateTrailing
	} else {
		t.state = StateArmed
	}
}

func (t *Tracker) exit(reason ledger.CloseReason, ev Event) Event {
	t.state = StateClosed
	ev.Exit = true
	ev.Reason = reason
	ev.StopPrice = t.stopPrice
	ev.Watermark = t.watermark
	return ev
}
