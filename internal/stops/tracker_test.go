package stops

import (
	"testing"
	"time"

	"github.com/Carl590/ai-trading-bot/internal/ledger"
)

func ts(secs int) time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(secs) * time.Second)
}

func newTestTracker(tp float64, maxAge time.Duration) *Tracker {
	return NewTracker(1, "u1", "TOKEN", 1.0, 0.10, tp, maxAge, ts(0))
}

func TestTrackerStopsOutAfterRally(t *testing.T) {
	tr := newTestTracker(0, 0)

	ev, _ := tr.Observe(2.0, ts(1))
	if ev.Exit {
		t.Fatalf("unexpected exit at watermark raise")
	}
	if tr.State() != StateTrailing {
		t.Fatalf("expected TRAILING, got %s", tr.State())
	}
	if tr.StopPrice() != 1.8 {
		t.Fatalf("expected stop 1.8, got %.4f", tr.StopPrice())
	}

	ev, changed := tr.Observe(1.90, ts(2))
	if ev.Exit {
		t.Fatalf("1.90 should not trigger with stop 1.8")
	}
	_ = changed
	if tr.StopPrice() != 1.8 {
		t.Fatalf("stop moved on lower price: %.4f", tr.StopPrice())
	}

	ev, _ = tr.Observe(1.75, ts(3))
	if !ev.Exit || ev.Reason != ledger.CloseStoppedOut {
		t.Fatalf("expected STOPPED_OUT, got %+v", ev)
	}
	if tr.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", tr.State())
	}
}

func TestTrackerStopMonotone(t *testing.T) {
	tr := newTestTracker(0, 0)
	prices := []float64{1.2, 1.5, 1.3, 1.8, 1.7, 2.0, 1.9}
	lastStop := tr.StopPrice()
	for i, px := range prices {
		ev, _ := tr.Observe(px, ts(i+1))
		if ev.Exit {
			t.Fatalf("unexpected exit at %.2f", px)
		}
		if tr.StopPrice() < lastStop {
			t.Fatalf("stop decreased from %.4f to %.4f", lastStop, tr.StopPrice())
		}
		lastStop = tr.StopPrice()
	}
}

func TestTrackerDiscardsStaleTicks(t *testing.T) {
	tr := newTestTracker(0, 0)
	tr.Observe(2.0, ts(10))
	stop := tr.StopPrice()

	// An old deep tick must not fire the stop or move the watermark.
	ev, changed := tr.Observe(0.5, ts(5))
	if ev.Exit || changed {
		t.Fatalf("stale tick applied: %+v", ev)
	}
	if tr.StopPrice() != stop || tr.Watermark() != 2.0 {
		t.Fatalf("stale tick mutated state")
	}
}

func TestTrackerTakeProfit(t *testing.T) {
	tr := newTestTracker(0.50, 0)
	ev, _ := tr.Observe(1.49, ts(1))
	if ev.Exit {
		t.Fatalf("below take-profit should not exit")
	}
	ev, _ = tr.Observe(1.50, ts(2))
	if !ev.Exit || ev.Reason != ledger.CloseTookProfit {
		t.Fatalf("expected TOOK_PROFIT, got %+v", ev)
	}
}

func TestTrackerMaxAge(t *testing.T) {
	tr := newTestTracker(0, time.Minute)
	ev, _ := tr.Observe(1.01, ts(61))
	if !ev.Exit || ev.Reason != ledger.CloseTimedOut {
		t.Fatalf("expected TIMED_OUT, got %+v", ev)
	}
}

func TestTrackerClosedIsTerminal(t *testing.T) {
	tr := newTestTracker(0, 0)
	tr.Observe(2.0, ts(1))
	tr.Observe(1.0, ts(2)) // stop out
	ev, changed := tr.Observe(3.0, ts(3))
	if ev.Exit || changed {
		t.Fatalf("closed tracker reacted to tick: %+v", ev)
	}
}

func TestTrackerReopenRetainsWatermark(t *testing.T) {
	tr := newTestTracker(0, 0)
	tr.Observe(2.0, ts(1))
	tr.Observe(1.0, ts(2)) // stop out
	tr.Reopen()
	if tr.State() != StateTrailing {
		t.Fatalf("expected TRAILING after reopen, got %s", tr.State())
	}
	if tr.Watermark() != 2.0 || tr.StopPrice() != 1.8 {
		t.Fatalf("reopen lost state: wm=%.2f stop=%.2f", tr.Watermark(), tr.StopPrice())
	}
	ev, _ := tr.Observe(1.0, ts(3))
	if !ev.Exit || ev.Reason != ledger.CloseStoppedOut {
		t.Fatalf("expected retryable stop out, got %+v", ev)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	tr := newTestTracker(0, 0)
	tr.Observe(2.0, ts(1))
	snap := tr.Snapshot()

	back := Restore(1, "u1", "TOKEN", 1.0, 0, 0, ts(0), snap)
	if back.State() != StateTrailing || back.Watermark() != 2.0 || back.StopPrice() != 1.8 {
		t.Fatalf("restore mismatch: %s wm=%.2f stop=%.2f", back.State(), back.Watermark(), back.StopPrice())
	}
}

func TestLiquidityWidth(t *testing.T) {
	strategy, err := BuildWidthStrategy("liquidity", WidthParams{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Calm, deep market clamps to the floor.
	w := strategy.Width(MarketSnapshot{Volatility: 0.01, SizeUSD: 100, LiquidityUSD: 1_000_000, SpreadPct: 0.001})
	if w != 0.06 {
		t.Fatalf("expected floor 0.06, got %.4f", w)
	}
	// Thin and volatile clamps to the ceiling.
	w = strategy.Width(MarketSnapshot{Volatility: 0.5, SizeUSD: 5_000, LiquidityUSD: 10_000, SpreadPct: 0.05})
	if w != 0.40 {
		t.Fatalf("expected ceiling 0.40, got %.4f", w)
	}
	// Mid-range stays between the clamps and widens with impact.
	narrow := strategy.Width(MarketSnapshot{Volatility: 0.05, SizeUSD: 100, LiquidityUSD: 100_000})
	wide := strategy.Width(MarketSnapshot{Volatility: 0.05, SizeUSD: 5_000, LiquidityUSD: 100_000})
	if wide <= narrow {
		t.Fatalf("impact did not widen stop: %.4f vs %.4f", wide, narrow)
	}
}

func TestBuildWidthStrategyModes(t *testing.T) {
	fixed, err := BuildWidthStrategy("fixed", WidthParams{FloorPct: 0.12})
	if err != nil {
		t.Fatalf("build fixed: %v", err)
	}
	if w := fixed.Width(MarketSnapshot{}); w != 0.12 {
		t.Fatalf("expected 0.12, got %.4f", w)
	}
	if _, err := BuildWidthStrategy("bogus", WidthParams{}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestManagerTokenIndex(t *testing.T) {
	m := NewManager()
	m.Add(NewTracker(1, "u1", "AAA", 1, 0.1, 0, 0, ts(0)))
	m.Add(NewTracker(2, "u2", "AAA", 1, 0.1, 0, 0, ts(0)))
	m.Add(NewTracker(3, "u1", "BBB", 1, 0.1, 0, 0, ts(0)))

	if got := len(m.ForToken("AAA")); got != 2 {
		t.Fatalf("expected 2 trackers for AAA, got %d", got)
	}
	if got := m.Len(); got != 3 {
		t.Fatalf("expected 3 trackers, got %d", got)
	}
	m.Remove(2)
	if got := len(m.ForToken("AAA")); got != 1 {
		t.Fatalf("expected 1 tracker after remove, got %d", got)
	}
	m.Remove(1)
	tokens := m.TokensTracked()
	if len(tokens) != 1 || tokens[0] != "BBB" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}
