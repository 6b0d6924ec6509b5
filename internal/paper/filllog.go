package paper

import (
	"sync"

	"github.com/Carl590/ai-trading-bot/internal/execution"
)

// FillLog stores paper fills in memory for quick inspection.
type FillLog struct {
	mu    sync.Mutex
	fills []execution.Fill
}

// NewFillLog creates an empty log optionally pre-sizing storage.
func NewFillLog(capacity int) *FillLog {
	if capacity < 0 {
		capacity = 0
	}
	return &FillLog{fills: make([]execution.Fill, 0, capacity)}
}

// Record appends a fill to the log. Safe on a nil log.
func (l *FillLog) Record(fill execution.Fill) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded fills.
func (l *FillLog) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Reset clears all stored fills.
func (l *FillLog) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.mu.Unlock()
}
