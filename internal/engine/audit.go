package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Carl590/ai-trading-bot/internal/signal"
)

// AuditEntry is one line of the append-only decision trail: what came in,
// what the pipeline concluded, and why.
type AuditEntry struct {
	Ts      time.Time           `json:"ts"`
	Channel string              `json:"channel"`
	Token   string              `json:"token,omitempty"`
	Symbol  string              `json:"symbol,omitempty"`
	Score   float64             `json:"score"`
	Band    string              `json:"band,omitempty"`
	Stage   signal.Stage        `json:"stage,omitempty"`
	Reason  signal.Reason       `json:"reason,omitempty"`
	Users   []signal.UserResult `json:"users,omitempty"`
}

// AuditLog appends decision outcomes as JSON lines for later analysis.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewAuditLog creates/opens the target file in append mode.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditLog{file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single entry to the underlying JSONL file.
func (a *AuditLog) Record(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(entry)
}

// Close flushes and closes the file handle.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
