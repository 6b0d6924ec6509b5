package stops

import "sync"

// Manager holds the live trackers, keyed by position id, with a token index
// so a price tick fans out to every position in that token.
type Manager struct {
	mu      sync.Mutex
	byID    map[int64]*Tracker
	byToken map[string]map[int64]*Tracker
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		byID:    make(map[int64]*Tracker),
		byToken: make(map[string]map[int64]*Tracker),
	}
}

// Add registers a tracker, replacing any previous one for the position.
func (m *Manager) Add(t *Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[t.PositionID]; ok {
		delete(m.byToken[old.Token], old.PositionID)
	}
	m.byID[t.PositionID] = t
	if m.byToken[t.Token] == nil {
		m.byToken[t.Token] = make(map[int64]*Tracker)
	}
	m.byToken[t.Token][t.PositionID] = t
}

// Remove drops the tracker for a position.
func (m *Manager) Remove(positionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[positionID]
	if !ok {
		return
	}
	delete(m.byID, positionID)
	delete(m.byToken[t.Token], positionID)
	if len(m.byToken[t.Token]) == 0 {
		delete(m.byToken, t.Token)
	}
}

// Get returns the tracker for a position, or nil.
func (m *Manager) Get(positionID int64) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[positionID]
}

// ForToken returns the trackers watching a token.
func (m *Manager) ForToken(token string) []*Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tracker, 0, len(m.byToken[token]))
	for _, t := range m.byToken[token] {
		out = append(out, t)
	}
	return out
}

// TokensTracked lists the distinct tokens with at least one tracker, for
// feed subscription.
func (m *Manager) TokensTracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byToken))
	for token := range m.byToken {
		out = append(out, token)
	}
	return out
}

// Len returns the number of live trackers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
