package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS policies (
    user       TEXT    PRIMARY KEY,
    version    INTEGER NOT NULL DEFAULT 1,
    data       TEXT    NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// ErrVersionConflict means a concurrent writer updated the policy between
// this caller's read and write.
var ErrVersionConflict = errors.New("policy version conflict")

// Store persists policies with versioned, atomic writes (read-copy-update):
// a save only lands if the caller holds the latest version. Concurrent reads
// always see a fully written policy, never a partial update.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore applies the schema on the shared database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("policy store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get loads one user's policy, returning defaults (version 0) for unknown
// users so a first Save creates the row.
func (s *Store) Get(ctx context.Context, user string) (Policy, error) {
	var data string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM policies WHERE user = ?`, user,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		p := Default(user)
		p.Version = 0
		return p, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("policy store: get %s: %w", user, err)
	}
	var p Policy
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Policy{}, fmt.Errorf("policy store: decode %s: %w", user, err)
	}
	p.Version = version
	return p, nil
}

// Save writes the policy if p.Version still matches the stored row, bumping
// the version. Version 0 inserts a new row.
func (s *Store) Save(ctx context.Context, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.Version + 1
	p.Version = next
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("policy store: encode %s: %w", p.User, err)
	}
	now := time.Now().UTC()

	if next == 1 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO policies (user, version, data, updated_at) VALUES (?, ?, ?, ?)`,
			p.User, next, string(data), now,
		)
		if err != nil {
			return fmt.Errorf("policy store: insert %s: %w", p.User, err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET version = ?, data = ?, updated_at = ? WHERE user = ? AND version = ?`,
		next, string(data), now, p.User, p.Version-1,
	)
	if err != nil {
		return fmt.Errorf("policy store: update %s: %w", p.User, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("policy store: update %s: %w", p.User, err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// List returns all stored policies.
func (s *Store) List(ctx context.Context) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, data FROM policies ORDER BY user`)
	if err != nil {
		return nil, fmt.Errorf("policy store: list: %w", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var version int64
		var data string
		if err := rows.Scan(&version, &data); err != nil {
			return nil, fmt.Errorf("policy store: scan: %w", err)
		}
		var p Policy
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("policy store: decode: %w", err)
		}
		p.Version = version
		out = append(out, p)
	}
	return out, rows.Err()
}
