// Package ledger is the durable record of positions, one OPEN row at most
// per (user, token). Every mutation is written to sqlite before it is
// acknowledged, so state survives a process restart.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    user            TEXT    NOT NULL,
    token           TEXT    NOT NULL,
    entry_seq       INTEGER NOT NULL,
    entry_price     REAL    NOT NULL,
    entry_liquidity REAL    NOT NULL DEFAULT 0,
    entry_size      REAL    NOT NULL,
    current_size    REAL    NOT NULL,
    status          TEXT    NOT NULL,
    close_reason    TEXT,
    exit_price      REAL,
    opened_at       DATETIME NOT NULL,
    closed_at       DATETIME
);

-- The at-most-one-open-position invariant lives here, not in application
-- code: a second OPEN insert for the same key fails at the index.
CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open
    ON positions(user, token) WHERE status = 'OPEN';
CREATE INDEX IF NOT EXISTS idx_positions_user   ON positions(user, status);
CREATE INDEX IF NOT EXISTS idx_positions_token  ON positions(token, status);
CREATE INDEX IF NOT EXISTS idx_positions_opened ON positions(user, opened_at);

CREATE TABLE IF NOT EXISTS stop_states (
    position_id INTEGER PRIMARY KEY,
    state       TEXT    NOT NULL,
    watermark   REAL    NOT NULL,
    stop_price  REAL    NOT NULL,
    width_pct   REAL    NOT NULL,
    last_ts     DATETIME NOT NULL
);
`

// Status of a position row.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CloseReason records why a position left OPEN.
type CloseReason string

const (
	CloseStoppedOut CloseReason = "STOPPED_OUT"
	CloseTookProfit CloseReason = "TOOK_PROFIT"
	CloseTimedOut   CloseReason = "TIMED_OUT"
	CloseManual     CloseReason = "MANUAL"
)

var (
	// ErrDuplicatePosition means an OPEN position already exists for the key.
	ErrDuplicatePosition = errors.New("duplicate open position")
	// ErrOverReduction means a reduce exceeded the current size.
	ErrOverReduction = errors.New("reduction exceeds current size")
	// ErrNotFound means no position matched.
	ErrNotFound = errors.New("position not found")
)

// Position is one ledger row. Identity is (user, token, entry_seq).
type Position struct {
	ID             int64
	User           string
	Token          string
	EntrySeq       int64
	EntryPrice     float64
	EntryLiquidity float64
	EntrySize      float64
	CurrentSize    float64
	Status         Status
	CloseReason    CloseReason
	ExitPrice      float64
	OpenedAt       time.Time
	ClosedAt       time.Time
}

// StopState is the persisted trailing-stop state for one open position.
type StopState struct {
	PositionID int64
	State      string
	Watermark  float64
	StopPrice  float64
	WidthPct   float64
	LastTs     time.Time
}

// Store is the sqlite-backed ledger. Single in-process writer; sqlite's
// partial unique index guards against anything else.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite is single-writer
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the handle so sibling stores (policies) can share the file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// OpenPosition inserts a new OPEN position, failing with
// ErrDuplicatePosition when one already exists for (user, token).
func (s *Store) OpenPosition(ctx context.Context, user, token string, entryPrice, entryLiquidity, size float64) (*Position, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ledger: open: non-positive size %.4f", size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(entry_seq), 0) + 1 FROM positions WHERE user = ? AND token = ?`,
		user, token,
	).Scan(&seq); err != nil {
		return nil, fmt.Errorf("ledger: next seq: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO positions
		   (user, token, entry_seq, entry_price, entry_liquidity, entry_size, current_size, status, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user, token, seq, entryPrice, entryLiquidity, size, size, StatusOpen, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrDuplicatePosition
		}
		return nil, fmt.Errorf("ledger: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ledger: insert id: %w", err)
	}
	return &Position{
		ID:             id,
		User:           user,
		Token:          token,
		EntrySeq:       seq,
		EntryPrice:     entryPrice,
		EntryLiquidity: entryLiquidity,
		EntrySize:      size,
		CurrentSize:    size,
		Status:         StatusOpen,
		OpenedAt:       now,
	}, nil
}

// ClosePosition marks the position CLOSED. Idempotent: closing an already
// closed position returns the recorded reason and is not an error, so
// duplicate exit signals are harmless.
func (s *Store) ClosePosition(ctx context.Context, id int64, reason CloseReason, exitPrice float64) (CloseReason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status Status
	var existing sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT status, close_reason FROM positions WHERE id = ?`, id,
	).Scan(&status, &existing)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ledger: close lookup: %w", err)
	}
	if status == StatusClosed {
		return CloseReason(existing.String), nil
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE positions SET status = ?, close_reason = ?, exit_price = ?, closed_at = ? WHERE id = ?`,
		StatusClosed, string(reason), exitPrice, now, id,
	); err != nil {
		return "", fmt.Errorf("ledger: close: %w", err)
	}
	// The stop state belongs 1:1 to the open position; drop it with it.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM stop_states WHERE position_id = ?`, id,
	); err != nil {
		return "", fmt.Errorf("ledger: drop stop state: %w", err)
	}
	return reason, nil
}

// Reduce shrinks current_size by amount (partial exit). Size never goes
// negative; over-reduction is rejected without mutating the row.
func (s *Store) Reduce(ctx context.Context, id int64, amount float64) (*Position, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("ledger: reduce: non-positive amount %.4f", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.byID(ctx, id)
	if err != nil {
		return nil, err
	}
	if amount > pos.CurrentSize {
		return nil, ErrOverReduction
	}
	newSize := pos.CurrentSize - amount
	if _, err := s.db.ExecContext(ctx,
		`UPDATE positions SET current_size = ? WHERE id = ?`, newSize, id,
	); err != nil {
		return nil, fmt.Errorf("ledger: reduce: %w", err)
	}
	pos.CurrentSize = newSize
	return pos, nil
}

// OpenByKey returns the OPEN position for (user, token), or nil.
func (s *Store) OpenByKey(ctx context.Context, user, token string) (*Position, error) {
	positions, err := s.query(ctx,
		`WHERE user = ? AND token = ? AND status = 'OPEN'`, user, token)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

// OpenPositions returns a user's OPEN positions, oldest first.
func (s *Store) OpenPositions(ctx context.Context, user string) ([]Position, error) {
	return s.query(ctx, `WHERE user = ? AND status = 'OPEN' ORDER BY opened_at`, user)
}

// OpenByToken returns all OPEN positions in a token across users.
func (s *Store) OpenByToken(ctx context.Context, token string) ([]Position, error) {
	return s.query(ctx, `WHERE token = ? AND status = 'OPEN' ORDER BY opened_at`, token)
}

// AllOpen returns every OPEN position; used to restore stop trackers on
// startup.
func (s *Store) AllOpen(ctx context.Context) ([]Position, error) {
	return s.query(ctx, `WHERE status = 'OPEN' ORDER BY opened_at`)
}

// CommittedSince sums the entry sizes a user committed at or after t, which
// is the daily-budget input.
func (s *Store) CommittedSince(ctx context.Context, user string, t time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(entry_size), 0) FROM positions WHERE user = ? AND opened_at >= ?`,
		user, t.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger: committed since: %w", err)
	}
	return total, nil
}

// SaveStopState upserts the trailing-stop state for a position.
func (s *Store) SaveStopState(ctx context.Context, st StopState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stop_states (position_id, state, watermark, stop_price, width_pct, last_ts)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(position_id) DO UPDATE SET
		   state = excluded.state,
		   watermark = excluded.watermark,
		   stop_price = excluded.stop_price,
		   width_pct = excluded.width_pct,
		   last_ts = excluded.last_ts`,
		st.PositionID, st.State, st.Watermark, st.StopPrice, st.WidthPct, st.LastTs.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ledger: save stop state: %w", err)
	}
	return nil
}

// LoadStopState returns the persisted stop state, or ErrNotFound.
func (s *Store) LoadStopState(ctx context.Context, positionID int64) (StopState, error) {
	var st StopState
	st.PositionID = positionID
	err := s.db.QueryRowContext(ctx,
		`SELECT state, watermark, stop_price, width_pct, last_ts FROM stop_states WHERE position_id = ?`,
		positionID,
	).Scan(&st.State, &st.Watermark, &st.StopPrice, &st.WidthPct, &st.LastTs)
	if errors.Is(err, sql.ErrNoRows) {
		return StopState{}, ErrNotFound
	}
	if err != nil {
		return StopState{}, fmt.Errorf("ledger: load stop state: %w", err)
	}
	return st, nil
}

func (s *Store) byID(ctx context.Context, id int64) (*Position, error) {
	positions, err := s.query(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNotFound
	}
	return &positions[0], nil
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, token, entry_seq, entry_price, entry_liquidity,
		        entry_size, current_size, status, close_reason, exit_price,
		        opened_at, closed_at
		   FROM positions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var reason, status sql.NullString
		var exitPrice sql.NullFloat64
		var closedAt sql.NullTime
		if err := rows.Scan(
			&p.ID, &p.User, &p.Token, &p.EntrySeq, &p.EntryPrice, &p.EntryLiquidity,
			&p.EntrySize, &p.CurrentSize, &status, &reason, &exitPrice,
			&p.OpenedAt, &closedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		p.Status = Status(status.String)
		p.CloseReason = CloseReason(reason.String)
		p.ExitPrice = exitPrice.Float64
		if closedAt.Valid {
			p.ClosedAt = closedAt.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
