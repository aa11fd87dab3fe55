// Package journal records every orientation change in SQLite so time spent
// per side can be summed later.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fschwaiger/cubetracker/internal/side"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS orientations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	side TEXT NOT NULL,
	action_set TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS orientations_at ON orientations (at);`

// Entry is one recorded orientation change.
type Entry struct {
	At        time.Time `json:"at"`
	Side      side.Side `json:"side"`
	ActionSet string    `json:"action_set"`
}

// Store persists orientation changes in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal: path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("journal: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record appends one orientation change.
func (s *Store) Record(ctx context.Context, at time.Time, sd side.Side, actionSet string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !sd.Valid() {
		return fmt.Errorf("journal: invalid side %q", sd)
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO orientations (at, side, action_set) VALUES (?, ?, ?)`,
		toMillis(at), string(sd), actionSet,
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT at, side, action_set FROM orientations ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	return scanEntries(rows)
}

// Durations sums how long each face was up between since and until.
// An entry lasts until the next entry or until, whichever is first; the
// side that was already up at since counts from since. Time on none is
// left out.
func (s *Store) Durations(ctx context.Context, since, until time.Time) (map[side.Side]time.Duration, error) {
	if !until.After(since) {
		return map[side.Side]time.Duration{}, nil
	}

	var entries []Entry

	prev := s.sqlDB.QueryRowContext(ctx,
		`SELECT at, side, action_set FROM orientations WHERE at < ? ORDER BY at DESC, id DESC LIMIT 1`,
		toMillis(since))
	var (
		at      int64
		sd, set string
	)
	err := prev.Scan(&at, &sd, &set)
	switch {
	case err == nil:
		entries = append(entries, Entry{At: since, Side: side.Side(sd), ActionSet: set})
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("journal: query previous: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT at, side, action_set FROM orientations WHERE at >= ? AND at < ? ORDER BY at ASC, id ASC`,
		toMillis(since), toMillis(until))
	if err != nil {
		return nil, fmt.Errorf("journal: query range: %w", err)
	}
	inRange, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	entries = append(entries, inRange...)

	totals := make(map[side.Side]time.Duration)
	for i, e := range entries {
		end := until
		if i+1 < len(entries) {
			end = entries[i+1].At
		}
		if e.Side == side.None {
			continue
		}
		totals[e.Side] += end.Sub(e.At)
	}
	return totals, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			at      int64
			sd, set string
		)
		if err := rows.Scan(&at, &sd, &set); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, Entry{At: fromMillis(at), Side: side.Side(sd), ActionSet: set})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return out, nil
}
