package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrConflict is returned by Append when an event already exists at the
// given (message_id, seq).
var ErrConflict = errors.New("events: conflict, seq already persisted")

const schemaDDL = `
CREATE TABLE IF NOT EXISTS message_counters (
	message_id TEXT PRIMARY KEY,
	next_seq   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS events (
	message_id TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	id         TEXT    NOT NULL,
	ts         TEXT    NOT NULL,
	type       TEXT    NOT NULL,
	chat_id    TEXT,
	payload    TEXT    NOT NULL,
	created_at_unix_ms INTEGER NOT NULL,
	PRIMARY KEY (message_id, seq)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_id ON events(message_id, id);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(created_at_unix_ms);
`

// Store is the sqlite-backed Event Store (C1). One Store is shared by every
// Writer, Watcher and replay handler in the process.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the sqlite-backed event log at path.
// "" means an in-memory, single-connection database (used by tests).
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn += "?_journal=WAL&_timeout=5000&_fk=true"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == "" {
		db.SetMaxOpenConns(1) // shared in-memory db needs a single connection
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable, used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AllocateSeq atomically increments and returns the next seq for message_id.
// Serializable across concurrent callers via a single transaction with
// immediate write lock acquisition plus retry-on-busy.
func (s *Store) AllocateSeq(ctx context.Context, messageID string) (uint64, error) {
	var seq uint64
	err := retryOnBusy(ctx, 8, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin allocate_seq tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_counters (message_id, next_seq) VALUES (?, 2)
			ON CONFLICT(message_id) DO UPDATE SET next_seq = next_seq + 1;
		`, messageID); err != nil {
			return fmt.Errorf("upsert counter: %w", err)
		}

		var next uint64
		if err := tx.QueryRowContext(ctx, `SELECT next_seq FROM message_counters WHERE message_id = ?;`, messageID).Scan(&next); err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		// next_seq stores the *next* value to hand out; the allocated seq is one less.
		seq = next - 1

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Append inserts event at (event.MessageID, event.Seq). event.Seq MUST have
// been produced by AllocateSeq first. Returns ErrConflict if the
// (message_id, seq) pair already exists.
func (s *Store) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return retryOnBusy(ctx, 8, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO events (message_id, seq, id, ts, type, chat_id, payload, created_at_unix_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?);
		`, event.MessageID, event.Seq, event.ID, event.TS, string(event.Type), event.ChatID, string(payload), time.Now().UnixMilli())
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

// ReadSince returns events for message_id with seq > sinceSeq, ascending,
// at most limit items. limit <= 0 means "no limit".
func (s *Store) ReadSince(ctx context.Context, messageID string, sinceSeq uint64, limit int) ([]Event, error) {
	query := `
		SELECT payload, seq FROM events
		WHERE message_id = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{messageID, sinceSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read_since query: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadAll returns the full ordered log for message_id.
func (s *Store) ReadAll(ctx context.Context, messageID string) ([]Event, error) {
	return s.ReadSince(ctx, messageID, 0, 0)
}

// HighestSeq returns the highest persisted seq for message_id, or 0 if none.
func (s *Store) HighestSeq(ctx context.Context, messageID string) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE message_id = ?;`, messageID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("highest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// HasTerminal reports whether message_id's log already carries its terminal
// event, used by the Watcher and replay handlers to short-circuit.
func (s *Store) HasTerminal(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM events WHERE message_id = ? AND type IN ('end', 'error');
	`, messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has_terminal: %w", err)
	}
	return n > 0, nil
}

// PruneOlderThan deletes events (and their counters, once all events for a
// message are gone) whose created_at predates cutoff. Implements the
// MESSAGE_EVENTS_TTL_S config key; a zero/negative ttl means the
// caller should not invoke this at all.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at_unix_ms < ?;`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := res.RowsAffected()

	// Drop orphaned counters so message_counters does not grow unbounded.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM message_counters
		WHERE message_id NOT IN (SELECT DISTINCT message_id FROM events);
	`)
	if err != nil {
		return n, fmt.Errorf("prune counters: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var payload string
		var seq uint64
		if err := rows.Scan(&payload, &seq); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		ev.Seq = seq
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryOnBusy retries fn on sqlite busy/lock contention with jittered
// backoff, mirroring the reference store's createTask retry wrapper. Any
// non-busy error (including ErrConflict) returns immediately.
func retryOnBusy(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		delay := time.Duration(5+rand.IntN(10)*(i+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
