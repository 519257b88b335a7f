package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/daemonctl/internal/history"
)

// Store keeps state changes in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens a SQLite state store.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS process_state_changes(
			occurred_at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			state TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_state_changes_kind_time ON process_state_changes(kind, occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Record appends a change. occurred_at is stored as unix nanoseconds.
func (s *Store) Record(ctx context.Context, c history.Change) error {
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_state_changes(occurred_at, kind, name, pid, state)
		VALUES(?, ?, ?, ?, ?);`,
		c.OccurredAt.UnixNano(), c.Kind, c.Name, c.PID, c.State)
	return err
}

func (s *Store) LastStateChange(ctx context.Context, kind string) (time.Time, error) {
	var ns sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(occurred_at) FROM process_state_changes WHERE kind = ?;`, kind).Scan(&ns)
	if err != nil {
		return time.Time{}, err
	}
	if !ns.Valid {
		return time.Time{}, history.ErrNoStateChange
	}
	return time.Unix(0, ns.Int64).UTC(), nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
