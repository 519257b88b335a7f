package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/daemonctl/internal/history"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps state changes in ClickHouse using the official Go client.
type Store struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port of the native protocol) and creates the
// table when missing.
func New(addr, database, table string) (*Store, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", table)
	}
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Store{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(9, 'UTC'),
		kind String,
		name String,
		pid Int64,
		state String
	) ENGINE = MergeTree() ORDER BY (kind, occurred_at)`, s.table)
	if err := s.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, c history.Change) error {
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now()
	}
	q := fmt.Sprintf(`INSERT INTO %s (occurred_at, kind, name, pid, state) VALUES (?, ?, ?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, q, c.OccurredAt.UTC(), c.Kind, c.Name, int64(c.PID), c.State); err != nil {
		return fmt.Errorf("failed to insert state change into ClickHouse: %w", err)
	}
	return nil
}

func (s *Store) LastStateChange(ctx context.Context, kind string) (time.Time, error) {
	q := fmt.Sprintf(`SELECT occurred_at FROM %s WHERE kind = ? ORDER BY occurred_at DESC LIMIT 1`, s.table)
	var ts time.Time
	err := s.conn.QueryRow(ctx, q, kind).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, history.ErrNoStateChange
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query ClickHouse: %w", err)
	}
	return ts.UTC(), nil
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
