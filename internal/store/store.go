package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/almanac/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// requiredColumns must all be present in the logs table of a restored snapshot.
var requiredColumns = []string{"id", "module", "query", "result", "timestamp"}

// Store is the embedded log store.
//
// The zero value is an uninitialized store: every operation on it fails with
// a NOT_INITIALIZED error and changes nothing.
type Store struct {
	db     *sql.DB
	conn   *sql.Conn
	clock  ir.Clock
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp inserted rows.
//
// Default: ir.SystemClock
func WithClock(c ir.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates a store.
//
// With an empty snapshot, the schema is created on an empty database.
// Otherwise the database is restored from the snapshot, which must have been
// produced by Export (or be any SQLite image with a compatible logs table).
// Malformed or incompatible snapshots fail with an INITIALIZATION_FAILED error.
func Open(ctx context.Context, snapshot []byte, opts ...Option) (*Store, error) {
	s := &Store{
		clock:  ir.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Each sql.DB over ":memory:" is a private database per connection,
	// so the pool is limited to the one connection we pin below.
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, newInitializationError("open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, newInitializationError("acquire connection", err)
	}
	s.db = db
	s.conn = conn

	if err := s.applyPragmas(ctx); err != nil {
		s.Close()
		return nil, newInitializationError("apply pragmas", err)
	}

	if err := s.applySchema(ctx); err != nil {
		s.Close()
		return nil, newInitializationError("apply schema", err)
	}

	if len(snapshot) > 0 {
		if err := s.restore(ctx, snapshot); err != nil {
			s.Close()
			return nil, err
		}
		s.logger.Debug("store restored from snapshot", "bytes", len(snapshot))
	} else {
		s.logger.Debug("store created empty")
	}

	return s, nil
}

// Close releases the database. The store is uninitialized afterwards.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var firstErr error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			firstErr = fmt.Errorf("close connection: %w", err)
		}
		s.conn = nil
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close database: %w", err)
	}
	s.db = nil
	return firstErr
}

// ready reports whether the store has a live connection.
func (s *Store) ready() bool {
	return s != nil && s.conn != nil
}

// applyPragmas sets required SQLite configuration.
// The database is in memory, so journaling settings are about speed only.
func (s *Store) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = MEMORY",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := s.conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the logs table if it doesn't exist.
// This function is idempotent.
func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// verifyColumns checks that the logs table in the given schema has every
// required column. Extra columns are tolerated.
func (s *Store) verifyColumns(ctx context.Context, schema string) error {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA %s.table_info(logs)", schema))
	if err != nil {
		return fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read table info columns: %w", err)
	}

	present := make(map[string]bool)
	for rows.Next() {
		// table_info columns: cid, name, type, notnull, dflt_value, pk
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		present[strings.ToLower(asString(values[1]))] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate table info: %w", err)
	}

	if len(present) == 0 {
		return fmt.Errorf("table logs not found")
	}
	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table logs missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
