package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/almanac/internal/ir"
)

// timestampLayout is fixed-width so that text comparison in SQL orders rows
// chronologically.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// legacyTimestampLayouts are accepted when reading rows from snapshots
// written by other tools (e.g., SQLite CURRENT_TIMESTAMP).
var legacyTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Filter restricts Query results.
type Filter struct {
	Module string // optional: exact module match (after NFC normalization)
	Limit  int    // optional: maximum rows; <= 0 means no limit
}

// Query returns entries ordered by timestamp descending (most recent first),
// ties broken by id descending.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Query(ctx context.Context, filter Filter) ([]ir.LogEntry, error) {
	if !s.ready() {
		return nil, NewNotInitializedError("query")
	}

	module := ir.NormalizeModule(filter.Module)
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, module, query, result, timestamp
		FROM logs
		WHERE (? = '' OR module = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, module, module, limit)
	if err != nil {
		return nil, newEngineError("query", err)
	}
	defer rows.Close()

	entries := []ir.LogEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, newEngineError("query", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, newEngineError("query: iterate", err)
	}

	return entries, nil
}

// Count returns the number of entries, optionally restricted to one module.
func (s *Store) Count(ctx context.Context, module string) (int, error) {
	if !s.ready() {
		return 0, NewNotInitializedError("count")
	}

	module = ir.NormalizeModule(module)
	var count int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM logs WHERE (? = '' OR module = ?)
	`, module, module).Scan(&count)
	if err != nil {
		return 0, newEngineError("count", err)
	}
	return count, nil
}

// scanEntry scans a row into a LogEntry.
func scanEntry(rows *sql.Rows) (ir.LogEntry, error) {
	var entry ir.LogEntry
	var rawTimestamp any

	if err := rows.Scan(&entry.ID, &entry.Module, &entry.Query, &entry.Result, &rawTimestamp); err != nil {
		return ir.LogEntry{}, fmt.Errorf("scan log entry: %w", err)
	}

	ts, err := parseTimestamp(rawTimestamp)
	if err != nil {
		return ir.LogEntry{}, fmt.Errorf("log entry %d: %w", entry.ID, err)
	}
	entry.Timestamp = ts

	return entry, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts the driver's decoded DATETIME (time.Time) as well as
// raw text, since the driver only decodes values it recognizes.
func parseTimestamp(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case string:
		return parseTimestampText(val)
	case []byte:
		return parseTimestampText(string(val))
	case nil:
		return time.Time{}, fmt.Errorf("null timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseTimestampText(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	if t, err := time.ParseInLocation(timestampLayout, s, time.UTC); err == nil {
		return t, nil
	}
	for _, layout := range legacyTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
