package store

import (
	"context"

	"github.com/roach88/almanac/internal/ir"
)

// Insert appends one entry and returns it as stored.
//
// The id is assigned by SQLite and the timestamp is taken from the store's
// clock at the moment of insertion. The module name is stored NFC-normalized,
// so a later Query returns the NFC form even if module was given decomposed.
// On an uninitialized store, Insert fails with NOT_INITIALIZED and writes nothing.
func (s *Store) Insert(ctx context.Context, module, query, result string) (ir.LogEntry, error) {
	if !s.ready() {
		return ir.LogEntry{}, NewNotInitializedError("insert")
	}
	if err := ctx.Err(); err != nil {
		return ir.LogEntry{}, newEngineError("insert", err)
	}

	entry := ir.LogEntry{
		Module:    ir.NormalizeModule(module),
		Query:     query,
		Result:    result,
		Timestamp: s.clock.Now().UTC().Round(0),
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO logs (module, query, result, timestamp)
		VALUES (?, ?, ?, ?)
	`,
		entry.Module,
		entry.Query,
		entry.Result,
		formatTimestamp(entry.Timestamp),
	)
	if err != nil {
		return ir.LogEntry{}, newEngineError("insert", err)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return ir.LogEntry{}, newEngineError("insert: last insert id", err)
	}

	s.logger.Debug("log entry inserted", "id", entry.ID, "module", entry.Module)
	return entry, nil
}
