package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// restoreSchema is the attachment name a snapshot is deserialized into
// before its rows are copied into main.
const restoreSchema = "restore_src"

// sqliteHeader is the magic prefix of every SQLite database image.
var sqliteHeader = []byte("SQLite format 3\x00")

// minImageSize is the size of the SQLite database header.
const minImageSize = 100

// Export serializes the full database (schema and all rows).
//
// Open(ctx, data) on the returned bytes yields a store with identical Query
// results. The store keeps no reference to the returned slice.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if !s.ready() {
		return nil, NewNotInitializedError("export")
	}
	if err := ctx.Err(); err != nil {
		return nil, newEngineError("export", err)
	}

	var data []byte
	err := s.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		var err error
		data, err = c.Serialize("main")
		return err
	})
	if err != nil {
		return nil, newEngineError("export", err)
	}
	return data, nil
}

// restore loads a snapshot into the freshly created main schema.
//
// The snapshot is deserialized into an attached database and its rows are
// copied into main. A deserialized image has a fixed-size buffer, so writing
// into it directly would fail as soon as a new page is needed.
func (s *Store) restore(ctx context.Context, snapshot []byte) error {
	if len(snapshot) < minImageSize || !bytes.HasPrefix(snapshot, sqliteHeader) {
		return newInitializationError("restore snapshot",
			fmt.Errorf("not an SQLite database image (%d bytes)", len(snapshot)))
	}

	if _, err := s.conn.ExecContext(ctx, "ATTACH DATABASE ':memory:' AS "+restoreSchema); err != nil {
		return newInitializationError("attach snapshot", err)
	}
	defer func() {
		if _, err := s.conn.ExecContext(context.Background(), "DETACH DATABASE "+restoreSchema); err != nil {
			s.logger.Warn("failed to detach snapshot database", "error", err)
		}
	}()

	err := s.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return c.Deserialize(snapshot, restoreSchema)
	})
	if err != nil {
		return newInitializationError("deserialize snapshot", err)
	}

	if err := s.verifyColumns(ctx, restoreSchema); err != nil {
		return newInitializationError("verify snapshot schema", err)
	}

	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO main.logs (id, module, query, result, timestamp)
		SELECT id, module, query, result, timestamp
		FROM `+restoreSchema+`.logs
		ORDER BY id ASC
	`); err != nil {
		return newInitializationError("copy snapshot rows", err)
	}

	if err := s.restoreSequence(ctx); err != nil {
		return newInitializationError("restore id sequence", err)
	}

	return nil
}

// restoreSequence carries the snapshot's AUTOINCREMENT high-water mark over,
// so ids handed out before the snapshot was taken are never reused.
// Snapshots whose logs table has no AUTOINCREMENT have nothing to carry.
func (s *Store) restoreSequence(ctx context.Context) error {
	var seq int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT seq FROM "+restoreSchema+".sqlite_sequence WHERE name = 'logs'",
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if hasTable, tErr := s.hasSequenceTable(ctx); tErr == nil && !hasTable {
			return nil
		}
		return err
	}

	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO main.sqlite_sequence (name, seq)
		SELECT 'logs', ?
		WHERE NOT EXISTS (SELECT 1 FROM main.sqlite_sequence WHERE name = 'logs')
	`, seq); err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		"UPDATE main.sqlite_sequence SET seq = ? WHERE name = 'logs' AND seq < ?",
		seq, seq,
	)
	return err
}

func (s *Store) hasSequenceTable(ctx context.Context) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+restoreSchema+".sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'",
	).Scan(&count)
	return count > 0, err
}
