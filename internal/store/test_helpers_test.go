package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/testutil"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// createTestStore creates a fresh store stamped by a deterministic clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createTestStoreWithClock(t, testutil.NewDeterministicClock())
}

func createTestStoreWithClock(t *testing.T, clock ir.Clock) *Store {
	t.Helper()
	s, err := Open(context.Background(), nil, WithClock(clock), WithLogger(discardLogger))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// reopen restores a store from another store's export.
func reopen(t *testing.T, s *Store) *Store {
	t.Helper()
	ctx := context.Background()
	data, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	restored, err := Open(ctx, data, WithClock(testutil.NewDeterministicClock()), WithLogger(discardLogger))
	if err != nil {
		t.Fatalf("Open(snapshot) failed: %v", err)
	}
	t.Cleanup(func() { restored.Close() })
	return restored
}

func mustInsert(t *testing.T, s *Store, module, query, result string) ir.LogEntry {
	t.Helper()
	entry, err := s.Insert(context.Background(), module, query, result)
	if err != nil {
		t.Fatalf("Insert(%q) failed: %v", module, err)
	}
	return entry
}
