// Package store provides the embedded SQLite log store behind the almanac worker.
//
// The store holds a single append-only table:
//   - logs: one row per logged (module, query, result) triple
//
// # Critical Patterns
//
// Append-only ids:
//   - id INTEGER PRIMARY KEY AUTOINCREMENT, so ids are strictly increasing
//     and never reused
//   - No update or delete is exposed
//
// Deterministic reads:
//   - All reads use ORDER BY timestamp DESC, id DESC
//   - Timestamps are stored as fixed-width UTC text, so text order is time order
//
// Snapshot durability:
//   - The database lives in memory; the store holds no file handle
//   - Export serializes the whole database (sqlite3_serialize)
//   - Open restores from those bytes; whoever keeps the bytes owns durability
//
// # Connection Model
//
// A Store pins exactly one connection of a private in-memory database. The
// Store is not safe for concurrent use: it is owned by the worker goroutine.
package store
