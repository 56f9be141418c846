package ir

import "time"

// LogEntry is one row of the log table.
type LogEntry struct {
	// ID is assigned by the engine on insert. Strictly increasing, never reused.
	ID int64 `json:"id"`

	// Module identifies the logical subsystem that produced the entry
	// (e.g., "sabian" or "oracle").
	Module string `json:"module"`

	// Query is the free-form input that was logged.
	Query string `json:"query"`

	// Result is the serialized output associated with Query.
	Result string `json:"result"`

	// Timestamp is the insertion instant (UTC). It is the sole ordering key for reads.
	Timestamp time.Time `json:"timestamp"`
}
