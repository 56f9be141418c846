// Package client is the host side of the worker protocol.
//
// A Client assigns request ids, keeps a table of pending requests keyed by
// id, and matches each correlated response back to its caller. PERSIST
// notifications carry no id; they are handed to a SnapshotSink in the order
// the worker emitted them.
//
// Every call is bounded by a timeout. A response that arrives after its
// caller gave up is logged and dropped.
package client
