// Package ir provides the data model and message types shared by the
// almanac log store, its worker, and the host.
//
// This package contains type definitions and the wire envelope codec only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Messages are a closed tagged union: every request, response and
//     notification is a concrete Go type, never an untyped payload
//   - All JSON tags use snake_case
//   - Timestamps are UTC wall-clock instants taken from a Clock
package ir
