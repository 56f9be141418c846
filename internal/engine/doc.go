// Package engine implements the almanac worker: the single entry point of the
// background execution context that owns the log store.
//
// ARCHITECTURE:
//
// Single-Writer Request Loop:
// The worker processes all requests in a single goroutine. This ensures:
// - The store is never touched by more than one goroutine (no locking)
// - Responses are emitted in the order requests were accepted (FIFO)
// - A request runs to completion before the next one starts (no reentrancy)
//
// Request Processing Flow:
// 1. Host calls Submit() from any goroutine; requests land in a FIFO queue
// 2. Worker.Run() dequeues requests one at a time
// 3. process() routes on the request's concrete type
// 4. The handler executes against the store and emits outputs
//
// Two Output Streams:
// - Responses(): SUCCESS / ERROR, each echoing the request id
// - Notifications(): PERSIST snapshots, never correlated
// A LOG produces both: the PERSIST frame is emitted before the SUCCESS.
// The host must drain both channels.
//
// Lifecycle:
// Uninitialized → Initializing → Ready. Only INIT creates the store; a
// repeated INIT is acknowledged without touching it. A failed INIT returns
// to Uninitialized so the host may retry.
//
// Failures never cross the boundary as panics or Go errors: every failure is
// converted into an ERROR response carrying a kind and a message.
package engine
