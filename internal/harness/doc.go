// Package harness runs protocol scenarios against a real worker.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: sabian_oracle_ordering
//	description: "GET returns newest first and filters by module"
//	steps:
//	  - send: INIT
//	    expect: { type: SUCCESS }
//	  - send: LOG
//	    module: sabian
//	    query: "0° Aries"
//	    result: "..."
//	    expect: { type: SUCCESS, persist: 1 }
//	  - send: GET
//	    module: sabian
//	    expect:
//	      type: SUCCESS
//	      entries:
//	        - { module: sabian, query: "0° Aries" }
//	assertions:
//	  - type: trace_order
//	    messages: [PERSIST, SUCCESS]
//	  - type: final_state
//	    count: 1
//
// Each step sends one request. Unless no_wait is set, the harness waits for
// that request's response (and for every earlier no_wait request) before the
// next step. A step with restart: true stops the worker and starts a fresh
// one first; its INIT may then use snapshot: latest to restore the last
// PERSIST image seen.
//
// # Assertion Types
//
//   - trace_contains: a trace event with the given message type and fields exists
//   - trace_order: message types appear in the given order (not necessarily adjacent)
//   - trace_count: a message type appears exactly N times
//   - final_state: a GET on the final worker returns the expected entries
//
// # Deterministic Testing
//
// The worker runs with a stepping clock (testutil.DeterministicClock) and a
// fixed instance id, and its output channels are unbuffered. Each output is
// therefore received in the order the worker emitted it, so a trace is
// byte-identical across runs and can be compared against a golden file.
package harness
