package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant returned by a DeterministicClock.
var DefaultEpoch = time.Date(2024, time.March, 20, 3, 6, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe stepping wall clock for tests.
//
// Every call to Now() returns the previous instant plus Step, starting at the
// epoch. This gives each inserted row a distinct, predictable timestamp.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch time.Time
	step  time.Duration
	calls int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch with a one-second step.
//
// The first call to Now() returns DefaultEpoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, time.Second)
}

// NewDeterministicClockAt creates a clock starting at epoch advancing by step per call.
func NewDeterministicClockAt(epoch time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{epoch: epoch.UTC(), step: step}
}

// Now returns the next instant and advances the clock.
//
// Thread-safe: uses mutex to protect the call counter.
// Monotonic for non-negative steps.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many instants have been handed out.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to its epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}

// ScriptedClock returns a fixed sequence of instants, then repeats the last one.
// Used to simulate wall clocks that jump backwards.
type ScriptedClock struct {
	mu    sync.Mutex
	times []time.Time
	idx   int
}

// NewScriptedClock creates a clock returning times in order.
func NewScriptedClock(times ...time.Time) *ScriptedClock {
	return &ScriptedClock{times: times}
}

// Now returns the next scripted instant.
// Panics if no instants were scripted.
func (c *ScriptedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.times) == 0 {
		panic("ScriptedClock: no instants scripted")
	}
	t := c.times[c.idx]
	if c.idx < len(c.times)-1 {
		c.idx++
	}
	return t
}
