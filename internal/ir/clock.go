package ir

import "time"

// Clock supplies insertion timestamps.
// Implemented by SystemClock (production) and testutil.DeterministicClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in UTC with the monotonic reading stripped.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Round(0)
}
