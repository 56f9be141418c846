package client

import "sync/atomic"

// sequence hands out request ids.
//
// Ids start at 1 and strictly increase for the lifetime of a Client, so an
// id abandoned by a timed-out call is never handed to a later one.
//
// Thread-safety: sequence is safe for concurrent use.
type sequence struct {
	n atomic.Int64
}

// newSequenceAt creates a sequence whose first id is start+1.
func newSequenceAt(start int64) *sequence {
	s := &sequence{}
	s.n.Store(start)
	return s
}

// Next returns the next id.
func (s *sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the most recently issued id, or the start value if none.
func (s *sequence) Current() int64 {
	return s.n.Load()
}
