package scheduler

import "sync/atomic"

// sequence hands out strictly increasing values for task ids and for the
// submission order used to break deadline ties.
//
// Thread-safety: safe for concurrent use (atomic operations).
type sequence struct {
	n atomic.Uint64
}

// next returns the next value. The first call returns 1.
func (s *sequence) next() uint64 {
	return s.n.Add(1)
}

// current returns the last value handed out without incrementing.
func (s *sequence) current() uint64 {
	return s.n.Load()
}
