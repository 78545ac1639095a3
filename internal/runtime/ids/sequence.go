package ids

import "sync/atomic"

// Sequence hands out strictly increasing message ids. It is never reset, so
// ids keep growing across runs of the same driver.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence returns a sequence whose first Next call yields start.
func NewSequence(start uint64) *Sequence {
	// zero means "unassigned" on a message, so it is never issued
	if start == 0 {
		start = 1
	}
	s := &Sequence{}
	s.last.Store(start - 1)
	return s
}

// Next reserves and returns the next id.
func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued id, or 0 when none was issued.
func (s *Sequence) Last() uint64 {
	return s.last.Load()
}
