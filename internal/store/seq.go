package store

import "sync/atomic"

// seqClock issues the monotonic creation sequence numbers that break
// ordering ties deterministically. Safe for concurrent use.
type seqClock struct {
	seq atomic.Int64
}

func newSeqClockAt(start int64) *seqClock {
	c := &seqClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number. Each call returns a unique,
// strictly increasing value.
func (c *seqClock) Next() int64 {
	return c.seq.Add(1)
}
