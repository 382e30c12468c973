package engine

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic logical clock that stamps execution records.
//
// Records are ordered by sequence number, never by wall-clock time, so a log
// read back from the store has a stable order.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to continue numbering after records already in a store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// NowFunc reads the wall clock. Only elapsed-time reporting uses it.
type NowFunc func() time.Time

func elapsedMs(start, end time.Time) float64 {
	return float64(end.Sub(start)) / float64(time.Millisecond)
}
