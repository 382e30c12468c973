package testutil

import (
	"sync"
	"time"
)

// FakeClock is a wall clock for tests that advances by a fixed step on every
// read, so elapsed times are deterministic.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFakeClock starts at a fixed instant and advances by step per Now call.
// A zero step freezes the clock until Advance is called.
func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{
		now:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		step: step,
	}
}

// Now returns the current instant and then advances by the step.
// Its signature matches engine.NowFunc.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
