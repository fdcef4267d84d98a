package testutil

import (
	"sync/atomic"
	"time"
)

// MockClock is a settable clock for window and block tests. It satisfies
// distributed.Clock. Time is kept at millisecond resolution, matching the
// store's TTLs.
type MockClock struct {
	ms atomic.Int64
}

// NewMockClock returns a clock stopped at start, or at the current time when
// start is zero.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	c := &MockClock{}
	c.Set(start)
	return c
}

// Now returns the clock's time.
func (c *MockClock) Now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.ms.Add(d.Milliseconds())
}

// Set moves the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.ms.Store(t.UnixMilli())
}

// NextWindow moves the clock to the start of the following fixed window and
// returns how far it moved.
func (c *MockClock) NextWindow(window time.Duration) time.Duration {
	w := window.Milliseconds()
	now := c.ms.Load()
	step := w - now%w
	c.ms.Add(step)
	return time.Duration(step) * time.Millisecond
}
