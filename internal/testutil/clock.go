package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first time returned by a StepClock created with a zero
// start.
var DefaultEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// StepClock is a deterministic wall clock for tests.
//
// Every call to Now returns the previous value plus step, so successive
// llm_processed_utc stamps are distinct and predictable. The first call
// returns start.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int
}

// NewStepClock creates a clock starting at start (DefaultEpoch when zero)
// that advances by step on every call.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &StepClock{start: start, step: step}
}

// Now returns the next time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now has been called.
func (c *StepClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock so the next call to Now returns start again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
