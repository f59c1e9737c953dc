// Package clock provides a mockable time source.
//
// Two readings matter to sieve: wall time for history entries and log lines,
// and a nanosecond tick that mirrors bpf_ktime_get_ns() for the reputation
// model. Production code uses Real; tests inject a Mock and advance it by hand.
package clock

import (
	"sync"
	"time"
)

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	// Nanos returns a monotonic nanosecond reading comparable only with
	// other readings from the same clock.
	Nanos() uint64
}

// Real provides the actual system time.
type Real struct{}

var start = time.Now()

// Now returns the current system time.
func (Real) Now() time.Time { return time.Now() }

// Nanos returns nanoseconds elapsed since process start.
func (Real) Nanos() uint64 { return uint64(time.Since(start)) }

// Mock is a test clock with controllable time.
type Mock struct {
	mu      sync.RWMutex
	current time.Time
	base    time.Time
}

// NewMock creates a mock clock set to the given time.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t, base: t}
}

// Now returns the mock time.
func (c *Mock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Nanos returns nanoseconds elapsed since the mock was created.
func (c *Mock) Nanos() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(c.current.Sub(c.base))
}

// Set sets the mock time. Moving it before the creation time is not supported
// by Nanos.
func (c *Mock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance advances the mock time by d.
func (c *Mock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Now returns the current system time.
func Now() time.Time {
	return time.Now()
}
