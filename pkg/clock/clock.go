// Package clock abstracts the wall clock so snapshot names and log timestamps
// can be pinned in tests.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FakeClock implements Clock with a settable time for testing.
type FakeClock struct {
	current time.Time
}

// NewFakeClock creates a new FakeClock pinned at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the pinned time.
func (c *FakeClock) Now() time.Time {
	return c.current
}

// Advance moves the pinned time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
