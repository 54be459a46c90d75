// Package timeutil stamps fit runs and imports. Stores take a Clock so tests
// can pin the timestamps they persist.
package timeutil

import (
	"sync"
	"time"
)

// StampLayout is the layout of every timestamp written to the database.
const StampLayout = time.RFC3339

// Clock is the source of wall time for stores and the CLI.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Stamp returns the current time of c in UTC at whole-second resolution,
// which is what survives a round trip through StampLayout.
func Stamp(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Second)
}

// FormatStamp renders t as a stored timestamp.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// ParseStamp reads a timestamp written by FormatStamp.
func ParseStamp(s string) (time.Time, error) {
	return time.Parse(StampLayout, s)
}

// MockClock only moves when told to.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
