package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a settable clock. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock reading t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at 2025-03-01 12:00:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out "scan-1", "scan-2", ...
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("scan-%d", g.n)
}
