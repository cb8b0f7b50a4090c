package testutil

import (
	"strconv"
	"sync"
	"time"

	"zenodo-upload/internal/deposit"
	"zenodo-upload/internal/zenodo"
)

// StubClock is a settable clock for ledger timestamps and publication dates.
// Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var (
	_ deposit.Clock = (*StubClock)(nil)
	_ zenodo.Clock  = (*StubClock)(nil)
)

// FixedClock returns a StubClock at 2024-01-15 10:30:00 UTC, which makes
// publication_date "2024-01-15".
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out operation ids "op-1", "op-2", ...
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

var _ deposit.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "op-" + strconv.Itoa(g.n)
}
