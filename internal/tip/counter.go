// Package tip turns raw falling edges from the rain gauge reed switch into a
// debounced tip count that the run loop drains once per poll.
//
// OnEdge is called from the GPIO event goroutine and must stay cheap: one
// comparison, one store, one increment. Drain is called from the run loop.
// The two sides share only atomics, so neither ever blocks the other.
package tip

import (
	"sync/atomic"
	"time"
)

// DefaultDebounce is the minimum spacing between two accepted tips.
const DefaultDebounce = 200 * time.Millisecond

// Counter is a debounced tip counter.
type Counter struct {
	debounceMs int64

	pending      atomic.Uint32
	lastAccepted atomic.Int64 // ms, monotonic
	seen         atomic.Bool  // false until the first edge is accepted

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewCounter creates a Counter that drops edges closer than debounce to the
// previously accepted edge.
func NewCounter(debounce time.Duration) *Counter {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Counter{debounceMs: debounce.Milliseconds()}
}

// OnEdge records a raw falling edge observed at nowMs (monotonic milliseconds).
// Must only be called from a single goroutine.
func (c *Counter) OnEdge(nowMs int64) {
	if c.seen.Load() && nowMs-c.lastAccepted.Load() <= c.debounceMs {
		c.rejected.Add(1)
		return
	}
	c.lastAccepted.Store(nowMs)
	c.seen.Store(true)
	c.pending.Add(1)
	c.accepted.Add(1)
}

// Drain returns the number of tips since the previous Drain and resets the
// pending count to zero in one atomic step.
func (c *Counter) Drain() uint32 {
	return c.pending.Swap(0)
}

// Accepted returns the lifetime number of accepted tips.
func (c *Counter) Accepted() uint64 {
	return c.accepted.Load()
}

// Rejected returns the lifetime number of edges dropped as bounce.
func (c *Counter) Rejected() uint64 {
	return c.rejected.Load()
}

// Debounce returns the configured debounce window.
func (c *Counter) Debounce() time.Duration {
	return time.Duration(c.debounceMs) * time.Millisecond
}
