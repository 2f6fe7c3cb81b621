package rain

import "time"

// DefaultCheckpointInterval is how often accumulated state is persisted
// when no rollover forces an earlier write.
const DefaultCheckpointInterval = 5 * time.Minute

// Checkpointer rate-limits persistence writes. Storage has a finite write
// budget, so tips never trigger a write on their own.
// Time must come from a monotonic source; wall-clock corrections would
// otherwise shorten or stretch the interval.
type Checkpointer struct {
	interval time.Duration
	last     time.Time
}

// NewCheckpointer creates a Checkpointer whose first interval starts at start.
func NewCheckpointer(interval time.Duration, start time.Time) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{interval: interval, last: start}
}

// Due reports whether a periodic checkpoint should be written at now, and if
// so starts the next interval.
func (c *Checkpointer) Due(now time.Time) bool {
	if now.Sub(c.last) < c.interval {
		return false
	}
	c.last = now
	return true
}

// Mark records an out-of-band checkpoint (e.g. after a day rollover) and
// restarts the interval from now.
func (c *Checkpointer) Mark(now time.Time) {
	c.last = now
}

// Interval returns the configured checkpoint interval.
func (c *Checkpointer) Interval() time.Duration {
	return c.interval
}
