// Package status provides a thread-safe status tracker for the rain-gauge daemon.
// It is read by HTTP handlers and the MQTT system events; it never writes
// accumulator or storage state.
package status

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/rain-gauge/internal/rain"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	DebounceMs   int64
	CheckpointMs int64
	MMPerTip     float64
	Storage      string
	RTC          string
	Broker       string
	HTTPAddr     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Rain     rain.Snapshot
	WallTime time.Time // wall clock of the last run-loop tick
	Bounces  uint64

	StorageOK      bool
	LastCheckpoint time.Time
	TimeValid      bool
	MQTTConnected  bool

	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	clk clockwork.Clock

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. clk stamps Snapshot.Now and the start time.
func NewTracker(clk clockwork.Clock, cfg Config) *Tracker {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Tracker{
		clk: clk,
		snap: Snapshot{
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// Update sets the accumulator snapshot. Called from the run loop on every tick.
func (t *Tracker) Update(r rain.Snapshot, wall time.Time, bounces uint64) {
	t.mu.Lock()
	t.snap.Rain = r
	t.snap.WallTime = wall
	t.snap.Bounces = bounces
	t.mu.Unlock()
}

// SetStorage records the outcome of a storage operation.
func (t *Tracker) SetStorage(ok bool, at time.Time) {
	t.mu.Lock()
	t.snap.StorageOK = ok
	if ok {
		t.snap.LastCheckpoint = at
	}
	t.mu.Unlock()
}

// SetTimeValid records whether the wall clock is trustworthy.
func (t *Tracker) SetTimeValid(valid bool) {
	t.mu.Lock()
	t.snap.TimeValid = valid
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.clk.Now()
	return s
}
