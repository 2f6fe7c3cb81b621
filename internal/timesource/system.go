package timesource

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SystemRTC uses the host clock as the RTC, for boards without a
// battery-backed clock. SetTime stores an offset rather than changing the
// host clock. Until the host clock is reliable or SetTime is called,
// ReadTime reports ErrLostPower.
type SystemRTC struct {
	clk clockwork.Clock

	mu     sync.Mutex
	offset time.Duration
	set    bool
}

// NewSystemRTC creates a SystemRTC reading from clk (nil = real clock).
func NewSystemRTC(clk clockwork.Clock) *SystemRTC {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &SystemRTC{clk: clk}
}

// ReadTime implements RTC.
func (r *SystemRTC) ReadTime() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	if !r.set && !IsReliable(now) {
		return time.Time{}, ErrLostPower
	}
	return now.Add(r.offset), nil
}

// SetTime implements RTC.
func (r *SystemRTC) SetTime(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = t.Sub(r.clk.Now())
	r.set = true
	return nil
}

// SystemReference uses the host clock as the external reference. On Linux
// the host clock is disciplined by NTP once the network is up.
type SystemReference struct {
	clk clockwork.Clock
}

// NewSystemReference creates a SystemReference reading from clk (nil = real clock).
func NewSystemReference(clk clockwork.Clock) *SystemReference {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &SystemReference{clk: clk}
}

// Reference implements Reference.
func (r *SystemReference) Reference() (time.Time, bool) {
	now := r.clk.Now()
	return now, IsReliable(now)
}
