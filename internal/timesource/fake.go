package timesource

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FakeRTC is a test double RTC that advances with a clockwork clock.
type FakeRTC struct {
	mu  sync.Mutex
	clk clockwork.Clock

	base     time.Time
	baseMono time.Time

	// LostPower makes ReadTime return ErrLostPower until SetTime.
	LostPower bool
	// ReadError and SetError, if set, are returned by ReadTime and SetTime.
	ReadError error
	SetError  error

	// Sets records every successful SetTime argument.
	Sets []time.Time
}

// NewFakeRTC creates a FakeRTC that reads t at clk's current instant.
func NewFakeRTC(clk clockwork.Clock, t time.Time) *FakeRTC {
	return &FakeRTC{clk: clk, base: t, baseMono: clk.Now()}
}

// ReadTime implements RTC.
func (f *FakeRTC) ReadTime() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return time.Time{}, f.ReadError
	}
	if f.LostPower {
		return time.Time{}, ErrLostPower
	}
	return f.base.Add(f.clk.Since(f.baseMono)), nil
}

// SetTime implements RTC.
func (f *FakeRTC) SetTime(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.base = t
	f.baseMono = f.clk.Now()
	f.LostPower = false
	f.Sets = append(f.Sets, t)
	return nil
}

// FakeReference is a Reference returning a fixed answer.
type FakeReference struct {
	Time time.Time
	OK   bool
}

// Reference implements Reference.
func (f FakeReference) Reference() (time.Time, bool) {
	return f.Time, f.OK
}
