package timesource

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// DefaultFallback is used when the RTC has lost power and no reference
// is available at boot.
var DefaultFallback = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Source is the wall-clock capability handed to the run loop.
type Source struct {
	rtc      RTC
	clk      clockwork.Clock
	fallback time.Time
	loc      *time.Location

	mu       sync.Mutex
	lastGood time.Time // last wall time obtained from the RTC or a resync
	lastMono time.Time // clk.Now() when lastGood was obtained
	valid    bool

	// onFallback is set while the clock runs from the fallback timestamp.
	// Writing the fallback clears the RTC's lost-power flag, so only a
	// successful Resync may clear it.
	onFallback bool
}

// New creates a Source. clk supplies monotonic time; loc is the zone
// rollovers are computed in (nil = UTC).
func New(rtc RTC, clk clockwork.Clock, fallback time.Time, loc *time.Location) *Source {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if fallback.IsZero() {
		fallback = DefaultFallback
	}
	if loc == nil {
		loc = time.UTC
	}
	now := clk.Now()
	return &Source{
		rtc:      rtc,
		clk:      clk,
		fallback: fallback,
		loc:      loc,
		lastGood: fallback,
		lastMono: now,
	}
}

// Init runs once at boot, before the store is loaded. If the RTC lost power
// it is set from ref when ref is trustworthy, otherwise from the fallback.
func (s *Source) Init(ref Reference) error {
	t, err := s.rtc.ReadTime()
	switch {
	case err == nil:
		s.remember(t, true)
		if ref != nil {
			if rt, ok := ref.Reference(); ok {
				return s.Resync(rt)
			}
		}
		return nil

	case errors.Is(err, ErrLostPower):
		if ref != nil {
			if rt, ok := ref.Reference(); ok {
				logger.Warn("rtc lost power, setting from reference clock")
				return s.Resync(rt)
			}
		}
		logger.Warnf("rtc lost power and no reference available, using fallback %s", s.fallback.Format(time.RFC3339))
		s.remember(s.fallback, false)
		s.setFallback(true)
		if err := s.rtc.SetTime(s.fallback); err != nil {
			return fmt.Errorf("set fallback time: %w", err)
		}
		return nil

	default:
		logger.Errorf("rtc read failed at boot [%v], using fallback", err)
		s.remember(s.fallback, false)
		s.setFallback(true)
		return fmt.Errorf("read rtc: %w", err)
	}
}

// Now returns the current wall time. A failed RTC read is bridged by
// extrapolating the last good reading with the monotonic clock.
func (s *Source) Now() time.Time {
	t, err := s.rtc.ReadTime()
	if err == nil {
		s.remember(t, true)
		return t.In(s.loc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, ErrLostPower) {
		s.valid = false
	}
	return s.lastGood.Add(s.clk.Since(s.lastMono)).In(s.loc)
}

// Resync overwrites the RTC from an externally obtained time. On failure the
// previous clock stays authoritative.
func (s *Source) Resync(t time.Time) error {
	if err := s.rtc.SetTime(t); err != nil {
		return fmt.Errorf("resync rtc: %w", err)
	}
	s.remember(t, true)
	s.setFallback(false)
	return nil
}

// Valid reports whether the last reading came from a clock that has been set
// from a real time, not the fallback.
func (s *Source) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid && !s.onFallback
}

func (s *Source) setFallback(on bool) {
	s.mu.Lock()
	s.onFallback = on
	s.mu.Unlock()
}

func (s *Source) remember(t time.Time, valid bool) {
	s.mu.Lock()
	s.lastGood = t
	s.lastMono = s.clk.Now()
	s.valid = valid
	s.mu.Unlock()
}
