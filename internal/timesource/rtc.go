// Package timesource provides the wall clock the accumulator and store
// attribute rainfall against: a battery-backed RTC, corrected from an
// external reference when one is available, with a fixed fallback when the
// RTC has never been set.
package timesource

import (
	"errors"
	"time"
)

// ErrLostPower is returned by RTC.ReadTime when the clock's oscillator
// stopped and the time it reports is meaningless.
var ErrLostPower = errors.New("rtc: lost power, time not set")

// RTC is a real-time clock.
type RTC interface {
	// ReadTime returns the stored time, or ErrLostPower.
	ReadTime() (time.Time, error)

	// SetTime overwrites the stored time and clears any lost-power flag.
	SetTime(t time.Time) error
}

// Reference supplies an externally synchronized time (e.g. NTP).
type Reference interface {
	// Reference returns the reference time and whether it is trustworthy.
	Reference() (time.Time, bool)
}

// MinReliableYear is the earliest year accepted from a reference clock.
// Anything older means the host clock has not been synchronized.
const MinReliableYear = 2024

// IsReliable reports whether t looks like a synchronized clock reading.
func IsReliable(t time.Time) bool {
	return t.Year() >= MinReliableYear
}
