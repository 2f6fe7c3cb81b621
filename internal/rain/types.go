// Package rain attributes drained tip counts to hour and day buckets and
// detects hour and day rollovers.
// This package has NO external dependencies (no GPIO, storage, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package rain

import "time"

// HoursPerDay is the number of hourly buckets.
const HoursPerDay = 24

// Unset marks a checked hour or day that has not been seeded yet.
const Unset = -1

// DefaultMMPerTip is the factory calibration of a 0.011" tipping bucket.
const DefaultMMPerTip = 0.2794

// EventType represents a time-boundary transition.
type EventType string

const (
	EventHourRollover EventType = "HOUR_ROLLOVER"
	EventDayRollover  EventType = "DAY_ROLLOVER"
)

// Event is emitted by Tick when the wall clock crosses an hour or day boundary.
type Event struct {
	Timestamp time.Time
	Type      EventType

	// CompletedHour is the hour-of-day whose bucket is reported in LastHour.
	CompletedHour int
	// LastHour is the total of the just-completed hour bucket.
	LastHour float64

	// Today is the running day total after the transition (0 after a day rollover).
	Today float64
	// Yesterday is the snapshot taken at the most recent day rollover.
	Yesterday float64

	// Day and Hour are the new checked day-of-month and hour.
	Day  int
	Hour int
}

// Snapshot is a point-in-time copy of accumulator state.
// It is a value type and safe to hand to other goroutines.
type Snapshot struct {
	PerHour         [HoursPerDay]float64
	Today           float64
	Yesterday       float64
	LastHour        float64
	LastCheckedHour int
	LastCheckedDay  int
	TotalTips       uint64
	MMPerTip        float64
}
