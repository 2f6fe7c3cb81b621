package rain

import "time"

// Accumulator owns the per-hour and per-day rainfall totals.
// It is not safe for concurrent use; the run loop is its only caller.
type Accumulator struct {
	mmPerTip float64

	perHour   [HoursPerDay]float64
	yesterday float64
	lastHour  float64

	// carried is the recovered total credited to the boot hour. It is not
	// rain that fell in that hour, so the first rollover leaves it out.
	carried float64

	lastCheckedHour int
	lastCheckedDay  int

	totalTips uint64
}

// NewAccumulator creates an accumulator with unset checked hour/day.
// A non-positive mmPerTip falls back to DefaultMMPerTip.
func NewAccumulator(mmPerTip float64) *Accumulator {
	if mmPerTip <= 0 {
		mmPerTip = DefaultMMPerTip
	}
	return &Accumulator{
		mmPerTip:        mmPerTip,
		lastCheckedHour: Unset,
		lastCheckedDay:  Unset,
	}
}

// Restore seeds the accumulator at boot from recovered state.
// A recovered same-day total has no hourly breakdown, so it is credited to
// the boot hour's bucket; that keeps Today equal to the sum of the buckets.
// The boot hour's LastHour reports only rain that fell after the restore.
func (a *Accumulator) Restore(today, yesterday float64, now time.Time) {
	a.perHour = [HoursPerDay]float64{}
	a.perHour[now.Hour()] = today
	a.carried = today
	a.yesterday = yesterday
	a.lastHour = 0
	a.lastCheckedHour = now.Hour()
	a.lastCheckedDay = now.Day()
}

// AddTips credits n tips to the bucket for now's hour.
// The volume is n × mmPerTip, one multiplication, so a batch of n tips lands
// on the same value however the edges were grouped into drains.
// No boundary check is made here; that is Tick's job.
func (a *Accumulator) AddTips(n uint32, now time.Time) {
	if n == 0 {
		return
	}
	a.totalTips += uint64(n)
	a.perHour[now.Hour()] += float64(n) * a.mmPerTip
}

// Tick checks now against the last checked day and hour and returns at most
// one event. Day rollover takes precedence over hour rollover. The first tick
// after construction only seeds the checked hour/day.
func (a *Accumulator) Tick(now time.Time) []Event {
	day, hour := now.Day(), now.Hour()

	if a.lastCheckedDay == Unset || a.lastCheckedHour == Unset {
		a.lastCheckedDay = day
		a.lastCheckedHour = hour
		return nil
	}

	if day != a.lastCheckedDay {
		completed := a.lastCheckedHour
		a.lastHour = a.completedHour(completed)
		a.yesterday = a.Today()
		a.perHour = [HoursPerDay]float64{}
		a.lastCheckedDay = day
		a.lastCheckedHour = hour
		return []Event{{
			Timestamp:     now,
			Type:          EventDayRollover,
			CompletedHour: completed,
			LastHour:      a.lastHour,
			Today:         0,
			Yesterday:     a.yesterday,
			Day:           day,
			Hour:          hour,
		}}
	}

	if hour != a.lastCheckedHour {
		completed := a.lastCheckedHour
		a.lastHour = a.completedHour(completed)
		a.lastCheckedHour = hour
		return []Event{{
			Timestamp:     now,
			Type:          EventHourRollover,
			CompletedHour: completed,
			LastHour:      a.lastHour,
			Today:         a.Today(),
			Yesterday:     a.yesterday,
			Day:           day,
			Hour:          hour,
		}}
	}

	return nil
}

// completedHour returns the rain that fell in hour and clears any carried
// total, which only ever sits in the first hour to complete.
func (a *Accumulator) completedHour(hour int) float64 {
	mm := a.perHour[hour] - a.carried
	a.carried = 0
	if mm < 0 {
		return 0
	}
	return mm
}

// Today returns the running total for the current day, the sum of the
// hourly buckets.
func (a *Accumulator) Today() float64 {
	var sum float64
	for _, v := range a.perHour {
		sum += v
	}
	return sum
}

// Yesterday returns the total snapshotted at the most recent day rollover.
func (a *Accumulator) Yesterday() float64 {
	return a.yesterday
}

// LastCheckedDay returns the day-of-month of the last tick, or Unset.
func (a *Accumulator) LastCheckedDay() int {
	return a.lastCheckedDay
}

// LastCheckedHour returns the hour of the last tick, or Unset.
func (a *Accumulator) LastCheckedHour() int {
	return a.lastCheckedHour
}

// Snapshot returns a copy of the current state.
func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		PerHour:         a.perHour,
		Today:           a.Today(),
		Yesterday:       a.yesterday,
		LastHour:        a.lastHour,
		LastCheckedHour: a.lastCheckedHour,
		LastCheckedDay:  a.lastCheckedDay,
		TotalTips:       a.totalTips,
		MMPerTip:        a.mmPerTip,
	}
}
