// Package businesshours implements the "business-hour slot" helper from
// the glossary: the next timestamp >= candidate, in the lead's timezone,
// inside [startHour, endHour), skipping weekends and paused dates, rounded
// forward to the next windowMinutes boundary.
package businesshours

import (
	"time"

	"github.com/geocoder89/leadflow/internal/domain/settings"
)

// NextSlot normalises candidate per §4.1. A non-existent or unparseable
// timezone falls back to UTC so a bad lead record never blocks scheduling.
func NextSlot(tz string, candidate time.Time, hours settings.BusinessHours, pausedDates []time.Time) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil || loc == nil {
		loc = time.UTC
	}

	windowMinutes := hours.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 1
	}

	t := candidate.In(loc)
	t = roundUpToWindow(t, windowMinutes)

	for i := 0; i < 366; i++ { // bounded: pushes at most ~a year forward
		if isPausedOrWeekend(t, hours, pausedDates) {
			t = startOfNextDay(t, hours.StartHour)
			continue
		}

		startOfDay := atHour(t, hours.StartHour)
		endOfDay := atHour(t, hours.EndHour)

		if t.Before(startOfDay) {
			t = startOfDay
			continue
		}
		if !t.Before(endOfDay) {
			t = startOfNextDay(t, hours.StartHour)
			continue
		}

		return t
	}

	return t
}

func roundUpToWindow(t time.Time, windowMinutes int) time.Time {
	t = t.Truncate(time.Minute)
	rem := t.Minute() % windowMinutes
	if rem == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	add := windowMinutes - rem
	return t.Add(time.Duration(add) * time.Minute).Truncate(time.Minute)
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func startOfNextDay(t time.Time, startHour int) time.Time {
	next := t.AddDate(0, 0, 1)
	return atHour(next, startHour)
}

func isPausedOrWeekend(t time.Time, hours settings.BusinessHours, pausedDates []time.Time) bool {
	for _, wd := range hours.WeekendDays {
		if t.Weekday() == wd {
			return true
		}
	}
	y, m, d := t.Date()
	for _, p := range pausedDates {
		py, pm, pd := p.Date()
		if y == py && m == pm && d == pd {
			return true
		}
	}
	return false
}
