// Package schedule implements the weekly lesson timetable logic: mapping a
// symbolic (weekday, start time) lesson slot onto concrete future calendar
// occurrences, and parsing free-text timetables into slots.
//
// Weekdays follow the school convention used across the application:
// 0 = Monday … 6 = Sunday.
package schedule

import (
	"fmt"
	"time"
)

// Resolver computes concrete occurrences of weekly lesson slots. The zero
// value resolves against the wall clock; tests inject Now to pin "now".
type Resolver struct {
	// Now returns the current time. When nil, time.Now is used.
	Now func() time.Time
}

// goWeekday converts time.Weekday (Sunday=0) to the 0=Monday convention.
func goWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// NextOccurrence returns the soonest future time whose weekday equals weekday
// (0=Monday) and whose time-of-day equals hour:minute. If the slot falls on
// today and its start time has already passed (now >= start), the occurrence
// one week ahead is returned instead.
//
// Inputs are assumed valid (weekday in [0,6], hour/minute a real clock time);
// callers validate at the boundary.
func (r Resolver) NextOccurrence(weekday, hour, minute int) time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	daysAhead := (weekday - goWeekday(now)) % 7
	if daysAhead < 0 {
		daysAhead += 7
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).
		AddDate(0, 0, daysAhead)
	if daysAhead == 0 && !now.Before(target) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}

// NextOccurrences returns the n soonest occurrences of the slot, the first
// chosen by the NextOccurrence rule and each subsequent one exactly seven
// days after the previous.
func (r Resolver) NextOccurrences(weekday, hour, minute, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	out[0] = r.NextOccurrence(weekday, hour, minute)
	for i := 1; i < n; i++ {
		out[i] = out[i-1].AddDate(0, 0, 7)
	}
	return out
}

// ParseClock parses a "H:MM" or "HH:MM" lesson start time into hour and
// minute components.
func ParseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	return hour, minute, nil
}
