package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calhub/internal/model"
)

// expandRecurrence turns an RRULE into the concrete occurrence intervals
// of the event within [start - 1 day, now + 1 year]. The one-year-ahead
// horizon is a fixed policy.
//
// The rule is anchored at the event's DTSTART in its own timezone, so
// the library iterates on wall-clock components in that zone and an
// occurrence keeps its local time across DST transitions (a 19:00
// Europe/Paris meeting stays at 19:00 whether that is +01:00 or +02:00).
// Each occurrence's end is reconstructed by adding the base event's
// duration to the occurrence start.
//
// Exclusion dates are matched at day granularity: an occurrence is
// dropped when its calendar day equals the calendar day of any EXDATE,
// regardless of time-of-day.
func expandRecurrence(uid, rawRRule string, start, end time.Time, exDates []time.Time, now time.Time) ([]model.Interval, error) {
	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, fmt.Errorf("ics parse: invalid RRULE for event %s: %w", uid, err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)

	windowStart := start.AddDate(0, 0, -1)
	windowEnd := now.AddDate(1, 0, 0)
	duration := end.Sub(start)

	out := make([]model.Interval, 0)
	for _, occ := range set.Between(windowStart, windowEnd, true) {
		if excludedDay(occ, exDates) {
			continue
		}
		out = append(out, model.InstantInterval(occ, occ.Add(duration)))
	}
	return out, nil
}

func excludedDay(occ time.Time, exDates []time.Time) bool {
	day := model.DateOnlyOf(occ)
	for _, ex := range exDates {
		if model.DateOnlyOf(ex) == day {
			return true
		}
	}
	return false
}
