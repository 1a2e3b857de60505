package model

import "time"

// IntervalKind discriminates the two Interval variants. The values match
// the wire discriminant used by the JSON interchange format, so they
// must not be renamed.
type IntervalKind string

const (
	// IntervalDateTime is a pair of absolute instants.
	IntervalDateTime IntervalKind = "IntervalDateTime"
	// IntervalDateOnly is a pair of calendar dates (all-day events).
	IntervalDateOnly IntervalKind = "IntervalDateOnly"
)

// DateOnly is a calendar date with no time-of-day component.
type DateOnly struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// DateOnlyOf extracts the calendar date of t in t's own location.
func DateOnlyOf(t time.Time) DateOnly {
	y, m, d := t.Date()
	return DateOnly{Year: y, Month: int(m), Day: d}
}

// AddDays returns the date n days later (or earlier for negative n),
// normalized across month and year boundaries.
func (d DateOnly) AddDays(n int) DateOnly {
	return DateOnlyOf(time.Date(d.Year, time.Month(d.Month), d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Time returns midnight of the date in loc.
func (d DateOnly) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is strictly earlier than other.
func (d DateOnly) Before(other DateOnly) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// Interval is a (start, end) pair of Moments of the same kind. For an
// instant interval End is the exclusive end instant; for a calendar-date
// interval EndDay is the inclusive last day. The inclusive convention
// deliberately differs from the ICS wire format, which stores an
// exclusive end date for all-day events; internal/ics owns the
// conversion in both directions.
type Interval struct {
	Kind IntervalKind

	// Start / End are set when Kind == IntervalDateTime.
	Start time.Time
	End   time.Time

	// StartDay / EndDay are set when Kind == IntervalDateOnly.
	StartDay DateOnly
	EndDay   DateOnly
}

// InstantInterval builds an instant-kind Interval.
func InstantInterval(start, end time.Time) Interval {
	return Interval{Kind: IntervalDateTime, Start: start, End: end}
}

// DayInterval builds a calendar-date Interval with an inclusive end day.
func DayInterval(start, end DateOnly) Interval {
	return Interval{Kind: IntervalDateOnly, StartDay: start, EndDay: end}
}

// Equal compares two intervals structurally. Instants compare as absolute
// times regardless of location.
func (iv Interval) Equal(other Interval) bool {
	if iv.Kind != other.Kind {
		return false
	}
	if iv.Kind == IntervalDateOnly {
		return iv.StartDay == other.StartDay && iv.EndDay == other.EndDay
	}
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}
