package model

import "time"

// now is a package-level clock so tests can pin construction timestamps.
var now = time.Now

// Geo is a WGS84 coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CalendarEvent is one immutable occurrence on the merged timeline.
//
// ID is globally unique within a merged timeline and is a pure function
// of the source group, the source UID and (for recurring occurrences)
// the occurrence start; re-parsing the same source content always yields
// the same IDs.
//
// Description, Address, Geo and URL are nil when the source carried no
// such field; a present-but-empty description stays distinguishable from
// an absent one.
type CalendarEvent struct {
	ID    string
	Title Name
	Group Name
	Date  Interval

	Description *string
	Address     *string
	Geo         *Geo
	URL         *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns e with CreatedAt/UpdatedAt defaulted to the current
// instant when unset. Timestamps are normalized to UTC millisecond
// precision, the precision the JSON interchange format preserves.
func New(e CalendarEvent) CalendarEvent {
	t := now().UTC().Truncate(time.Millisecond)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = t
	}
	return e
}

// FullTitle is the display title prefixed with the source group label.
func (e CalendarEvent) FullTitle() Name {
	return NameOf("[" + e.Group.String() + "] " + e.Title.String())
}
