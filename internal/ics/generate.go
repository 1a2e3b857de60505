package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"calhub/internal/model"
)

// DefaultProductID is the PRODID stamped on generated calendars.
const DefaultProductID = "lyontechhub/ics"

// Generate serializes canonical events back into an ICS document with
// one VEVENT per event. SUMMARY carries the group-prefixed full title
// and UID the canonical id. Instant intervals become absolute UTC
// timestamps; calendar-date intervals become VALUE=DATE properties with
// the end date incremented back to the wire format's exclusive
// convention, the exact inverse of what Parse does.
func Generate(events []model.CalendarEvent, productID string) string {
	if productID == "" {
		productID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range events {
		ve := cal.AddEvent(e.ID)
		ve.SetSummary(e.FullTitle().String())

		switch e.Date.Kind {
		case model.IntervalDateOnly:
			ve.SetAllDayStartAt(e.Date.StartDay.Time(time.UTC))
			ve.SetAllDayEndAt(e.Date.EndDay.AddDays(1).Time(time.UTC))
		default:
			ve.SetStartAt(e.Date.Start.UTC())
			ve.SetEndAt(e.Date.End.UTC())
		}

		if e.Description != nil && *e.Description != "" {
			ve.SetDescription(*e.Description)
		}
		if e.Address != nil {
			ve.SetLocation(*e.Address)
		}
		if e.Geo != nil {
			ve.SetGeo(e.Geo.Lat, e.Geo.Lon)
		}
		if e.URL != nil {
			ve.SetURL(*e.URL)
		}
		if !e.CreatedAt.IsZero() {
			ve.SetCreatedTime(e.CreatedAt.UTC())
		}
		if !e.UpdatedAt.IsZero() {
			ve.SetModifiedAt(e.UpdatedAt.UTC())
			ve.SetDtStampTime(e.UpdatedAt.UTC())
		}
	}

	return cal.Serialize()
}
