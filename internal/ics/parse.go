package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calhub/internal/log"
	"calhub/internal/model"
)

// EventData is the descriptive payload shared by every occurrence of one
// VEVENT. URL, Location and Geo are nil when the source has no such
// property.
type EventData struct {
	Title       string
	Description string
	URL         *string
	Location    *string
	Geo         *model.Geo
}

// Event is the normalized form of one VEVENT: either a single interval
// or, when the VEVENT carries an RRULE, the expanded list of occurrence
// intervals. Consumers must branch on Recurrent.
type Event struct {
	UID       string
	Recurrent bool

	// Date is set when Recurrent is false.
	Date model.Interval
	// Dates holds the expanded occurrences, in rule order, when
	// Recurrent is true.
	Dates []model.Interval

	Data EventData
}

// Parse parses one ICS payload into normalized events. Recurring events
// are expanded over the fixed window [DTSTART - 1 day, now + 1 year].
//
// A malformed URL or GEO shape, or an unparseable VEVENT, fails the
// whole payload: one feed is parsed as a unit and the caller decides how
// to contain the failure. Non-VEVENT blocks (VTIMEZONE, VALARM, ...) are
// ignored.
func Parse(body string, now time.Time) ([]Event, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics parse: %w", err)
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, now)
		if perr != nil {
			return nil, perr
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, now time.Time) (Event, error) {
	var out Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("ics parse: missing UID")
	}
	out.UID = uidProp.Value

	data, err := extractEventData(ve, out.UID)
	if err != nil {
		return out, err
	}
	out.Data = data

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, fmt.Errorf("ics parse: missing DTSTART for event %s", out.UID)
	}
	start, startIsDate, err := parsePropTime(*startProp)
	if err != nil {
		return out, fmt.Errorf("ics parse: invalid DTSTART for event %s: %w", out.UID, err)
	}

	end := start
	endPresent := false
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, _, err = parsePropTime(*endProp)
		if err != nil {
			return out, fmt.Errorf("ics parse: invalid DTEND for event %s: %w", out.UID, err)
		}
		endPresent = true
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		dates, rerr := expandRecurrence(out.UID, rruleProp.Value, start, end, extractExDates(ve), now)
		if rerr != nil {
			return out, rerr
		}
		out.Recurrent = true
		out.Dates = dates
		return out, nil
	}

	if startIsDate {
		startDay := model.DateOnlyOf(start)
		endDay := startDay
		if endPresent {
			// The wire end date for all-day events is exclusive; the
			// canonical model stores the inclusive last day.
			endDay = model.DateOnlyOf(end).AddDays(-1)
		}
		out.Date = model.DayInterval(startDay, endDay)
		return out, nil
	}

	out.Date = model.InstantInterval(start, end)
	return out, nil
}

func extractEventData(ve *ical.VEvent, uid string) (EventData, error) {
	data := EventData{}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		data.Title = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		data.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil && p.Value != "" {
		loc := unescapeText(p.Value)
		data.Location = &loc
	}

	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		// Both the bare form (URL:...) and the parameterized form
		// (URL;VALUE=URI:...) carry the value as plain text; anything
		// else is an unsupported shape.
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && !strings.EqualFold(vs[0], "URI") {
			return data, fmt.Errorf("ics parse: invalid url for event %s: VALUE=%s", uid, vs[0])
		}
		u := p.Value
		data.URL = &u
	}

	if p := ve.GetProperty("GEO"); p != nil {
		geo, err := parseGeo(p.Value)
		if err != nil {
			return data, fmt.Errorf("ics parse: invalid geo for event %s: %q", uid, p.Value)
		}
		data.Geo = geo
	}

	return data, nil
}

// parseGeo parses the "lat;lon" GEO property value.
func parseGeo(v string) (*model.Geo, error) {
	latStr, lonStr, ok := strings.Cut(strings.TrimSpace(v), ";")
	if !ok {
		return nil, errors.New("missing separator")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, err
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, err
	}
	return &model.Geo{Lat: lat, Lon: lon}, nil
}

func extractExDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseTimeValue(part, propLocation(*p)); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// parsePropTime parses a DTSTART/DTEND property into a time.Time and
// reports whether the property is date-only (all-day).
func parsePropTime(p ical.IANAProperty) (time.Time, bool, error) {
	v := strings.TrimSpace(p.Value)

	dateOnly := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		dateOnly = true
	}
	if dateOnly {
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		return t, true, err
	}

	t, err := parseTimeValue(v, propLocation(p))
	return t, false, err
}

// parseTimeValue parses a basic ICS date or date-time string. Values
// with a trailing Z are UTC; naive date-times are interpreted in loc.
func parseTimeValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// propLocation resolves the TZID parameter of a property, falling back
// to the runtime's local zone when absent or unknown.
func propLocation(p ical.IANAProperty) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
		appLog.Error("ics parse: unknown TZID, using local zone", errors.New("unknown timezone"), "tzid", tzs[0])
	}
	return time.Local
}

// unescapeText reverses the TEXT value escaping of the wire format
// (backslash-escaped newlines, commas, semicolons and backslashes).
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
