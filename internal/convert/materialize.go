// Package convert turns parsed feed events into canonical calendar
// events and moves canonical events in and out of the JSON interchange
// format.
package convert

import (
	"fmt"

	"calhub/internal/ics"
	"calhub/internal/model"
)

// ToCalendarEvents materializes one parsed event for the given source
// group. A single event yields one CalendarEvent with id
// "group-uid"; a recurring event yields one per occurrence with id
// "group-uid-dateKey". All occurrences of a recurring event share the
// parsed EventData; only id and date vary.
func ToCalendarEvents(group model.Name, ev ics.Event) []model.CalendarEvent {
	if !ev.Recurrent {
		return []model.CalendarEvent{build(group, ev.Data, group.String()+"-"+ev.UID, ev.Date)}
	}

	out := make([]model.CalendarEvent, 0, len(ev.Dates))
	for _, date := range ev.Dates {
		id := group.String() + "-" + ev.UID + "-" + dateKey(date)
		out = append(out, build(group, ev.Data, id, date))
	}
	return out
}

// dateKey encodes an occurrence's start Moment into the stable id
// suffix. Instants use the zero-padded calendar date in the occurrence's
// own timezone; calendar dates use unpadded numeric components. The
// unpadded form looks odd next to the padded one but is load-bearing:
// ids must stay byte-identical to those in previously exported
// snapshots.
func dateKey(iv model.Interval) string {
	if iv.Kind == model.IntervalDateOnly {
		d := iv.StartDay
		return fmt.Sprintf("%d-%d-%d", d.Year, d.Month, d.Day)
	}
	return iv.Start.Format("2006-01-02")
}

func build(group model.Name, data ics.EventData, id string, date model.Interval) model.CalendarEvent {
	description := data.Description
	e := model.CalendarEvent{
		ID:          id,
		Title:       model.NameOf(data.Title),
		Group:       group,
		Date:        date,
		Description: &description,
	}
	if data.Location != nil && *data.Location != "" {
		address := *data.Location
		e.Address = &address
	}
	if data.Geo != nil {
		geo := *data.Geo
		e.Geo = &geo
	}
	if data.URL != nil && *data.URL != "" {
		url := *data.URL
		e.URL = &url
	}
	return model.New(e)
}
