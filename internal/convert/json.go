package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"calhub/internal/model"
)

// isoMillis matches the interchange format's instant encoding:
// ISO-8601 in UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// EventDTO is the wire shape of one canonical event in the JSON
// interchange format. Optional fields are omitted rather than emitted
// empty so a re-import reproduces the same structure.
type EventDTO struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Group       string      `json:"group"`
	Date        IntervalDTO `json:"date"`
	Description *string     `json:"description,omitempty"`
	Address     *string     `json:"address,omitempty"`
	Geo         *model.Geo  `json:"geo,omitempty"`
	URL         *string     `json:"url,omitempty"`
	CreatedAt   string      `json:"createdAt,omitempty"`
	UpdatedAt   string      `json:"updatedAt,omitempty"`
}

// IntervalDTO carries the interval with its kind discriminant.
type IntervalDTO struct {
	Kind  string    `json:"kind"`
	Start MomentDTO `json:"start"`
	End   MomentDTO `json:"end"`
}

// MomentDTO is either an ISO-8601 instant string or a
// {year,month,day} object, depending on the interval kind.
type MomentDTO struct {
	Instant string
	Day     *model.DateOnly
}

func (m MomentDTO) MarshalJSON() ([]byte, error) {
	if m.Day != nil {
		return json.Marshal(m.Day)
	}
	return json.Marshal(m.Instant)
}

func (m *MomentDTO) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &m.Instant)
	}
	m.Day = &model.DateOnly{}
	return json.Unmarshal(b, m.Day)
}

// Serialize maps canonical events onto their wire DTOs.
func Serialize(events []model.CalendarEvent) []EventDTO {
	out := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dto := EventDTO{
			ID:          e.ID,
			Title:       e.Title.String(),
			Group:       e.Group.String(),
			Date:        serializeInterval(e.Date),
			Description: e.Description,
			Address:     e.Address,
			Geo:         e.Geo,
			URL:         e.URL,
		}
		if !e.CreatedAt.IsZero() {
			dto.CreatedAt = e.CreatedAt.UTC().Format(isoMillis)
		}
		if !e.UpdatedAt.IsZero() {
			dto.UpdatedAt = e.UpdatedAt.UTC().Format(isoMillis)
		}
		out = append(out, dto)
	}
	return out
}

// Deserialize is the structural inverse of Serialize.
func Deserialize(dtos []EventDTO) ([]model.CalendarEvent, error) {
	out := make([]model.CalendarEvent, 0, len(dtos))
	for _, dto := range dtos {
		date, err := deserializeInterval(dto.Date)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", dto.ID, err)
		}
		e := model.CalendarEvent{
			ID:          dto.ID,
			Title:       model.NameOf(dto.Title),
			Group:       model.NameOf(dto.Group),
			Date:        date,
			Description: dto.Description,
			Address:     dto.Address,
			Geo:         dto.Geo,
			URL:         dto.URL,
		}
		if dto.CreatedAt != "" {
			if e.CreatedAt, err = time.Parse(time.RFC3339, dto.CreatedAt); err != nil {
				return nil, fmt.Errorf("event %s: invalid createdAt: %w", dto.ID, err)
			}
		}
		if dto.UpdatedAt != "" {
			if e.UpdatedAt, err = time.Parse(time.RFC3339, dto.UpdatedAt); err != nil {
				return nil, fmt.Errorf("event %s: invalid updatedAt: %w", dto.ID, err)
			}
		}
		out = append(out, model.New(e))
	}
	return out, nil
}

func serializeInterval(iv model.Interval) IntervalDTO {
	if iv.Kind == model.IntervalDateOnly {
		start, end := iv.StartDay, iv.EndDay
		return IntervalDTO{
			Kind:  string(model.IntervalDateOnly),
			Start: MomentDTO{Day: &start},
			End:   MomentDTO{Day: &end},
		}
	}
	return IntervalDTO{
		Kind:  string(model.IntervalDateTime),
		Start: MomentDTO{Instant: iv.Start.UTC().Format(isoMillis)},
		End:   MomentDTO{Instant: iv.End.UTC().Format(isoMillis)},
	}
}

func deserializeInterval(dto IntervalDTO) (model.Interval, error) {
	if dto.Kind == string(model.IntervalDateOnly) {
		if dto.Start.Day == nil || dto.End.Day == nil {
			return model.Interval{}, fmt.Errorf("interval kind %s requires date objects", dto.Kind)
		}
		return model.DayInterval(*dto.Start.Day, *dto.End.Day), nil
	}
	start, err := time.Parse(time.RFC3339, dto.Start.Instant)
	if err != nil {
		return model.Interval{}, fmt.Errorf("invalid start instant: %w", err)
	}
	end, err := time.Parse(time.RFC3339, dto.End.Instant)
	if err != nil {
		return model.Interval{}, fmt.Errorf("invalid end instant: %w", err)
	}
	return model.InstantInterval(start, end), nil
}

// ExportJSON renders events as the pretty-printed interchange document.
func ExportJSON(events []model.CalendarEvent) (string, error) {
	data, err := json.MarshalIndent(Serialize(events), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseJSON reads an interchange document (e.g. a historical snapshot)
// back into canonical events.
func ParseJSON(data string) ([]model.CalendarEvent, error) {
	var dtos []EventDTO
	if err := json.Unmarshal([]byte(data), &dtos); err != nil {
		return nil, fmt.Errorf("snapshot json: %w", err)
	}
	return Deserialize(dtos)
}
