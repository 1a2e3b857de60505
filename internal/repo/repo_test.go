package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"calhub/internal/convert"
	"calhub/internal/model"
)

var testNow = time.Date(2025, 2, 15, 10, 11, 12, 0, time.UTC)

const feedICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event_306666704@meetup.com\r\n" +
	"DTSTART:20250319T180000Z\r\n" +
	"DTEND:20250319T200000Z\r\n" +
	"SUMMARY:Event B\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event_306104038@meetup.com\r\n" +
	"DTSTART:20250320T173000Z\r\n" +
	"DTEND:20250320T203000Z\r\n" +
	"SUMMARY:Event A\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func testConfig() Config {
	return Config{
		GroupsURL:    "https://example.com/groups",
		Primary:      GroupSource{Tag: "LyonTechHub", URL: "https://example.com/lth"},
		OldEventsURL: "https://example.com/old",
	}
}

// fakeFetch serves canned bodies by URL; unknown URLs fail.
func fakeFetch(bodies map[string]string) Fetch {
	return func(_ context.Context, url string) (string, error) {
		body, ok := bodies[url]
		if !ok {
			return "", fmt.Errorf("unexpected url %s", url)
		}
		return body, nil
	}
}

func newTestRepository(cfg Config, fetch Fetch) *Repository {
	r := New(cfg, fetch)
	r.now = func() time.Time { return testNow }
	return r
}

func ids(events []model.CalendarEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestGet_MergesAllGroupsInOrder(t *testing.T) {
	r := newTestRepository(testConfig(), fakeFetch(map[string]string{
		"https://example.com/groups": `[
			{"tag":"groupA","url":"https://example.com/group_a"},
			{"tag":"groupB","url":"https://example.com/group_b"}
		]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/group_b": strings.ReplaceAll(feedICS, "event_306666704", "event_9999"),
		"https://example.com/lth":     strings.ReplaceAll(feedICS, "event_306666704", "event_666"),
		"https://example.com/old":     "[]",
	}))

	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	want := []string{
		"groupA-event_306666704@meetup.com",
		"groupA-event_306104038@meetup.com",
		"groupB-event_9999@meetup.com",
		"groupB-event_306104038@meetup.com",
		"LyonTechHub-event_666@meetup.com",
		"LyonTechHub-event_306104038@meetup.com",
	}
	got := ids(events)
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if events[0].FullTitle().String() != "[groupA] Event B" {
		t.Errorf("FullTitle = %q", events[0].FullTitle())
	}
}

func TestGet_PartialFailureIsolation(t *testing.T) {
	bodies := map[string]string{
		"https://example.com/groups": `[
			{"tag":"groupA","url":"https://example.com/group_a"},
			{"tag":"groupB","url":"https://example.com/group_b"}
		]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/lth":     feedICS,
		"https://example.com/old":     "[]",
	}
	fetch := func(ctx context.Context, url string) (string, error) {
		if url == "https://example.com/group_b" {
			return "", errors.New("connection refused")
		}
		return fakeFetch(bodies)(ctx, url)
	}

	r := newTestRepository(testConfig(), fetch)
	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("one failing source must not fail Get: %v", err)
	}

	got := ids(events)
	for _, id := range got {
		if strings.HasPrefix(id, "groupB-") {
			t.Errorf("failing source contributed %q", id)
		}
	}
	want := []string{
		"groupA-event_306666704@meetup.com",
		"groupA-event_306104038@meetup.com",
		"LyonTechHub-event_306666704@meetup.com",
		"LyonTechHub-event_306104038@meetup.com",
	}
	if len(got) != len(want) {
		t.Fatalf("got ids %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGet_UnparsableFeedContributesNothing(t *testing.T) {
	r := newTestRepository(testConfig(), fakeFetch(map[string]string{
		"https://example.com/groups":  `[{"tag":"groupA","url":"https://example.com/group_a"}]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/lth":     "",
		"https://example.com/old":     "[]",
	}))

	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, id := range ids(events) {
		if strings.HasPrefix(id, "LyonTechHub-") {
			t.Errorf("empty primary feed contributed %q", id)
		}
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestGet_ExcludesMigrationEvents(t *testing.T) {
	migrated := strings.ReplaceAll(feedICS, "Event A", "Migration du calendrier LTH")
	r := newTestRepository(testConfig(), fakeFetch(map[string]string{
		"https://example.com/groups":  `[{"tag":"groupA","url":"https://example.com/group_a"}]`,
		"https://example.com/group_a": migrated,
		"https://example.com/lth":     migrated,
		"https://example.com/old":     "[]",
	}))

	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	want := []string{
		"groupA-event_306666704@meetup.com",
		"LyonTechHub-event_306666704@meetup.com",
	}
	got := ids(events)
	if len(got) != len(want) {
		t.Fatalf("got ids %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func oldEvent(id string, date model.Interval) model.CalendarEvent {
	created := time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)
	return model.CalendarEvent{
		ID:        id,
		Title:     model.NameOf("Event B"),
		Group:     model.NameOf("groupC"),
		Date:      date,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestGet_HistoricalAdmissionBoundary(t *testing.T) {
	instant := func(t time.Time) model.Interval {
		return model.InstantInterval(t, t.Add(3*time.Hour))
	}
	day := func(d model.DateOnly) model.Interval {
		return model.DayInterval(d, d)
	}
	old := []model.CalendarEvent{
		oldEvent("old-past", instant(testNow.Add(-24*time.Hour))),
		oldEvent("old-at-now", instant(testNow)),
		oldEvent("old-plus-second", instant(testNow.Add(time.Second))),
		oldEvent("old-next-day", instant(testNow.Add(24*time.Hour))),
		oldEvent("old-day-past", day(model.DateOnly{Year: 2024, Month: 3, Day: 20})),
		oldEvent("old-day-today", day(model.DateOnly{Year: 2025, Month: 2, Day: 15})),
		oldEvent("old-day-tomorrow", day(model.DateOnly{Year: 2025, Month: 2, Day: 16})),
	}
	snapshot, err := convert.ExportJSON(old)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	r := newTestRepository(testConfig(), fakeFetch(map[string]string{
		"https://example.com/groups":  `[{"tag":"groupA","url":"https://example.com/group_a"}]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/lth":     "",
		"https://example.com/old":     snapshot,
	}))

	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	want := []string{
		"groupA-event_306666704@meetup.com",
		"groupA-event_306104038@meetup.com",
		"old-past",
		"old-at-now",
		"old-day-past",
		"old-day-today",
	}
	got := ids(events)
	if len(got) != len(want) {
		t.Fatalf("got ids %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGet_MalformedGroupDirectoryFails(t *testing.T) {
	r := newTestRepository(testConfig(), fakeFetch(map[string]string{
		"https://example.com/groups": "{not a list",
		"https://example.com/lth":    feedICS,
		"https://example.com/old":    "[]",
	}))
	if _, err := r.Get(context.Background()); err == nil {
		t.Error("malformed group directory must fail the call")
	}
}

func TestGet_MalformedSnapshotFails(t *testing.T) {
	r := newTestRepository(testConfig(), fakeFetch(map[string]string{
		"https://example.com/groups":  `[{"tag":"groupA","url":"https://example.com/group_a"}]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/lth":     feedICS,
		"https://example.com/old":     "{not json",
	}))
	if _, err := r.Get(context.Background()); err == nil {
		t.Error("malformed historical snapshot must fail the call")
	}
}

func TestGet_StaticSourcesComeFirst(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = []GroupSource{{Tag: "pinned", URL: "https://example.com/pinned"}}
	r := newTestRepository(cfg, fakeFetch(map[string]string{
		"https://example.com/pinned":  feedICS,
		"https://example.com/groups":  `[{"tag":"groupA","url":"https://example.com/group_a"}]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/lth":     "",
		"https://example.com/old":     "[]",
	}))

	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := ids(events)
	if len(got) == 0 || !strings.HasPrefix(got[0], "pinned-") {
		t.Errorf("pinned source must come first, got %v", got)
	}
}

func TestExport_IsSerializedGet(t *testing.T) {
	bodies := map[string]string{
		"https://example.com/groups":  `[{"tag":"groupA","url":"https://example.com/group_a"}]`,
		"https://example.com/group_a": feedICS,
		"https://example.com/lth":     "",
		"https://example.com/old":     "[]",
	}
	r := newTestRepository(testConfig(), fakeFetch(bodies))

	events, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	out, err := r.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	back, err := convert.ParseJSON(out)
	if err != nil {
		t.Fatalf("ParseJSON(export): %v", err)
	}
	if len(back) != len(events) {
		t.Fatalf("export has %d events, get has %d", len(back), len(events))
	}
	for i := range back {
		if back[i].ID != events[i].ID || !back[i].Date.Equal(events[i].Date) {
			t.Errorf("export[%d] diverges from get: %+v vs %+v", i, back[i], events[i])
		}
	}
}
