// Package repo aggregates independently-operated calendar feeds into
// one merged timeline.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"calhub/internal/convert"
	"calhub/internal/ics"
	appLog "calhub/internal/log"
	"calhub/internal/model"
)

// migrationMarker tags placeholder events one upstream producer left
// behind after migrating its calendar; they are never part of the
// merged timeline.
const migrationMarker = "Migration du calendrier LTH"

// Fetch retrieves the text body of a URL. The network dependency is a
// parameter of the repository, never a global, so tests can substitute
// any transport.
type Fetch func(ctx context.Context, url string) (string, error)

// GroupSource names one feed: Tag is the group label, URL its ICS
// endpoint. The same shape is used by the remote group directory.
type GroupSource struct {
	Tag string `json:"tag"`
	URL string `json:"url"`
}

// Config describes where the repository finds its feeds.
type Config struct {
	// Sources are statically pinned feeds, merged ahead of the
	// directory feeds.
	Sources []GroupSource
	// GroupsURL points at a JSON document listing [{tag, url}] feeds.
	GroupsURL string
	// Primary is the high-trust feed appended after the directory
	// feeds. Skipped when its URL is empty.
	Primary GroupSource
	// OldEventsURL points at a historical snapshot: a previously
	// exported interchange document.
	OldEventsURL string
}

// Repository fetches all configured feeds concurrently, materializes
// their events and merges them with the admitted part of the historical
// snapshot. Every Get call is independent; nothing is cached across
// calls.
type Repository struct {
	cfg   Config
	fetch Fetch
	now   func() time.Time
}

func New(cfg Config, fetch Fetch) *Repository {
	return &Repository{cfg: cfg, fetch: fetch, now: time.Now}
}

// Get returns the merged timeline: static and directory feeds in
// configuration order, then the primary feed, then admitted historical
// events. A feed that fails to fetch or parse is logged and contributes
// nothing; a malformed group directory or historical snapshot fails the
// whole call.
func (r *Repository) Get(ctx context.Context) ([]model.CalendarEvent, error) {
	now := r.now()

	feeds, err := r.resolveFeeds(ctx)
	if err != nil {
		return nil, err
	}

	// Each feed fills its own slot; merge order stays deterministic and
	// no lock is needed.
	results := make([][]model.CalendarEvent, len(feeds))
	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed GroupSource) {
			defer wg.Done()
			events, err := r.loadFeed(ctx, feed, now)
			if err != nil {
				appLog.Error("feed skipped", err, "tag", feed.Tag, "url", feed.URL)
				return
			}
			results[i] = events
		}(i, feed)
	}
	wg.Wait()

	old, err := r.loadOldEvents(ctx, now)
	if err != nil {
		return nil, err
	}

	merged := make([]model.CalendarEvent, 0)
	for _, events := range results {
		merged = append(merged, events...)
	}
	merged = append(merged, old...)

	return dropMigrationEvents(merged), nil
}

// Export renders Get's result as the pretty-printed JSON interchange
// document, suitable as the historical snapshot of a later run.
func (r *Repository) Export(ctx context.Context) (string, error) {
	events, err := r.Get(ctx)
	if err != nil {
		return "", err
	}
	return convert.ExportJSON(events)
}

// resolveFeeds combines the pinned sources, the remote group directory
// and the primary feed, in that order.
func (r *Repository) resolveFeeds(ctx context.Context) ([]GroupSource, error) {
	feeds := append([]GroupSource(nil), r.cfg.Sources...)

	if r.cfg.GroupsURL != "" {
		body, err := r.fetch(ctx, r.cfg.GroupsURL)
		if err != nil {
			return nil, fmt.Errorf("group directory %s: %w", r.cfg.GroupsURL, err)
		}
		var directory []GroupSource
		if err := json.Unmarshal([]byte(body), &directory); err != nil {
			return nil, fmt.Errorf("group directory %s: %w", r.cfg.GroupsURL, err)
		}
		feeds = append(feeds, directory...)
	}

	if r.cfg.Primary.URL != "" {
		feeds = append(feeds, r.cfg.Primary)
	}
	return feeds, nil
}

func (r *Repository) loadFeed(ctx context.Context, feed GroupSource, now time.Time) ([]model.CalendarEvent, error) {
	body, err := r.fetch(ctx, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feed.URL, err)
	}
	parsed, err := ics.Parse(body, now)
	if err != nil {
		return nil, err
	}

	group := model.NameOf(feed.Tag)
	events := make([]model.CalendarEvent, 0, len(parsed))
	for _, ev := range parsed {
		events = append(events, convert.ToCalendarEvents(group, ev)...)
	}
	return events, nil
}

// loadOldEvents fetches the historical snapshot and keeps only events
// that already started: upcoming occurrences are expected to still be
// present in the live feeds and would otherwise duplicate.
func (r *Repository) loadOldEvents(ctx context.Context, now time.Time) ([]model.CalendarEvent, error) {
	if r.cfg.OldEventsURL == "" {
		return nil, nil
	}
	body, err := r.fetch(ctx, r.cfg.OldEventsURL)
	if err != nil {
		return nil, fmt.Errorf("old events %s: %w", r.cfg.OldEventsURL, err)
	}
	events, err := convert.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("old events %s: %w", r.cfg.OldEventsURL, err)
	}

	admitted := make([]model.CalendarEvent, 0, len(events))
	for _, e := range events {
		if startedBy(e, now) {
			admitted = append(admitted, e)
		}
	}
	return admitted, nil
}

// startedBy reports whether the event's start Moment is at or before
// now. Instants compare inclusively; calendar dates compare against
// now's calendar date, ignoring its time-of-day.
func startedBy(e model.CalendarEvent, now time.Time) bool {
	if e.Date.Kind == model.IntervalDateOnly {
		return !model.DateOnlyOf(now).Before(e.Date.StartDay)
	}
	return !e.Date.Start.After(now)
}

func dropMigrationEvents(events []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, e := range events {
		if strings.Contains(e.FullTitle().String(), migrationMarker) {
			continue
		}
		out = append(out, e)
	}
	return out
}
