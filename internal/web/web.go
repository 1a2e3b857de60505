package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"calhub/internal/config"
	"calhub/internal/convert"
	"calhub/internal/ics"
	appLog "calhub/internal/log"
	"calhub/internal/model"
	"calhub/internal/repo"
	"calhub/internal/store"
)

// snapshot is one refresh result, rendered in both output formats.
type snapshot struct {
	events      []model.CalendarEvent
	icsDocument string
	jsonExport  string
	refreshedAt time.Time
}

// Server exposes the merged calendar over HTTP: /calendar.ics for
// calendar consumers, /events.json as the interchange snapshot, and
// /health. Responses are served from the last refresh; Refresh is
// driven by the caller (cron in serve mode).
type Server struct {
	cfg  *config.Config
	repo *repo.Repository
	db   *store.DB // may be nil when persistence is disabled
	mux  *http.ServeMux

	mu   sync.RWMutex
	snap *snapshot
}

// NewServer constructs a Server around an aggregation repository.
func NewServer(cfg *config.Config, repository *repo.Repository, db *store.DB) *Server {
	s := &Server{
		cfg:  cfg,
		repo: repository,
		db:   db,
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/events.json", s.handleEvents)
	return s
}

// Handler returns the HTTP handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Refresh re-runs the aggregation, renders both outputs and, when a
// store is attached, persists the snapshot. It is safe to call
// concurrently with request handling.
func (s *Server) Refresh(ctx context.Context) error {
	events, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	// Both outputs render from the same aggregation pass so they can
	// never disagree about the feed state.
	jsonExport, err := convert.ExportJSON(events)
	if err != nil {
		return err
	}

	snap := &snapshot{
		events:      events,
		icsDocument: ics.Generate(events, s.cfg.ProductID),
		jsonExport:  jsonExport,
		refreshedAt: time.Now(),
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.SaveSnapshot(ctx, events); err != nil {
			// Persistence is best effort; serving stays up.
			appLog.Error("snapshot save failed", err, "store", s.cfg.StorePath)
		}
	}

	appLog.Info("calendar refreshed", "event_count", len(events))
	return nil
}

func (s *Server) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	snap := s.current()
	if snap == nil {
		http.Error(w, "no calendar available yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write([]byte(snap.icsDocument))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap := s.current()
	if snap == nil {
		http.Error(w, "no calendar available yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(snap.jsonExport))
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every endpoint except /health with a
// constant-time credential compare.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.BasicAuth.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.BasicAuth.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="calhub"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
