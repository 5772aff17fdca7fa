// Package web provides the pump monitor's HTTP dashboard and JSON API.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sweeney/soil-irrigator/internal/pumplog"
	"github.com/sweeney/soil-irrigator/internal/status"
)

const (
	defaultDays   = 7
	maxDays       = 90
	defaultRecent = 20
	maxRecent     = 500
	pageRecent    = 10
)

// History is the read side of the pump log.
type History interface {
	Daily(ctx context.Context, days int, now time.Time) ([]pumplog.DayCount, error)
	Recent(ctx context.Context, n int) ([]pumplog.Entry, error)
	Hourly(ctx context.Context, now time.Time) ([]pumplog.HourCount, error)
	Cumulative(ctx context.Context, since time.Time) ([]pumplog.Point, error)
}

// Server serves the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	tracker    *status.Tracker
	history    History
}

// New creates a Server that reads state from the tracker and the pump log.
// history and metrics may be nil.
func New(addr string, tracker *status.Tracker, history History, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, history: history}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)

	api := r.PathPrefix("/api/pumps").Subrouter()
	api.HandleFunc("/daily", s.handleDaily).Methods(http.MethodGet)
	api.HandleFunc("/recent", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/hourly", s.handleHourly).Methods(http.MethodGet)
	api.HandleFunc("/cumulative", s.handleCumulative).Methods(http.MethodGet)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	page := pageData{Snapshot: snap, Uptime: snap.Uptime()}

	if s.history != nil {
		days, err := s.history.Daily(r.Context(), defaultDays, snap.Now)
		if err != nil {
			log.Printf("web: daily history: %v", err)
		}
		recent, err := s.history.Recent(r.Context(), pageRecent)
		if err != nil {
			log.Printf("web: recent history: %v", err)
		}
		hours, err := s.history.Hourly(r.Context(), snap.Now)
		if err != nil {
			log.Printf("web: hourly history: %v", err)
		}
		page.Days = days
		page.Recent = recent
		page.Hours = activeHours(hours)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, page)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days", defaultDays, maxDays)
	if !ok {
		return
	}
	if s.history == nil {
		http.Error(w, "pump log unavailable", http.StatusServiceUnavailable)
		return
	}
	counts, err := s.history.Daily(r.Context(), days, s.tracker.Snapshot().Now)
	if err != nil {
		log.Printf("web: daily history: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, formatDaily(counts))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	n, ok := intParam(w, r, "n", defaultRecent, maxRecent)
	if !ok {
		return
	}
	if s.history == nil {
		http.Error(w, "pump log unavailable", http.StatusServiceUnavailable)
		return
	}
	entries, err := s.history.Recent(r.Context(), n)
	if err != nil {
		log.Printf("web: recent history: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, formatRecent(entries))
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "pump log unavailable", http.StatusServiceUnavailable)
		return
	}
	now := s.tracker.Snapshot().Now
	hours, err := s.history.Hourly(r.Context(), now)
	if err != nil {
		log.Printf("web: hourly history: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, formatHourly(now, hours))
}

func (s *Server) handleCumulative(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days", defaultDays, maxDays)
	if !ok {
		return
	}
	if s.history == nil {
		http.Error(w, "pump log unavailable", http.StatusServiceUnavailable)
		return
	}
	since := s.tracker.Snapshot().Now.AddDate(0, 0, -days)
	points, err := s.history.Cumulative(r.Context(), since)
	if err != nil {
		log.Printf("web: cumulative history: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, formatCumulative(since, points))
}

// activeHours drops hours without activations.
func activeHours(hours []pumplog.HourCount) []pumplog.HourCount {
	var out []pumplog.HourCount
	for _, h := range hours {
		if h.Pumps > 0 {
			out = append(out, h)
		}
	}
	return out
}

// intParam reads a positive query parameter, capped at max. It writes a 400
// and returns false if the value is malformed.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	if v > max {
		v = max
	}
	return v, true
}
