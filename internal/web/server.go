// Package web provides an HTTP status server for the rain-gauge daemon.
// All handlers are read-only views of the status tracker and the archive.
package web

import (
	"context"
	"encoding/csv"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/sweeney/rain-gauge/internal/archive"
	"github.com/sweeney/rain-gauge/internal/status"
)

const (
	// DefaultHistoryDays is how many archived days /history.csv returns.
	DefaultHistoryDays = 365
	// DefaultHistoryHours is how many archived hours /hours.csv returns.
	DefaultHistoryHours = 48
)

// History supplies archived hour and day totals.
type History interface {
	RecentHours(ctx context.Context, n int) ([]archive.Hour, error)
	RecentDays(ctx context.Context, n int) ([]archive.Day, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History
}

// New creates a Server that reads state from the given tracker. history may
// be nil, in which case /history.csv and /hours.csv report 404. gatherer may be nil, in
// which case /metrics serves the default registry.
func New(addr string, tracker *status.Tracker, history History, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker, history: history}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/hourly.csv", s.handleHourlyCSV)
	mux.HandleFunc("/history.csv", s.handleHistoryCSV)
	mux.HandleFunc("/hours.csv", s.handleHoursCSV)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleHourlyCSV writes today's 24 buckets as hour,mm.
func (s *Server) handleHourlyCSV(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/csv")

	cw := csv.NewWriter(w)
	cw.Write([]string{"hour", "mm"})
	for h, mm := range snap.Rain.PerHour {
		cw.Write([]string{strconv.Itoa(h), formatMM(mm)})
	}
	cw.Flush()
}

// handleHistoryCSV writes archived day totals as date,mm, newest first.
func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	n, ok := countParam(w, r, "days", DefaultHistoryDays)
	if !ok {
		return
	}

	days, err := s.history.RecentDays(r.Context(), n)
	if err != nil {
		logger.Errorf("history query failed [%v]", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "mm"})
	for _, d := range days {
		cw.Write([]string{d.Date.Format("2006-01-02"), formatMM(d.MM)})
	}
	cw.Flush()
}

// handleHoursCSV writes archived hour totals as hour_start,mm, newest first.
func (s *Server) handleHoursCSV(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	n, ok := countParam(w, r, "hours", DefaultHistoryHours)
	if !ok {
		return
	}

	hours, err := s.history.RecentHours(r.Context(), n)
	if err != nil {
		logger.Errorf("hours query failed [%v]", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	cw.Write([]string{"hour_start", "mm"})
	for _, h := range hours {
		cw.Write([]string{h.Start.Format(time.RFC3339), formatMM(h.MM)})
	}
	cw.Flush()
}

// countParam reads a positive integer query parameter. On a bad value it
// writes a 400 and returns false.
func countParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func formatMM(v float64) string {
	return fmt.Sprintf("%.2f", status.Round2(v))
}
