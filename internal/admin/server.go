// Package admin serves metrics, health, scheduler status, manual runs, the
// watch list and alert history over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"stock-tracker-alerts/internal/database"
	"stock-tracker-alerts/internal/price"
	"stock-tracker-alerts/internal/scheduler"
	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Scheduler interface {
	Status() scheduler.Status
	RunNow(ctx context.Context) (types.CycleReport, error)
}

type History interface {
	ListAlertHistory(ctx context.Context, q types.HistoryQuery) ([]types.AlertRecord, error)
	GetAlertRecord(ctx context.Context, id int64) (types.AlertRecord, error)
	ListSecurities(ctx context.Context) ([]types.Security, error)
	LatestAlertsForStocks(ctx context.Context, stockIDs []int64) (map[int64]types.AlertRecord, error)
}

// Quotes is the price cache of the last cycle.
type Quotes interface {
	Last() price.Snapshot
}

type Server struct {
	sched    Scheduler
	history  History
	quotes   Quotes
	gatherer prometheus.Gatherer
	srv      *http.Server
}

func NewServer(port int, sched Scheduler, history History, quotes Quotes, gatherer prometheus.Gatherer) *Server {
	s := &Server{sched: sched, history: history, quotes: quotes, gatherer: gatherer}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.healthCheckHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("POST /run", s.runHandler)
	mux.HandleFunc("GET /alerts", s.alertsHandler)
	mux.HandleFunc("GET /alerts/{id}", s.alertHandler)
	mux.HandleFunc("GET /watchlist", s.watchlistHandler)
	return mux
}

// ListenAndServe blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.WithField("component", "admin").Infof("Launching metrics and health endpoint on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "admin server failed")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if !s.sched.Status().Alive {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("scheduler not running"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	// a disconnecting client must not cancel a cycle mid-dispatch
	report, err := s.sched.RunNow(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, scheduler.ErrNotRunning):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type alertsPage struct {
	Alerts []types.AlertRecord `json:"alerts"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseHistoryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	alerts, err := s.history.ListAlertHistory(r.Context(), q)
	if err != nil {
		log.WithField("component", "admin").WithError(err).Error("Failed to list alert history")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if alerts == nil {
		alerts = []types.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, alertsPage{Alerts: alerts, Limit: database.ClampLimit(q.Limit), Offset: q.Offset})
}

func (s *Server) alertHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.Errorf("invalid alert id %q", r.PathValue("id")))
		return
	}

	rec, err := s.history.GetAlertRecord(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		log.WithField("component", "admin").WithError(err).Errorf("Failed to load alert %d", id)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// WatchEntry is one watched security with the price seen by the last cycle
// and the most recent alert it fired.
type WatchEntry struct {
	Security    types.Security     `json:"security"`
	LastQuote   *types.Quote       `json:"last_quote,omitempty"`
	LatestAlert *types.AlertRecord `json:"latest_alert,omitempty"`
}

func (s *Server) watchlistHandler(w http.ResponseWriter, r *http.Request) {
	logger := log.WithField("component", "admin")

	securities, err := s.history.ListSecurities(r.Context())
	if err != nil {
		logger.WithError(err).Error("Failed to list watched securities")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ids := make([]int64, len(securities))
	for i, sec := range securities {
		ids[i] = sec.ID
	}
	latest, err := s.history.LatestAlertsForStocks(r.Context(), ids)
	if err != nil {
		logger.WithError(err).Error("Failed to load latest alerts")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var snap price.Snapshot
	if s.quotes != nil {
		snap = s.quotes.Last()
	}

	entries := make([]WatchEntry, 0, len(securities))
	for _, sec := range securities {
		e := WatchEntry{Security: sec}
		if q, ok := snap.Quotes[sec.Symbol]; ok {
			e.LastQuote = &q
		}
		if a, ok := latest[sec.ID]; ok {
			e.LatestAlert = &a
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseHistoryQuery(r *http.Request) (types.HistoryQuery, error) {
	var q types.HistoryQuery
	values := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.Errorf("invalid %s %q", name, raw)
		}
		*dst = n
	}
	if raw := values.Get("stock_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return q, errors.Errorf("invalid stock_id %q", raw)
		}
		q.StockID = id
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("component", "admin").WithError(err).Error("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
