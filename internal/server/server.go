// Package server exposes the dashboard data API: cached alert lists,
// deduplicated entity rankings, trend series and map data, all sourced from
// the upstream alerts service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelhq/alertdeck/alerts"
	"github.com/sentinelhq/alertdeck/cache"
	"github.com/sentinelhq/alertdeck/entity"
	"github.com/sentinelhq/alertdeck/stats"
)

const dateLayout = "2006-01-02"

type Server struct {
	Router *chi.Mux

	client    *alerts.Client
	cache     *cache.Cache[[]alerts.Alert]
	log       zerolog.Logger
	threshold float64
}

type Options struct {
	Client    *alerts.Client
	Cache     *cache.Cache[[]alerts.Alert]
	Logger    zerolog.Logger
	Threshold float64 // entity dedup threshold
}

func New(opts Options) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = entity.DefaultThreshold
	}

	s := &Server{
		Router:    r,
		client:    opts.Client,
		cache:     opts.Cache,
		log:       opts.Logger,
		threshold: threshold,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.log.Error().Err(err).Msg("write health check response")
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/alerts", s.handleAlerts)
		api.Get("/alerts/{id}", s.handleAlertDetail)
		api.Get("/summary", s.handleSummary)
		api.Get("/trends", s.handleTrends)
		api.Get("/stats/top_entities", s.handleTopEntities)
		api.Get("/stats/severity", s.handleSeverityStats)
		api.Get("/map/geojson", s.handleGeoJSON)
		api.Post("/cache/clear", s.handleCacheClear)
	})

	return s
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// alertsResponse is the cached alert list plus its provenance.
type alertsResponse struct {
	Date      string         `json:"date"`
	FromCache bool           `json:"from_cache"`
	Alerts    []alerts.Alert `json:"alerts"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(dateLayout, date); err != nil {
		s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	res, err := s.cache.FetchOrLoad(r.Context(), date, func(ctx context.Context) ([]alerts.Alert, error) {
		return s.client.AlertsForDate(ctx, date)
	})
	if err != nil {
		// a failed or duplicate fetch is "no data for this day", never a crash
		if !errors.Is(err, cache.ErrInFlight) {
			s.log.Warn().Err(err).Str("date", date).Msg("alerts fetch failed")
		}
		s.writeJSON(w, http.StatusOK, alertsResponse{Date: date, Alerts: []alerts.Alert{}})
		return
	}

	list := res.Payload
	if list == nil {
		list = []alerts.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alertsResponse{Date: date, FromCache: res.FromCache, Alerts: list})
}

func (s *Server) handleAlertDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := s.client.Alert(r.Context(), id)
	if err != nil {
		s.log.Warn().Err(err).Str("id", id.String()).Msg("alert detail fetch failed")
		s.writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}

// summaryResponse bundles the per-day aggregations the dashboard renders.
type summaryResponse struct {
	Date       string                `json:"date"`
	FromCache  bool                  `json:"from_cache"`
	Total      int                   `json:"total"`
	Activities []stats.ActivityRow   `json:"activities"`
	Severity   []stats.SeverityShare `json:"severity"`
	Weekdays   []stats.WeekdayCount  `json:"weekdays"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(dateLayout, date); err != nil {
		s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	res, err := s.cache.FetchOrLoad(r.Context(), date, func(ctx context.Context) ([]alerts.Alert, error) {
		return s.client.AlertsForDate(ctx, date)
	})
	if err != nil {
		if !errors.Is(err, cache.ErrInFlight) {
			s.log.Warn().Err(err).Str("date", date).Msg("summary fetch failed")
		}
		s.writeJSON(w, http.StatusOK, summaryResponse{
			Date:       date,
			Activities: []stats.ActivityRow{},
			Severity:   stats.SeverityDistribution(nil),
			Weekdays:   stats.CountByWeekday(nil),
		})
		return
	}

	list := res.Payload
	rows := stats.SummarizeActivities(list)
	if rows == nil {
		rows = []stats.ActivityRow{}
	}
	s.writeJSON(w, http.StatusOK, summaryResponse{
		Date:       date,
		FromCache:  res.FromCache,
		Total:      len(list),
		Activities: rows,
		Severity:   stats.SeverityDistribution(list),
		Weekdays:   stats.CountByWeekday(list),
	})
}

// trendsResponse mirrors the three series the trends view fetches in
// parallel.
type trendsResponse struct {
	Counts      []alerts.DailyCount    `json:"counts"`
	AvgViolence []alerts.DailyScore    `json:"avg_violence"`
	Activities  []alerts.DayActivities `json:"activities"`
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 30)

	var resp trendsResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resp.Counts, err = s.client.DailyCounts(ctx, days)
		return err
	})
	g.Go(func() error {
		var err error
		resp.AvgViolence, err = s.client.AvgViolence(ctx, days)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Activities, err = s.client.ActivitiesByDay(ctx, days)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn().Err(err).Int("days", days).Msg("trends fetch failed")
		s.writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// entityGroupOut is one row of the deduplicated entity ranking.
type entityGroupOut struct {
	Entity     string               `json:"entity"`
	Count      int                  `json:"count"`
	MergedFrom []entity.Observation `json:"merged_from,omitempty"`
}

func (s *Server) handleTopEntities(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 10)

	raw, err := s.client.TopEntities(r.Context(), limit)
	if err != nil {
		s.log.Warn().Err(err).Msg("top entities fetch failed")
		s.writeJSON(w, http.StatusOK, []entityGroupOut{})
		return
	}

	observations := make([]entity.Observation, len(raw))
	for i, ec := range raw {
		observations[i] = entity.Observation{Text: ec.Entity, Count: ec.Count}
	}

	out := make([]entityGroupOut, 0, len(observations))
	for _, g := range entity.Resolve(observations, s.threshold) {
		row := entityGroupOut{Entity: g.Canonical, Count: g.Total}
		if g.Merged() {
			row.MergedFrom = g.Members
		}
		out = append(out, row)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSeverityStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.client.SeverityStats(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("severity stats fetch failed")
		s.writeJSON(w, http.StatusOK, []alerts.SeverityCount{})
		return
	}
	if out == nil {
		out = []alerts.SeverityCount{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 7)
	date := r.URL.Query().Get("date")

	raw, err := s.client.GeoJSON(r.Context(), days, date)
	if err != nil {
		s.log.Warn().Err(err).Msg("geojson fetch failed")
		s.writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if _, err := w.Write(raw); err != nil {
		s.log.Error().Err(err).Msg("write geojson response")
	}
}

// handleCacheClear is the explicit user-triggered refresh.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
