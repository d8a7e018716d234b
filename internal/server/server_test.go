package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/alertdeck/alerts"
	"github.com/sentinelhq/alertdeck/cache"
)

func newTestServer(t *testing.T, upstream http.Handler) (*Server, *int64) {
	t.Helper()

	var hits int64
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		upstream.ServeHTTP(w, r)
	})
	up := httptest.NewServer(counting)
	t.Cleanup(up.Close)

	s := New(Options{
		Client: alerts.New(alerts.WithBaseURL(up.URL)),
		Cache:  cache.New[[]alerts.Alert]("alerts", nil),
		Logger: zerolog.Nop(),
	})
	return s, &hits
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func alertsUpstream(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestAlertsEndpointCachesByDate(t *testing.T) {
	s, hits := newTestServer(t, alertsUpstream(`[
		{"id": "a1", "new_id": "5f0c9a1e-2b4d-4e7f-9c3a-1d2e3f4a5b6c",
		 "title": "t", "severity_band": "high",
		 "fetched_at": "2024-05-20T10:00:00Z",
		 "activities": ["bullying"], "entities": []}
	]`))

	rec := get(t, s, "/api/alerts?date=2024-05-20")
	require.Equal(t, http.StatusOK, rec.Code)

	var first alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.FromCache)
	require.Len(t, first.Alerts, 1)
	assert.Equal(t, alerts.SeverityHigh, first.Alerts[0].SeverityBand)

	rec = get(t, s, "/api/alerts?date=2024-05-20")
	require.Equal(t, http.StatusOK, rec.Code)

	var second alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.FromCache)
	assert.Len(t, second.Alerts, 1)

	assert.EqualValues(t, 1, *hits, "second request must be served from cache")
}

func TestAlertsEndpointRejectsBadDate(t *testing.T) {
	s, _ := newTestServer(t, alertsUpstream(`[]`))

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/alerts").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/alerts?date=notadate").Code)
}

func TestAlertsEndpointDegradesOnUpstreamFailure(t *testing.T) {
	s, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	rec := get(t, s, "/api/alerts?date=2024-05-20")
	require.Equal(t, http.StatusOK, rec.Code, "fetch failure must read as no data, not an error")

	var resp alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Alerts)
	assert.False(t, resp.FromCache)
}

func TestTopEntitiesDeduplicated(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats/top_entities", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"entity": "Russia", "count": 5},
			{"entity": "Russian", "count": 3},
			{"entity": "Apple", "count": 4}
		]`))
	})
	s, _ := newTestServer(t, upstream)

	rec := get(t, s, "/api/stats/top_entities?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []entityGroupOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)

	assert.Equal(t, "Russia", out[0].Entity)
	assert.Equal(t, 8, out[0].Count)
	assert.Len(t, out[0].MergedFrom, 2)

	assert.Equal(t, "Apple", out[1].Entity)
	assert.Equal(t, 4, out[1].Count)
	assert.Empty(t, out[1].MergedFrom)
}

func TestSummaryEndpoint(t *testing.T) {
	s, _ := newTestServer(t, alertsUpstream(`[
		{"id": "a1", "new_id": "5f0c9a1e-2b4d-4e7f-9c3a-1d2e3f4a5b6c",
		 "severity_band": "high", "activities": ["bullying"],
		 "entities": [{"text": "Alice", "label": "PERSON"}],
		 "published_at": "2024-05-20T08:00:00Z",
		 "fetched_at": "2024-05-20T10:00:00Z"},
		{"id": "a2", "new_id": "6f0c9a1e-2b4d-4e7f-9c3a-1d2e3f4a5b6c",
		 "severity_band": "low", "activities": ["spam"],
		 "entities": [],
		 "published_at": "2024-05-20T09:00:00Z",
		 "fetched_at": "2024-05-20T10:00:00Z"}
	]`))

	rec := get(t, s, "/api/summary?date=2024-05-20")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Activities, 1, "low-severity activity rows are dropped")
	assert.Equal(t, "bullying", resp.Activities[0].Activity)
	assert.Len(t, resp.Weekdays, 7)
	require.Len(t, resp.Severity, 3)
	assert.Equal(t, 1, resp.Severity[2].Count) // high
}

func TestTrendsEndpointFansOut(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/stats/counts":
			_, _ = w.Write([]byte(`[{"date": "2024-05-20", "count": 3}]`))
		case "/stats/avg_violence":
			_, _ = w.Write([]byte(`[{"date": "2024-05-20", "avg_score": 0.4}]`))
		case "/stats/activities":
			_, _ = w.Write([]byte(`[{"date": "2024-05-20", "bullying": 2}]`))
		default:
			http.NotFound(w, r)
		}
	})
	s, _ := newTestServer(t, upstream)

	rec := get(t, s, "/api/trends?days=14")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp trendsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Counts, 1)
	assert.Equal(t, 3, resp.Counts[0].Count)
	require.Len(t, resp.AvgViolence, 1)
	assert.InDelta(t, 0.4, resp.AvgViolence[0].AvgScore, 1e-9)
	require.Len(t, resp.Activities, 1)
	assert.Equal(t, 2, resp.Activities[0].Counts["bullying"])
}

func TestCacheClearForcesRefetch(t *testing.T) {
	s, hits := newTestServer(t, alertsUpstream(`[]`))

	get(t, s, "/api/alerts?date=2024-05-20")
	get(t, s, "/api/alerts?date=2024-05-20")
	require.EqualValues(t, 1, *hits)

	req := httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	get(t, s, "/api/alerts?date=2024-05-20")
	assert.EqualValues(t, 2, *hits, "clear must force the next request upstream")
}

func TestAlertDetail(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/5f0c9a1e-2b4d-4e7f-9c3a-1d2e3f4a5b6c", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "a1", "new_id": "5f0c9a1e-2b4d-4e7f-9c3a-1d2e3f4a5b6c",
			"title": "incident", "severity_band": "medium",
			"fetched_at": "2024-05-20T10:00:00Z"}`))
	})
	s, _ := newTestServer(t, upstream)

	rec := get(t, s, "/api/alerts/5f0c9a1e-2b4d-4e7f-9c3a-1d2e3f4a5b6c")
	require.Equal(t, http.StatusOK, rec.Code)

	var a alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, "incident", a.Title)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/alerts/not-a-uuid").Code)
}
