package webapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renealejo96/weatherlink-dashboard/internal/adapter/webapi"
	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

type mockStore struct {
	events []domain.RainEvent
	active []domain.RainEvent
	err    error

	lastStation string
	lastLimit   int
	lastSince   time.Time
}

func (m *mockStore) ListEvents(_ context.Context, stationKey string, limit int) ([]domain.RainEvent, error) {
	m.lastStation = stationKey
	m.lastLimit = limit
	return m.events, m.err
}

func (m *mockStore) ListActiveEvents(_ context.Context) ([]domain.RainEvent, error) {
	return m.active, m.err
}

func (m *mockStore) ListEventsSince(_ context.Context, since time.Time, _ int) ([]domain.RainEvent, error) {
	m.lastSince = since
	return m.events, m.err
}

func newTestServer(st *mockStore) *webapi.Server {
	return webapi.New(webapi.Config{
		Addr:              ":0",
		HistoryLimit:      100,
		AccumulationWeeks: 8,
	}, st, slog.Default())
}

func get(t *testing.T, srv *webapi.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(&mockStore{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEvents_DefaultsAndFilters(t *testing.T) {
	st := &mockStore{events: []domain.RainEvent{{ID: 1, StationKey: "finca1"}}}
	srv := newTestServer(st)

	rec := get(t, srv, "/api/v1/rain/events?station=finca1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "finca1", st.lastStation)
	assert.Equal(t, 100, st.lastLimit)

	var body struct {
		Count  int                `json:"count"`
		Events []domain.RainEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Events, 1)
	assert.Equal(t, int64(1), body.Events[0].ID)
}

func TestListEvents_ExplicitLimit(t *testing.T) {
	st := &mockStore{}
	rec := get(t, newTestServer(st), "/api/v1/rain/events?limit=5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, st.lastLimit)
}

func TestListEvents_InvalidLimit(t *testing.T) {
	rec := get(t, newTestServer(&mockStore{}), "/api/v1/rain/events?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEvents_StoreError(t *testing.T) {
	st := &mockStore{err: errors.New("store down")}
	rec := get(t, newTestServer(st), "/api/v1/rain/events")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestActiveEvents(t *testing.T) {
	st := &mockStore{active: []domain.RainEvent{
		{ID: 2, StationKey: "finca1", IsActive: true},
	}}
	rec := get(t, newTestServer(st), "/api/v1/rain/events/active")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestAccumulated_DefaultWindow(t *testing.T) {
	monday := time.Date(2025, 4, 28, 8, 0, 0, 0, time.UTC)
	st := &mockStore{events: []domain.RainEvent{
		{StationKey: "finca1", EventStart: monday, RainAccumulated: 2.5},
	}}
	rec := get(t, newTestServer(st), "/api/v1/rain/accumulated")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().UTC().Add(-8*7*24*time.Hour), st.lastSince, time.Minute)

	var body struct {
		ByWeek map[string]map[string]float64 `json:"by_week"`
		ByDay  map[string]map[string]float64 `json:"by_day"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 2.5, body.ByWeek["finca1"]["25-18"], 1e-9)
	assert.InDelta(t, 2.5, body.ByDay["finca1"]["2025-04-28"], 1e-9)
}

func TestAccumulated_CustomWeeks(t *testing.T) {
	st := &mockStore{}
	rec := get(t, newTestServer(st), "/api/v1/rain/accumulated?weeks=2")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().UTC().Add(-2*7*24*time.Hour), st.lastSince, time.Minute)
}

func TestAccumulated_InvalidWeeks(t *testing.T) {
	rec := get(t, newTestServer(&mockStore{}), "/api/v1/rain/accumulated?weeks=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccumulatedExport_ServesWorkbook(t *testing.T) {
	monday := time.Date(2025, 4, 28, 8, 0, 0, 0, time.UTC)
	st := &mockStore{events: []domain.RainEvent{
		{StationKey: "finca1", EventStart: monday, RainAccumulated: 2.5},
	}}
	rec := get(t, newTestServer(st), "/api/v1/rain/accumulated/export")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rain_accumulation.xlsx")
	body := rec.Body.Bytes()
	require.Greater(t, len(body), 2)
	assert.Equal(t, []byte{'P', 'K'}, body[:2])
}
