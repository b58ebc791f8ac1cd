package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReadiness is a toggleable ReadinessChecker.
type fakeReadiness struct{ ready bool }

func (f *fakeReadiness) IsReady() bool { return f.ready }

func newTestServer(t *testing.T, deliveries *store.Store, readiness ReadinessChecker, routes *config.RoutesFile) *Server {
	t.Helper()
	if readiness == nil {
		readiness = &NoOpReadinessChecker{}
	}
	return New(0, deliveries, readiness, func() *config.RoutesFile { return routes }, prometheus.NewRegistry())
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doRequest(s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	readiness := &fakeReadiness{}
	s := newTestServer(t, nil, readiness, nil)

	rec := doRequest(s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	readiness.ready = true
	rec = doRequest(s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeliveriesDisabled(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doRequest(s, http.MethodGet, "/api/v1/deliveries")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUDIT_DISABLED")
}

func TestDeliveriesListing(t *testing.T) {
	deliveries := store.New(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, deliveries.Start(context.Background()))
	t.Cleanup(func() { _ = deliveries.Stop(context.Background()) })

	require.NoError(t, deliveries.Record(context.Background(), store.Delivery{
		ID:              "d1",
		Command:         "attribute-speakers",
		ExecutionID:     "exec_1",
		TranscriptionID: "trans_1",
		Speakers:        map[string]string{"speaker_00": "Alice"},
		Outcome:         "success",
		HTTPStatus:      200,
	}))

	s := newTestServer(t, deliveries, nil, nil)
	rec := doRequest(s, http.MethodGet, "/api/v1/deliveries?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Deliveries []store.Delivery `json:"deliveries"`
		Count      int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Deliveries, 1)
	assert.Equal(t, "exec_1", body.Deliveries[0].ExecutionID)
}

func TestDeliveriesInvalidLimit(t *testing.T) {
	deliveries := store.New(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, deliveries.Start(context.Background()))
	t.Cleanup(func() { _ = deliveries.Stop(context.Background()) })

	s := newTestServer(t, deliveries, nil, nil)
	rec := doRequest(s, http.MethodGet, "/api/v1/deliveries?limit=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeliveryStats(t *testing.T) {
	deliveries := store.New(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, deliveries.Start(context.Background()))
	t.Cleanup(func() { _ = deliveries.Stop(context.Background()) })

	require.NoError(t, deliveries.Record(context.Background(), store.Delivery{
		ID: "d1", Command: "c", ExecutionID: "e", TranscriptionID: "t",
		Outcome: "success",
	}))

	s := newTestServer(t, deliveries, nil, nil)
	rec := doRequest(s, http.MethodGet, "/api/v1/deliveries/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":1`)
}

func TestRoutesEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil, config.DefaultRoutesFile())
	rec := doRequest(s, http.MethodGet, "/api/v1/routes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attribute-speakers")

	// Before the first load, the endpoint reports unavailable.
	s = newTestServer(t, nil, nil, nil)
	rec = doRequest(s, http.MethodGet, "/api/v1/routes")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doRequest(s, http.MethodPost, "/api/v1/routes")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "METHOD_NOT_ALLOWED")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doRequest(s, http.MethodOptions, "/api/v1/routes")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
