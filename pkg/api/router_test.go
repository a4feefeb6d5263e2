package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobox/pkg/api/handlers"
)

type fakeStatus struct {
	ready bool
}

func (f *fakeStatus) Ready() bool { return f.ready }

func (f *fakeStatus) Snapshot() any {
	return map[string]int{"task_queue_depth": 3, "storage_workers": 4}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp handlers.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestLiveness(t *testing.T) {
	rec, resp := get(t, NewRouter(nil, nil), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dittobox", data["service"])
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		status handlers.StatusProvider
		code   int
		state  string
	}{
		{"no server", nil, http.StatusServiceUnavailable, "unhealthy"},
		{"not accepting", &fakeStatus{ready: false}, http.StatusServiceUnavailable, "unhealthy"},
		{"ready", &fakeStatus{ready: true}, http.StatusOK, "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := get(t, NewRouter(tt.status, nil), "/health/ready")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.state, resp.Status)
		})
	}
}

func TestStats(t *testing.T) {
	rec, resp := get(t, NewRouter(&fakeStatus{ready: true}, nil), "/api/v1/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, data["task_queue_depth"])

	rec, _ = get(t, NewRouter(nil, nil), "/api/v1/stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := get(t, NewRouter(nil, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no registry, no endpoint")

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dittobox_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(2)

	rec, _ = get(t, NewRouter(nil, reg), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dittobox_test_total 2")
}

func TestRootRedirects(t *testing.T) {
	rec, _ := get(t, NewRouter(nil, nil), "/")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/health", rec.Header().Get("Location"))
}
