package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpidash/internal/config"
	apierrors "kpidash/internal/errors"
	"kpidash/internal/services"
)

type stubCounter int

func (c stubCounter) ClientCount() int { return int(c) }
func (c stubCounter) Len() int         { return int(c) }

func TestHealthHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kpis.csv"), []byte("a,b\n1,2\n"), 0644))
	paths := &config.Paths{DataDir: dir}

	tests := []struct {
		name       string
		source     string
		handler    func(*HealthHandler) http.HandlerFunc
		wantStatus int
		wantBody   string
	}{
		{"health", "kpis.csv", func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck }, http.StatusOK, `"status":"ok"`},
		{"live", "kpis.csv", func(h *HealthHandler) http.HandlerFunc { return h.LivenessCheck }, http.StatusOK, `"status":"alive"`},
		{"ready", "kpis.csv", func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck }, http.StatusOK, `"status":"ready"`},
		{"not ready", "missing.csv", func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck }, http.StatusServiceUnavailable, `"status":"not_ready"`},
		{"version", "kpis.csv", func(h *HealthHandler) http.HandlerFunc { return h.Version }, http.StatusOK, `"version":"v1.0.0-test"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := services.NewHealthService(
				services.BuildInfo{Version: "v1.0.0-test", RepoURL: "https://example.com/kpidash"},
				config.DataConfig{Source: tt.source},
				paths, stubCounter(0), stubCounter(1), quietLogger())
			h := NewHealthHandler(svc, quietLogger())

			rec := httptest.NewRecorder()
			tt.handler(h)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	logger := quietLogger()
	errorHandler := apierrors.NewErrorHandler(logger, false)

	t.Run("prometheus passthrough", func(t *testing.T) {
		prom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("kpidash_renders_total 3\n"))
		})
		rec := httptest.NewRecorder()
		NewMetricsHandler(prom, nil, nil, errorHandler).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "kpidash_renders_total 3\n", rec.Body.String())
	})

	t.Run("metrics disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewMetricsHandler(nil, nil, nil, errorHandler).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewMetricsHandler(nil, stubCounter(4), stubCounter(2), errorHandler).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"cache_entries":4`)
		assert.Contains(t, rec.Body.String(), `"websocket_clients":2`)
	})
}
