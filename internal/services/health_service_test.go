package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpidash/internal/config"
	"kpidash/internal/shared/testutil"
)

type fixedCache int

func (c fixedCache) Len() int { return int(c) }

func TestHealthService_ReadinessCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kpis.xlsx"), []byte("x"), 0644))
	paths := &config.Paths{DataDir: dir}

	tests := []struct {
		name       string
		source     string
		wantStatus string
		wantData   string
	}{
		{"readable file", "kpis.xlsx", "ready", "ready"},
		{"missing file", "gone.xlsx", "not_ready", "not_ready"},
		{"unsupported format", "kpis.pdf", "not_ready", "not_ready"},
		{"no source", "", "not_ready", "not_ready"},
		{"remote", "gsheet://sheet-id", "ready", "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := new(MockClientCounter)
			hub.On("ClientCount").Return(2)

			hs := NewHealthService(BuildInfo{Version: "1.2.3"}, config.DataConfig{Source: tt.source}, paths, fixedCache(1), hub, testutil.QuietLogger())
			status := hs.ReadinessCheck(context.Background())

			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			data := status.Services["data"].(ServiceHealth)
			assert.Equal(t, tt.wantData, data.Status)

			ws := status.Services["websocket"].(ServiceHealth)
			assert.Equal(t, "2 clients connected", ws.Message)
			cache := status.Services["cache"].(ServiceHealth)
			assert.Equal(t, "1 cached loads", cache.Message)
			hub.AssertExpectations(t)
		})
	}
}

func TestHealthService_NilDependencies(t *testing.T) {
	hs := NewHealthService(BuildInfo{Version: "dev"}, config.DataConfig{Source: "gsheet://x"}, nil, nil, nil, nil)

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, "Cache disabled", status.Services["cache"].(ServiceHealth).Message)

	assert.Equal(t, "ok", hs.HealthCheck(context.Background()).Status)

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Contains(t, live.Runtime, "goroutines")
}

func TestHealthService_Version(t *testing.T) {
	hs := NewHealthService(BuildInfo{Version: "1.0.0", BuildID: "abc"}, config.DataConfig{}, nil, nil, nil, testutil.QuietLogger())

	info := hs.Version()
	assert.Equal(t, "1.0.0", info["version"])
	assert.Equal(t, "abc", info["build_id"])
	assert.NotContains(t, info, "build_time")
}
