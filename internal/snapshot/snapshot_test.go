package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpidash/internal/config"
	"kpidash/internal/presenter"
	"kpidash/internal/shared/testutil"
)

func TestNew_Defaults(t *testing.T) {
	c := New(config.SnapshotConfig{Quality: 250}, testutil.QuietLogger())
	assert.Equal(t, 1440, c.cfg.Width)
	assert.Equal(t, 900, c.cfg.Height)
	assert.Equal(t, 30*time.Second, c.cfg.Timeout)
	assert.Equal(t, ".png", c.Extension())

	assert.Equal(t, ".jpg", New(config.SnapshotConfig{Quality: 80}, nil).Extension())
}

func TestCapture(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		shoot   shootFunc
		want    string
		wantErr error
	}{
		{
			name: "image returned",
			url:  "http://localhost:8080/api/dashboard/charts",
			shoot: func(ctx context.Context, cfg config.SnapshotConfig, url string, buf *[]byte) error {
				_, hasDeadline := ctx.Deadline()
				if !hasDeadline {
					return errors.New("no deadline")
				}
				*buf = []byte("png-bytes")
				return nil
			},
			want: "png-bytes",
		},
		{
			name:    "empty url",
			wantErr: ErrNoURL,
		},
		{
			name: "browser failure",
			url:  "http://localhost:1",
			shoot: func(context.Context, config.SnapshotConfig, string, *[]byte) error {
				return context.DeadlineExceeded
			},
			wantErr: context.DeadlineExceeded,
		},
		{
			name: "blank image",
			url:  "http://localhost:8080",
			shoot: func(context.Context, config.SnapshotConfig, string, *[]byte) error {
				return nil
			},
			wantErr: ErrEmptyCapture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			c := New(config.SnapshotConfig{Timeout: time.Second}, logger)
			c.shoot = tt.shoot

			got, err := c.Capture(context.Background(), tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, logs.Count(slog.LevelInfo))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))

			rec := testutil.AssertLogged(t, logs, slog.LevelInfo, "snapshot captured")
			assert.Equal(t, "snapshot", rec.Attrs["component"])
			assert.EqualValues(t, len(tt.want), rec.Attrs["bytes"])
		})
	}
}

func TestCaptureModel_WritesChartPage(t *testing.T) {
	c := New(config.SnapshotConfig{}, testutil.QuietLogger())

	var seenURL, page string
	c.shoot = func(ctx context.Context, cfg config.SnapshotConfig, url string, buf *[]byte) error {
		seenURL = url
		data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
		if err != nil {
			return err
		}
		page = string(data)
		*buf = []byte{0x89, 'P', 'N', 'G'}
		return nil
	}

	img, err := c.CaptureModel(context.Background(), presenter.RenderModel{Source: "kpis.xlsx", Empty: true})
	require.NoError(t, err)
	assert.Len(t, img, 4)
	assert.True(t, strings.HasPrefix(seenURL, "file://"))
	assert.Contains(t, page, "KPI Dashboard - kpis.xlsx")

	_, err = os.Stat(strings.TrimPrefix(seenURL, "file://"))
	assert.True(t, os.IsNotExist(err), "temporary page is removed")
}
