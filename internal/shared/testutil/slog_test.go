package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCapture(t *testing.T) {
	logger, logs := NewTestLogger(nil)

	child := logger.With(slog.String("component", "loader"))
	child.Info("source loaded", slog.Int("rows", 4))
	logger.WarnContext(context.Background(), "sheet missing", slog.String("sheet", "Q3"))

	records := logs.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "loader", records[0].Attrs["component"])
	assert.EqualValues(t, 4, records[0].Attrs["rows"])
	assert.NotContains(t, records[1].Attrs, "component")

	rec, ok := logs.Find("missing")
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, rec.Level)

	assert.Equal(t, 2, logs.Count(slog.LevelInfo))
	assert.Equal(t, 1, logs.Count(slog.LevelWarn))
	assert.Equal(t, 0, logs.Count(slog.LevelError))

	AssertLogged(t, logs, slog.LevelInfo, "source loaded")
	AssertNoErrors(t, logs)
}

func TestWriteKPISource(t *testing.T) {
	path := WriteKPISource(t, t.TempDir()+"/nested/data", "kpis.csv")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, KPICSV, string(data))
}
