package exporter

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpidash/internal/classify"
	"kpidash/internal/config"
	"kpidash/internal/dataset"
	"kpidash/internal/filter"
	"kpidash/internal/loader"
)

func kpis(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(dataset.Table{
		Sheet:  "KPIs",
		Header: []string{"Employee_ID", "Reporting_Period", "Burnout_Risk_Score", "Cost_Per_Hour", "Notes"},
		Rows: [][]string{
			{"E1", "2024-01-31", "3", "50.5", "ok"},
			{"E2", "2024-01-31", "5", "", "needs, review"},
			{"E1", "2024-02-29", "10", "52", ""},
		},
	})
	require.NoError(t, err)
	return ds
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteView(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteView(&buf, kpis(t)))

	want := "Employee_ID,Reporting_Period,Burnout_Risk_Score,Cost_Per_Hour,Notes\n" +
		"E1,2024-01-31,3,50.5,ok\n" +
		"E2,2024-01-31,5,,\"needs, review\"\n" +
		"E1,2024-02-29,10,52,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteView_KeepsZeroPaddedIDs(t *testing.T) {
	ds, err := dataset.New(dataset.Table{
		Header: []string{"Employee_ID", "Reporting_Period", "Score"},
		Rows:   [][]string{{"001", "2024-01-31", "2"}, {"002", "2024-01-31", "3"}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteView(&buf, ds))
	assert.Equal(t, "Employee_ID,Reporting_Period,Score\n001,2024-01-31,2\n002,2024-01-31,3\n", buf.String())
}

func TestWriteView_EmptyViewKeepsHeader(t *testing.T) {
	ds := kpis(t)
	roles := classify.Classify(ds, classify.Hints{})
	view, err := filter.Apply(ds, roles, filter.Selection{Identifiers: []string{"nobody"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteView(&buf, view))
	assert.Equal(t, "Employee_ID,Reporting_Period,Burnout_Risk_Score,Cost_Per_Hour,Notes\n", buf.String())
}

func TestCSVWriter_WriteFile(t *testing.T) {
	dir := t.TempDir()
	paths := &config.Paths{ExportDir: filepath.Join(dir, "exports")}
	writer := NewCSVWriter(paths, quietLogger())

	tests := []struct {
		name    string
		file    string
		bom     bool
		wantDir string
	}{
		{name: "relative goes to export dir", file: "employee_filtered_data.csv", bom: true, wantDir: paths.ExportDir},
		{name: "absolute kept", file: filepath.Join(dir, "nested", "out.csv"), wantDir: filepath.Join(dir, "nested")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := writer.WriteFile(tt.file, kpis(t), WriteOptions{BOMPrefix: tt.bom})
			require.NoError(t, err)
			assert.Equal(t, tt.wantDir, filepath.Dir(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.bom, bytes.HasPrefix(data, utf8BOM))
			assert.Contains(t, string(data), "Employee_ID,Reporting_Period")
		})
	}
}

// Exporting a filtered view and loading the file again gives the same rows
// and columns.
func TestRoundTrip(t *testing.T) {
	ds := kpis(t)
	roles := classify.Classify(ds, classify.Hints{})
	view, err := filter.Apply(ds, roles, filter.Selection{Identifiers: []string{"E1"}})
	require.NoError(t, err)
	require.Equal(t, 2, view.Len())

	path, err := NewCSVWriter(nil, quietLogger()).WriteFile(filepath.Join(t.TempDir(), "view.csv"), view, WriteOptions{BOMPrefix: true})
	require.NoError(t, err)

	res, err := loader.New(quietLogger()).Load(context.Background(), loader.Request{Path: path})
	require.NoError(t, err)

	assert.Equal(t, view.Len(), res.Dataset.Len())
	assert.ElementsMatch(t, view.Columns(), res.Dataset.Columns())
	for r := 0; r < view.Len(); r++ {
		for _, c := range view.Columns() {
			assert.Equal(t, view.Text(r, c), res.Dataset.Text(r, c), "row %d column %s", r, c)
		}
	}
}
