package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// KPICSV is a small employee KPI table: three employees over two
// month-end reporting periods.
const KPICSV = `Employee_ID,Reporting_Period,Time_Low_Value_Tasks_Hours,Total_Work_Time_Hours,Cost_Per_Hour
E1,2024-01-31,2,40,50
E2,2024-01-31,4,38,40
E1,2024-02-29,3,41,52
E3,2024-02-29,1,42,30
`

// WriteKPISource writes KPICSV to dir/name, creating dir, and returns the
// file path.
func WriteKPISource(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("create %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(KPICSV), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
