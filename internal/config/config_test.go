package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "Updated_18_KPI_Dashboard.xlsx", cfg.Data.Source)
	assert.Equal(t, "warn", cfg.Data.MissingSheets)
	assert.Equal(t, 200, cfg.Data.PreviewRows)
	assert.Equal(t, 3, cfg.Data.TopNMin)
	assert.Equal(t, 10, cfg.Data.TopNMax)
	assert.Equal(t, "employee_filtered_data.csv", cfg.Data.ExportFileName)
	assert.Equal(t, []string{"Time_Low_Value_Tasks_Hours", "Total_Work_Time_Hours", "Cost_Per_Hour"}, cfg.Data.CardMetrics)
	assert.NoError(t, cfg.validate())
}

func TestLoadFrom_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := writeFile(t, dir, "kpidash.yaml", `
server:
  port: 9090
data:
  source: team.csv
  sheets: [Q1, Q2]
  preview_rows: 50
`)

	t.Setenv("KPIDASH_SERVER_PORT", "7070")
	t.Setenv("KPIDASH_DATA_MISSING_SHEETS", "FAIL")

	cfg, err := LoadFrom(file)
	require.NoError(t, err)

	// env beats file
	assert.Equal(t, 7070, cfg.Server.Port)
	// file beats defaults
	assert.Equal(t, "team.csv", cfg.Data.Source)
	assert.Equal(t, []string{"Q1", "Q2"}, cfg.Data.Sheets)
	assert.Equal(t, 50, cfg.Data.PreviewRows)
	// defaults survive
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10, cfg.Data.TopNMax)
	// normalized
	assert.Equal(t, "fail", cfg.Data.MissingSheets)
}

func TestLoadFrom_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "KPIDASH_DATA_TIME_COLUMN=Week\n")
	t.Cleanup(func() { os.Unsetenv("KPIDASH_DATA_TIME_COLUMN") })

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "Week", cfg.Data.TimeColumn)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "bad port",
			env:  map[string]string{"KPIDASH_SERVER_PORT": "70000"},
			want: "invalid server port",
		},
		{
			name: "bad policy",
			env:  map[string]string{"KPIDASH_DATA_MISSING_SHEETS": "ignore"},
			want: "invalid missing_sheets policy",
		},
		{
			name: "bad top n bounds",
			env:  map[string]string{"KPIDASH_DATA_TOP_N_MIN": "5", "KPIDASH_DATA_TOP_N_MAX": "4"},
			want: "invalid top N bounds",
		},
		{
			name: "unparsable duration",
			env:  map[string]string{"KPIDASH_SERVER_READ_TIMEOUT": "soon"},
			want: "failed to load config from env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFrom("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := LoadFrom("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(t.TempDir(), "out")

	paths, err := PathsConfig{BaseDir: base, ExportDir: abs}.ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "data"), paths.DataDir)
	assert.Equal(t, abs, paths.ExportDir)
	assert.Equal(t, filepath.Join(base, "logs"), paths.LogsDir)

	require.NoError(t, paths.EnsureDirectories())
	assert.DirExists(t, paths.DataDir)
	assert.DirExists(t, paths.ExportDir)

	assert.Equal(t, filepath.Join(abs, "x.csv"), paths.ExportPath("x.csv"))
}

func TestDataPath(t *testing.T) {
	base := t.TempDir()
	chdir(t, base)
	paths, err := PathsConfig{BaseDir: base}.ResolvePaths()
	require.NoError(t, err)

	local := writeFile(t, base, "local.csv", "a\n1\n")

	assert.Equal(t, "gsheet://abc", paths.DataPath("gsheet://abc"))
	assert.Equal(t, local, paths.DataPath(local))
	assert.Equal(t, "local.csv", paths.DataPath("local.csv"))
	assert.Equal(t, filepath.Join(paths.DataDir, "kpi.xlsx"), paths.DataPath("kpi.xlsx"))
}

func TestIsRemoteSource(t *testing.T) {
	assert.True(t, IsRemoteSource("gsheet://1AbC"))
	assert.False(t, IsRemoteSource("gsheet://"))
	assert.False(t, IsRemoteSource("kpi.xlsx"))
}
