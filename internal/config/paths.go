package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains the resolved application directories
type Paths struct {
	BaseDir   string
	DataDir   string
	ExportDir string
	LogsDir   string
}

// ResolvePaths resolves the configured directories. Relative entries are
// joined onto BaseDir, which itself defaults to the executable directory.
func (c PathsConfig) ResolvePaths() (*Paths, error) {
	base := c.BaseDir
	if base == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual executable location
		exe, err = filepath.EvalSymlinks(exe)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
		}
		base = filepath.Dir(exe)
	}

	return &Paths{
		BaseDir:   base,
		DataDir:   resolve(base, c.DataDir, "data"),
		ExportDir: resolve(base, c.ExportDir, "exports"),
		LogsDir:   resolve(base, c.LogsDir, "logs"),
	}, nil
}

func resolve(base, dir, fallback string) string {
	if dir == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	logger := slog.Default()

	for _, dir := range []string{p.DataDir, p.ExportDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// DataPath resolves a data source name. Absolute paths, paths that already
// exist relative to the working directory and gsheet:// references are
// returned unchanged; anything else is looked up under DataDir.
func (p *Paths) DataPath(source string) string {
	if source == "" || filepath.IsAbs(source) || IsRemoteSource(source) || FileExists(source) {
		return source
	}
	return filepath.Join(p.DataDir, source)
}

// ExportPath returns the path for an exported file
func (p *Paths) ExportPath(filename string) string {
	return filepath.Join(p.ExportDir, filename)
}

// LogPathResolution logs path resolution information for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("exports", p.ExportDir),
			slog.String("logs", p.LogsDir),
		))
}

// IsRemoteSource reports whether source names a Google Sheets spreadsheet.
func IsRemoteSource(source string) bool {
	return strings.HasPrefix(source, GoogleSheetsScheme) && len(source) > len(GoogleSheetsScheme)
}

// GoogleSheetsScheme prefixes spreadsheet ids in DataConfig.Source.
const GoogleSheetsScheme = "gsheet://"

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
