package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kpidash/internal/loader"
)

// Source is a readable data file found on disk
type Source struct {
	Name    string        `json:"name"`
	Path    string        `json:"path"`
	Format  loader.Format `json:"format"`
	Size    int64         `json:"size"`
	ModTime time.Time     `json:"modified"`
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
	logger   *slog.Logger
}

// NewDiscovery creates a new file discovery instance rooted at basePath
func NewDiscovery(basePath string, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		basePath: basePath,
		logger:   logger.With(slog.String("component", "discovery")),
	}
}

// FindSources lists the loadable files in dir, newest first. A relative dir
// is resolved against the base path; an empty one is the base path itself.
func (d *Discovery) FindSources(dir string) ([]Source, error) {
	fullPath := dir
	if !filepath.IsAbs(dir) {
		fullPath = filepath.Join(d.basePath, dir)
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() || skipName(entry.Name()) {
			continue
		}

		format, err := loader.DetectFormat(entry.Name())
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			d.logger.Debug("Skipping unreadable entry",
				slog.String("name", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}

		sources = append(sources, Source{
			Name:    entry.Name(),
			Path:    filepath.Join(fullPath, entry.Name()),
			Format:  format,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].Name < sources[j].Name
		}
		return sources[i].ModTime.After(sources[j].ModTime)
	})

	d.logger.Debug("Data sources discovered",
		slog.String("directory", fullPath),
		slog.Int("count", len(sources)))
	return sources, nil
}

// skipName reports hidden files and Excel lock files.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}

// ValidateSource checks that path is a readable file in a supported format
func ValidateSource(path string) error {
	if _, err := loader.DetectFormat(path); err != nil {
		return err
	}
	if skipName(filepath.Base(path)) {
		return fmt.Errorf("%s is a temporary or hidden file", path)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", loader.ErrFileNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	return file.Close()
}

// Latest returns the most recently modified source
func Latest(sources []Source) (Source, bool) {
	if len(sources) == 0 {
		return Source{}, false
	}

	latest := sources[0]
	for _, s := range sources[1:] {
		if s.ModTime.After(latest.ModTime) {
			latest = s
		}
	}
	return latest, true
}
