package exporter

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"kpidash/internal/config"
	"kpidash/internal/dataset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteView writes ds as comma separated UTF-8 text: one header row with
// the column names, then the rows in view order. Cells are written as the
// dashboard shows them; missing values are empty.
func WriteView(w io.Writer, ds *dataset.Dataset) error {
	if err := textFrame(ds).WriteCSV(w, dataframe.WriteHeader(true)); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// textFrame copies ds into an all-string frame so numbers keep their
// shortest form instead of gota's fixed six decimals.
func textFrame(ds *dataset.Dataset) dataframe.DataFrame {
	names := ds.Columns()
	cols := make([]series.Series, len(names))
	for j, name := range names {
		values := make([]string, ds.Len())
		for r := range values {
			values[r] = ds.Text(r, name)
		}
		cols[j] = series.New(values, series.String, name)
	}
	return dataframe.New(cols...)
}

// CSVWriter writes dataset views to the export directory.
type CSVWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(paths *config.Paths, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{paths: paths, logger: logger.With(slog.String("component", "csv_writer"))}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteFile writes ds to filePath, creating parent directories. Relative
// paths land in the export directory. It returns the path written.
func (w *CSVWriter) WriteFile(filePath string, ds *dataset.Dataset, options WriteOptions) (string, error) {
	fullPath := w.resolvePath(filePath)

	w.logger.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("record_count", ds.Len()))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	if options.BOMPrefix {
		if _, err := buf.Write(utf8BOM); err != nil {
			return "", fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	if err := WriteView(buf, ds); err != nil {
		return "", err
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return fullPath, file.Close()
}

// resolvePath resolves a path to the appropriate directory
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.paths == nil {
		return filePath
	}
	return w.paths.ExportPath(filePath)
}
