package loader

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvSource is a single-sheet source named after the file.
type csvSource struct {
	name    string
	records [][]string
}

func openCSV(path string, format Format) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	name := sheetNameFromPath(path)
	var r io.Reader = f

	switch format {
	case FormatCSVGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatCSVLZ4:
		r = lz4.NewReader(f)
	case FormatZip:
		entry, entryName, err := firstZipCSV(f)
		if err != nil {
			return nil, err
		}
		defer entry.Close()
		r = entry
		name = sheetNameFromPath(entryName)
	}

	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return &csvSource{name: name, records: records}, nil
}

func firstZipCSV(f *os.File) (io.ReadCloser, string, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, "", err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, "", fmt.Errorf("failed to open zip archive: %w", err)
	}
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(entry.Name), ".csv") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", entry.Name, err)
		}
		return rc, entry.Name, nil
	}
	return nil, "", fmt.Errorf("%w: zip archive holds no .csv entry", ErrEmptySheet)
}

func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return records, nil
}

// sheetNameFromPath strips every extension: data.csv.gz -> data
func sheetNameFromPath(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

func (s *csvSource) SheetNames(context.Context) ([]string, error) {
	return []string{s.name}, nil
}

func (s *csvSource) Rows(_ context.Context, sheet string) ([][]string, error) {
	if sheet != s.name {
		return nil, ErrSheetNotFound
	}
	return s.records, nil
}

func (s *csvSource) Parallel() bool { return true }

func (s *csvSource) Close() error { return nil }
