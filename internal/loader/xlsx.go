package loader

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

type xlsxSource struct {
	file *excelize.File
}

func openXLSX(path string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return &xlsxSource{file: f}, nil
}

func (s *xlsxSource) SheetNames(context.Context) ([]string, error) {
	return s.file.GetSheetList(), nil
}

// Rows returns raw cell values so numbers keep full precision and dates
// arrive as serials for the date coercion to handle.
func (s *xlsxSource) Rows(ctx context.Context, sheet string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}

func (s *xlsxSource) Parallel() bool { return true }

func (s *xlsxSource) Close() error { return s.file.Close() }
