package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/extrame/xls"
)

// xlsSource reads legacy BIFF workbooks. Sheets are decoded lazily from the
// open file, so reads are sequential.
type xlsSource struct {
	file *os.File
	book *xls.WorkBook
}

func openXLS(path string) (src *xlsSource, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			f.Close()
			src, err = nil, fmt.Errorf("failed to parse workbook: %v", r)
		}
	}()

	book, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse workbook: %w", err)
	}
	return &xlsSource{file: f, book: book}, nil
}

func (s *xlsSource) SheetNames(context.Context) ([]string, error) {
	names := make([]string, 0, s.book.NumSheets())
	for i := 0; i < s.book.NumSheets(); i++ {
		if sheet := s.book.GetSheet(i); sheet != nil {
			names = append(names, sheet.Name)
		}
	}
	return names, nil
}

func (s *xlsSource) Rows(ctx context.Context, name string) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("failed to decode sheet: %v", r)
		}
	}()

	for i := 0; i < s.book.NumSheets(); i++ {
		sheet := s.book.GetSheet(i)
		if sheet == nil || sheet.Name != name {
			continue
		}

		for r := 0; r <= int(sheet.MaxRow); r++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		return rows, nil
	}
	return nil, ErrSheetNotFound
}

func (s *xlsSource) Parallel() bool { return false }

func (s *xlsSource) Close() error { return s.file.Close() }
