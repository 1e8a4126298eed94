package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// SourceSheetColumn records the origin sheet of each row when several
// sheets are concatenated.
const SourceSheetColumn = "Source_Sheet"

// ErrNoHeader is returned when a sheet has no non-empty row to use as header.
var ErrNoHeader = errors.New("no header row")

// Table is the untyped read of one sheet: a cleaned header and rows padded
// to the header width.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// NewTable builds a Table from raw records. The first non-empty record is
// the header; fully blank records are dropped.
func NewTable(sheet string, records [][]string) (Table, error) {
	start := -1
	for i, rec := range records {
		if !blank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return Table{Sheet: sheet}, fmt.Errorf("sheet %q: %w", sheet, ErrNoHeader)
	}

	header := records[start]
	width := len(header)
	for _, rec := range records[start+1:] {
		if len(rec) > width {
			width = len(rec)
		}
	}

	raw := make([]string, width)
	copy(raw, header)

	rows := make([][]string, 0, len(records)-start-1)
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, width)
		for j, v := range rec {
			row[j] = strings.TrimSpace(v)
		}
		rows = append(rows, row)
	}

	return Table{Sheet: sheet, Header: CleanHeader(raw), Rows: rows}, nil
}

// CleanHeader trims names, names blank columns column_N (1-based) and
// suffixes repeats with _1, _2, ...
func CleanHeader(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	taken := make(map[string]bool, len(raw))

	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		taken[name] = true
		out[i] = name
	}

	for i, name := range out {
		n := seen[name]
		seen[name] = n + 1
		if n == 0 {
			continue
		}
		candidate := fmt.Sprintf("%s_%d", name, n)
		for taken[candidate] {
			n++
			seen[name] = n + 1
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}

// Concat stacks tables using the union of their columns in first-seen
// order. Cells a table lacks are left empty (NA). When more than one table
// is given a SourceSheetColumn is appended unless one already exists.
func Concat(tables []Table) Table {
	switch len(tables) {
	case 0:
		return Table{}
	case 1:
		return tables[0]
	}

	var header []string
	pos := make(map[string]int)
	for _, t := range tables {
		for _, name := range t.Header {
			if _, ok := pos[name]; !ok {
				pos[name] = len(header)
				header = append(header, name)
			}
		}
	}

	sourceIdx := -1
	if _, ok := pos[SourceSheetColumn]; !ok {
		sourceIdx = len(header)
		header = append(header, SourceSheetColumn)
	}

	names := make([]string, 0, len(tables))
	var rows [][]string
	for _, t := range tables {
		names = append(names, t.Sheet)
		for _, rec := range t.Rows {
			row := make([]string, len(header))
			for j, name := range t.Header {
				if j < len(rec) {
					row[pos[name]] = rec[j]
				}
			}
			if sourceIdx >= 0 {
				row[sourceIdx] = t.Sheet
			}
			rows = append(rows, row)
		}
	}

	return Table{Sheet: strings.Join(names, "+"), Header: header, Rows: rows}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
