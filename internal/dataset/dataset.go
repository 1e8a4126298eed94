// Package dataset holds the in-memory table every dashboard stage works on.
// A Dataset wraps a gota DataFrame with detected column types; it is never
// mutated, filtered views are row subsets of their source.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	// ErrNoColumns is returned for a table without any columns.
	ErrNoColumns = errors.New("dataset has no columns")
	// ErrUnknownColumn is returned when a column lookup fails.
	ErrUnknownColumn = errors.New("unknown column")
)

// naValues are the cell texts read as missing
var naValues = []string{"", "NA", "N/A", "NaN", "nan", "<nil>", "null", "NULL"}

// Dataset is an immutable typed table.
type Dataset struct {
	name   string
	frame  dataframe.DataFrame
	cols   []series.Series
	index  map[string]int
	source []int
}

// New types a Table. Columns whose name suggests a date or period are
// coerced first: every value that parses as a date is rewritten in
// YYYY-MM-DD form, other values are kept as they are.
func New(t Table) (*Dataset, error) {
	if len(t.Header) == 0 {
		return nil, ErrNoColumns
	}

	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]string, len(t.Header))
		copy(row, r)
		rows[i] = row
	}
	for j, name := range t.Header {
		if IsDateLike(name) {
			coerceColumn(rows, j)
		}
	}
	textCols := textColumns(t.Header, rows)

	var df dataframe.DataFrame
	if len(rows) == 0 {
		cols := make([]series.Series, len(t.Header))
		for j, name := range t.Header {
			cols[j] = series.New([]string{}, series.String, name)
		}
		df = dataframe.New(cols...)
	} else {
		records := make([][]string, 0, len(rows)+1)
		records = append(records, t.Header)
		records = append(records, rows...)
		df = dataframe.LoadRecords(records,
			dataframe.HasHeader(true),
			dataframe.DetectTypes(true),
			dataframe.DefaultType(series.String),
			dataframe.WithTypes(textCols),
			dataframe.NaNValues(naValues),
		)
	}
	if df.Err != nil {
		return nil, fmt.Errorf("build dataframe for %q: %w", t.Sheet, df.Err)
	}

	return fromFrame(t.Sheet, df, nil), nil
}

// FromFrame wraps an existing DataFrame.
func FromFrame(name string, df dataframe.DataFrame) (*Dataset, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	if df.Ncol() == 0 {
		return nil, ErrNoColumns
	}
	return fromFrame(name, df, nil), nil
}

func fromFrame(name string, df dataframe.DataFrame, source []int) *Dataset {
	names := df.Names()
	d := &Dataset{
		name:   name,
		frame:  df,
		cols:   make([]series.Series, len(names)),
		index:  make(map[string]int, len(names)),
		source: source,
	}
	for i, n := range names {
		d.cols[i] = df.Col(n)
		d.index[n] = i
	}
	return d
}

// IsDateLike reports whether a column name marks dates or periods.
func IsDateLike(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "date") || strings.Contains(n, "period")
}

// IsIdentifierLike reports whether a column name marks keys rather than
// quantities: anything about employees, or an "id" word (Staff_ID, StaffID).
func IsIdentifierLike(name string) bool {
	if strings.Contains(strings.ToLower(name), "employee") {
		return true
	}
	if strings.HasSuffix(name, "ID") || strings.HasSuffix(name, "Id") {
		return true
	}
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if w == "id" {
			return true
		}
	}
	return false
}

// textColumns picks the columns that must stay strings whatever their
// values look like: identifier-like names, and columns holding a
// zero-padded number such as "007", which would otherwise collapse into 7.
func textColumns(header []string, rows [][]string) map[string]series.Type {
	types := make(map[string]series.Type)
	for j, name := range header {
		if IsIdentifierLike(name) {
			types[name] = series.String
			continue
		}
		for _, row := range rows {
			if zeroPadded(row[j]) {
				types[name] = series.String
				break
			}
		}
	}
	return types
}

func zeroPadded(v string) bool {
	return len(v) > 1 && v[0] == '0' && v[1] >= '0' && v[1] <= '9'
}

func coerceColumn(rows [][]string, j int) {
	parsed := make([]Bucket, len(rows))
	found := false
	for i, row := range rows {
		parsed[i] = ParseBucket(row[j])
		found = found || parsed[i].Parsed
	}
	if !found {
		return
	}
	for i, b := range parsed {
		if b.Parsed {
			rows[i][j] = b.Key()
		}
	}
}

// Name is the sheet (or joined sheet names) the data came from.
func (d *Dataset) Name() string { return d.name }

// Frame exposes the underlying DataFrame.
func (d *Dataset) Frame() dataframe.DataFrame { return d.frame }

// Columns returns the column names in order.
func (d *Dataset) Columns() []string { return d.frame.Names() }

// Len is the row count.
func (d *Dataset) Len() int { return d.frame.Nrow() }

// HasColumn reports whether the column exists.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Type returns the detected type of a column.
func (d *Dataset) Type(name string) (series.Type, error) {
	s, err := d.col(name)
	if err != nil {
		return "", err
	}
	return s.Type(), nil
}

// IsNumeric reports whether a column holds ints or floats.
func (d *Dataset) IsNumeric(name string) bool {
	t, err := d.Type(name)
	return err == nil && (t == series.Int || t == series.Float)
}

// IsNA reports whether a cell is missing.
func (d *Dataset) IsNA(row int, name string) bool {
	s, err := d.col(name)
	if err != nil {
		return true
	}
	return s.Elem(row).IsNA()
}

// Text returns the string form of a cell; missing cells are "".
func (d *Dataset) Text(row int, name string) string {
	s, err := d.col(name)
	if err != nil {
		return ""
	}
	return text(s, row)
}

func text(s series.Series, row int) string {
	e := s.Elem(row)
	if e.IsNA() {
		return ""
	}
	if s.Type() == series.Float {
		return strconv.FormatFloat(e.Float(), 'f', -1, 64)
	}
	return e.String()
}

// Strings returns the string form of a whole column.
func (d *Dataset) Strings(name string) ([]string, error) {
	s, err := d.col(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, s.Len())
	for i := range out {
		out[i] = text(s, i)
	}
	return out, nil
}

// Floats returns a column as float64 with NaN for missing or non-numeric
// cells.
func (d *Dataset) Floats(name string) ([]float64, error) {
	s, err := d.col(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, s.Len())
	for i := range out {
		e := s.Elem(i)
		if e.IsNA() {
			out[i] = math.NaN()
			continue
		}
		out[i] = e.Float()
	}
	return out, nil
}

// Buckets parses every cell of a column as a time bucket.
func (d *Dataset) Buckets(name string) ([]Bucket, error) {
	values, err := d.Strings(name)
	if err != nil {
		return nil, err
	}
	out := make([]Bucket, len(values))
	for i, v := range values {
		out[i] = ParseBucket(v)
	}
	return out, nil
}

// Distinct returns the sorted distinct non-missing string values of a
// column.
func (d *Dataset) Distinct(name string) ([]string, error) {
	values, err := d.Strings(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0)
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// TimeRange returns the earliest and latest parsed bucket of a column.
func (d *Dataset) TimeRange(name string) (from, to time.Time, ok bool, err error) {
	buckets, err := d.Buckets(name)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	for _, b := range buckets {
		if !b.Parsed {
			continue
		}
		if !ok || b.Time.Before(from) {
			from = b.Time
		}
		if !ok || b.Time.After(to) {
			to = b.Time
		}
		ok = true
	}
	return from, to, ok, nil
}

// Subset returns a new Dataset holding the given rows in the given order.
func (d *Dataset) Subset(rows []int) (*Dataset, error) {
	for _, r := range rows {
		if r < 0 || r >= d.Len() {
			return nil, fmt.Errorf("row %d out of range [0,%d)", r, d.Len())
		}
	}

	idx := make([]int, len(rows))
	copy(idx, rows)

	var df dataframe.DataFrame
	if len(idx) == 0 {
		cols := make([]series.Series, len(d.cols))
		for i, s := range d.cols {
			cols[i] = s.Subset([]int{})
		}
		df = dataframe.New(cols...)
	} else {
		df = d.frame.Subset(idx)
	}
	if df.Err != nil {
		return nil, fmt.Errorf("subset %q: %w", d.name, df.Err)
	}

	source := make([]int, len(idx))
	for i, r := range idx {
		source[i] = d.SourceRow(r)
	}
	return fromFrame(d.name, df, source), nil
}

// SourceRow maps a row of this view back to the row index of the dataset
// it was derived from.
func (d *Dataset) SourceRow(row int) int {
	if d.source == nil {
		return row
	}
	return d.source[row]
}

func (d *Dataset) col(name string) (series.Series, error) {
	i, ok := d.index[name]
	if !ok {
		return series.Series{}, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	return d.cols[i], nil
}
