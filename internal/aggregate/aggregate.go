// Package aggregate groups dataset rows and reduces metric columns. Groups
// keep the order in which their keys first appear, so every result is
// deterministic for a given input.
package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"kpidash/internal/dataset"
)

var (
	// ErrUnknownReducer is returned by ParseReducer.
	ErrUnknownReducer = errors.New("unknown reducer")
	// ErrTooFewMetrics is returned by Correlation for fewer than two metrics.
	ErrTooFewMetrics = errors.New("at least two metrics are required")
)

// Reducer folds the values of one group into a single number.
type Reducer string

const (
	Mean  Reducer = "mean"
	Sum   Reducer = "sum"
	Count Reducer = "count"
	Min   Reducer = "min"
	Max   Reducer = "max"
)

// ParseReducer accepts the reducer names case-insensitively; "" is Mean.
func ParseReducer(s string) (Reducer, error) {
	switch r := Reducer(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return Mean, nil
	case Mean, Sum, Count, Min, Max:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReducer, s)
}

// reduce skips NaN; all-NaN input gives NaN except for Count
func (r Reducer) reduce(values []float64) float64 {
	clean := values[:0:0]
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if r == Count {
		return float64(len(clean))
	}
	if len(clean) == 0 {
		return math.NaN()
	}

	switch r {
	case Sum:
		var s float64
		for _, v := range clean {
			s += v
		}
		return s
	case Min:
		m := clean[0]
		for _, v := range clean[1:] {
			m = math.Min(m, v)
		}
		return m
	case Max:
		m := clean[0]
		for _, v := range clean[1:] {
			m = math.Max(m, v)
		}
		return m
	default:
		return stat.Mean(clean, nil)
	}
}

// Value is a reduced number; NaN marshals as JSON null.
type Value float64

// Float returns the value as float64.
func (v Value) Float() float64 { return float64(v) }

// Valid reports whether v is a finite number.
func (v Value) Valid() bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(v), 'f', -1, 64)), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// Row is one group: its key values, one reduced value per metric and the
// number of input rows in the group.
type Row struct {
	Keys   []string         `json:"keys"`
	Values map[string]Value `json:"values"`
	Count  int              `json:"count"`
}

// Key joins the key values for display.
func (r Row) Key() string { return strings.Join(r.Keys, " / ") }

// Value returns the reduced value of metric, NaN when absent.
func (r Row) Value(metric string) float64 {
	v, ok := r.Values[metric]
	if !ok {
		return math.NaN()
	}
	return float64(v)
}

// GroupBy groups ds by keys and reduces every metric. Rows with a missing
// key are dropped. With no keys all rows form one group.
func GroupBy(ds *dataset.Dataset, keys, metrics []string, reducer Reducer) ([]Row, error) {
	if _, err := ParseReducer(string(reducer)); err != nil {
		return nil, err
	}

	keyCols := make([][]string, len(keys))
	for i, k := range keys {
		col, err := ds.Strings(k)
		if err != nil {
			return nil, err
		}
		keyCols[i] = col
	}
	metricCols := make([][]float64, len(metrics))
	for i, m := range metrics {
		col, err := ds.Floats(m)
		if err != nil {
			return nil, err
		}
		metricCols[i] = col
	}

	type group struct {
		keys   []string
		values [][]float64
		count  int
	}
	var order []*group
	index := make(map[string]*group)

rows:
	for r := 0; r < ds.Len(); r++ {
		kv := make([]string, len(keys))
		for i := range keys {
			if keyCols[i][r] == "" {
				continue rows
			}
			kv[i] = keyCols[i][r]
		}

		id := strings.Join(kv, "\x00")
		g, ok := index[id]
		if !ok {
			g = &group{keys: kv, values: make([][]float64, len(metrics))}
			index[id] = g
			order = append(order, g)
		}
		g.count++
		for i := range metrics {
			g.values[i] = append(g.values[i], metricCols[i][r])
		}
	}

	out := make([]Row, 0, len(order))
	for _, g := range order {
		row := Row{Keys: g.keys, Values: make(map[string]Value, len(metrics)), Count: g.count}
		for i, m := range metrics {
			row.Values[m] = Value(reducer.reduce(g.values[i]))
		}
		out = append(out, row)
	}
	return out, nil
}

// TopN returns the n rows with the largest metric value, descending. Ties
// keep input order and NaN sorts last. rows is not modified.
func TopN(rows []Row, metric string, n int) []Row {
	if n <= 0 {
		return []Row{}
	}
	sorted := make([]Row, len(rows))
	copy(sorted, rows)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Value(metric), sorted[j].Value(metric)
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		if math.IsNaN(a) {
			return false
		}
		return a > b
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// SortByValue orders rows descending by metric, NaN last, ties stable.
func SortByValue(rows []Row, metric string) []Row {
	return TopN(rows, metric, len(rows))
}
