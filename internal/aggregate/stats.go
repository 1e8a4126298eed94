package aggregate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"kpidash/internal/dataset"
)

// Box is the five-number summary of one group.
type Box struct {
	Group  string `json:"group"`
	Min    Value  `json:"min"`
	Q1     Value  `json:"q1"`
	Median Value  `json:"median"`
	Q3     Value  `json:"q3"`
	Max    Value  `json:"max"`
	Count  int    `json:"count"`
}

// Values returns min, Q1, median, Q3, max.
func (b Box) Values() []float64 {
	return []float64{float64(b.Min), float64(b.Q1), float64(b.Median), float64(b.Q3), float64(b.Max)}
}

// BoxStats summarises metric per value of groupKey in first-appearance
// order. An empty groupKey summarises all rows as one group named "All".
// Groups without any value are omitted.
func BoxStats(ds *dataset.Dataset, groupKey, metric string) ([]Box, error) {
	values, err := ds.Floats(metric)
	if err != nil {
		return nil, err
	}

	groups := make([]string, ds.Len())
	if groupKey == "" {
		for i := range groups {
			groups[i] = "All"
		}
	} else if groups, err = ds.Strings(groupKey); err != nil {
		return nil, err
	}

	var order []string
	byGroup := make(map[string][]float64)
	for i, g := range groups {
		if g == "" || math.IsNaN(values[i]) {
			continue
		}
		if _, ok := byGroup[g]; !ok {
			order = append(order, g)
		}
		byGroup[g] = append(byGroup[g], values[i])
	}

	boxes := make([]Box, 0, len(order))
	for _, g := range order {
		v := byGroup[g]
		sort.Float64s(v)
		boxes = append(boxes, Box{
			Group:  g,
			Min:    Value(v[0]),
			Q1:     Value(Quantile(v, 0.25)),
			Median: Value(Quantile(v, 0.5)),
			Q3:     Value(Quantile(v, 0.75)),
			Max:    Value(v[len(v)-1]),
			Count:  len(v),
		})
	}
	return boxes, nil
}

// Quantile of sorted values with linear interpolation between closest
// ranks, the default of most dataframe libraries.
func Quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Matrix is a square correlation matrix.
type Matrix struct {
	Columns []string  `json:"columns"`
	Values  [][]Value `json:"values"`
}

// At returns the coefficient for columns i and j.
func (m Matrix) At(i, j int) float64 { return float64(m.Values[i][j]) }

// Correlation computes Pearson coefficients over pairwise complete
// observations. Pairs with fewer than two observations or no variance are
// NaN.
func Correlation(ds *dataset.Dataset, metrics []string) (Matrix, error) {
	if len(metrics) < 2 {
		return Matrix{}, fmt.Errorf("%w: got %d", ErrTooFewMetrics, len(metrics))
	}

	cols := make([][]float64, len(metrics))
	for i, m := range metrics {
		col, err := ds.Floats(m)
		if err != nil {
			return Matrix{}, err
		}
		cols[i] = col
	}

	m := Matrix{Columns: append([]string(nil), metrics...), Values: make([][]Value, len(metrics))}
	for i := range metrics {
		m.Values[i] = make([]Value, len(metrics))
	}
	for i := range metrics {
		for j := i; j < len(metrics); j++ {
			r := Value(pearson(cols[i], cols[j]))
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m, nil
}

func pearson(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 || constant(xs) || constant(ys) {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// Change is the first and latest non-missing value of a metric in row
// order and their difference.
type Change struct {
	First  Value `json:"first"`
	Latest Value `json:"latest"`
	Delta  Value `json:"delta"`
	OK     bool  `json:"ok"`
}

// Delta returns the Change of metric over ds. OK is false when the column
// has no values.
func Delta(ds *dataset.Dataset, metric string) (Change, error) {
	values, err := ds.Floats(metric)
	if err != nil {
		return Change{}, err
	}

	first, latest := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(first) {
			first = v
		}
		latest = v
	}
	if math.IsNaN(first) {
		nan := Value(math.NaN())
		return Change{First: nan, Latest: nan, Delta: nan}, nil
	}
	return Change{
		First:  Value(first),
		Latest: Value(latest),
		Delta:  Value(latest - first),
		OK:     true,
	}, nil
}
