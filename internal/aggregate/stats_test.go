package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpidash/internal/dataset"
)

func TestQuantile(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.75, Quantile(v, 0.25))
	assert.Equal(t, 2.5, Quantile(v, 0.5))
	assert.Equal(t, 3.25, Quantile(v, 0.75))
	assert.Equal(t, 7.0, Quantile([]float64{7}, 0.5))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestBoxStats(t *testing.T) {
	ds := kpis(t)

	boxes, err := BoxStats(ds, "Reporting_Period", "Burnout_Risk_Score")
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	jan := boxes[0]
	assert.Equal(t, "2024-01-31", jan.Group)
	assert.Equal(t, []float64{3, 3.5, 4, 4.5, 5}, jan.Values())
	assert.Equal(t, 3, jan.Count)

	feb := boxes[1]
	assert.Equal(t, []float64{1, 4, 7, 8.5, 10}, feb.Values())

	all, err := BoxStats(ds, "", "Cost_Per_Hour")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "All", all[0].Group)
	assert.Equal(t, 5, all[0].Count)
}

func TestCorrelation(t *testing.T) {
	ds, err := dataset.New(dataset.Table{
		Header: []string{"a", "b", "c", "flat"},
		Rows: [][]string{
			{"1", "2", "3", "1"},
			{"2", "4", "", "1"},
			{"3", "6", "1", "1"},
			{"4", "8", "0", "1"},
		},
	})
	require.NoError(t, err)

	m, err := Correlation(ds, []string{"a", "b", "c", "flat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "flat"}, m.Columns)

	assert.InDelta(t, 1.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, m.At(0, 1), 1e-12)
	assert.Equal(t, m.At(0, 2), m.At(2, 0))
	assert.Less(t, m.At(0, 2), 0.0)
	assert.True(t, math.IsNaN(m.At(0, 3)))
	assert.True(t, math.IsNaN(m.At(3, 3)))

	_, err = Correlation(ds, []string{"a"})
	assert.ErrorIs(t, err, ErrTooFewMetrics)
}

func TestDelta(t *testing.T) {
	ds := kpis(t)

	c, err := Delta(ds, "Cost_Per_Hour")
	require.NoError(t, err)
	assert.True(t, c.OK)
	assert.Equal(t, Value(50), c.First)
	assert.Equal(t, Value(20), c.Latest)
	assert.Equal(t, Value(-30), c.Delta)

	empty, err := ds.Subset(nil)
	require.NoError(t, err)
	c, err = Delta(empty, "Cost_Per_Hour")
	require.NoError(t, err)
	assert.False(t, c.OK)
	assert.False(t, c.Delta.Valid())

	_, err = Delta(ds, "Nope")
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)
}
