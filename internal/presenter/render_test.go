package presenter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpidash/internal/aggregate"
	"kpidash/internal/classify"
	"kpidash/internal/dataset"
	"kpidash/internal/filter"
)

func employees(t *testing.T) (*dataset.Dataset, classify.Roles) {
	t.Helper()
	ds, err := dataset.New(dataset.Table{
		Sheet: "KPIs",
		Header: []string{
			"Employee_ID", "Reporting_Period", "Time_Low_Value_Tasks_Hours",
			"Total_Work_Time_Hours", "Cost_Per_Hour", "Burnout_Risk_Score",
		},
		Rows: [][]string{
			{"E1", "2024-01-31", "2", "40", "50", "3"},
			{"E2", "2024-01-31", "4", "38", "40", "5"},
			{"E3", "2024-01-31", "1", "42", "30", "2"},
			{"E1", "2024-02-29", "3", "41", "52", "6"},
			{"E2", "2024-02-29", "5", "39", "45", "4"},
			{"E4", "2024-02-29", "2", "35", "1234.5", "1"},
		},
	})
	require.NoError(t, err)
	return ds, classify.Classify(ds, classify.Hints{})
}

func labels(points []Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Label
	}
	return out
}

func TestRender(t *testing.T) {
	ds, roles := employees(t)

	m, err := Render(ds, roles, filter.Selection{}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "KPIs", m.Source)
	assert.Equal(t, 6, m.RowCount)
	assert.False(t, m.Empty)

	t.Run("cards", func(t *testing.T) {
		require.Len(t, m.Cards, 3)
		assert.Equal(t, "Time Low Value Tasks Hours", m.Cards[0].Label)
		assert.Equal(t, "2.00", m.Cards[0].Value)
		assert.Equal(t, "+0.00", m.Cards[0].Delta)

		cost := m.Cards[2]
		assert.Equal(t, "Cost_Per_Hour", cost.Metric)
		assert.True(t, cost.Available)
		assert.Equal(t, "1,234.50", cost.Value)
		assert.Equal(t, "+1184.50", cost.Delta)
	})

	t.Run("trend over time", func(t *testing.T) {
		require.NotNil(t, m.Trend)
		assert.Equal(t, ChartLine, m.Trend.Kind)
		assert.Equal(t, "Reporting_Period", m.Trend.XAxis)
		assert.Equal(t, "Average Time Low Value Tasks Hours over time", m.Trend.Title)
		assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, labels(m.Trend.Points))
		assert.InDelta(t, 7.0/3, m.Trend.Points[0].Value.Float(), 1e-9)
		assert.InDelta(t, 10.0/3, m.Trend.Points[1].Value.Float(), 1e-9)
	})

	t.Run("comparison clamped to identifiers", func(t *testing.T) {
		assert.Equal(t, Bounds{Min: 3, Max: 4}, m.TopN)
		require.NotNil(t, m.Comparison)
		assert.Equal(t, 4, m.Comparison.N)
		assert.Equal(t, []string{"E2", "E1", "E4", "E3"}, labels(m.Comparison.Bars))
		assert.Equal(t, "Top 4 by Average Time Low Value Tasks Hours", m.Comparison.Title)
	})

	t.Run("box per period", func(t *testing.T) {
		require.NotNil(t, m.Box)
		assert.Equal(t, "Reporting_Period", m.Box.GroupBy)
		require.Len(t, m.Box.Boxes, 2)
		assert.Equal(t, "2024-01-31", m.Box.Boxes[0].Group)
	})

	t.Run("correlation and preview", func(t *testing.T) {
		require.NotNil(t, m.Correlation)
		assert.Len(t, m.Correlation.Columns, 4)
		assert.Equal(t, ds.Columns(), m.Preview.Columns)
		assert.Len(t, m.Preview.Rows, 6)
		assert.False(t, m.Preview.Truncated)
		assert.Equal(t, []string{"E4", "2024-02-29", "2", "35", "1234.5", "1"}, m.Preview.Rows[5])
	})
}

func TestRender_TopNBelowMinimum(t *testing.T) {
	ds, roles := employees(t)
	opts := DefaultOptions()
	opts.TopN = 1
	opts.ComparisonMetric = "Burnout_Risk_Score"

	m, err := Render(ds, roles, filter.Selection{}, opts)
	require.NoError(t, err)
	require.NotNil(t, m.Comparison)
	assert.Equal(t, 3, m.Comparison.N)
	assert.Equal(t, "Burnout_Risk_Score", m.Comparison.Metric)
	// E1 4.5, E2 4.5, E3 2, E4 1: ties keep first appearance
	assert.Equal(t, []string{"E1", "E2", "E3"}, labels(m.Comparison.Bars))
}

func TestRender_SingleIdentifierHidesComparison(t *testing.T) {
	ds, roles := employees(t)

	m, err := Render(ds, roles, filter.Selection{Identifiers: []string{"E1"}}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, m.RowCount)
	assert.Nil(t, m.Comparison)
	require.NotNil(t, m.Trend)
	assert.Equal(t, "3.00", m.Cards[0].Value)
	assert.Equal(t, "+1.00", m.Cards[0].Delta)
}

func TestRender_EmptySelection(t *testing.T) {
	tests := []struct {
		name string
		sel  filter.Selection
	}{
		{"unknown identifier", filter.Selection{Identifiers: []string{"nobody"}}},
		{"no identifiers chosen", filter.Selection{Identifiers: []string{}}},
		{"no buckets chosen", filter.Selection{Buckets: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEmptyModel(t, tt.sel)
		})
	}
}

func assertEmptyModel(t *testing.T, sel filter.Selection) {
	t.Helper()
	ds, roles := employees(t)

	m, err := Render(ds, roles, sel, DefaultOptions())
	require.NoError(t, err)

	assert.True(t, m.Empty)
	assert.Equal(t, 0, m.RowCount)
	assert.Contains(t, m.Notices, NoticeNoData)
	assert.Nil(t, m.Trend)
	assert.Nil(t, m.Comparison)
	assert.Nil(t, m.Box)
	assert.Nil(t, m.Correlation)
	require.Len(t, m.Cards, 3)
	for _, c := range m.Cards {
		assert.False(t, c.Available)
		assert.Equal(t, NotAvailable, c.Value)
		assert.Equal(t, NotAvailable, c.Delta)
	}
	assert.Empty(t, m.Preview.Rows)
}

func TestRender_SumReducer(t *testing.T) {
	ds, roles := employees(t)
	opts := DefaultOptions()
	opts.Reducer = aggregate.Sum

	m, err := Render(ds, roles, filter.Selection{}, opts)
	require.NoError(t, err)

	require.NotNil(t, m.Trend)
	assert.Equal(t, "Total Time Low Value Tasks Hours over time", m.Trend.Title)
	assert.Equal(t, 7.0, m.Trend.Points[0].Value.Float())
	assert.Equal(t, 10.0, m.Trend.Points[1].Value.Float())

	require.NotNil(t, m.Comparison)
	assert.Equal(t, "Top 4 by Total Time Low Value Tasks Hours", m.Comparison.Title)
	// E2 9, E1 5, E4 2, E3 1
	assert.Equal(t, []string{"E2", "E1", "E4", "E3"}, labels(m.Comparison.Bars))
	assert.Equal(t, 9.0, m.Comparison.Bars[0].Value.Float())

	// cards stay latest-value based
	assert.Equal(t, "2.00", m.Cards[0].Value)
}

func TestRender_SingleIdentifierPlotsEveryRow(t *testing.T) {
	ds, err := dataset.New(dataset.Table{
		Header: []string{"Employee_ID", "Reporting_Period", "Hours"},
		Rows: [][]string{
			{"E1", "2024-02-29", "5"},
			{"E2", "2024-01-31", "9"},
			{"E1", "2024-01-31", "1"},
			{"E1", "2024-01-31", "3"},
		},
	})
	require.NoError(t, err)
	roles := classify.Classify(ds, classify.Hints{})

	m, err := Render(ds, roles, filter.Selection{Identifiers: []string{"E1"}}, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, m.Trend)
	assert.Equal(t, ChartLine, m.Trend.Kind)
	assert.Equal(t, "Hours over time", m.Trend.Title)
	assert.Equal(t, []string{"2024-01-31", "2024-01-31", "2024-02-29"}, labels(m.Trend.Points))
	assert.Equal(t, 1.0, m.Trend.Points[0].Value.Float())
	assert.Equal(t, 3.0, m.Trend.Points[1].Value.Float())
	assert.Equal(t, 5.0, m.Trend.Points[2].Value.Float())

	// two identifiers fall back to one point per bucket
	two, err := Render(ds, roles, filter.Selection{Identifiers: []string{"E1", "E2"}}, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, two.Trend)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, labels(two.Trend.Points))
	assert.InDelta(t, 13.0/3, two.Trend.Points[0].Value.Float(), 1e-9)
}

func TestReducerLabel(t *testing.T) {
	tests := []struct {
		r    aggregate.Reducer
		want string
	}{
		{aggregate.Mean, "Average"},
		{aggregate.Sum, "Total"},
		{aggregate.Count, "Count of"},
		{aggregate.Min, "Minimum"},
		{aggregate.Max, "Maximum"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReducerLabel(tt.r))
	}
}

func TestRender_InvalidRange(t *testing.T) {
	ds, roles := employees(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Render(ds, roles, filter.Selection{From: &from, To: &to}, DefaultOptions())
	assert.ErrorIs(t, err, filter.ErrInvalidRange)
}

func TestRender_NoTimeColumn(t *testing.T) {
	ds, err := dataset.New(dataset.Table{
		Sheet:  "Scores",
		Header: []string{"Name", "Score"},
		Rows:   [][]string{{"a", "1"}, {"b", "5"}, {"a", "3"}, {"c", "4"}},
	})
	require.NoError(t, err)
	roles := classify.Classify(ds, classify.Hints{})
	require.Equal(t, "Name", roles.Identifier)
	require.False(t, roles.HasTime())

	m, err := Render(ds, roles, filter.Selection{}, DefaultOptions())
	require.NoError(t, err)

	require.NotNil(t, m.Trend)
	assert.Equal(t, ChartBar, m.Trend.Kind)
	assert.Equal(t, []string{"b", "c", "a"}, labels(m.Trend.Points))
	assert.Equal(t, 2.0, m.Trend.Points[2].Value.Float())

	require.NotNil(t, m.Box)
	assert.Equal(t, "Name", m.Box.GroupBy)
	assert.Nil(t, m.Correlation)
	assert.Contains(t, m.Notices, NoticeNoCorrelation)

	// cards fall back to the available metrics
	require.Len(t, m.Cards, 1)
	assert.Equal(t, "Score", m.Cards[0].Metric)

	one, err := Render(ds, roles, filter.Selection{Identifiers: []string{"a"}}, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, one.Trend)
}

func TestRender_TrendSortsBuckets(t *testing.T) {
	ds, err := dataset.New(dataset.Table{
		Header: []string{"Employee_ID", "Week", "Hours"},
		Rows: [][]string{
			{"E1", "10", "1"},
			{"E1", "2", "2"},
			{"E2", "1", "3"},
			{"E2", "2", "4"},
		},
	})
	require.NoError(t, err)
	roles := classify.Classify(ds, classify.Hints{})
	require.Equal(t, "Week", roles.Time)
	// Week holds numbers, so it is the time column rather than a metric
	require.Equal(t, []string{"Hours"}, roles.Metrics)

	m, err := Render(ds, roles, filter.Selection{}, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, m.Trend)
	assert.Equal(t, []string{"1", "2", "10"}, labels(m.Trend.Points))
	assert.Equal(t, 3.0, m.Trend.Points[1].Value.Float())
}

func TestRender_NoMetrics(t *testing.T) {
	ds, err := dataset.New(dataset.Table{
		Header: []string{"Employee_ID", "Team"},
		Rows:   [][]string{{"E1", "a"}, {"E2", "b"}},
	})
	require.NoError(t, err)
	roles := classify.Classify(ds, classify.Hints{})

	m, err := Render(ds, roles, filter.Selection{}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, m.Cards)
	assert.Nil(t, m.Trend)
	assert.Nil(t, m.Comparison)
	assert.Contains(t, m.Notices, NoticeNoMetrics)
	assert.Contains(t, m.Notices, NoticeNoCorrelation)
}

func TestRender_PreviewLimit(t *testing.T) {
	ds, roles := employees(t)
	opts := DefaultOptions()
	opts.PreviewRows = 2

	m, err := Render(ds, roles, filter.Selection{}, opts)
	require.NoError(t, err)
	assert.Len(t, m.Preview.Rows, 2)
	assert.Equal(t, 6, m.Preview.Total)
	assert.True(t, m.Preview.Truncated)
}

func TestRender_IsDeterministic(t *testing.T) {
	ds, roles := employees(t)
	a, err := Render(ds, roles, filter.Selection{}, DefaultOptions())
	require.NoError(t, err)
	b, err := Render(ds, roles, filter.Selection{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, labels(a.Comparison.Bars), labels(b.Comparison.Bars))
	assert.Equal(t, a.Cards, b.Cards)
	assert.Equal(t, a.Preview, b.Preview)
}

func TestCardMetrics(t *testing.T) {
	roles := classify.Roles{Metrics: []string{"a", "b", "c", "d", "e"}}

	assert.Equal(t, []string{"a", "b", "c", "d"}, CardMetrics(roles, DefaultCardMetrics))
	assert.Equal(t, []string{"c", "a"}, CardMetrics(roles, []string{"c", "zz", "a"}))
	assert.Empty(t, CardMetrics(classify.Roles{}, DefaultCardMetrics))
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		v     float64
		value string
		delta string
	}{
		{1234.5, "1,234.50", "+1234.50"},
		{-1234567.891, "-1,234,567.89", "-1234567.89"},
		{0, "0.00", "+0.00"},
		{math.NaN(), NotAvailable, NotAvailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.value, FormatValue(tt.v))
		assert.Equal(t, tt.delta, FormatDelta(tt.v))
	}
	assert.Equal(t, "Cost Per Hour", Label("Cost_Per_Hour"))
}
