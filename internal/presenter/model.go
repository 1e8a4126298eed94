// Package presenter turns a filtered dataset into a RenderModel (cards,
// charts, tables and notices) and writes it as HTML, PNG or terminal text.
// Render is pure: the same inputs always produce the same model.
package presenter

import (
	"kpidash/internal/aggregate"
	"kpidash/internal/classify"
	"kpidash/internal/filter"
)

// Notices shown to the user.
const (
	NoticeNoData        = "No data for the current selection."
	NoticeNoCorrelation = "Not enough numeric columns for correlation."
	NoticeNoMetrics     = "No numeric columns to chart."
	NotAvailable        = "N/A"
)

// Render defaults.
const (
	DefaultPreviewRows = 200
	DefaultTopNMin     = 3
	DefaultTopNMax     = 10
	MaxCards           = 4
)

// DefaultCardMetrics are shown as cards when the dataset has them.
var DefaultCardMetrics = []string{"Time_Low_Value_Tasks_Hours", "Total_Work_Time_Hours", "Cost_Per_Hour"}

// Options tune one render.
type Options struct {
	CardMetrics      []string
	TrendMetric      string
	ComparisonMetric string
	TopN             int
	TopNMin          int
	TopNMax          int
	PreviewRows      int
	// Reducer folds each trend bucket and comparison group; zero is Mean.
	Reducer aggregate.Reducer
}

// DefaultOptions mirrors the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		CardMetrics: DefaultCardMetrics,
		TopN:        DefaultTopNMax,
		TopNMin:     DefaultTopNMin,
		TopNMax:     DefaultTopNMax,
		PreviewRows: DefaultPreviewRows,
		Reducer:     aggregate.Mean,
	}
}

// Card is one metric tile: latest value and change since the first value.
type Card struct {
	Metric    string           `json:"metric"`
	Label     string           `json:"label"`
	Value     string           `json:"value"`
	Delta     string           `json:"delta"`
	Change    aggregate.Change `json:"change"`
	Available bool             `json:"available"`
}

// Point is one x/y pair of a chart.
type Point struct {
	Label string          `json:"label"`
	Value aggregate.Value `json:"value"`
}

// ChartKind names a chart type.
type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
)

// Series is the trend chart: a line over time or, without a time column,
// bars per identifier.
type Series struct {
	Kind   ChartKind `json:"kind"`
	Title  string    `json:"title"`
	Metric string    `json:"metric"`
	XAxis  string    `json:"x_axis"`
	Points []Point   `json:"points"`
}

// Comparison is the top-N identifiers bar chart.
type Comparison struct {
	Title  string  `json:"title"`
	Metric string  `json:"metric"`
	XAxis  string  `json:"x_axis"`
	N      int     `json:"n"`
	Bars   []Point `json:"bars"`
}

// BoxPlot is the distribution chart.
type BoxPlot struct {
	Title   string          `json:"title"`
	Metric  string          `json:"metric"`
	GroupBy string          `json:"group_by"`
	Boxes   []aggregate.Box `json:"boxes"`
}

// Table is the preview of the filtered rows.
type Table struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Total     int        `json:"total"`
	Truncated bool       `json:"truncated"`
}

// Bounds is the allowed range of the top-N control.
type Bounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// RenderModel is everything the dashboard shows for one selection.
type RenderModel struct {
	Source      string            `json:"source"`
	Roles       classify.Roles    `json:"roles"`
	Selection   filter.Selection  `json:"selection"`
	RowCount    int               `json:"row_count"`
	Empty       bool              `json:"empty"`
	Cards       []Card            `json:"cards"`
	Trend       *Series           `json:"trend,omitempty"`
	Comparison  *Comparison       `json:"comparison,omitempty"`
	Box         *BoxPlot          `json:"box,omitempty"`
	Correlation *aggregate.Matrix `json:"correlation,omitempty"`
	TopN        Bounds            `json:"top_n"`
	Preview     Table             `json:"preview"`
	Notices     []string          `json:"notices,omitempty"`
}
