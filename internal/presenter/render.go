package presenter

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kpidash/internal/aggregate"
	"kpidash/internal/classify"
	"kpidash/internal/dataset"
	"kpidash/internal/filter"
)

var numberPrinter = message.NewPrinter(language.English)

func (o Options) withDefaults() Options {
	if len(o.CardMetrics) == 0 {
		o.CardMetrics = DefaultCardMetrics
	}
	if o.TopNMin <= 0 {
		o.TopNMin = DefaultTopNMin
	}
	if o.TopNMax < o.TopNMin {
		o.TopNMax = max(DefaultTopNMax, o.TopNMin)
	}
	if o.TopN <= 0 {
		o.TopN = o.TopNMax
	}
	if o.PreviewRows <= 0 {
		o.PreviewRows = DefaultPreviewRows
	}
	if o.Reducer == "" {
		o.Reducer = aggregate.Mean
	}
	return o
}

// Render filters ds with sel and builds the dashboard for the remaining
// rows. The only error is an invalid selection.
func Render(ds *dataset.Dataset, roles classify.Roles, sel filter.Selection, opts Options) (RenderModel, error) {
	opts = opts.withDefaults()

	view, err := filter.Apply(ds, roles, sel)
	if err != nil {
		return RenderModel{}, err
	}

	m := RenderModel{
		Source:    ds.Name(),
		Roles:     roles,
		Selection: sel,
		RowCount:  view.Len(),
		Preview:   preview(view, opts.PreviewRows),
	}
	m.Notices = append(m.Notices, roles.Notices...)
	m.Notices = append(m.Notices, filter.Skipped(ds, roles, sel)...)
	m.TopN = topNBounds(view, roles, opts)

	metrics := CardMetrics(roles, opts.CardMetrics)
	m.Cards = cards(view, metrics)

	if view.Len() == 0 {
		m.Empty = true
		m.Notices = append(m.Notices, NoticeNoData)
		return m, nil
	}

	chartMetric := pickMetric(roles, opts.TrendMetric, metrics)
	if chartMetric == "" {
		m.Notices = append(m.Notices, NoticeNoMetrics)
	} else {
		if m.Trend, err = trend(view, roles, sel, chartMetric, opts.Reducer); err != nil {
			return RenderModel{}, err
		}
		compMetric := pickMetric(roles, opts.ComparisonMetric, metrics)
		if m.Comparison, err = comparison(view, roles, sel, compMetric, clamp(opts.TopN, m.TopN), opts.Reducer); err != nil {
			return RenderModel{}, err
		}
		if m.Box, err = boxPlot(view, roles, chartMetric); err != nil {
			return RenderModel{}, err
		}
	}

	if len(roles.Metrics) < 2 {
		m.Notices = append(m.Notices, NoticeNoCorrelation)
	} else {
		corr, err := aggregate.Correlation(view, roles.Metrics)
		if err != nil {
			return RenderModel{}, err
		}
		m.Correlation = &corr
	}

	return m, nil
}

// CardMetrics picks the card columns: the configured ones the dataset has,
// otherwise the first metrics. At most MaxCards are returned.
func CardMetrics(roles classify.Roles, configured []string) []string {
	var out []string
	for _, c := range configured {
		if roles.IsMetric(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = roles.Metrics
	}
	if len(out) > MaxCards {
		out = out[:MaxCards]
	}
	return out
}

func pickMetric(roles classify.Roles, want string, fallback []string) string {
	if want != "" && roles.IsMetric(want) {
		return want
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

func cards(view *dataset.Dataset, metrics []string) []Card {
	out := make([]Card, 0, len(metrics))
	for _, metric := range metrics {
		card := Card{Metric: metric, Label: Label(metric), Value: NotAvailable, Delta: NotAvailable}
		if change, err := aggregate.Delta(view, metric); err == nil {
			card.Change = change
			if change.OK {
				card.Available = true
				card.Value = FormatValue(change.Latest.Float())
				card.Delta = FormatDelta(change.Delta.Float())
			}
		}
		out = append(out, card)
	}
	return out
}

// ReducerLabel names a reducer in chart titles.
func ReducerLabel(r aggregate.Reducer) string {
	switch r {
	case aggregate.Sum:
		return "Total"
	case aggregate.Count:
		return "Count of"
	case aggregate.Min:
		return "Minimum"
	case aggregate.Max:
		return "Maximum"
	default:
		return "Average"
	}
}

func trend(view *dataset.Dataset, roles classify.Roles, sel filter.Selection, metric string, by aggregate.Reducer) (*Series, error) {
	if roles.HasTime() && view.HasColumn(roles.Time) {
		if single(sel, view, roles) {
			return rawTrend(view, roles, metric)
		}
		rows, err := aggregate.GroupBy(view, []string{roles.Time}, []string{metric}, by)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return dataset.ParseBucket(rows[i].Keys[0]).Compare(dataset.ParseBucket(rows[j].Keys[0])) < 0
		})
		return &Series{
			Kind:   ChartLine,
			Title:  fmt.Sprintf("%s %s over time", ReducerLabel(by), Label(metric)),
			Metric: metric,
			XAxis:  roles.Time,
			Points: points(rows, metric),
		}, nil
	}

	if !sel.AllIdentifiers() || !view.HasColumn(roles.Identifier) {
		return nil, nil
	}
	rows, err := aggregate.GroupBy(view, []string{roles.Identifier}, []string{metric}, by)
	if err != nil {
		return nil, err
	}
	return &Series{
		Kind:   ChartBar,
		Title:  fmt.Sprintf("%s %s by %s", ReducerLabel(by), Label(metric), Label(roles.Identifier)),
		Metric: metric,
		XAxis:  roles.Identifier,
		Points: points(aggregate.SortByValue(rows, metric), metric),
	}, nil
}

// single reports whether sel narrows the view to exactly one identifier.
func single(sel filter.Selection, view *dataset.Dataset, roles classify.Roles) bool {
	return !sel.AllIdentifiers() && len(sel.Identifiers) == 1 && view.HasColumn(roles.Identifier)
}

// rawTrend plots every row of one identifier, ordered by bucket; rows in
// the same bucket keep their file order.
func rawTrend(view *dataset.Dataset, roles classify.Roles, metric string) (*Series, error) {
	buckets, err := view.Buckets(roles.Time)
	if err != nil {
		return nil, err
	}
	values, err := view.Floats(metric)
	if err != nil {
		return nil, err
	}
	keys, err := view.Strings(roles.Time)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(buckets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return buckets[order[i]].Compare(buckets[order[j]]) < 0
	})

	pts := make([]Point, 0, len(order))
	for _, r := range order {
		pts = append(pts, Point{Label: keys[r], Value: aggregate.Value(values[r])})
	}
	return &Series{
		Kind:   ChartLine,
		Title:  fmt.Sprintf("%s over time", Label(metric)),
		Metric: metric,
		XAxis:  roles.Time,
		Points: pts,
	}, nil
}

func comparison(view *dataset.Dataset, roles classify.Roles, sel filter.Selection, metric string, n int, by aggregate.Reducer) (*Comparison, error) {
	if metric == "" || !sel.AllIdentifiers() || !view.HasColumn(roles.Identifier) {
		return nil, nil
	}
	rows, err := aggregate.GroupBy(view, []string{roles.Identifier}, []string{metric}, by)
	if err != nil {
		return nil, err
	}
	return &Comparison{
		Title:  fmt.Sprintf("Top %d by %s %s", n, ReducerLabel(by), Label(metric)),
		Metric: metric,
		XAxis:  roles.Identifier,
		N:      n,
		Bars:   points(aggregate.TopN(rows, metric, n), metric),
	}, nil
}

func boxPlot(view *dataset.Dataset, roles classify.Roles, metric string) (*BoxPlot, error) {
	group := roles.Identifier
	if roles.HasTime() && view.HasColumn(roles.Time) {
		group = roles.Time
	}
	if !view.HasColumn(group) {
		group = ""
	}

	boxes, err := aggregate.BoxStats(view, group, metric)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, nil
	}
	if group == roles.Time {
		sort.SliceStable(boxes, func(i, j int) bool {
			return dataset.ParseBucket(boxes[i].Group).Compare(dataset.ParseBucket(boxes[j].Group)) < 0
		})
	}

	by := "All"
	if group != "" {
		by = Label(group)
	}
	return &BoxPlot{
		Title:   fmt.Sprintf("%s distribution by %s", Label(metric), by),
		Metric:  metric,
		GroupBy: group,
		Boxes:   boxes,
	}, nil
}

func points(rows []aggregate.Row, metric string) []Point {
	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		out = append(out, Point{Label: r.Key(), Value: aggregate.Value(r.Value(metric))})
	}
	return out
}

func preview(view *dataset.Dataset, limit int) Table {
	n := min(view.Len(), limit)
	t := Table{
		Columns:   view.Columns(),
		Rows:      make([][]string, n),
		Total:     view.Len(),
		Truncated: view.Len() > limit,
	}
	for r := 0; r < n; r++ {
		row := make([]string, len(t.Columns))
		for c, name := range t.Columns {
			row[c] = view.Text(r, name)
		}
		t.Rows[r] = row
	}
	return t
}

// topNBounds follows the dashboard slider: min stays fixed, max is the
// number of identifiers clamped to [min, configured max].
func topNBounds(view *dataset.Dataset, roles classify.Roles, opts Options) Bounds {
	distinct := 0
	if view.HasColumn(roles.Identifier) {
		ids, _ := view.Distinct(roles.Identifier)
		distinct = len(ids)
	}
	return Bounds{Min: opts.TopNMin, Max: min(opts.TopNMax, max(opts.TopNMin, distinct))}
}

func clamp(n int, b Bounds) int {
	return min(max(n, b.Min), b.Max)
}

// Label turns a column name into a title: Cost_Per_Hour -> Cost Per Hour.
func Label(column string) string {
	return strings.ReplaceAll(column, "_", " ")
}

// FormatValue renders a card value with thousands separators and two
// decimals.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	return numberPrinter.Sprintf("%.2f", v)
}

// FormatDelta renders a signed change with two decimals.
func FormatDelta(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	return fmt.Sprintf("%+.2f", v)
}
