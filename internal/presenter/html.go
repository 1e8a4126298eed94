package presenter

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"kpidash/internal/aggregate"
)

const (
	chartWidth  = "1100px"
	chartHeight = "420px"
)

// missing is how echarts draws a gap.
const missing = "-"

// WriteHTML writes one page: the cards and notices, every chart of the
// model, then the preview table.
func WriteHTML(w io.Writer, m RenderModel) error {
	page := components.NewPage()
	page.PageTitle = pageTitle(m)

	if m.Trend != nil {
		page.AddCharts(trendChart(m.Trend))
	}
	if m.Comparison != nil {
		page.AddCharts(comparisonChart(m.Comparison))
	}
	if m.Box != nil {
		page.AddCharts(boxChart(m.Box))
	}
	if m.Correlation != nil && !m.Empty {
		page.AddCharts(heatmapChart(m.Correlation))
	}

	var body bytes.Buffer
	if err := page.Render(&body); err != nil {
		return fmt.Errorf("render chart page: %w", err)
	}

	var top, bottom bytes.Buffer
	if err := summaryTemplate.Execute(&top, summaryView(m)); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	if err := previewTemplate.Execute(&bottom, m.Preview); err != nil {
		return fmt.Errorf("render preview: %w", err)
	}

	_, err := io.WriteString(w, splice(body.String(), top.String(), bottom.String()))
	return err
}

// splice puts top right after <body> and bottom right before </body>.
func splice(page, top, bottom string) string {
	if i := strings.Index(page, "<body>"); i >= 0 {
		i += len("<body>")
		page = page[:i] + "\n" + top + page[i:]
	} else {
		page = top + page
	}
	if i := strings.LastIndex(page, "</body>"); i >= 0 {
		return page[:i] + bottom + "\n" + page[i:]
	}
	return page + bottom
}

func pageTitle(m RenderModel) string {
	if m.Source == "" {
		return "KPI Dashboard"
	}
	return "KPI Dashboard - " + m.Source
}

func initOpts() charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight})
}

type summary struct {
	Title    string
	RowCount int
	Cards    []Card
	Notices  []string
}

func summaryView(m RenderModel) summary {
	return summary{
		Title:    pageTitle(m),
		RowCount: m.RowCount,
		Cards:    m.Cards,
		Notices:  m.Notices,
	}
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<style>
.kpi { font-family: sans-serif; max-width: 1100px; margin: 16px auto; }
.kpi .cards { display: flex; gap: 12px; flex-wrap: wrap; }
.kpi .card { border: 1px solid #ddd; border-radius: 6px; padding: 12px 16px; min-width: 200px; }
.kpi .card .value { font-size: 1.6em; font-weight: bold; }
.kpi .card .delta { color: #666; }
.kpi .notice { background: #fff8e1; border-left: 4px solid #f0b400; padding: 8px 12px; margin: 8px 0; }
.kpi table { border-collapse: collapse; font-size: 0.9em; width: 100%; }
.kpi th, .kpi td { border: 1px solid #ddd; padding: 4px 8px; text-align: left; }
.kpi th { background: #f4f4f4; }
</style>
<section class="kpi" id="summary">
<h1>{{ .Title }}</h1>
<p class="rows">{{ .RowCount }} rows</p>
{{- if .Cards }}
<div class="cards">
{{- range .Cards }}
<div class="card"><div class="label">{{ .Label }}</div><div class="value">{{ .Value }}</div><div class="delta">{{ .Delta }}</div></div>
{{- end }}
</div>
{{- end }}
{{- range .Notices }}
<div class="notice">{{ . }}</div>
{{- end }}
</section>`))

var previewTemplate = template.Must(template.New("preview").Parse(`{{ if .Rows }}<section class="kpi" id="preview">
<h2>Data preview</h2>
<table>
<thead><tr>{{ range .Columns }}<th>{{ . }}</th>{{ end }}</tr></thead>
<tbody>
{{- range .Rows }}
<tr>{{ range . }}<td>{{ . }}</td>{{ end }}</tr>
{{- end }}
</tbody>
</table>
{{- if .Truncated }}
<p class="more">showing {{ len .Rows }} of {{ .Total }} rows</p>
{{- end }}
</section>{{ end }}`))

func trendChart(s *Series) components.Charter {
	labels, values := seriesData(s.Points)
	title := charts.WithTitleOpts(opts.Title{Title: s.Title})
	xName := charts.WithXAxisOpts(opts.XAxis{Name: Label(s.XAxis)})

	if s.Kind == ChartBar {
		bar := charts.NewBar()
		bar.SetGlobalOptions(initOpts(), title, xName)
		bar.SetXAxis(labels).AddSeries(Label(s.Metric), barData(values))
		return bar
	}

	line := charts.NewLine()
	line.SetGlobalOptions(initOpts(), title, xName)
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(labels).AddSeries(Label(s.Metric), data)
	return line
}

func comparisonChart(c *Comparison) *charts.Bar {
	labels, values := seriesData(c.Bars)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(),
		charts.WithTitleOpts(opts.Title{Title: c.Title}),
		charts.WithXAxisOpts(opts.XAxis{Name: Label(c.XAxis)}),
	)
	bar.SetXAxis(labels).AddSeries(Label(c.Metric), barData(values))
	return bar
}

func boxChart(b *BoxPlot) *charts.BoxPlot {
	labels := make([]string, len(b.Boxes))
	data := make([]opts.BoxPlotData, len(b.Boxes))
	for i, box := range b.Boxes {
		labels[i] = box.Group
		data[i] = opts.BoxPlotData{Name: box.Group, Value: box.Values()}
	}

	bp := charts.NewBoxPlot()
	bp.SetGlobalOptions(initOpts(), charts.WithTitleOpts(opts.Title{Title: b.Title}))
	bp.SetXAxis(labels).AddSeries(Label(b.Metric), data)
	return bp
}

func heatmapChart(m *aggregate.Matrix) *charts.HeatMap {
	labels := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		labels[i] = Label(c)
	}

	var data []opts.HeatMapData
	for i := range m.Columns {
		for j := range m.Columns {
			var v interface{} = missing
			if cell := m.Values[i][j]; cell.Valid() {
				v = round2(cell.Float())
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, v}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Correlation"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: labels}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min: -1,
			Max: 1,
			InRange: &opts.VisualMapInRange{
				Color: []string{"#2166ac", "#f7f7f7", "#b2182b"},
			},
		}),
	)
	hm.AddSeries("correlation", data)
	return hm
}

// seriesData splits points into axis labels and plot values; NA becomes a
// gap.
func seriesData(points []Point) ([]string, []interface{}) {
	labels := make([]string, len(points))
	values := make([]interface{}, len(points))
	for i, p := range points {
		labels[i] = p.Label
		if p.Value.Valid() {
			values[i] = round2(p.Value.Float())
		} else {
			values[i] = missing
		}
	}
	return labels, values
}

func barData(values []interface{}) []opts.BarData {
	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}
	return data
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
