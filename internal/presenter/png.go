package presenter

import (
	"errors"
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// PNG chart kinds.
const (
	PNGTrend      = "trend"
	PNGComparison = "comparison"
)

var (
	ErrUnknownChart = errors.New("unknown chart kind")
	ErrNoChart      = errors.New("chart not available for this selection")
)

const (
	pngWidth  = 1200
	pngHeight = 520
)

// WritePNG renders the trend or comparison chart of m as a PNG image.
func WritePNG(w io.Writer, m RenderModel, kind string) error {
	switch kind {
	case PNGTrend:
		if m.Trend == nil {
			return fmt.Errorf("%s: %w", kind, ErrNoChart)
		}
		if m.Trend.Kind == ChartBar {
			return renderBars(w, m.Trend.Title, m.Trend.Metric, m.Trend.Points)
		}
		return renderLine(w, m.Trend)
	case PNGComparison:
		if m.Comparison == nil {
			return fmt.Errorf("%s: %w", kind, ErrNoChart)
		}
		return renderBars(w, m.Comparison.Title, m.Comparison.Metric, m.Comparison.Bars)
	default:
		return fmt.Errorf("%q: %w", kind, ErrUnknownChart)
	}
}

func renderLine(w io.Writer, s *Series) error {
	var xs, ys []float64
	var ticks []chart.Tick
	for i, p := range s.Points {
		if !p.Value.Valid() {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, p.Value.Float())
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: p.Label})
	}
	if len(xs) == 0 {
		return fmt.Errorf("%s: %w", PNGTrend, ErrNoChart)
	}
	// go-chart needs a non-zero x range
	if len(xs) == 1 {
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}

	graph := chart.Chart{
		Title:  s.Title,
		Width:  pngWidth,
		Height: pngHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 40},
		},
		XAxis: chart.XAxis{
			Name:  Label(s.XAxis),
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:  Label(s.Metric),
			Range: valueRange(ys),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    Label(s.Metric),
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorBlue,
					StrokeWidth: 2,
					DotWidth:    4,
					DotColor:    drawing.ColorBlue,
				},
			},
		},
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render line chart: %w", err)
	}
	return nil
}

func renderBars(w io.Writer, title, metric string, points []Point) error {
	var bars []chart.Value
	var ys []float64
	for _, p := range points {
		if !p.Value.Valid() {
			continue
		}
		bars = append(bars, chart.Value{Label: p.Label, Value: p.Value.Float()})
		ys = append(ys, p.Value.Float())
	}
	if len(bars) == 0 {
		return fmt.Errorf("%s: %w", title, ErrNoChart)
	}

	graph := chart.BarChart{
		Title:    title,
		Width:    pngWidth,
		Height:   pngHeight,
		BarWidth: 50,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Bottom: 40},
		},
		YAxis: chart.YAxis{
			Name:  Label(metric),
			Range: valueRange(append(ys, 0)),
		},
		Bars: bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render bar chart: %w", err)
	}
	return nil
}

func valueRange(ys []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	if hi-lo == 0 {
		lo, hi = lo-1, hi+1
	}
	pad := (hi - lo) * 0.05
	if lo < 0 {
		lo -= pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + pad}
}
