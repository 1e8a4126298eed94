package presenter

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

type palette struct {
	up, down, bold, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		up:   color.New(color.FgGreen),
		down: color.New(color.FgRed),
		bold: color.New(color.Bold),
		dim:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.up, p.down, p.bold, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) delta(c Card) string {
	switch {
	case !c.Available:
		return p.dim.Sprint(c.Delta)
	case c.Change.Delta.Float() > 0:
		return p.up.Sprint(c.Delta)
	case c.Change.Delta.Float() < 0:
		return p.down.Sprint(c.Delta)
	default:
		return c.Delta
	}
}

// WriteText prints the model for a terminal: cards, notices, the charts as
// tables and the row preview.
func WriteText(w io.Writer, m RenderModel, useColor bool) error {
	p := newPalette(useColor)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", p.bold.Sprint(pageTitle(m)))
	fmt.Fprintf(&b, "%d rows\n\n", m.RowCount)

	if len(m.Cards) > 0 {
		cards := newTable("Metrics")
		cards.AppendHeader(table.Row{"Metric", "Latest", "Change"})
		for _, c := range m.Cards {
			cards.AppendRow(table.Row{c.Label, c.Value, p.delta(c)})
		}
		b.WriteString(cards.Render())
		b.WriteString("\n\n")
	}

	for _, n := range m.Notices {
		fmt.Fprintf(&b, "%s %s\n", p.dim.Sprint("note:"), n)
	}
	if len(m.Notices) > 0 {
		b.WriteString("\n")
	}

	if m.Trend != nil {
		writePoints(&b, m.Trend.Title, Label(m.Trend.XAxis), Label(m.Trend.Metric), m.Trend.Points)
	}
	if m.Comparison != nil {
		writePoints(&b, m.Comparison.Title, Label(m.Comparison.XAxis), Label(m.Comparison.Metric), m.Comparison.Bars)
	}
	if m.Box != nil {
		t := newTable(m.Box.Title)
		t.AppendHeader(table.Row{"Group", "Min", "Q1", "Median", "Q3", "Max", "Count"})
		for _, box := range m.Box.Boxes {
			t.AppendRow(table.Row{
				box.Group,
				cell(box.Min.Float()), cell(box.Q1.Float()), cell(box.Median.Float()),
				cell(box.Q3.Float()), cell(box.Max.Float()), box.Count,
			})
		}
		b.WriteString(t.Render())
		b.WriteString("\n\n")
	}
	if m.Correlation != nil && !m.Empty {
		t := newTable("Correlation")
		header := table.Row{""}
		for _, c := range m.Correlation.Columns {
			header = append(header, Label(c))
		}
		t.AppendHeader(header)
		for i, c := range m.Correlation.Columns {
			row := table.Row{Label(c)}
			for j := range m.Correlation.Columns {
				row = append(row, cell(m.Correlation.At(i, j)))
			}
			t.AppendRow(row)
		}
		b.WriteString(t.Render())
		b.WriteString("\n\n")
	}

	if len(m.Preview.Columns) > 0 && len(m.Preview.Rows) > 0 {
		t := newTable("Preview")
		header := make(table.Row, len(m.Preview.Columns))
		for i, c := range m.Preview.Columns {
			header[i] = c
		}
		t.AppendHeader(header)
		for _, r := range m.Preview.Rows {
			row := make(table.Row, len(r))
			for i, v := range r {
				row[i] = v
			}
			t.AppendRow(row)
		}
		if m.Preview.Truncated {
			t.AppendFooter(table.Row{fmt.Sprintf("showing %d of %d rows", len(m.Preview.Rows), m.Preview.Total)})
		}
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

func writePoints(b *strings.Builder, title, x, y string, points []Point) {
	t := newTable(title)
	t.AppendHeader(table.Row{x, y})
	for _, pt := range points {
		t.AppendRow(table.Row{pt.Label, cell(pt.Value.Float())})
	}
	b.WriteString(t.Render())
	b.WriteString("\n\n")
}

func cell(v float64) string {
	s := FormatValue(v)
	if s == NotAvailable {
		return "-"
	}
	return s
}
