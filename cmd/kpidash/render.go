package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"kpidash/internal/app"
	"kpidash/internal/presenter"
)

const (
	formatText = "text"
	formatHTML = "html"
	formatJSON = "json"
	formatPNG  = "png"
)

func newRenderCmd() *cobra.Command {
	var (
		sel    selectionFlags
		format string
		chart  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the dashboard for a selection",
		Long: `Render the dashboard once. Text prints cards, trend, comparison and
preview tables; html writes the interactive chart page; json prints the
render model; png draws the trend or comparison chart.`,
		Example: `  kpidash render --id E1 --id E2 --from 2024-01-01
  kpidash render -f html -o dashboard.html
  kpidash render -f png --chart comparison -n 5 -o top.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			req, err := sel.request()
			if err != nil {
				return err
			}

			dash, err := app.NewDashboard(e.cfg, nil, e.logger)
			if err != nil {
				return err
			}
			model, err := dash.Service.Render(cmd.Context(), req)
			if err != nil {
				return err
			}

			return withOutput(cmd, output, func(w io.Writer) error {
				switch format {
				case formatText:
					return presenter.WriteText(w, *model, e.color && output == "")
				case formatHTML:
					return presenter.WriteHTML(w, *model)
				case formatJSON:
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(model)
				case formatPNG:
					return presenter.WritePNG(w, *model, chart)
				default:
					return fmt.Errorf("unknown format %q: want text, html, json or png", format)
				}
			})
		},
	}

	sel.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, html, json, png")
	cmd.Flags().StringVar(&chart, "chart", presenter.PNGTrend, "chart drawn by png: trend or comparison")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// withOutput runs write against stdout or the named file.
func withOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create output file %q: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", success("wrote"), path)
	return nil
}
