package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"kpidash/internal/app"
	"kpidash/internal/files"
)

func newSourcesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources [dir]",
		Short: "List the data files kpidash can load",
		Long: `List the workbooks, CSV files and SQLite databases in the data directory,
newest first. Pass a directory to list it instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)

			var (
				found []files.Source
				err   error
			)
			if len(args) == 1 {
				found, err = files.NewDiscovery("", e.logger).FindSources(args[0])
			} else {
				dash, derr := app.NewDashboard(e.cfg, nil, e.logger)
				if derr != nil {
					return derr
				}
				found, err = dash.Service.Sources(cmd.Context())
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(found)
			}
			return writeSources(cmd.OutOrStdout(), found)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	return cmd
}

func writeSources(w io.Writer, found []files.Source) error {
	if len(found) == 0 {
		_, err := fmt.Fprintln(w, colorYellow.Sprint("no data sources found"))
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Format", "Size", "Modified"})
	for _, s := range found {
		t.AppendRow(table.Row{
			s.Name,
			strings.ToUpper(string(s.Format)),
			byteSize(s.Size),
			s.ModTime.Format("2006-01-02 15:04"),
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d files", len(found))})

	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}

func byteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
