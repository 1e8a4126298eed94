package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"kpidash/internal/app"
	"kpidash/internal/classify"
	"kpidash/internal/services"
)

var (
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorBold   = color.New(color.Bold)
)

func success(s string) string { return colorGreen.Sprint(s) }

// roleColor highlights the roles the dashboard builds charts from.
func roleColor(r classify.Role) string {
	switch r {
	case classify.RoleIdentifier, classify.RoleTime:
		return colorBold.Sprint(string(r))
	case classify.RoleMetric:
		return colorGreen.Sprint(string(r))
	default:
		return string(r)
	}
}

func newInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the columns and roles of the data source",
		Long: `Load the data source and print its schema: every column with its type and
classified role, the identifiers, the time buckets and the date range.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			dash, err := app.NewDashboard(e.cfg, nil, e.logger)
			if err != nil {
				return err
			}
			schema, err := dash.Service.Schema(cmd.Context(), services.SourceRequest{})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(schema)
			}
			return writeSchema(cmd.OutOrStdout(), schema)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the schema as JSON")
	return cmd
}

func writeSchema(w io.Writer, s *services.Schema) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s (%s, %d rows)\n", colorBold.Sprint("Source:"), s.Source, s.Format, s.Rows)
	if len(s.Sheets) > 0 {
		fmt.Fprintf(&b, "%s %s\n", colorBold.Sprint("Sheets:"), strings.Join(s.Sheets, ", "))
	}
	if s.TimeRange != nil {
		fmt.Fprintf(&b, "%s %s .. %s\n", colorBold.Sprint("Dates: "), s.TimeRange.From, s.TimeRange.To)
	}
	b.WriteString("\n")

	t := table.NewWriter()
	t.SetTitle("Columns")
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Column", "Type", "Role"})
	for i, c := range s.Columns {
		t.AppendRow(table.Row{i + 1, c.Name, c.Type, roleColor(c.Role)})
	}
	b.WriteString(t.Render())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %d", colorBold.Sprint("Identifiers:"), len(s.Identifiers))
	if len(s.Identifiers) > 0 {
		fmt.Fprintf(&b, " (%s)", preview(s.Identifiers, 8))
	}
	b.WriteString("\n")
	if len(s.Buckets) > 0 {
		fmt.Fprintf(&b, "%s %s\n", colorBold.Sprint("Buckets:    "), preview(s.Buckets, 12))
	}
	fmt.Fprintf(&b, "%s %d..%d\n", colorBold.Sprint("Top N:      "), s.TopN.Min, s.TopN.Max)

	for _, n := range s.Roles.Notices {
		fmt.Fprintf(&b, "%s %s\n", colorYellow.Sprint("note:"), n)
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(&b, "%s %s\n", colorYellow.Sprint("warning:"), warn)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// preview joins the first limit values and counts the rest.
func preview(values []string, limit int) string {
	if len(values) <= limit {
		return strings.Join(values, ", ")
	}
	return fmt.Sprintf("%s, ... %d more", strings.Join(values[:limit], ", "), len(values)-limit)
}
