package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpidash/internal/app"
	"kpidash/internal/exporter"
)

func newExportCmd() *cobra.Command {
	var (
		sel    selectionFlags
		output string
		bom    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered rows to CSV",
		Long: `Export the rows matching the selection as CSV. Relative paths are written
to the export directory; "-" writes to stdout.`,
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

			if output == "-" {
				return dash.Service.Export(cmd.Context(), req, cmd.OutOrStdout())
			}

			view, err := dash.Service.View(cmd.Context(), req)
			if err != nil {
				return err
			}
			if output == "" {
				output = dash.Service.ExportFileName()
			}

			path, err := exporter.NewCSVWriter(dash.Paths, e.logger).
				WriteFile(output, view, exporter.WriteOptions{BOMPrefix: bom})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d rows to %s\n", success("exported"), view.Len(), path)
			return nil
		},
	}

	sel.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: the configured export file name)")
	cmd.Flags().BoolVar(&bom, "bom", false, "prefix a UTF-8 byte order mark for Excel")
	return cmd
}
