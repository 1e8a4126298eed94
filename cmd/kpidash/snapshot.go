package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kpidash/internal/app"
	"kpidash/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	var (
		sel    selectionFlags
		url    string
		output string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the chart page as an image with headless Chrome",
		Long: `Render the interactive chart page for the selection and capture it with a
headless Chrome. With --url a running dashboard is captured instead. Needs
Chrome or Chromium on PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			capturer := snapshot.New(e.cfg.Snapshot, e.logger)
			if output == "" {
				output = "dashboard" + capturer.Extension()
			}

			var (
				img []byte
				err error
			)
			if url != "" {
				img, err = capturer.Capture(cmd.Context(), url)
			} else {
				req, reqErr := sel.request()
				if reqErr != nil {
					return reqErr
				}
				dash, dashErr := app.NewDashboard(e.cfg, nil, e.logger)
				if dashErr != nil {
					return dashErr
				}
				model, renderErr := dash.Service.Render(cmd.Context(), req)
				if renderErr != nil {
					return renderErr
				}
				img, err = capturer.CaptureModel(cmd.Context(), *model)
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, img, 0644); err != nil {
				return fmt.Errorf("cannot write snapshot %q: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes)\n", success("captured"), output, len(img))
			return nil
		},
	}

	sel.bind(cmd)
	cmd.Flags().StringVar(&url, "url", "", "capture this page instead of rendering locally")
	cmd.Flags().StringVarP(&output, "output", "o", "", "image file (default: dashboard.png, .jpg below quality 100)")
	return cmd
}
