package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpidash/internal/app"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			build := app.BuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "kpidash %s (build %s, %s)\n", build.Version, build.BuildID, build.BuildTime)
		},
	}
}
