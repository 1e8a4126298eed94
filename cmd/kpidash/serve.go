package main

import (
	"github.com/spf13/cobra"

	"kpidash/internal/app"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
		open bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard web server",
		Long: `Serve the HTTP API, the interactive chart page, the websocket channel
(/ws) and Prometheus metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			if cmd.Flags().Changed("host") {
				e.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}

			application, err := app.NewApplication(e.cfg, e.logger)
			if err != nil {
				return err
			}
			application.OpenBrowser = open
			return application.Run()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	cmd.Flags().BoolVar(&open, "open", false, "open the dashboard in the default browser")
	return cmd
}
