package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kpidash/internal/config"
	"kpidash/internal/infrastructure"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	source     string
	sheets     []string
	missing    string
	logLevel   string
	verbose    bool
	quiet      bool
	noColor    bool
}

// env is what PersistentPreRunE prepares for the subcommands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	color  bool
}

type envKey struct{}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "kpidash",
		Short: "Explore employee KPI workbooks",
		Long: `kpidash loads an employee KPI workbook (xlsx, xls, csv, SQLite or a Google
Sheet), classifies its columns and renders summary cards, a time trend, a
top-N comparison and a preview of the filtered rows. Run "kpidash serve" for
the interactive dashboard or the one-shot commands for reports and exports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			ctx := infrastructure.EnsureTraceID(cmd.Context())
			cmd.SetContext(context.WithValue(ctx, envKey{}, e))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML config file (default: kpidash.yaml or config.yaml if present)")
	flags.StringVarP(&opts.source, "source", "s", "", "data source path or gsheet://<spreadsheet-id>")
	flags.StringSliceVar(&opts.sheets, "sheet", nil, "sheet to load, repeatable (default: first sheet)")
	flags.StringVar(&opts.missing, "missing-sheets", "", "missing sheet policy: warn or fail")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newServeCmd(),
		newRenderCmd(),
		newExportCmd(),
		newInspectCmd(),
		newSourcesCmd(),
		newSnapshotCmd(),
		newVersionCmd(),
	)
	return cmd
}

func (o *globalOptions) setup(cmd *cobra.Command) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.source != "" {
		cfg.Data.Source = o.source
	}
	if len(o.sheets) > 0 {
		cfg.Data.Sheets = o.sheets
	}
	if o.missing != "" {
		switch o.missing {
		case "warn", "fail":
			cfg.Data.MissingSheets = o.missing
		default:
			return nil, fmt.Errorf("invalid --missing-sheets %q: want warn or fail", o.missing)
		}
	}

	switch {
	case o.quiet:
		cfg.Logging.Level = "error"
	case o.verbose:
		cfg.Logging.Level = "debug"
	case o.logLevel != "":
		cfg.Logging.Level = o.logLevel
	}

	if o.noColor {
		color.NoColor = true
	}

	return &env{
		cfg:    cfg,
		logger: infrastructure.WithComponent(infrastructure.NewLogger(cfg.Logging, cmd.ErrOrStderr()), "cli"),
		color:  !color.NoColor,
	}, nil
}

// envFrom returns the environment prepared by the root command.
func envFrom(cmd *cobra.Command) *env {
	e, _ := cmd.Context().Value(envKey{}).(*env)
	return e
}
