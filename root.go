package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sales-funnel-analytics/config"
	"sales-funnel-analytics/utils"
)

// Global flag values.
var (
	envFile     string
	format      string
	outputPath  string
	periodMode  string
	stuckDays   int
	quarterYear int
	noColor     bool
)

// Shared by every subcommand once PersistentPreRunE has run.
var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Sales funnel analytics over CRM deal snapshots",
	Long: `funnel loads a snapshot of CRM deals (Bitrix24, a CSV export or the
PostgreSQL mirror), normalizes it and reports conversion by period, manager
performance, trends and alerts, deal-size segments and stalled deals.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "env file to load instead of ./.env")
	pf.StringVarP(&format, "format", "f", "", "report format: text, json or yaml (default from REPORT_FORMAT)")
	pf.StringVarP(&outputPath, "output", "o", "", "write output to this file instead of stdout")
	pf.StringVar(&periodMode, "period", "", "fetch window: lookback, year, quarter, month, week or range (default from PERIOD_MODE)")
	pf.IntVar(&stuckDays, "stuck-days", 0, "days without activity before a deal counts as stalled (default from STUCK_DAYS)")
	pf.IntVar(&quarterYear, "year", 0, "year for the quarterly breakdown (default: latest year with deals)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(stalledCmd)
	rootCmd.AddCommand(syncCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if noColor {
		color.NoColor = true
	}

	if envFile != "" {
		var err error
		if cfg, err = config.LoadFile(envFile); err != nil {
			return err
		}
	} else {
		cfg = config.Load()
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.ReportFormat = format
	}
	if flags.Changed("stuck-days") {
		cfg.StuckDays = stuckDays
	}
	if flags.Changed("period") {
		cfg.PeriodMode = periodMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logs go to stderr so exported reports on stdout stay parseable.
	logger = utils.NewLoggerTo(os.Stderr, os.Stderr, utils.ParseLevel(cfg.LogLevel))
	logger.Debug("[config] source=%s period=%s lookback=%dd limit=%d concurrency=%d rate=%dms",
		cfg.Source, cfg.PeriodMode, cfg.LookbackDays, cfg.DealLimit, cfg.MaxConcurrency, cfg.RateLimitMs)
	return nil
}

// openOutput returns the --output file, or the command's output stream
// (stdout unless redirected with SetOut).
func openOutput(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outputPath == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("output: %w", err)
	}
	return f, f.Close, nil
}
