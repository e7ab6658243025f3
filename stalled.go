package main

import (
	"time"

	"github.com/spf13/cobra"

	"sales-funnel-analytics/services"
	"sales-funnel-analytics/storage"
)

var stalledCSV string

var stalledCmd = &cobra.Command{
	Use:   "stalled",
	Short: "List open deals without recent activity",
	Args:  cobra.NoArgs,
	RunE:  runStalled,
}

func init() {
	stalledCmd.Flags().StringVar(&stalledCSV, "csv", "", "write the worklist to this CSV file (default from STALLED_CSV_PATH)")
}

func runStalled(cmd *cobra.Command, _ []string) error {
	e, err := loadEngine(cmd.Context())
	if err != nil {
		return err
	}
	deals := e.Stalled(time.Now(), cfg.StuckDays)

	path := stalledCSV
	if path == "" {
		path = cfg.StalledCSV
	}
	if path != "" {
		if err := storage.WriteStalled(path, deals); err != nil {
			return err
		}
		logger.Info("[stalled] %d deals written to %s", len(deals), path)
		return nil
	}

	out, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()
	services.NewReportService(logger).PrintStalled(out, deals, cfg.StuckDays)
	return closeOut()
}
