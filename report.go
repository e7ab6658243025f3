package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sales-funnel-analytics/services"
	"sales-funnel-analytics/storage"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run every analysis and print or export the report",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, _ []string) error {
	e, err := loadEngine(cmd.Context())
	if err != nil {
		return err
	}

	svc := services.NewReportService(logger)
	r := svc.Generate(e, services.ReportOptions{
		Now:         time.Now(),
		StuckDays:   cfg.StuckDays,
		QuarterYear: quarterYear,
	})

	out, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if cfg.ReportFormat == "text" {
		svc.Print(out, r)
	} else if err := storage.WriteReport(out, cfg.ReportFormat, r); err != nil {
		return err
	}

	if cfg.StalledCSV != "" {
		if err := storage.WriteStalled(cfg.StalledCSV, r.Stalled); err != nil {
			return fmt.Errorf("stalled worklist: %w", err)
		}
		logger.Info("[report] Stalled worklist saved to %s", cfg.StalledCSV)
	}
	return closeOut()
}
