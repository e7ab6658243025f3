package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sales-funnel-analytics/services"
)

var monthCmd = &cobra.Command{
	Use:   "month YYYY-MM",
	Short: "Show conversion for one calendar month",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonth,
}

var roiCost float64

var roiCmd = &cobra.Command{
	Use:   "roi",
	Short: "Compare won revenue against a marketing or sales cost",
	Args:  cobra.NoArgs,
	RunE:  runROI,
}

func init() {
	roiCmd.Flags().Float64Var(&roiCost, "cost", 0, "total cost to weigh revenue against")
	rootCmd.AddCommand(monthCmd)
	rootCmd.AddCommand(roiCmd)
}

func runMonth(cmd *cobra.Command, args []string) error {
	t, err := time.Parse("2006-01", args[0])
	if err != nil {
		return fmt.Errorf("month: expected YYYY-MM, got %q", args[0])
	}

	e, err := loadEngine(cmd.Context())
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	m, ok := e.Month(t.Year(), int(t.Month()))
	if !ok {
		fmt.Fprintf(out, "%s: no deals\n", t.Format("01.2006"))
	} else {
		fmt.Fprintf(out, "%s: %d deals, %d won, conversion %.2f%%, revenue %.2f, avg check %.2f\n",
			m.Label, m.Total, m.Won, m.ConversionPct, m.Revenue, m.AvgAmount)
	}
	return closeOut()
}

func runROI(cmd *cobra.Command, _ []string) error {
	if roiCost <= 0 {
		return errors.New("roi: --cost must be positive")
	}

	e, err := loadEngine(cmd.Context())
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	revenue := e.Revenue()
	fmt.Fprintf(out, "Revenue %.2f on cost %.2f: ROI %.2f%%\n",
		revenue, roiCost, services.ROI(roiCost, revenue))
	return closeOut()
}
