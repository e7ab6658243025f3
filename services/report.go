package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"sales-funnel-analytics/models"
	"sales-funnel-analytics/utils"
)

// ReportOptions are the explicit per-run inputs of a report.
type ReportOptions struct {
	Now         time.Time
	StuckDays   int
	QuarterYear int
}

type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate runs every analysis once over the engine's snapshot.
func (s *ReportService) Generate(e *Engine, opts ReportOptions) *models.Report {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	r := &models.Report{
		RunID:             uuid.NewString(),
		GeneratedAt:       opts.Now,
		TotalDeals:        e.Len(),
		CompanyConversion: e.CompanyConversion(),
		ByYear:            e.ByYear(),
		ByQuarter:         e.ByQuarter(opts.QuarterYear),
		ByMonth:           e.ByMonth(),
		Managers:          e.Managers(),
		Ranking:           e.Ranking(),
		Trend:             e.Trend(),
		Alerts:            e.Alerts(),
		Distribution:      e.Distribution(),
		Segments:          e.Segments(),
		StuckDays:         opts.StuckDays,
		Stalled:           e.Stalled(opts.Now, opts.StuckDays),
		Stages:            e.StageDistribution(),
		GrowingManagers:   e.GrowingManagers(),
		Scenarios:         e.FinancialScenarios(),
	}
	if best, ok := e.BestManager(); ok {
		r.BestManager = &best
	}

	s.logger.Info("[report] Run %s: %d deals, %d managers, %d alerts, %d stalled",
		r.RunID, r.TotalDeals, len(r.Managers), len(r.Alerts), len(r.Stalled))
	return r
}

var (
	titleColor  = color.New(color.FgMagenta, color.Bold)
	headerColor = color.New(color.FgYellow, color.Bold)
	boldColor   = color.New(color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
)

// Print renders a report as a coloured terminal summary.
func (s *ReportService) Print(w io.Writer, r *models.Report) {
	sep := strings.Repeat("═", 72)
	thin := strings.Repeat("─", 72)

	fmt.Fprintf(w, "\n%s\n", titleColor.Sprint(sep))
	fmt.Fprintf(w, "%s\n", titleColor.Sprint("  SALES FUNNEL ANALYTICS"))
	fmt.Fprintf(w, "%s\n\n", titleColor.Sprint(sep))

	section := func(title string) {
		fmt.Fprintf(w, "%s\n", headerColor.Sprint("  "+title))
		fmt.Fprintf(w, "  %s\n", thin)
	}

	section("Overview")
	fmt.Fprintf(w, "  Run                : %s\n", r.RunID)
	fmt.Fprintf(w, "  Generated at       : %s\n", r.GeneratedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  Deals analysed     : %s\n", boldColor.Sprint(r.TotalDeals))
	fmt.Fprintf(w, "  Company conversion : %s\n", boldColor.Sprintf("%.2f%%", r.CompanyConversion))
	fmt.Fprintln(w)

	section("Conversion Trend")
	if r.Trend.Trend == models.TrendInsufficient {
		fmt.Fprintf(w, "  Not enough monthly data (need at least 2 months)\n")
	} else {
		fmt.Fprintf(w, "  %s  %s → %s  (%.2f%% → %.2f%%, change %+.1f%%)\n",
			colorTrend(r.Trend.Trend), r.Trend.FirstPeriod, r.Trend.LastPeriod,
			r.Trend.FirstValue, r.Trend.LastValue, r.Trend.ChangePct)
	}
	fmt.Fprintln(w)

	printPeriods(w, "Conversion by Year", r.ByYear, section)
	printPeriods(w, "Conversion by Quarter", r.ByQuarter, section)
	printPeriods(w, "Conversion by Month", r.ByMonth, section)

	section("Manager Ranking")
	if len(r.Ranking) == 0 {
		fmt.Fprintf(w, "  No manager data\n")
	} else {
		fmt.Fprintf(w, "  %-4s %-28s %8s %7s %6s %14s  %s\n", "#", "Manager", "Conv %", "Deals", "Won", "Revenue", "Status")
		for _, e := range r.Ranking {
			fmt.Fprintf(w, "  %-4d %-28s %7.2f%% %7d %6d %14.2f  %s\n",
				e.Rank, truncate(e.Manager, 28), e.ConversionPct, e.Deals, e.Won, e.Revenue, colorTier(e.Tier))
		}
	}
	fmt.Fprintln(w)

	section("Highlights")
	if r.BestManager == nil {
		fmt.Fprintf(w, "  No manager data\n")
	} else {
		b := r.BestManager
		fmt.Fprintf(w, "  Best manager       : %s  %.2f%% (%d of %d won, %.1f%% of all won deals)\n",
			goodColor.Sprint(b.Manager), b.ConversionPct, b.Won, b.Deals, b.ShareOfWonPct)
	}
	for _, g := range r.GrowingManagers {
		fmt.Fprintf(w, "  Growing            : %s  %.2f%% → %.2f%% (%s → %s, %+.0f%%)\n",
			goodColor.Sprint(g.Manager), g.FromPct, g.ToPct, g.FirstPeriod, g.LastPeriod, g.GrowthPct)
	}
	fmt.Fprintln(w)

	section("Alerts")
	if len(r.Alerts) == 0 {
		fmt.Fprintf(w, "  %s\n", goodColor.Sprint("No critical problems detected"))
	} else {
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "  %-10s %s\n", colorSeverity(a.Severity), a.Message)
		}
	}
	fmt.Fprintln(w)

	section("Financial Scenarios")
	for _, sc := range r.Scenarios {
		delta := ""
		if sc.Name != "current" {
			delta = fmt.Sprintf("%+14.2f", sc.Delta)
		}
		fmt.Fprintf(w, "  %-16s %7.2f%% %14.2f %s\n", sc.Name, sc.ConversionPct, sc.Revenue, delta)
	}
	fmt.Fprintln(w)

	section(fmt.Sprintf("Deal Size (Q1 %.0f · Q2 %.0f · Q3 %.0f)", r.Distribution.Q1, r.Distribution.Q2, r.Distribution.Q3))
	printSegments(w, r.Distribution.Bands)
	fmt.Fprintln(w)

	if len(r.Segments) > 0 {
		section("Categories")
		printSegments(w, r.Segments)
		fmt.Fprintln(w)
	}

	if len(r.Stages) > 0 {
		section("Pipeline Stages")
		for _, st := range r.Stages {
			fmt.Fprintf(w, "  %-24s %6d deals %6.1f%% %s\n",
				truncate(st.Stage, 24), st.Count, st.SharePct, strings.Repeat("█", barWidth(st.SharePct)))
		}
		fmt.Fprintln(w)
	}

	s.PrintStalled(w, r.Stalled, r.StuckDays)

	fmt.Fprintf(w, "\n%s\n\n", titleColor.Sprint(sep))
}

// PrintStalled renders the stalled-deal worklist.
func (s *ReportService) PrintStalled(w io.Writer, deals []models.StalledDeal, stuckDays int) {
	fmt.Fprintf(w, "%s\n", headerColor.Sprintf("  Stalled Deals (%d+ days without activity)", stuckDays))
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 72))
	if len(deals) == 0 {
		fmt.Fprintf(w, "  %s\n", goodColor.Sprint("No stalled deals"))
		return
	}
	for _, d := range deals {
		fmt.Fprintf(w, "  %-8s %-34s %-20s %12.2f %s\n",
			d.ID, truncate(d.Title, 34), truncate(d.Manager, 20), d.Amount,
			warnColor.Sprintf("%dd", d.DaysStalled))
	}
	fmt.Fprintf(w, "  Total stalled: %s\n", boldColor.Sprint(len(deals)))
}

func printPeriods(w io.Writer, title string, periods []models.PeriodMetrics, section func(string)) {
	section(title)
	if len(periods) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}
	fmt.Fprintf(w, "  %-16s %7s %6s %8s %14s %12s\n", "Period", "Deals", "Won", "Conv %", "Revenue", "Avg check")
	for _, p := range periods {
		fmt.Fprintf(w, "  %-16s %7d %6d %7.2f%% %14.2f %12.2f\n",
			p.Label, p.Total, p.Won, p.ConversionPct, p.Revenue, p.AvgAmount)
	}
	fmt.Fprintln(w)
}

func printSegments(w io.Writer, segs []models.SegmentMetrics) {
	if len(segs) == 0 {
		fmt.Fprintf(w, "  No data\n")
		return
	}
	for _, s := range segs {
		bar := strings.Repeat("█", barWidth(s.ConversionPct))
		fmt.Fprintf(w, "  %-16s %6d deals %5d won %7.2f%% %s\n",
			truncate(s.Label, 16), s.Total, s.Won, s.ConversionPct, bar)
	}
}

// barWidth scales a percentage to at most 30 cells.
func barWidth(pct float64) int {
	n := int(pct*30/100 + 0.5)
	if n < 0 {
		return 0
	}
	if n > 30 {
		return 30
	}
	return n
}

func colorTier(t models.Tier) string {
	switch t {
	case models.TierExcellent, models.TierGood:
		return goodColor.Sprint(t)
	case models.TierNormal:
		return warnColor.Sprint(t)
	default:
		return badColor.Sprint(t)
	}
}

func colorSeverity(s models.Severity) string {
	switch s {
	case models.SeverityCritical, models.SeverityCrisis:
		return badColor.Sprint(strings.ToUpper(string(s)))
	default:
		return warnColor.Sprint(strings.ToUpper(string(s)))
	}
}

func colorTrend(t models.TrendLabel) string {
	switch t {
	case models.TrendSharpGrowth, models.TrendWeakGrowth:
		return goodColor.Sprint(t)
	case models.TrendWeakDecline:
		return warnColor.Sprint(t)
	default:
		return badColor.Sprint(t)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
