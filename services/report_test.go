package services

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-funnel-analytics/models"
)

func sampleEngine() *Engine {
	var deals []models.Deal
	deals = append(deals, dealsFor("Anna", "2024-01-10", 10, 1, 2)...)
	deals = append(deals, dealsFor("Boris", "2024-02-10", 10, 0, 0)...)
	deals = append(deals, dealsFor("Vera", "2024-02-12", 5, 2, 0)...)
	deals[0].CategoryID = "1"
	deals[11].LastActivityAt = date("2024-02-01")
	deals[0].StageID = "WON"
	deals[1].StageID = "NEW"
	deals[2].StageID = "NEW"
	return NewEngine(deals)
}

func TestReportGenerate(t *testing.T) {
	svc := NewReportService(newTestLogger())
	e := sampleEngine()
	now := date("2024-03-01")

	r := svc.Generate(e, ReportOptions{Now: now, StuckDays: 7})

	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, now, r.GeneratedAt)
	assert.Equal(t, 25, r.TotalDeals)
	assert.InDelta(t, 12.0, r.CompanyConversion, 1e-9)
	assert.Equal(t, e.ByYear(), r.ByYear)
	assert.Equal(t, e.ByQuarter(0), r.ByQuarter)
	assert.Equal(t, e.Ranking(), r.Ranking)
	assert.Equal(t, e.Alerts(), r.Alerts)
	assert.Len(t, r.Managers, 3)
	assert.Len(t, r.Segments, 1)
	assert.Equal(t, 7, r.StuckDays)
	require.Len(t, r.Stalled, 1)
	assert.Equal(t, 29, r.Stalled[0].DaysStalled)
	assert.Equal(t, e.StageDistribution(), r.Stages)
	require.NotNil(t, r.BestManager)
	assert.Equal(t, "Vera", r.BestManager.Manager)
	assert.Empty(t, r.GrowingManagers)
	assert.Len(t, r.Scenarios, 3)

	again := svc.Generate(e, ReportOptions{Now: now, StuckDays: 7})
	assert.NotEqual(t, r.RunID, again.RunID)
	again.RunID = r.RunID
	assert.Equal(t, r, again, "reports over the same snapshot only differ by run id")
}

func TestReportPrint(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	svc := NewReportService(newTestLogger())
	r := svc.Generate(sampleEngine(), ReportOptions{Now: date("2024-03-01"), StuckDays: 7})

	var buf bytes.Buffer
	svc.Print(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "SALES FUNNEL ANALYTICS")
	assert.Contains(t, out, "Company conversion : 12.00%")
	assert.Contains(t, out, "January 2024")
	assert.Contains(t, out, "Q1 2024")
	assert.Contains(t, out, "Boris")
	assert.Contains(t, out, "CRISIS")
	assert.Contains(t, out, "Total stalled: 1")
	assert.Contains(t, out, "Best manager       : Vera")
	assert.Contains(t, out, "Financial Scenarios")
	assert.Contains(t, out, "at 7.28%")
	assert.Contains(t, out, "Pipeline Stages")
	assert.Contains(t, out, "NEW")
}

func TestReportPrintEmpty(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	svc := NewReportService(newTestLogger())
	r := svc.Generate(NewEngine(nil), ReportOptions{Now: date("2024-03-01"), StuckDays: 7})

	var buf bytes.Buffer
	svc.Print(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "Not enough monthly data")
	assert.Contains(t, out, "No manager data")
	assert.Contains(t, out, "No stalled deals")
	assert.NotContains(t, out, "Pipeline Stages")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Прив...", truncate("Привет, мир", 7))
}

func TestPrintStalled(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	svc := NewReportService(newTestLogger())
	var buf bytes.Buffer
	svc.PrintStalled(&buf, []models.StalledDeal{
		{ID: "42", Title: "Office chairs", Manager: "Anna", Amount: 1200, DaysStalled: 12},
	}, 10)
	out := buf.String()

	assert.Contains(t, out, "Stalled Deals (10+ days without activity)")
	assert.Contains(t, out, "Office chairs")
	assert.Contains(t, out, "12d")
	assert.Contains(t, out, "Total stalled: 1")
}
