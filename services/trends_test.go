package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-funnel-analytics/models"
)

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		change float64
		want   models.TrendLabel
	}{
		{50, models.TrendSharpGrowth},
		{10.5, models.TrendSharpGrowth},
		{10, models.TrendWeakGrowth},
		{0.1, models.TrendWeakGrowth},
		{0, models.TrendWeakDecline},
		{-9.9, models.TrendWeakDecline},
		{-10, models.TrendSharpDecline},
		{-60, models.TrendSharpDecline},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyTrend(tt.change), "classifyTrend(%v)", tt.change)
	}
}

func TestTrendSharpDeclineRaisesAlarm(t *testing.T) {
	// January 10%, February 4%: (4-10)/10*100 = -60%.
	var deals []models.Deal
	deals = append(deals, dealsFor("Anna", "2024-01-10", 10, 1, 0)...)
	deals = append(deals, dealsFor("Anna", "2024-02-10", 25, 1, 0)...)
	e := NewEngine(deals)

	trend := e.Trend()
	assert.Equal(t, models.TrendSharpDecline, trend.Trend)
	assert.InDelta(t, -60.0, trend.ChangePct, 1e-9)
	assert.InDelta(t, 10.0, trend.FirstValue, 1e-9)
	assert.InDelta(t, 4.0, trend.LastValue, 1e-9)
	assert.InDelta(t, -6.0, trend.AbsoluteChange, 1e-9)
	assert.Equal(t, "January 2024", trend.FirstPeriod)
	assert.Equal(t, "February 2024", trend.LastPeriod)

	alerts := e.Alerts()
	require.NotEmpty(t, alerts)
	last := alerts[len(alerts)-1]
	assert.Equal(t, models.SeverityAlarm, last.Severity)
	assert.InDelta(t, -60.0, last.Value, 1e-9)
	assert.Contains(t, last.Message, "60.0%")
}

func TestTrendUsesChronologicalOrder(t *testing.T) {
	// Lexicographic order would compare "April 2024" with "March 2024".
	var deals []models.Deal
	deals = append(deals, dealsFor("Anna", "2024-03-10", 10, 2, 0)...)
	deals = append(deals, dealsFor("Anna", "2024-04-10", 10, 1, 0)...)
	deals = append(deals, dealsFor("Anna", "2024-01-10", 10, 1, 0)...)

	trend := NewEngine(deals).Trend()
	assert.Equal(t, "January 2024", trend.FirstPeriod)
	assert.Equal(t, "April 2024", trend.LastPeriod)
	assert.InDelta(t, 0.0, trend.ChangePct, 1e-9)
}

func TestTrendInsufficientData(t *testing.T) {
	e := NewEngine(dealsFor("Anna", "2024-01-10", 10, 1, 0))
	trend := e.Trend()

	assert.Equal(t, models.TrendInsufficient, trend.Trend)
	assert.Zero(t, trend.ChangePct)
	assert.Equal(t, models.TrendSummary{Trend: models.TrendInsufficient}, NewEngine(nil).Trend())
}

func TestTrendZeroFirstMonth(t *testing.T) {
	var deals []models.Deal
	deals = append(deals, dealsFor("Anna", "2024-01-10", 10, 0, 0)...)
	deals = append(deals, dealsFor("Anna", "2024-02-10", 10, 5, 0)...)

	trend := NewEngine(deals).Trend()
	assert.Zero(t, trend.ChangePct, "relative change is 0 when the first month is 0")
	assert.InDelta(t, 50.0, trend.AbsoluteChange, 1e-9)
}

func TestAlertsManagerCrisis(t *testing.T) {
	// Manager A: 10 deals, 0 won.
	e := NewEngine(dealsFor("A", "2024-01-10", 10, 0, 0))

	alerts := e.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity, "company conversion is 0%")
	assert.Equal(t, models.SeverityCrisis, alerts[1].Severity)
	assert.Equal(t, "A", alerts[1].Manager)
	assert.Equal(t, 10.0, alerts[1].Value)

	assert.Equal(t, models.TierCrisis, e.Managers()[0].Tier)
}

func TestAlertsZeroConversionAndCancelIsElseIf(t *testing.T) {
	var deals []models.Deal
	deals = append(deals, dealsFor("Big", "2024-01-10", 50, 50, 0)...)
	deals = append(deals, dealsFor("Lost", "2024-01-10", 10, 0, 8)...)
	deals = append(deals, dealsFor("Few", "2024-01-10", 5, 0, 4)...)
	deals = append(deals, dealsFor("Fine", "2024-01-10", 5, 0, 3)...)

	alerts := NewEngine(deals).Alerts()
	require.Len(t, alerts, 2)

	assert.Equal(t, models.SeverityCrisis, alerts[0].Severity)
	assert.Equal(t, "Lost", alerts[0].Manager, "0% with >5 deals wins over the cancel check")

	assert.Equal(t, models.SeverityAttention, alerts[1].Severity)
	assert.Equal(t, "Few", alerts[1].Manager)
	assert.InDelta(t, 80.0, alerts[1].Value, 1e-9)
}

func TestAlertsCustomThresholds(t *testing.T) {
	deals := dealsFor("Anna", "2024-01-10", 20, 1, 0)

	assert.Empty(t, NewEngine(deals).Alerts(), "5% passes the default 3% threshold")

	strict := DefaultThresholds()
	strict.CompanyConversionMin = 10
	alerts := NewEngine(deals, WithThresholds(strict)).Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.InDelta(t, 5.0, alerts[0].Value, 1e-9)
}
