package services

import (
	"fmt"
	"math"

	"sales-funnel-analytics/models"
)

// Trend compares the first and last monthly conversion in the snapshot.
// It is a two-point delta, not a regression.
func (e *Engine) Trend() models.TrendSummary {
	months := e.ByMonth()
	if len(months) < 2 {
		return models.TrendSummary{Trend: models.TrendInsufficient}
	}

	first, last := months[0], months[len(months)-1]
	changePct := relativeChange(first.ConversionPct, last.ConversionPct)

	return models.TrendSummary{
		Trend:          classifyTrend(changePct),
		ChangePct:      changePct,
		FirstValue:     first.ConversionPct,
		LastValue:      last.ConversionPct,
		AbsoluteChange: last.ConversionPct - first.ConversionPct,
		FirstPeriod:    first.Label,
		LastPeriod:     last.Label,
	}
}

// relativeChange is (last-first)/first in percent, or 0 when first is not
// positive.
func relativeChange(first, last float64) float64 {
	if first <= 0 {
		return 0
	}
	return (last - first) / first * 100
}

func classifyTrend(changePct float64) models.TrendLabel {
	switch {
	case changePct > 10:
		return models.TrendSharpGrowth
	case changePct > 0:
		return models.TrendWeakGrowth
	case changePct > -10:
		return models.TrendWeakDecline
	default:
		return models.TrendSharpDecline
	}
}

// Alerts runs the company, per-manager and trend checks and returns every
// triggered alert in that order.
func (e *Engine) Alerts() []models.Alert {
	t := e.thresholds
	var alerts []models.Alert

	if conv := e.CompanyConversion(); conv < t.CompanyConversionMin {
		alerts = append(alerts, models.Alert{
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("Company conversion %.2f%% is below %.0f%%", conv, t.CompanyConversionMin),
			Value:    conv,
		})
	}

	// A manager raises at most one of these two alerts per run.
	for _, m := range e.Managers() {
		switch {
		case m.ConversionPct == 0 && m.Deals > t.ZeroConversionMinDeals:
			alerts = append(alerts, models.Alert{
				Severity: models.SeverityCrisis,
				Message:  fmt.Sprintf("%s: %d deals, 0%% conversion", m.Manager, m.Deals),
				Value:    float64(m.Deals),
				Manager:  m.Manager,
			})
		case m.CancelRatePct > t.CancelRateMax:
			alerts = append(alerts, models.Alert{
				Severity: models.SeverityAttention,
				Message:  fmt.Sprintf("%s: high cancellation rate %.0f%%", m.Manager, m.CancelRatePct),
				Value:    m.CancelRatePct,
				Manager:  m.Manager,
			})
		}
	}

	if trend := e.Trend(); trend.ChangePct < t.TrendDeclinePct {
		alerts = append(alerts, models.Alert{
			Severity: models.SeverityAlarm,
			Message:  fmt.Sprintf("Conversion fell by %.1f%% over the period", math.Abs(trend.ChangePct)),
			Value:    trend.ChangePct,
		})
	}

	return alerts
}
