package services

import (
	"slices"

	"sales-funnel-analytics/models"
)

// ClassifyTier maps a conversion percentage to a manager status tier.
// Thresholds are evaluated top-down and never overlap.
func ClassifyTier(conversionPct float64) models.Tier {
	switch {
	case conversionPct > 8:
		return models.TierExcellent
	case conversionPct > 5:
		return models.TierGood
	case conversionPct > 3:
		return models.TierNormal
	case conversionPct > 1:
		return models.TierCritical
	default:
		return models.TierCrisis
	}
}

// Managers returns per-manager metrics in first-appearance order.
// Deals owned by the Unknown manager are left out.
func (e *Engine) Managers() []models.ManagerMetrics {
	names, groups := groupOrdered(e.deals, func(d models.Deal) (string, bool) {
		return d.ManagerName, d.ManagerName != "" && d.ManagerName != models.UnknownManager
	})

	result := make([]models.ManagerMetrics, 0, len(names))
	for _, name := range names {
		deals := groups[name]
		m := aggregate(deals)
		lost := 0
		for _, d := range deals {
			if d.IsLost {
				lost++
			}
		}
		result = append(result, models.ManagerMetrics{
			Manager:       name,
			Deals:         m.Total,
			Won:           m.Won,
			Lost:          lost,
			ConversionPct: m.ConversionPct,
			CancelRatePct: percent(lost, m.Total),
			AvgAmount:     m.AvgAmount,
			Revenue:       m.Revenue,
			Tier:          ClassifyTier(m.ConversionPct),
		})
	}
	return result
}

// Ranking orders managers by conversion, best first. Equal conversions keep
// their Managers order and still get distinct sequential ranks.
func (e *Engine) Ranking() []models.RankEntry {
	metrics := e.Managers()
	slices.SortStableFunc(metrics, func(a, b models.ManagerMetrics) int {
		switch {
		case a.ConversionPct > b.ConversionPct:
			return -1
		case a.ConversionPct < b.ConversionPct:
			return 1
		default:
			return 0
		}
	})

	result := make([]models.RankEntry, 0, len(metrics))
	for i, m := range metrics {
		result = append(result, models.RankEntry{
			Rank:          i + 1,
			Manager:       m.Manager,
			ConversionPct: m.ConversionPct,
			Tier:          m.Tier,
			Deals:         m.Deals,
			Won:           m.Won,
			Revenue:       m.Revenue,
		})
	}
	return result
}
