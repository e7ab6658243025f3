package services

import (
	"fmt"
	"slices"

	"sales-funnel-analytics/models"
)

// GrowthMinPct is the first-to-last monthly conversion growth a manager must
// exceed to be listed by GrowingManagers.
const GrowthMinPct = 100

// DefaultScenarioRates are the target conversions FinancialScenarios projects
// when called without rates: the working norm and the best historical level.
var DefaultScenarioRates = []float64{5, 7.28}

// StageDistribution counts deals per raw pipeline stage, most populated
// first. Equal counts keep first-appearance order. Deals without a stage id
// are left out.
func (e *Engine) StageDistribution() []models.StageCount {
	stages, groups := groupOrdered(e.deals, func(d models.Deal) (string, bool) {
		return d.StageID, d.StageID != ""
	})

	counted := 0
	result := make([]models.StageCount, 0, len(stages))
	for _, s := range stages {
		counted += len(groups[s])
		result = append(result, models.StageCount{Stage: s, Count: len(groups[s])})
	}
	for i := range result {
		result[i].SharePct = percent(result[i].Count, counted)
	}

	slices.SortStableFunc(result, func(a, b models.StageCount) int {
		return b.Count - a.Count
	})
	return result
}

// BestManager returns the manager with the highest conversion. Ties go to
// the manager who appears first. ok is false when no manager is known.
func (e *Engine) BestManager() (models.BestManager, bool) {
	managers := e.Managers()
	if len(managers) == 0 {
		return models.BestManager{}, false
	}

	best := managers[0]
	for _, m := range managers[1:] {
		if m.ConversionPct > best.ConversionPct {
			best = m
		}
	}
	return models.BestManager{
		Manager:       best.Manager,
		ConversionPct: best.ConversionPct,
		Won:           best.Won,
		Deals:         best.Deals,
		ShareOfWonPct: percent(best.Won, aggregate(e.deals).Won),
	}, true
}

// GrowingManagers lists managers whose monthly conversion grew by more than
// GrowthMinPct between their first and last active month, fastest first.
// Managers active in fewer than two months, or starting from 0%, never
// qualify.
func (e *Engine) GrowingManagers() []models.ManagerGrowth {
	names, groups := groupOrdered(e.deals, func(d models.Deal) (string, bool) {
		return d.ManagerName, d.ManagerName != "" && d.ManagerName != models.UnknownManager
	})

	var result []models.ManagerGrowth
	for _, name := range names {
		months := monthly(groups[name])
		if len(months) < 2 {
			continue
		}
		first, last := months[0], months[len(months)-1]
		growth := relativeChange(first.ConversionPct, last.ConversionPct)
		if growth <= GrowthMinPct {
			continue
		}
		result = append(result, models.ManagerGrowth{
			Manager:     name,
			GrowthPct:   growth,
			FromPct:     first.ConversionPct,
			ToPct:       last.ConversionPct,
			FirstPeriod: first.Label,
			LastPeriod:  last.Label,
		})
	}

	slices.SortStableFunc(result, func(a, b models.ManagerGrowth) int {
		switch {
		case a.GrowthPct > b.GrowthPct:
			return -1
		case a.GrowthPct < b.GrowthPct:
			return 1
		default:
			return 0
		}
	})
	return result
}

// FinancialScenarios projects revenue as if the whole snapshot had converted
// at each rate, valuing every won deal at the average deal amount. The first
// entry is always the current state. Without rates DefaultScenarioRates is
// used.
func (e *Engine) FinancialScenarios(rates ...float64) []models.Scenario {
	if len(rates) == 0 {
		rates = DefaultScenarioRates
	}
	m := aggregate(e.deals)

	result := []models.Scenario{{
		Name:          "current",
		ConversionPct: m.ConversionPct,
		Deals:         m.Total,
		Revenue:       m.Revenue,
	}}
	for _, rate := range rates {
		revenue := float64(m.Total) * rate / 100 * m.AvgAmount
		result = append(result, models.Scenario{
			Name:          fmt.Sprintf("at %.2f%%", rate),
			ConversionPct: rate,
			Deals:         m.Total,
			Revenue:       revenue,
			Delta:         revenue - m.Revenue,
		})
	}
	return result
}
