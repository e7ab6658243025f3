package services

import (
	"math"
	"slices"
	"time"

	"sales-funnel-analytics/models"
)

// Deal-size band labels, smallest first.
const (
	BandMicro  = "micro"
	BandSmall  = "small"
	BandMedium = "medium"
	BandLarge  = "large"
)

// Distribution splits deals into four amount bands at the 25th, 50th and 75th
// percentiles: (-inf, Q1], (Q1, Q2], (Q2, Q3], (Q3, +inf). Empty bands are
// omitted.
func (e *Engine) Distribution() models.Distribution {
	if len(e.deals) == 0 {
		return models.Distribution{}
	}

	amounts := make([]float64, len(e.deals))
	for i, d := range e.deals {
		amounts[i] = d.Amount
	}
	slices.Sort(amounts)

	dist := models.Distribution{
		Q1: quantile(amounts, 0.25),
		Q2: quantile(amounts, 0.50),
		Q3: quantile(amounts, 0.75),
	}

	var bands [4][]models.Deal
	for _, d := range e.deals {
		var i int
		switch {
		case d.Amount <= dist.Q1:
			i = 0
		case d.Amount <= dist.Q2:
			i = 1
		case d.Amount <= dist.Q3:
			i = 2
		default:
			i = 3
		}
		bands[i] = append(bands[i], d)
	}

	labels := [4]string{BandMicro, BandSmall, BandMedium, BandLarge}
	for i, deals := range bands {
		if len(deals) == 0 {
			continue
		}
		dist.Bands = append(dist.Bands, models.SegmentMetrics{
			Label:         labels[i],
			BucketMetrics: aggregate(deals),
		})
	}
	return dist
}

// quantile interpolates linearly between the closest ranks of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Segments buckets deals by CRM category in first-appearance order. Deals
// without a category are skipped, so a snapshot lacking the field yields an
// empty result.
func (e *Engine) Segments() []models.SegmentMetrics {
	ids, groups := groupOrdered(e.deals, func(d models.Deal) (string, bool) {
		return d.CategoryID, d.CategoryID != ""
	})

	result := make([]models.SegmentMetrics, 0, len(ids))
	for _, id := range ids {
		label := "Segment_" + id
		if name := e.categories[id]; name != "" {
			label = name
		}
		result = append(result, models.SegmentMetrics{
			Label:         label,
			BucketMetrics: aggregate(groups[id]),
		})
	}
	return result
}

// Stalled lists open deals whose last activity is at least stuckDays whole
// days before now. Deals without an activity timestamp are never stalled.
func (e *Engine) Stalled(now time.Time, stuckDays int) []models.StalledDeal {
	var result []models.StalledDeal
	for _, d := range e.deals {
		if d.IsWon || d.IsLost || d.LastActivityAt.IsZero() {
			continue
		}
		days := wholeDays(now.Sub(d.LastActivityAt))
		if days < stuckDays {
			continue
		}
		result = append(result, models.StalledDeal{
			ID:          d.ID,
			Title:       d.Title,
			Manager:     d.ManagerName,
			Amount:      d.Amount,
			DaysStalled: days,
			CreatedAt:   d.CreatedAt,
		})
	}
	return result
}

// wholeDays floors a duration to days, rounding towards negative infinity.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

// ROI returns revenue as a percentage of cost, or 0 when cost is 0.
func ROI(cost, revenue float64) float64 {
	if cost == 0 {
		return 0
	}
	return revenue / cost * 100
}
