package services

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"sales-funnel-analytics/models"
)

type yearMonth struct {
	year  int
	month int
}

func (ym yearMonth) compare(o yearMonth) int {
	if ym.year != o.year {
		return ym.year - o.year
	}
	return ym.month - o.month
}

// ByYear buckets deals by the calendar year they were created in, ascending.
func (e *Engine) ByYear() []models.PeriodMetrics {
	years, groups := groupOrdered(e.deals, func(d models.Deal) (int, bool) {
		return d.CreatedAt.Year(), !d.CreatedAt.IsZero()
	})
	slices.Sort(years)

	result := make([]models.PeriodMetrics, 0, len(years))
	for _, y := range years {
		result = append(result, models.PeriodMetrics{
			Label:         strconv.Itoa(y),
			Year:          y,
			BucketMetrics: aggregate(groups[y]),
		})
	}
	return result
}

// ByQuarter buckets one year's deals by quarter. year 0 selects the latest
// year present. Quarters without deals are omitted.
func (e *Engine) ByQuarter(year int) []models.PeriodMetrics {
	if year == 0 {
		year = e.latestYear()
		if year == 0 {
			return nil
		}
	}

	var quarters [4][]models.Deal
	for _, d := range e.deals {
		if d.CreatedAt.IsZero() || d.CreatedAt.Year() != year {
			continue
		}
		q := (int(d.CreatedAt.Month()) - 1) / 3
		quarters[q] = append(quarters[q], d)
	}

	var result []models.PeriodMetrics
	for i, deals := range quarters {
		if len(deals) == 0 {
			continue
		}
		result = append(result, models.PeriodMetrics{
			Label:         fmt.Sprintf("Q%d %d", i+1, year),
			Year:          year,
			Quarter:       i + 1,
			BucketMetrics: aggregate(deals),
		})
	}
	return result
}

// ByMonth buckets deals by creation month across the whole snapshot,
// in chronological order. Labels read "January 2024".
func (e *Engine) ByMonth() []models.PeriodMetrics {
	return monthly(e.deals)
}

func monthly(deals []models.Deal) []models.PeriodMetrics {
	months, groups := groupOrdered(deals, func(d models.Deal) (yearMonth, bool) {
		return yearMonth{d.CreatedAt.Year(), int(d.CreatedAt.Month())}, !d.CreatedAt.IsZero()
	})
	slices.SortFunc(months, yearMonth.compare)

	result := make([]models.PeriodMetrics, 0, len(months))
	for _, ym := range months {
		result = append(result, models.PeriodMetrics{
			Label:         fmt.Sprintf("%s %d", time.Month(ym.month), ym.year),
			Year:          ym.year,
			Month:         ym.month,
			BucketMetrics: aggregate(groups[ym]),
		})
	}
	return result
}

// Month returns the metrics for one explicit month, labelled "MM.YYYY".
// ok is false when the month has no deals.
func (e *Engine) Month(year, month int) (models.PeriodMetrics, bool) {
	var deals []models.Deal
	for _, d := range e.deals {
		if !d.CreatedAt.IsZero() && d.CreatedAt.Year() == year && int(d.CreatedAt.Month()) == month {
			deals = append(deals, d)
		}
	}
	if len(deals) == 0 {
		return models.PeriodMetrics{}, false
	}
	return models.PeriodMetrics{
		Label:         fmt.Sprintf("%02d.%d", month, year),
		Year:          year,
		Month:         month,
		BucketMetrics: aggregate(deals),
	}, true
}

func (e *Engine) latestYear() int {
	latest := 0
	for _, d := range e.deals {
		if !d.CreatedAt.IsZero() && d.CreatedAt.Year() > latest {
			latest = d.CreatedAt.Year()
		}
	}
	return latest
}
