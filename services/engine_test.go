package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-funnel-analytics/models"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func deal(id, created string, amount float64, stage models.Stage, manager string) models.Deal {
	d := models.Deal{
		ID:          id,
		Title:       "Deal " + id,
		Amount:      amount,
		Stage:       stage,
		IsWon:       stage == models.StageWon,
		IsLost:      stage == models.StageLost,
		ManagerName: manager,
	}
	if created != "" {
		d.CreatedAt = date(created)
	}
	return d
}

// dealsFor builds n deals for one manager in one month, the first won ones won
// and the next lost ones lost.
func dealsFor(manager, created string, n, won, lost int) []models.Deal {
	var out []models.Deal
	for i := 0; i < n; i++ {
		stage := models.StageInProgress
		switch {
		case i < won:
			stage = models.StageWon
		case i < won+lost:
			stage = models.StageLost
		}
		out = append(out, deal(fmt.Sprintf("%s-%s-%d", manager, created, i), created, 100, stage, manager))
	}
	return out
}

func TestAggregateZeroDeals(t *testing.T) {
	m := aggregate(nil)
	assert.Equal(t, models.BucketMetrics{}, m)
}

func TestAggregateRevenueAndAverage(t *testing.T) {
	m := aggregate([]models.Deal{
		deal("1", "", 100, models.StageWon, "A"),
		deal("2", "", 300, models.StageLost, "A"),
		deal("3", "", 200, models.StageInProgress, "A"),
	})

	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 1, m.Won)
	assert.InDelta(t, 33.333, m.ConversionPct, 0.001)
	assert.Equal(t, 100.0, m.Revenue, "revenue counts won deals only")
	assert.Equal(t, 200.0, m.AvgAmount, "average covers every deal")
}

func TestEngineRevenue(t *testing.T) {
	e := NewEngine([]models.Deal{
		deal("1", "2024-01-01", 100, models.StageWon, "A"),
		deal("2", "", 250, models.StageWon, "A"),
		deal("3", "2024-01-02", 999, models.StageLost, "A"),
	})
	assert.Equal(t, 350.0, e.Revenue(), "undated won deals still count")
	assert.Zero(t, NewEngine(nil).Revenue())
}

func TestCompanyConversionScenario(t *testing.T) {
	// 100 deals, 5 won: 5% conversion is above the 3% company threshold.
	deals := dealsFor(models.UnknownManager, "2024-03-10", 100, 5, 0)
	e := NewEngine(deals)

	assert.InDelta(t, 5.0, e.CompanyConversion(), 1e-9)
	assert.Empty(t, e.Alerts())
}

func TestEngineCopiesSnapshot(t *testing.T) {
	deals := []models.Deal{deal("1", "2024-01-01", 100, models.StageWon, "A")}
	e := NewEngine(deals)

	deals[0].IsWon = false
	deals[0].Amount = 0

	assert.Equal(t, 100.0, e.CompanyConversion())
	assert.Equal(t, 100.0, e.Deals()[0].Amount)

	got := e.Deals()
	got[0].Amount = 1
	assert.Equal(t, 100.0, e.Deals()[0].Amount, "Deals returns a copy")
}

func TestEngineFromRaw(t *testing.T) {
	snap := &models.Snapshot{
		Deals: []models.RawDeal{
			{"ID": "1", "DATE_CREATE": "2024-01-05", "STAGE_SEMANTIC_ID": "WON", "ASSIGNED_BY_ID": "1", "OPPORTUNITY": "100", "CATEGORY_ID": "0"},
			{"ID": "2", "DATE_CREATE": "2024-01-06", "STAGE_SEMANTIC_ID": "P", "ASSIGNED_BY_ID": "2", "OPPORTUNITY": "300", "CATEGORY_ID": "0"},
		},
		Users:      map[string]string{"1": "Anna"},
		Categories: map[string]string{"0": "General"},
	}

	e := NewEngineFromRaw(NewNormalizer(newTestLogger()), snap)
	require.Equal(t, 2, e.Len())
	assert.Equal(t, 50.0, e.CompanyConversion())

	managers := e.Managers()
	require.Len(t, managers, 1, "unresolved manager 2 is excluded")
	assert.Equal(t, "Anna", managers[0].Manager)

	segs := e.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, "General", segs[0].Label)
}

func TestQueriesAreIdempotentAndConcurrent(t *testing.T) {
	var deals []models.Deal
	deals = append(deals, dealsFor("Anna", "2024-01-10", 20, 3, 2)...)
	deals = append(deals, dealsFor("Boris", "2024-02-10", 15, 0, 10)...)
	deals = append(deals, dealsFor("Vera", "2024-05-10", 10, 1, 1)...)
	e := NewEngine(deals)

	now := date("2024-06-01")
	snapshot := func() []any {
		return []any{
			e.ByYear(), e.ByQuarter(0), e.ByMonth(), e.Managers(), e.Ranking(),
			e.Trend(), e.Alerts(), e.Distribution(), e.Segments(), e.Stalled(now, 7),
		}
	}
	want := snapshot()

	var wg sync.WaitGroup
	results := make([][]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = snapshot()
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
