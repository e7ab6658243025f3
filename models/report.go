package models

import "time"

// BucketMetrics is the shared result shape for period, segment and band buckets.
type BucketMetrics struct {
	Total         int     `json:"total_deals" yaml:"total_deals"`
	Won           int     `json:"won_deals" yaml:"won_deals"`
	ConversionPct float64 `json:"conversion_pct" yaml:"conversion_pct"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
	AvgAmount     float64 `json:"avg_amount" yaml:"avg_amount"`
}

// PeriodMetrics is a BucketMetrics for one calendar period.
// Quarter and Month are zero when the period is coarser.
type PeriodMetrics struct {
	Label   string `json:"label" yaml:"label"`
	Year    int    `json:"year" yaml:"year"`
	Quarter int    `json:"quarter,omitempty" yaml:"quarter,omitempty"`
	Month   int    `json:"month,omitempty" yaml:"month,omitempty"`
	BucketMetrics `yaml:",inline"`
}

// SegmentMetrics is a BucketMetrics for a category or deal-size band.
type SegmentMetrics struct {
	Label         string `json:"label" yaml:"label"`
	BucketMetrics `yaml:",inline"`
}

// Tier is a manager status derived from conversion.
type Tier string

const (
	TierExcellent Tier = "Excellent"
	TierGood      Tier = "Good"
	TierNormal    Tier = "Normal"
	TierCritical  Tier = "Critical"
	TierCrisis    Tier = "Crisis"
)

// ManagerMetrics holds per-salesperson performance.
type ManagerMetrics struct {
	Manager       string  `json:"manager" yaml:"manager"`
	Deals         int     `json:"deals_count" yaml:"deals_count"`
	Won           int     `json:"won_count" yaml:"won_count"`
	Lost          int     `json:"lost_count" yaml:"lost_count"`
	ConversionPct float64 `json:"conversion_pct" yaml:"conversion_pct"`
	CancelRatePct float64 `json:"cancel_rate" yaml:"cancel_rate"`
	AvgAmount     float64 `json:"avg_amount" yaml:"avg_amount"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
	Tier          Tier    `json:"status" yaml:"status"`
}

// RankEntry is one row of the manager ranking.
type RankEntry struct {
	Rank          int     `json:"rank" yaml:"rank"`
	Manager       string  `json:"manager" yaml:"manager"`
	ConversionPct float64 `json:"conversion" yaml:"conversion"`
	Tier          Tier    `json:"status" yaml:"status"`
	Deals         int     `json:"deals" yaml:"deals"`
	Won           int     `json:"won" yaml:"won"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
}

// TrendLabel classifies the relative change of monthly conversion.
type TrendLabel string

const (
	TrendSharpGrowth  TrendLabel = "sharp growth"
	TrendWeakGrowth   TrendLabel = "weak growth"
	TrendWeakDecline  TrendLabel = "weak decline"
	TrendSharpDecline TrendLabel = "sharp decline"
	TrendInsufficient TrendLabel = "insufficient data"
)

// TrendSummary compares the first and last monthly conversion values.
type TrendSummary struct {
	Trend          TrendLabel `json:"trend" yaml:"trend"`
	ChangePct      float64    `json:"change_pct" yaml:"change_pct"`
	FirstValue     float64    `json:"first_month_conv" yaml:"first_month_conv"`
	LastValue      float64    `json:"last_month_conv" yaml:"last_month_conv"`
	AbsoluteChange float64    `json:"absolute_change" yaml:"absolute_change"`
	FirstPeriod    string     `json:"first_period,omitempty" yaml:"first_period,omitempty"`
	LastPeriod     string     `json:"last_period,omitempty" yaml:"last_period,omitempty"`
}

// Severity labels an Alert.
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityCrisis    Severity = "crisis"
	SeverityAttention Severity = "attention"
	SeverityAlarm     Severity = "alarm"
)

// Alert is one threshold-triggered finding.
type Alert struct {
	Severity Severity `json:"level" yaml:"level"`
	Message  string   `json:"issue" yaml:"issue"`
	Value    float64  `json:"value" yaml:"value"`
	Manager  string   `json:"manager,omitempty" yaml:"manager,omitempty"`
}

// Distribution is the quartile segmentation of deal amounts.
type Distribution struct {
	Q1    float64          `json:"q1" yaml:"q1"`
	Q2    float64          `json:"q2" yaml:"q2"`
	Q3    float64          `json:"q3" yaml:"q3"`
	Bands []SegmentMetrics `json:"bands" yaml:"bands"`
}

// StalledDeal is one row of the follow-up worklist.
type StalledDeal struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Manager     string    `json:"manager" yaml:"manager"`
	Amount      float64   `json:"amount" yaml:"amount"`
	DaysStalled int       `json:"days_stalled" yaml:"days_stalled"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// StageCount is the number of deals in one pipeline stage.
type StageCount struct {
	Stage    string  `json:"stage" yaml:"stage"`
	Count    int     `json:"count" yaml:"count"`
	SharePct float64 `json:"share_pct" yaml:"share_pct"`
}

// BestManager highlights the manager with the highest conversion.
type BestManager struct {
	Manager       string  `json:"best_manager" yaml:"best_manager"`
	ConversionPct float64 `json:"conversion" yaml:"conversion"`
	Won           int     `json:"won_deals" yaml:"won_deals"`
	Deals         int     `json:"total_deals" yaml:"total_deals"`
	// ShareOfWonPct is the manager's share of all won deals in the snapshot.
	ShareOfWonPct float64 `json:"share_of_won" yaml:"share_of_won"`
}

// ManagerGrowth compares a manager's first and last monthly conversion.
type ManagerGrowth struct {
	Manager     string  `json:"manager" yaml:"manager"`
	GrowthPct   float64 `json:"growth_pct" yaml:"growth_pct"`
	FromPct     float64 `json:"from_conversion" yaml:"from_conversion"`
	ToPct       float64 `json:"to_conversion" yaml:"to_conversion"`
	FirstPeriod string  `json:"first_period" yaml:"first_period"`
	LastPeriod  string  `json:"last_period" yaml:"last_period"`
}

// Scenario projects revenue at a given company conversion.
type Scenario struct {
	Name          string  `json:"scenario" yaml:"scenario"`
	ConversionPct float64 `json:"conversion" yaml:"conversion"`
	Deals         int     `json:"deals" yaml:"deals"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
	// Delta is Revenue minus the current won revenue.
	Delta float64 `json:"potential_add" yaml:"potential_add"`
}

// Report holds every computed analysis over one snapshot.
type Report struct {
	RunID             string           `json:"run_id" yaml:"run_id"`
	GeneratedAt       time.Time        `json:"generated_at" yaml:"generated_at"`
	TotalDeals        int              `json:"total_deals" yaml:"total_deals"`
	CompanyConversion float64          `json:"company_conversion" yaml:"company_conversion"`
	ByYear            []PeriodMetrics  `json:"conversion_by_year" yaml:"conversion_by_year"`
	ByQuarter         []PeriodMetrics  `json:"conversion_by_quarter" yaml:"conversion_by_quarter"`
	ByMonth           []PeriodMetrics  `json:"conversion_by_month" yaml:"conversion_by_month"`
	Managers          []ManagerMetrics `json:"manager_metrics" yaml:"manager_metrics"`
	Ranking           []RankEntry      `json:"manager_ranking" yaml:"manager_ranking"`
	Trend             TrendSummary     `json:"trend_analysis" yaml:"trend_analysis"`
	Alerts            []Alert          `json:"crisis_alerts" yaml:"crisis_alerts"`
	Distribution      Distribution     `json:"opportunity_dist" yaml:"opportunity_dist"`
	Segments          []SegmentMetrics `json:"segments" yaml:"segments"`
	StuckDays         int              `json:"stuck_days" yaml:"stuck_days"`
	Stalled           []StalledDeal    `json:"stalled_deals" yaml:"stalled_deals"`
	Stages            []StageCount     `json:"stage_distribution" yaml:"stage_distribution"`
	BestManager       *BestManager     `json:"best_manager,omitempty" yaml:"best_manager,omitempty"`
	GrowingManagers   []ManagerGrowth  `json:"growing_managers" yaml:"growing_managers"`
	Scenarios         []Scenario       `json:"financial_scenarios" yaml:"financial_scenarios"`
}
