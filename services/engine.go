package services

import (
	"slices"

	"sales-funnel-analytics/models"
)

// Thresholds drives crisis detection.
type Thresholds struct {
	// CompanyConversionMin raises a critical alert when company conversion is below it.
	CompanyConversionMin float64
	// ZeroConversionMinDeals is the deal count a 0% manager must exceed to raise a crisis alert.
	ZeroConversionMinDeals int
	// CancelRateMax raises an attention alert when a manager's cancel rate is above it.
	CancelRateMax float64
	// TrendDeclinePct raises an alarm when the monthly trend change is below it.
	TrendDeclinePct float64
}

// DefaultThresholds returns the standard alerting thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CompanyConversionMin:   3,
		ZeroConversionMinDeals: 5,
		CancelRateMax:          60,
		TrendDeclinePct:        -30,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the default alerting thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithCategoryNames sets display names used to label category segments.
func WithCategoryNames(names map[string]string) Option {
	return func(e *Engine) { e.categories = names }
}

// Engine answers analytics queries over one immutable snapshot of deals.
// Every query reads the snapshot and returns a fresh result, so an Engine is
// safe for concurrent use.
type Engine struct {
	deals      []models.Deal
	thresholds Thresholds
	categories map[string]string
}

// NewEngine builds an Engine over a private copy of deals.
func NewEngine(deals []models.Deal, opts ...Option) *Engine {
	e := &Engine{
		deals:      slices.Clone(deals),
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEngineFromRaw normalizes a raw snapshot and builds an Engine over it.
func NewEngineFromRaw(n *Normalizer, snap *models.Snapshot, opts ...Option) *Engine {
	deals := n.Normalize(snap.Deals, snap.Users)
	if len(snap.Categories) > 0 {
		opts = append([]Option{WithCategoryNames(snap.Categories)}, opts...)
	}
	return NewEngine(deals, opts...)
}

// Deals returns a copy of the normalized deals.
func (e *Engine) Deals() []models.Deal {
	return slices.Clone(e.deals)
}

// Len returns the number of deals in the snapshot.
func (e *Engine) Len() int {
	return len(e.deals)
}

// Thresholds returns the alerting thresholds in effect.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// CompanyConversion is won deals over all deals, in percent.
func (e *Engine) CompanyConversion() float64 {
	return aggregate(e.deals).ConversionPct
}

// Revenue is the summed amount of won deals.
func (e *Engine) Revenue() float64 {
	return aggregate(e.deals).Revenue
}

// aggregate computes the shared bucket metrics. AvgAmount covers all deals in
// the bucket while Revenue covers won deals only.
func aggregate(deals []models.Deal) models.BucketMetrics {
	var m models.BucketMetrics
	var total float64
	for _, d := range deals {
		m.Total++
		total += d.Amount
		if d.IsWon {
			m.Won++
			m.Revenue += d.Amount
		}
	}
	m.ConversionPct = percent(m.Won, m.Total)
	if m.Total > 0 {
		m.AvgAmount = total / float64(m.Total)
	}
	return m
}

// percent returns part/total*100, or 0 when total is 0.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// groupOrdered buckets deals by key, keeping keys in first-appearance order.
// Deals for which key reports false are skipped.
func groupOrdered[K comparable](deals []models.Deal, key func(models.Deal) (K, bool)) ([]K, map[K][]models.Deal) {
	var order []K
	groups := make(map[K][]models.Deal)
	for _, d := range deals {
		k, ok := key(d)
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], d)
	}
	return order, groups
}
