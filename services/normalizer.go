package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"sales-funnel-analytics/models"
	"sales-funnel-analytics/utils"
)

// dateLayouts are tried in order when parsing CRM timestamps.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

// NormalizeStats counts field-level coercion failures in one Normalize call.
type NormalizeStats struct {
	Records        int
	BadDates       int
	BadAmounts     int
	UnknownManager int
}

// Normalizer coerces raw CRM deals into typed Deals. A bad field degrades to
// its zero value and never invalidates the record.
type Normalizer struct {
	logger *utils.Logger
	loc    *time.Location
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithLocation sets the zone for timestamps that carry no offset of their
// own. The default is UTC.
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{logger: logger, loc: time.UTC}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts raw deals using users as the manager id→name lookup.
// When users is empty the raw manager id doubles as the display name.
func (n *Normalizer) Normalize(raw []models.RawDeal, users map[string]string) []models.Deal {
	deals, stats := n.NormalizeWithStats(raw, users)
	n.logger.Info("[normalizer] Normalized %d deals (bad dates: %d, bad amounts: %d, unknown managers: %d)",
		stats.Records, stats.BadDates, stats.BadAmounts, stats.UnknownManager)
	return deals
}

// NormalizeWithStats is Normalize that also reports coercion failures.
func (n *Normalizer) NormalizeWithStats(raw []models.RawDeal, users map[string]string) ([]models.Deal, NormalizeStats) {
	stats := NormalizeStats{Records: len(raw)}
	result := make([]models.Deal, 0, len(raw))

	for _, r := range raw {
		id := coerceID(r[models.FieldID])

		date := func(field string) time.Time {
			v, present := r[field]
			t, ok := parseTime(v, n.loc)
			if !ok && present && !isBlank(v) {
				stats.BadDates++
				n.logger.Debug("[normalizer] Deal %s: unparseable %s %v", id, field, v)
			}
			return t
		}

		amount, ok := parseAmount(r[models.FieldAmount])
		if !ok {
			stats.BadAmounts++
			n.logger.Debug("[normalizer] Deal %s: invalid %s %v, using 0", id, models.FieldAmount, r[models.FieldAmount])
		}

		stage := parseStage(r[models.FieldStageSemantic])
		managerID := coerceID(r[models.FieldAssignedBy])
		managerName := resolveManager(managerID, users)
		if managerName == models.UnknownManager {
			stats.UnknownManager++
		}

		result = append(result, models.Deal{
			ID:             id,
			Title:          normaliseText(coerceString(r[models.FieldTitle])),
			CreatedAt:      date(models.FieldCreatedAt),
			ModifiedAt:     date(models.FieldModifiedAt),
			ClosedAt:       date(models.FieldClosedAt),
			LastActivityAt: date(models.FieldLastActivityAt),
			Amount:         amount,
			Stage:          stage,
			StageID:        coerceID(r[models.FieldStageID]),
			IsWon:          stage == models.StageWon,
			IsLost:         stage == models.StageLost,
			ManagerID:      managerID,
			ManagerName:    managerName,
			CategoryID:     coerceID(r[models.FieldCategoryID]),
		})
	}

	return result, stats
}

// parseStage maps STAGE_SEMANTIC_ID to a Stage. Bitrix24 reports S/F/P on
// some endpoints and WON/LOSE on others.
func parseStage(v any) models.Stage {
	switch strings.ToUpper(strings.TrimSpace(coerceString(v))) {
	case "WON", "S":
		return models.StageWon
	case "LOSE", "LOST", "F":
		return models.StageLost
	default:
		return models.StageInProgress
	}
}

func resolveManager(id string, users map[string]string) string {
	if id == "" {
		return models.UnknownManager
	}
	if len(users) == 0 {
		return id
	}
	if name := strings.TrimSpace(users[id]); name != "" {
		return name
	}
	return models.UnknownManager
}

// parseAmount returns a finite, non-negative amount. ok is false when a
// present value had to be replaced by 0.
func parseAmount(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, true
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// parseTime returns the zero time and false for missing or invalid input.
// Strings without an offset are read in loc.
func parseTime(v any, loc *time.Location) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// coerceID renders identifiers uniformly: integral JSON numbers lose their
// fractional part so 7 and "7" address the same manager.
func coerceID(v any) string {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	}
	return strings.TrimSpace(coerceString(v))
}

func coerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
