package models

import "time"

// Upstream CRM field names. Raw records are keyed exactly by these.
const (
	FieldID             = "ID"
	FieldTitle          = "TITLE"
	FieldCreatedAt      = "DATE_CREATE"
	FieldModifiedAt     = "DATE_MODIFY"
	FieldClosedAt       = "CLOSEDATE"
	FieldAmount         = "OPPORTUNITY"
	FieldStageSemantic  = "STAGE_SEMANTIC_ID"
	FieldAssignedBy     = "ASSIGNED_BY_ID"
	FieldCategoryID     = "CATEGORY_ID"
	FieldLastActivityAt = "LAST_ACTIVITY_TIME"
	FieldStageID        = "STAGE_ID"
)

// RawFields lists every field the system reads from a CRM deal, in the order
// used for CSV headers and database columns.
var RawFields = []string{
	FieldID,
	FieldTitle,
	FieldCreatedAt,
	FieldModifiedAt,
	FieldClosedAt,
	FieldAmount,
	FieldStageSemantic,
	FieldAssignedBy,
	FieldCategoryID,
	FieldLastActivityAt,
	FieldStageID,
}

// UnknownManager is the display name for deals whose manager could not be resolved.
const UnknownManager = "Unknown"

// RawDeal is one unprocessed CRM record as delivered by the upstream API.
// Values carry no schema guarantee: strings, JSON numbers, time.Time or nil.
type RawDeal map[string]any

// Stage is the won/lost/in-progress classification of a deal.
type Stage int

const (
	StageInProgress Stage = iota
	StageWon
	StageLost
)

func (s Stage) String() string {
	switch s {
	case StageWon:
		return "won"
	case StageLost:
		return "lost"
	default:
		return "in_progress"
	}
}

// Deal is the normalized, typed form of a RawDeal.
// Zero time values mean the source field was missing or unparseable.
type Deal struct {
	ID             string
	Title          string
	CreatedAt      time.Time
	ModifiedAt     time.Time
	ClosedAt       time.Time
	LastActivityAt time.Time
	Amount         float64
	Stage          Stage
	StageID        string
	IsWon          bool
	IsLost         bool
	ManagerID      string
	ManagerName    string
	CategoryID     string
}

// Snapshot is one batch of CRM data handed to the analytics engine.
type Snapshot struct {
	Deals      []RawDeal
	Users      map[string]string
	Categories map[string]string
	FetchedAt  time.Time
}
