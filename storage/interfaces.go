package storage

import (
	"context"

	"sales-funnel-analytics/models"
)

// SnapshotSource is anything that can hand over a raw CRM snapshot: the
// Bitrix24 client, a CSV export or the PostgreSQL mirror.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
}

// SnapshotWriter persists an unprocessed snapshot.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snap *models.Snapshot) error
	Close() error
}
