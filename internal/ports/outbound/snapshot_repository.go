package outbound

import (
	"context"

	"github.com/archon-research/multiread/internal/domain/entity"
)

// SnapshotRepository persists market snapshots.
type SnapshotRepository interface {
	// SaveSnapshots stores snapshots; snapshots already stored for a block are left untouched.
	SaveSnapshots(ctx context.Context, snapshots []*entity.Snapshot) error

	// GetSnapshot returns the snapshot stored for a block.
	// Returns nil, nil if none exists.
	GetSnapshot(ctx context.Context, source string, blockNumber int64) (*entity.Snapshot, error)
}
