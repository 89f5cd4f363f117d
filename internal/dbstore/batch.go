package dbstore

import (
	"context"
	"fmt"
	"time"

	"github.com/adarchive/crcore/internal/creative"
)

const batchStatusPending = "pending"
const batchStatusLeased = "leased"
const batchStatusCompleted = "completed"

// LeaseBatch implements BatchStore. It finds one pending batch and claims
// it with a lightweight transaction so that a leased batch is never handed
// to a second worker before it is released or completed (spec §5: "must
// guarantee that a leased batch is not handed to a second worker until it
// is released or completed").
func (s *Store) LeaseBatch(ctx context.Context) (creative.Batch, bool, error) {
	iter := s.session.Query(`SELECT batch_id, archive_ids FROM fetch_batches WHERE status = ? ALLOW FILTERING`, batchStatusPending).
		WithContext(ctx).Iter()

	var batchID int64
	var archiveIDs []int64
	for iter.Scan(&batchID, &archiveIDs) {
		applied, err := s.session.Query(
			`UPDATE fetch_batches SET status = ?, leased_at = ? WHERE batch_id = ? IF status = ?`,
			batchStatusLeased, time.Now(), batchID, batchStatusPending,
		).WithContext(ctx).ScanCAS()
		if err != nil {
			_ = iter.Close()
			return creative.Batch{}, false, fmt.Errorf("lease batch %d: %w", batchID, err)
		}
		if applied {
			if err := iter.Close(); err != nil {
				return creative.Batch{}, false, fmt.Errorf("lease batch: %w", err)
			}
			return toBatch(batchID, archiveIDs), true, nil
		}
		// Lost the race to another worker; try the next pending batch.
	}
	if err := iter.Close(); err != nil {
		return creative.Batch{}, false, fmt.Errorf("list pending batches: %w", err)
	}
	return creative.Batch{}, false, nil
}

// ReleaseBatch implements BatchStore.
func (s *Store) ReleaseBatch(ctx context.Context, batchID int64) error {
	err := s.session.Query(
		`UPDATE fetch_batches SET status = ?, leased_at = NULL WHERE batch_id = ?`,
		batchStatusPending, batchID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("release batch %d: %w", batchID, err)
	}
	return nil
}

// CompleteBatch implements BatchStore.
func (s *Store) CompleteBatch(ctx context.Context, batchID int64) error {
	err := s.session.Query(
		`UPDATE fetch_batches SET status = ?, completed_at = ? WHERE batch_id = ?`,
		batchStatusCompleted, time.Now(), batchID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("complete batch %d: %w", batchID, err)
	}
	return nil
}

func toBatch(batchID int64, archiveIDs []int64) creative.Batch {
	ids := make([]creative.ArchiveID, len(archiveIDs))
	for i, v := range archiveIDs {
		ids[i] = creative.ArchiveID(v)
	}
	return creative.Batch{BatchID: batchID, ArchiveIDs: ids}
}
