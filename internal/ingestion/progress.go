package ingestion

import (
	"context"
	"fmt"
	"time"

	"token-backfill/internal/domain"
	"token-backfill/internal/logger"
	"token-backfill/internal/observability"
	"token-backfill/internal/storage"
)

// ProgressTracker reads and writes the resumable cursor of one chain.
type ProgressTracker struct {
	store   storage.ProgressStore
	chainID int64
	now     func() time.Time
	log     *logger.Logger
}

// NewProgressTracker creates a tracker for chainID.
func NewProgressTracker(store storage.ProgressStore, chainID int64, log *logger.Logger) *ProgressTracker {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressTracker{
		store:   store,
		chainID: chainID,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// ChainID returns the chain the tracker writes for.
func (t *ProgressTracker) ChainID() int64 {
	return t.chainID
}

// Load returns the stored cursor, or storage.ErrNotFound before the first
// completed run.
func (t *ProgressTracker) Load(ctx context.Context) (*domain.SyncProgress, error) {
	return t.store.Get(ctx, t.chainID)
}

// Commit records endBlock as fully synced. A continuous scanner resumes at
// endBlock+1.
func (t *ProgressTracker) Commit(ctx context.Context, endBlock uint64) error {
	progress := &domain.SyncProgress{
		ChainID:            t.chainID,
		LastProcessedBlock: endBlock,
		CurrentBlock:       endBlock,
		IsSyncing:          false,
		LastSyncAt:         t.now(),
	}

	start := time.Now()
	err := t.store.Upsert(ctx, progress)
	observability.RecordDBQuery("upsert_progress", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("%w: commit progress at block %d: %w", domain.ErrPersistence, endBlock, err)
	}

	observability.RecordCursorCommit(endBlock, progress.LastSyncAt.Unix())
	t.log.Infow("progress committed",
		"chain_id", t.chainID,
		"last_processed_block", endBlock,
	)
	return nil
}
