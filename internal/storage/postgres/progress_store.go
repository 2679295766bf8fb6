package postgres

import (
	"context"
	"fmt"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// ProgressStore is a PostgreSQL implementation of storage.ProgressStore
// backed by the sync_progress table, one row per chain id.
type ProgressStore struct {
	pool *Pool
}

// NewProgressStore creates a new PostgreSQL progress store.
func NewProgressStore(pool *Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the cursor of a chain.
func (s *ProgressStore) Get(ctx context.Context, chainID int64) (*domain.SyncProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, last_processed_block, current_block, is_syncing, last_sync_at
		FROM sync_progress
		WHERE chain_id = $1
	`, chainID)

	var (
		p                   domain.SyncProgress
		lastBlock, curBlock int64
	)
	err := row.Scan(&p.ChainID, &lastBlock, &curBlock, &p.IsSyncing, &p.LastSyncAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync progress: %w", err)
	}

	p.LastProcessedBlock = uint64(lastBlock)
	p.CurrentBlock = uint64(curBlock)
	p.LastSyncAt = p.LastSyncAt.UTC()
	return &p, nil
}

// Upsert creates the chain's row or overwrites it.
func (s *ProgressStore) Upsert(ctx context.Context, progress *domain.SyncProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_progress (chain_id, last_processed_block, current_block, is_syncing, last_sync_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block,
		    current_block = EXCLUDED.current_block,
		    is_syncing = EXCLUDED.is_syncing,
		    last_sync_at = EXCLUDED.last_sync_at
	`, progress.ChainID, int64(progress.LastProcessedBlock), int64(progress.CurrentBlock),
		progress.IsSyncing, progress.LastSyncAt)
	if err != nil {
		return fmt.Errorf("upsert sync progress: %w", err)
	}
	return nil
}
