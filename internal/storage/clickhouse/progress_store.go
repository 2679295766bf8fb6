package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// ProgressStore implements storage.ProgressStore on a ReplacingMergeTree
// versioned by last_sync_at. Every upsert appends a row; reads use FINAL.
type ProgressStore struct {
	conn *Conn
}

// NewProgressStore creates a new ClickHouse progress store.
func NewProgressStore(conn *Conn) *ProgressStore {
	return &ProgressStore{conn: conn}
}

var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the newest cursor row of a chain.
func (s *ProgressStore) Get(ctx context.Context, chainID int64) (*domain.SyncProgress, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT chain_id, last_processed_block, current_block, is_syncing, last_sync_at
		FROM sync_progress FINAL
		WHERE chain_id = ?
		ORDER BY last_sync_at DESC
		LIMIT 1
	`, chainID)

	var p domain.SyncProgress
	err := row.Scan(&p.ChainID, &p.LastProcessedBlock, &p.CurrentBlock, &p.IsSyncing, &p.LastSyncAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync progress: %w", err)
	}
	p.LastSyncAt = p.LastSyncAt.UTC()
	return &p, nil
}

// Upsert appends a new version of the chain's cursor.
func (s *ProgressStore) Upsert(ctx context.Context, progress *domain.SyncProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO sync_progress (chain_id, last_processed_block, current_block, is_syncing, last_sync_at)
		VALUES (?, ?, ?, ?, ?)
	`, progress.ChainID, progress.LastProcessedBlock, progress.CurrentBlock,
		progress.IsSyncing, progress.LastSyncAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert sync progress: %w", err)
	}
	return nil
}
