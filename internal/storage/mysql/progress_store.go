package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// ProgressStore implements storage.ProgressStore with gorm.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the cursor of a chain.
func (s *ProgressStore) Get(ctx context.Context, chainID int64) (*domain.SyncProgress, error) {
	var m progressModel
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync progress: %w", err)
	}

	return &domain.SyncProgress{
		ChainID:            m.ChainID,
		LastProcessedBlock: m.LastProcessedBlock,
		CurrentBlock:       m.CurrentBlock,
		IsSyncing:          m.IsSyncing,
		LastSyncAt:         m.LastSyncAt.UTC(),
	}, nil
}

// Upsert creates the chain's row or overwrites every cursor column.
func (s *ProgressStore) Upsert(ctx context.Context, progress *domain.SyncProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	m := progressModel{
		ChainID:            progress.ChainID,
		LastProcessedBlock: progress.LastProcessedBlock,
		CurrentBlock:       progress.CurrentBlock,
		IsSyncing:          progress.IsSyncing,
		LastSyncAt:         progress.LastSyncAt.UTC(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_processed_block", "current_block", "is_syncing", "last_sync_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("upsert sync progress: %w", err)
	}
	return nil
}
