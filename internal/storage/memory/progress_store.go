package memory

import (
	"context"
	"sync"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// ProgressStore is an in-memory implementation of storage.ProgressStore.
type ProgressStore struct {
	mu   sync.RWMutex
	rows map[int64]domain.SyncProgress
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		rows: make(map[int64]domain.SyncProgress),
	}
}

// Get returns the cursor of a chain.
func (s *ProgressStore) Get(_ context.Context, chainID int64) (*domain.SyncProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.rows[chainID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// Upsert creates or replaces the cursor of progress.ChainID.
func (s *ProgressStore) Upsert(_ context.Context, progress *domain.SyncProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[progress.ChainID] = *progress
	return nil
}

var _ storage.ProgressStore = (*ProgressStore)(nil)
