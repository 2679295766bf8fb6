package storage

import (
	"context"

	"token-backfill/internal/domain"
)

// TransactionStore provides access to token_transactions storage.
// Rows are keyed by transaction hash and never updated after insert.
type TransactionStore interface {
	// InsertSkipDuplicates inserts txs in one atomic unit, silently skipping
	// rows whose hash is already stored or repeated within txs. Returns the
	// number of newly inserted rows. On error nothing from txs is stored.
	InsertSkipDuplicates(ctx context.Context, txs []*domain.Transaction) (int, error)

	// GetByHash retrieves a transaction. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash string) (*domain.Transaction, error)

	// CountByToken returns the number of stored transactions of a token contract.
	CountByToken(ctx context.Context, tokenAddress string) (int64, error)

	// GetByToken retrieves a token's transactions ordered by
	// (block_number, transaction_index, hash) ASC.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.Transaction, error)
}

// ProgressStore persists the resumable per-chain cursor. One row per chain.
type ProgressStore interface {
	// Get returns the cursor of a chain. Returns ErrNotFound if no run has
	// completed yet.
	Get(ctx context.Context, chainID int64) (*domain.SyncProgress, error)

	// Upsert creates or replaces the cursor row of progress.ChainID.
	Upsert(ctx context.Context, progress *domain.SyncProgress) error
}
