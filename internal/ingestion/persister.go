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

// DefaultChunkSize is the number of records committed per transaction.
const DefaultChunkSize = 1000

// PersistResult counts the outcome of one Persist call.
type PersistResult struct {
	Saved      int // newly inserted
	Duplicates int // skipped because the hash was already stored
	Chunks     int // chunks committed
}

// PersisterOptions contains configuration for creating a Persister.
type PersisterOptions struct {
	ChunkSize int
	Logger    *logger.Logger
}

// Persister writes transactions in fixed-size chunks, each committed
// atomically with insert-or-ignore semantics. Chunks run one after another.
type Persister struct {
	store     storage.TransactionStore
	chunkSize int
	log       *logger.Logger
}

// NewPersister creates a persister over store.
func NewPersister(store storage.TransactionStore, opts PersisterOptions) *Persister {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Persister{
		store:     store,
		chunkSize: chunkSize,
		log:       log,
	}
}

// ChunkSize returns the effective chunk size.
func (p *Persister) ChunkSize() int {
	return p.chunkSize
}

// Persist stores txs chunk by chunk. Duplicates are counted, never raised.
// The first failing chunk aborts the rest; chunks committed before it stay
// committed and are reflected in the returned result.
func (p *Persister) Persist(ctx context.Context, txs []*domain.Transaction) (PersistResult, error) {
	var result PersistResult

	for i := 0; i < len(txs); i += p.chunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := i + p.chunkSize
		if end > len(txs) {
			end = len(txs)
		}
		chunk := txs[i:end]

		start := time.Now()
		inserted, err := p.store.InsertSkipDuplicates(ctx, chunk)
		observability.RecordDBQuery("insert_chunk", time.Since(start).Seconds(), err)
		if err != nil {
			p.log.Errorw("chunk commit failed",
				"chunk", result.Chunks,
				"size", len(chunk),
				"error", err,
			)
			return result, fmt.Errorf("%w: chunk %d (%d records): %w", domain.ErrPersistence, result.Chunks, len(chunk), err)
		}

		result.Saved += inserted
		result.Duplicates += len(chunk) - inserted
		result.Chunks++
	}

	return result, nil
}
