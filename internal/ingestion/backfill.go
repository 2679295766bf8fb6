// Package ingestion moves token transfers from the chain data API into
// storage: page loop, conversion, filtering and chunked persistence.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"token-backfill/internal/chaindata"
	"token-backfill/internal/domain"
	"token-backfill/internal/logger"
	"token-backfill/internal/normalization"
	"token-backfill/internal/observability"
)

// Backfiller syncs the full history of one token at a time.
type Backfiller struct {
	source    chaindata.TransferSource
	persister *Persister
	logger    *logger.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Source    chaindata.TransferSource
	Persister *Persister
	Logger    *logger.Logger
}

// NewBackfiller creates a new historical data backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Backfiller{
		source:    opts.Source,
		persister: opts.Persister,
		logger:    log,
	}
}

// TokenResult contains statistics from syncing one token.
// Fetched == Saved + Filtered + Duplicates whenever the sync succeeds.
type TokenResult struct {
	Symbol     string
	Fetched    int
	Saved      int
	Filtered   int
	Duplicates int
	Pages      int
	LastBlock  uint64
	Duration   time.Duration
}

// Add accumulates other's counters into r.
func (r *TokenResult) Add(other *TokenResult) {
	if other == nil {
		return
	}
	r.Fetched += other.Fetched
	r.Saved += other.Saved
	r.Filtered += other.Filtered
	r.Duplicates += other.Duplicates
	r.Pages += other.Pages
}

// SyncToken walks the token's transfers from its deployment block up to
// endBlock (nil for the latest known block). Each page is converted,
// filtered and persisted before the next page is requested.
//
// The returned result is never nil; on error it holds the counts reached
// before the failure.
func (b *Backfiller) SyncToken(ctx context.Context, token domain.TokenConfig, endBlock *uint64) (*TokenResult, error) {
	start := time.Now()
	result := &TokenResult{Symbol: token.Symbol}
	log := b.logger.With("token", token.Symbol, "contract", token.ContractAddress)

	fields := []interface{}{"start_block", token.DeploymentBlock}
	if endBlock != nil {
		fields = append(fields, "end_block", *endBlock)
	}
	log.Infow("token sync started", fields...)

	lastBlock := token.DeploymentBlock
	_, err := chaindata.StreamTransfers(ctx, b.source, token.ContractAddress, token.DeploymentBlock, endBlock,
		func(ctx context.Context, page []domain.RawTransfer) error {
			txs, err := normalization.ConvertTransfers(token, page)
			if err != nil {
				return err
			}

			last, err := normalization.CheckAscending(lastBlock, txs)
			if err != nil {
				return err
			}

			kept, dropped := normalization.FilterZeroValue(txs)
			persisted, err := b.persister.Persist(ctx, kept)

			result.Fetched += len(page)
			result.Filtered += dropped
			result.Saved += persisted.Saved
			result.Duplicates += persisted.Duplicates
			result.Pages++
			observability.RecordPage(token.Symbol, len(page), persisted.Saved, dropped, persisted.Duplicates)

			if err != nil {
				return err
			}

			lastBlock = last
			result.LastBlock = last
			observability.UpdateLastProcessedBlock(token.Symbol, last)

			log.Debugw("page persisted",
				"page", result.Pages,
				"records", len(page),
				"saved", persisted.Saved,
				"filtered", dropped,
				"duplicates", persisted.Duplicates,
				"last_block", last,
			)
			return nil
		})
	result.Duration = time.Since(start)

	if err != nil {
		log.Errorw("token sync failed",
			"fetched", result.Fetched,
			"saved", result.Saved,
			"filtered", result.Filtered,
			"duplicates", result.Duplicates,
			"error", err,
		)
		return result, fmt.Errorf("sync %s: %w", token.Symbol, err)
	}

	log.Infow("token sync finished",
		"fetched", result.Fetched,
		"saved", result.Saved,
		"filtered", result.Filtered,
		"duplicates", result.Duplicates,
		"pages", result.Pages,
		"last_block", result.LastBlock,
		"duration", result.Duration,
	)
	return result, nil
}
