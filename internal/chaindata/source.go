// Package chaindata fetches historical token transfers from an external,
// paginated chain data API.
package chaindata

import (
	"context"
	"errors"
	"io"

	"token-backfill/internal/domain"
)

// TransferSource yields the transfers of one token contract in ascending
// block order.
type TransferSource interface {
	// Transfers returns an iterator over [startBlock, endBlock]. A nil
	// endBlock means up to the latest block the API knows of.
	Transfers(contract string, startBlock uint64, endBlock *uint64) PageIterator
}

// PageIterator pulls one page at a time. Next never returns an empty page;
// it returns io.EOF once the range is exhausted.
type PageIterator interface {
	Next(ctx context.Context) ([]domain.RawTransfer, error)
}

// PageHandler consumes one page. Returning an error stops the stream.
type PageHandler func(ctx context.Context, page []domain.RawTransfer) error

// StreamTransfers drives an iterator to completion, handing each page to
// onPage before the next one is fetched. It returns the number of raw
// records delivered.
func StreamTransfers(ctx context.Context, src TransferSource, contract string, startBlock uint64, endBlock *uint64, onPage PageHandler) (int, error) {
	it := src.Transfers(contract, startBlock, endBlock)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		page, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		total += len(page)
		if err := onPage(ctx, page); err != nil {
			return total, err
		}
	}
}
