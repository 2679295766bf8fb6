package normalization

import (
	"fmt"

	"token-backfill/internal/domain"
)

// ErrOutOfOrder is returned when a page violates ascending block order.
var ErrOutOfOrder = fmt.Errorf("%w: transfers out of block order", domain.ErrNetwork)

// CheckAscending verifies that txs are ordered by block number ascending
// and do not start below prevBlock, the last block of the previous page.
// Returns the last block seen, or prevBlock for an empty page.
func CheckAscending(prevBlock uint64, txs []*domain.Transaction) (uint64, error) {
	last := prevBlock
	for i, tx := range txs {
		if tx.BlockNumber < last {
			return last, fmt.Errorf("%w: record %d (tx %s) at block %d after block %d",
				ErrOutOfOrder, i, tx.Hash, tx.BlockNumber, last)
		}
		last = tx.BlockNumber
	}
	return last, nil
}
