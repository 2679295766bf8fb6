package normalization

import "token-backfill/internal/domain"

// FilterZeroValue keeps transactions whose value parses to an integer
// greater than zero, preserving order. It returns the kept records and the
// number dropped.
func FilterZeroValue(txs []*domain.Transaction) ([]*domain.Transaction, int) {
	kept := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		if v, ok := tx.ValueInt(); ok && v.Sign() > 0 {
			kept = append(kept, tx)
		}
	}
	return kept, len(txs) - len(kept)
}
