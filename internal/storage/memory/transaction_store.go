package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Transaction // keyed by hash
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[string]*domain.Transaction),
	}
}

// InsertSkipDuplicates adds txs atomically, skipping hashes already stored
// or repeated within the batch. An invalid row rejects the whole batch.
func (s *TransactionStore) InsertSkipDuplicates(_ context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	// First pass: validate everything before touching data.
	for _, tx := range txs {
		if !isValid(tx) {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, tx := range txs {
		key := strings.ToLower(tx.Hash)
		if _, exists := s.data[key]; exists {
			continue
		}
		copy := *tx
		s.data[key] = &copy
		inserted++
	}
	return inserted, nil
}

// GetByHash retrieves a transaction by hash.
func (s *TransactionStore) GetByHash(_ context.Context, hash string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.data[strings.ToLower(hash)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *tx
	return &copy, nil
}

// CountByToken returns the number of stored transactions of a token contract.
func (s *TransactionStore) CountByToken(_ context.Context, tokenAddress string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, tx := range s.data {
		if strings.EqualFold(tx.TokenAddress, tokenAddress) {
			n++
		}
	}
	return n, nil
}

// GetByToken retrieves a token's transactions in block order.
func (s *TransactionStore) GetByToken(_ context.Context, tokenAddress string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.data {
		if strings.EqualFold(tx.TokenAddress, tokenAddress) {
			copy := *tx
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TransactionIndex != b.TransactionIndex {
			return a.TransactionIndex < b.TransactionIndex
		}
		return a.Hash < b.Hash
	})

	return result, nil
}

// Len returns the total number of stored transactions.
func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// maxValueDigits matches the NUMERIC(78, 0) value column.
const maxValueDigits = 78

// isValid mirrors the NOT NULL, CHECK and type constraints of the SQL schema.
func isValid(tx *domain.Transaction) bool {
	if tx == nil || tx.Hash == "" || tx.TokenAddress == "" {
		return false
	}
	v, ok := tx.ValueInt()
	if !ok || v.Sign() <= 0 || len(v.String()) > maxValueDigits {
		return false
	}
	return tx.Status.IsValid()
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
