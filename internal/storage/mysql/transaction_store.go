package mysql

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// TransactionStore implements storage.TransactionStore with gorm.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// InsertSkipDuplicates inserts txs with one multi-row INSERT inside a
// transaction. Existing hashes hit ON DUPLICATE KEY UPDATE hash=hash, which
// MySQL reports as zero affected rows.
func (s *TransactionStore) InsertSkipDuplicates(ctx context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	models := make([]transactionModel, 0, len(txs))
	for _, t := range txs {
		m, err := toModel(t)
		if err != nil {
			return 0, err
		}
		models = append(models, m)
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert transactions: %w", err)
	}

	return int(inserted), nil
}

// GetByHash retrieves a transaction by hash.
func (s *TransactionStore) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	var m transactionModel
	err := s.db.WithContext(ctx).Where("hash = ?", strings.ToLower(hash)).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return fromModel(&m), nil
}

// CountByToken returns the number of stored transactions of a token contract.
func (s *TransactionStore) CountByToken(ctx context.Context, tokenAddress string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&transactionModel{}).
		Where("token_address = ?", strings.ToLower(tokenAddress)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// GetByToken retrieves a token's transactions in block order.
func (s *TransactionStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.Transaction, error) {
	var models []transactionModel
	err := s.db.WithContext(ctx).
		Where("token_address = ?", strings.ToLower(tokenAddress)).
		Order("block_number ASC, transaction_index ASC, hash ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	result := make([]*domain.Transaction, 0, len(models))
	for i := range models {
		result = append(result, fromModel(&models[i]))
	}
	return result, nil
}

func toModel(t *domain.Transaction) (transactionModel, error) {
	if t == nil || t.Hash == "" {
		return transactionModel{}, storage.ErrInvalidInput
	}
	for field, v := range map[string]string{"value": t.Value, "gas_used": orZero(t.GasUsed), "gas_price": orZero(t.GasPrice)} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return transactionModel{}, fmt.Errorf("%w: tx %s: invalid %s %q", storage.ErrInvalidInput, t.Hash, field, v)
		}
	}
	if !t.Status.IsValid() {
		return transactionModel{}, fmt.Errorf("%w: tx %s: invalid status %q", storage.ErrInvalidInput, t.Hash, t.Status)
	}

	return transactionModel{
		Hash:             strings.ToLower(t.Hash),
		BlockNumber:      t.BlockNumber,
		TransactionIndex: t.TransactionIndex,
		FromAddress:      t.FromAddress,
		ToAddress:        t.ToAddress,
		Value:            t.Value,
		TokenAddress:     t.TokenAddress,
		TokenSymbol:      t.TokenSymbol,
		TokenDecimals:    t.TokenDecimals,
		GasUsed:          orZero(t.GasUsed),
		GasPrice:         orZero(t.GasPrice),
		Timestamp:        t.Timestamp.UTC(),
		Status:           string(t.Status),
	}, nil
}

func fromModel(m *transactionModel) *domain.Transaction {
	return &domain.Transaction{
		Hash:             m.Hash,
		BlockNumber:      m.BlockNumber,
		TransactionIndex: m.TransactionIndex,
		FromAddress:      m.FromAddress,
		ToAddress:        m.ToAddress,
		Value:            m.Value,
		TokenAddress:     m.TokenAddress,
		TokenSymbol:      m.TokenSymbol,
		TokenDecimals:    m.TokenDecimals,
		GasUsed:          m.GasUsed,
		GasPrice:         m.GasPrice,
		Timestamp:        m.Timestamp.UTC(),
		Status:           domain.TxStatus(m.Status),
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
