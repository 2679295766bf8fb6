package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const insertTransactionSQL = `
	INSERT INTO token_transactions (
		hash, block_number, transaction_index, from_address, to_address, value,
		token_address, token_symbol, token_decimals, gas_used, gas_price, timestamp, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (hash) DO NOTHING
`

const selectTransactionColumns = `
	hash, block_number, transaction_index, from_address, to_address, value,
	token_address, token_symbol, token_decimals, gas_used, gas_price, timestamp, status
`

// InsertSkipDuplicates inserts txs in one transaction. Conflicting hashes are
// skipped by ON CONFLICT DO NOTHING and do not count as inserted; any other
// failure rolls back the whole batch.
func (s *TransactionStore) InsertSkipDuplicates(ctx context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range txs {
		if t == nil || t.Hash == "" {
			return 0, storage.ErrInvalidInput
		}
		args, err := insertArgs(t)
		if err != nil {
			return 0, fmt.Errorf("%w: tx %s: %v", storage.ErrInvalidInput, t.Hash, err)
		}
		batch.Queue(insertTransactionSQL, args...)
	}

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx)

	results := dbtx.SendBatch(ctx, batch)
	inserted := 0
	for i := range txs {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			if isRejectedRowError(err) {
				return 0, fmt.Errorf("%w: transaction %s: %v", storage.ErrInvalidInput, txs[i].Hash, err)
			}
			return 0, fmt.Errorf("insert transaction %s: %w", txs[i].Hash, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

func insertArgs(t *domain.Transaction) ([]any, error) {
	value, err := toNumeric(t.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	gasUsed, err := toNumeric(orZero(t.GasUsed))
	if err != nil {
		return nil, fmt.Errorf("gas_used: %w", err)
	}
	gasPrice, err := toNumeric(orZero(t.GasPrice))
	if err != nil {
		return nil, fmt.Errorf("gas_price: %w", err)
	}

	return []any{
		strings.ToLower(t.Hash),
		int64(t.BlockNumber),
		int32(t.TransactionIndex),
		t.FromAddress,
		t.ToAddress,
		value,
		t.TokenAddress,
		t.TokenSymbol,
		int16(t.TokenDecimals),
		gasUsed,
		gasPrice,
		t.Timestamp,
		string(t.Status),
	}, nil
}

// GetByHash retrieves a transaction by hash.
func (s *TransactionStore) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectTransactionColumns+` FROM token_transactions WHERE hash = $1`,
		strings.ToLower(hash))

	t, err := scanTransaction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// CountByToken returns the number of stored transactions of a token contract.
func (s *TransactionStore) CountByToken(ctx context.Context, tokenAddress string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM token_transactions WHERE token_address = $1`,
		strings.ToLower(tokenAddress)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// GetByToken retrieves a token's transactions in block order.
func (s *TransactionStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectTransactionColumns+`
		FROM token_transactions
		WHERE token_address = $1
		ORDER BY block_number ASC, transaction_index ASC, hash ASC
	`, strings.ToLower(tokenAddress))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                        domain.Transaction
		block                    int64
		txIndex                  int32
		decimals                 int16
		value, gasUsed, gasPrice pgtype.Numeric
		timestamp                time.Time
		status                   string
	)

	err := row.Scan(
		&t.Hash,
		&block,
		&txIndex,
		&t.FromAddress,
		&t.ToAddress,
		&value,
		&t.TokenAddress,
		&t.TokenSymbol,
		&decimals,
		&gasUsed,
		&gasPrice,
		&timestamp,
		&status,
	)
	if err != nil {
		return nil, err
	}

	t.BlockNumber = uint64(block)
	t.TransactionIndex = uint32(txIndex)
	t.TokenDecimals = uint8(decimals)
	t.Value = fromNumeric(value)
	t.GasUsed = fromNumeric(gasUsed)
	t.GasPrice = fromNumeric(gasPrice)
	t.Timestamp = timestamp.UTC()
	t.Status = domain.TxStatus(status)
	return &t, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
