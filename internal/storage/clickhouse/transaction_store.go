package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

// TransactionStore implements storage.TransactionStore using ClickHouse.
//
// ClickHouse has no unique constraint, so hashes already present are read
// before the insert and the remaining rows go out in a single block, which
// the server applies atomically. ReplacingMergeTree ORDER BY hash collapses
// anything a concurrent writer slips in.
type TransactionStore struct {
	conn *Conn
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(conn *Conn) *TransactionStore {
	return &TransactionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

type chRow struct {
	tx                       *domain.Transaction
	hash                     string
	value, gasUsed, gasPrice *big.Int
}

// InsertSkipDuplicates inserts the rows of txs whose hash is not stored yet.
func (s *TransactionStore) InsertSkipDuplicates(ctx context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	rows := make([]chRow, 0, len(txs))
	hashes := make([]string, 0, len(txs))
	for _, t := range txs {
		row, err := toRow(t)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
		hashes = append(hashes, row.hash)
	}

	seen, err := s.existingHashes(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("check existing: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_transactions (
			hash, block_number, transaction_index, from_address, to_address, value,
			token_address, token_symbol, token_decimals, gas_used, gas_price, timestamp, status
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	appended := 0
	for _, r := range rows {
		if _, dup := seen[r.hash]; dup {
			continue
		}
		seen[r.hash] = struct{}{}

		t := r.tx
		err = batch.Append(
			r.hash, t.BlockNumber, t.TransactionIndex, t.FromAddress, t.ToAddress, r.value,
			t.TokenAddress, t.TokenSymbol, t.TokenDecimals, r.gasUsed, r.gasPrice,
			t.Timestamp.UTC(), string(t.Status),
		)
		if err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("append to batch: %w", err)
		}
		appended++
	}

	if appended == 0 {
		_ = batch.Abort()
		return 0, nil
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return appended, nil
}

func toRow(t *domain.Transaction) (chRow, error) {
	if t == nil || t.Hash == "" {
		return chRow{}, storage.ErrInvalidInput
	}
	value, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return chRow{}, fmt.Errorf("%w: tx %s: invalid value %q", storage.ErrInvalidInput, t.Hash, t.Value)
	}
	gasUsed, ok := new(big.Int).SetString(orZero(t.GasUsed), 10)
	if !ok {
		return chRow{}, fmt.Errorf("%w: tx %s: invalid gas used %q", storage.ErrInvalidInput, t.Hash, t.GasUsed)
	}
	gasPrice, ok := new(big.Int).SetString(orZero(t.GasPrice), 10)
	if !ok {
		return chRow{}, fmt.Errorf("%w: tx %s: invalid gas price %q", storage.ErrInvalidInput, t.Hash, t.GasPrice)
	}
	if value.Sign() < 0 || gasUsed.Sign() < 0 || gasPrice.Sign() < 0 {
		return chRow{}, fmt.Errorf("%w: tx %s: negative amount", storage.ErrInvalidInput, t.Hash)
	}
	return chRow{tx: t, hash: strings.ToLower(t.Hash), value: value, gasUsed: gasUsed, gasPrice: gasPrice}, nil
}

// existingHashes returns the subset of hashes already stored.
func (s *TransactionStore) existingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT hash FROM token_transactions WHERE has(?, hash)
	`, hashes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(hashes))
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		found[h] = struct{}{}
	}
	return found, rows.Err()
}

const selectTransactionColumns = `
	hash, block_number, transaction_index, from_address, to_address, value,
	token_address, token_symbol, token_decimals, gas_used, gas_price, timestamp, status
`

// GetByHash retrieves a transaction by hash.
func (s *TransactionStore) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+selectTransactionColumns+` FROM token_transactions FINAL WHERE hash = ? LIMIT 1`,
		strings.ToLower(hash))

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// CountByToken returns the number of distinct stored transactions of a token.
func (s *TransactionStore) CountByToken(ctx context.Context, tokenAddress string) (int64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx,
		`SELECT uniqExact(hash) FROM token_transactions WHERE token_address = ?`,
		strings.ToLower(tokenAddress)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return int64(n), nil
}

// GetByToken retrieves a token's transactions in block order.
func (s *TransactionStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.Transaction, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+selectTransactionColumns+`
		FROM token_transactions FINAL
		WHERE token_address = ?
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

// scanner is satisfied by both driver.Row and driver.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var (
		t                        domain.Transaction
		value, gasUsed, gasPrice big.Int
		timestamp                time.Time
		status                   string
	)

	err := row.Scan(
		&t.Hash,
		&t.BlockNumber,
		&t.TransactionIndex,
		&t.FromAddress,
		&t.ToAddress,
		&value,
		&t.TokenAddress,
		&t.TokenSymbol,
		&t.TokenDecimals,
		&gasUsed,
		&gasPrice,
		&timestamp,
		&status,
	)
	if err != nil {
		return nil, err
	}

	t.Value = value.String()
	t.GasUsed = gasUsed.String()
	t.GasPrice = gasPrice.String()
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
