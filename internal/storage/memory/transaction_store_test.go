package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

const tokenAddr = "0xc2132d05d31c914a87c6611c10748aeb04b58e8f"

func makeTx(n int, block uint64) *domain.Transaction {
	return &domain.Transaction{
		Hash:          fmt.Sprintf("0x%064x", n),
		BlockNumber:   block,
		FromAddress:   "0x1111111111111111111111111111111111111111",
		ToAddress:     "0x2222222222222222222222222222222222222222",
		Value:         "1000",
		TokenAddress:  tokenAddr,
		TokenSymbol:   "USDT",
		TokenDecimals: 6,
		GasUsed:       "0",
		GasPrice:      "0",
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		Status:        domain.StatusSuccess,
	}
}

func TestTransactionStore_InsertAndGet(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	inserted, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{makeTx(1, 10), makeTx(2, 11)})
	if err != nil {
		t.Fatalf("InsertSkipDuplicates failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}

	got, err := store.GetByHash(ctx, makeTx(1, 10).Hash)
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.BlockNumber != 10 || got.Value != "1000" {
		t.Errorf("Unexpected transaction: %+v", got)
	}

	if _, err := store.GetByHash(ctx, "0xmissing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransactionStore_SkipsDuplicates(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if _, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{makeTx(1, 10)}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// One stored duplicate, one intra-batch duplicate, one new row.
	batch := []*domain.Transaction{makeTx(1, 10), makeTx(2, 11), makeTx(2, 11)}
	inserted, err := store.InsertSkipDuplicates(ctx, batch)
	if err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected 1 inserted, got %d", inserted)
	}
	if store.Len() != 2 {
		t.Errorf("Expected 2 stored, got %d", store.Len())
	}
}

func TestTransactionStore_DuplicateNeverOverwrites(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	original := makeTx(1, 10)
	if _, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{original}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	changed := makeTx(1, 10)
	changed.Value = "999999"
	if _, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{changed}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByHash(ctx, original.Hash)
	if got.Value != "1000" {
		t.Errorf("Duplicate overwrote stored row: value %s", got.Value)
	}
}

func TestTransactionStore_InvalidRowRejectsWholeBatch(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	bad := makeTx(3, 12)
	bad.Value = "not-a-number"

	inserted, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{makeTx(1, 10), makeTx(2, 11), bad})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted, got %d", inserted)
	}
	if store.Len() != 0 {
		t.Errorf("Partial batch stored: %d rows", store.Len())
	}

	if _, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{makeTx(1, 10), nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil row, got %v", err)
	}
}

func TestTransactionStore_RejectsOutOfRangeValues(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for _, value := range []string{"0", "-5", "1" + strings.Repeat("0", 78)} {
		bad := makeTx(1, 10)
		bad.Value = value

		if _, err := store.InsertSkipDuplicates(ctx, []*domain.Transaction{bad}); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Value %q: expected ErrInvalidInput, got %v", value, err)
		}
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d rows", store.Len())
	}
}

func TestTransactionStore_GetByTokenOrdered(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	other := makeTx(9, 1)
	other.TokenAddress = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"

	batch := []*domain.Transaction{makeTx(3, 30), makeTx(1, 10), makeTx(2, 20), other}
	if _, err := store.InsertSkipDuplicates(ctx, batch); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByToken(ctx, tokenAddr)
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(result))
	}
	for i, want := range []uint64{10, 20, 30} {
		if result[i].BlockNumber != want {
			t.Errorf("Position %d: block %d, want %d", i, result[i].BlockNumber, want)
		}
	}

	count, err := store.CountByToken(ctx, tokenAddr)
	if err != nil {
		t.Fatalf("CountByToken failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func TestTransactionStore_EmptyBatch(t *testing.T) {
	store := NewTransactionStore()

	inserted, err := store.InsertSkipDuplicates(context.Background(), nil)
	if err != nil || inserted != 0 {
		t.Errorf("Expected (0, nil), got (%d, %v)", inserted, err)
	}
}
