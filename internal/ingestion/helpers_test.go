package ingestion

import (
	"context"
	"fmt"
	"strconv"

	"token-backfill/internal/domain"
	"token-backfill/internal/storage"
)

const (
	testContract = "0xc2132d05d31c914a87c6611c10748aeb04b58e8f"
	fromAddr     = "0x1111111111111111111111111111111111111111"
	toAddr       = "0x2222222222222222222222222222222222222222"
)

var testToken = domain.TokenConfig{
	Symbol:          "USDT",
	ContractAddress: testContract,
	DeploymentBlock: 100,
	Decimals:        6,
}

func rawTransfer(n int, block uint64, value string) domain.RawTransfer {
	return domain.RawTransfer{
		Hash:             fmt.Sprintf("0x%064x", n),
		BlockNumber:      strconv.FormatUint(block, 10),
		TransactionIndex: "0",
		LogIndex:         strconv.Itoa(n),
		From:             fromAddr,
		To:               toAddr,
		Value:            value,
		TokenDecimals:    "6",
		GasUsed:          "21000",
		GasPrice:         "30000000000",
		TimeStamp:        "1700000000",
		StatusCode:       "1",
	}
}

func makeTxs(n int) []*domain.Transaction {
	txs := make([]*domain.Transaction, n)
	for i := range txs {
		txs[i] = &domain.Transaction{
			Hash:          fmt.Sprintf("0x%064x", i+1),
			BlockNumber:   uint64(100 + i),
			FromAddress:   fromAddr,
			ToAddress:     toAddr,
			Value:         "1000",
			TokenAddress:  testContract,
			TokenSymbol:   "USDT",
			TokenDecimals: 6,
			GasUsed:       "0",
			GasPrice:      "0",
			Status:        domain.StatusSuccess,
		}
	}
	return txs
}

// failingStore fails the insert call with index failOn (0-based).
type failingStore struct {
	storage.TransactionStore
	failOn int
	calls  int
	err    error
}

func (s *failingStore) InsertSkipDuplicates(ctx context.Context, txs []*domain.Transaction) (int, error) {
	call := s.calls
	s.calls++
	if call == s.failOn {
		return 0, s.err
	}
	return s.TransactionStore.InsertSkipDuplicates(ctx, txs)
}

// failingProgressStore rejects every upsert.
type failingProgressStore struct {
	storage.ProgressStore
	err error
}

func (s *failingProgressStore) Upsert(context.Context, *domain.SyncProgress) error {
	return s.err
}
