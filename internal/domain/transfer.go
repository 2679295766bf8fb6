package domain

import (
	"math/big"
	"time"
)

// RawTransfer is one token transfer event as delivered by the chain data API.
// All fields are kept as the API's strings; conversion happens in normalization.
type RawTransfer struct {
	Hash             string
	BlockNumber      string
	TransactionIndex string
	LogIndex         string
	From             string
	To               string
	Value            string
	TokenDecimals    string
	GasUsed          string
	GasPrice         string
	TimeStamp        string // unix seconds
	StatusCode       string
}

// TxStatus is the normalized execution status of a transaction.
type TxStatus string

const (
	StatusSuccess TxStatus = "SUCCESS"
	StatusFailed  TxStatus = "FAILED"
)

// IsValid reports whether s is a known status.
func (s TxStatus) IsValid() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Transaction is the canonical, persisted transfer record.
// Hash is the unique key; records are never updated after insert.
type Transaction struct {
	Hash             string
	BlockNumber      uint64
	TransactionIndex uint32
	FromAddress      string
	ToAddress        string
	Value            string // base-10 integer, uint256 range
	TokenAddress     string
	TokenSymbol      string
	TokenDecimals    uint8
	GasUsed          string // base-10 integer
	GasPrice         string // base-10 integer
	Timestamp        time.Time
	Status           TxStatus
}

// ValueInt parses Value as a base-10 integer.
func (t *Transaction) ValueInt() (*big.Int, bool) {
	return new(big.Int).SetString(t.Value, 10)
}
