package mysql

import "time"

// transactionModel mirrors the token_transactions table. Amounts are kept
// as decimal strings because uint256 exceeds DECIMAL(65).
type transactionModel struct {
	Hash             string    `gorm:"column:hash;primaryKey;size:66"`
	BlockNumber      uint64    `gorm:"column:block_number;not null;index:idx_token_block,priority:2"`
	TransactionIndex uint32    `gorm:"column:transaction_index;not null"`
	FromAddress      string    `gorm:"column:from_address;size:42;not null;index"`
	ToAddress        string    `gorm:"column:to_address;size:42;not null;index"`
	Value            string    `gorm:"column:value;type:varchar(78);not null"`
	TokenAddress     string    `gorm:"column:token_address;size:42;not null;index:idx_token_block,priority:1"`
	TokenSymbol      string    `gorm:"column:token_symbol;size:32;not null"`
	TokenDecimals    uint8     `gorm:"column:token_decimals;not null"`
	GasUsed          string    `gorm:"column:gas_used;type:varchar(78);not null;default:'0'"`
	GasPrice         string    `gorm:"column:gas_price;type:varchar(78);not null;default:'0'"`
	Timestamp        time.Time `gorm:"column:timestamp;type:datetime(3);not null;index"`
	Status           string    `gorm:"column:status;size:16;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (transactionModel) TableName() string {
	return "token_transactions"
}

// progressModel mirrors the sync_progress table, one row per chain.
type progressModel struct {
	ChainID            int64     `gorm:"column:chain_id;primaryKey;autoIncrement:false"`
	LastProcessedBlock uint64    `gorm:"column:last_processed_block;not null"`
	CurrentBlock       uint64    `gorm:"column:current_block;not null"`
	IsSyncing          bool      `gorm:"column:is_syncing;not null;default:false"`
	LastSyncAt         time.Time `gorm:"column:last_sync_at;type:datetime(3);not null"`
}

func (progressModel) TableName() string {
	return "sync_progress"
}
