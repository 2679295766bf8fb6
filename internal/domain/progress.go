package domain

import "time"

// SyncProgress is the resumable cursor of one chain.
// A continuous scanner resumes at LastProcessedBlock + 1.
type SyncProgress struct {
	ChainID            int64
	LastProcessedBlock uint64
	CurrentBlock       uint64
	IsSyncing          bool
	LastSyncAt         time.Time
}
