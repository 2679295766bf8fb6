package domain

// TokenConfig is a registry entry for one tracked token contract.
// Values are immutable once loaded.
type TokenConfig struct {
	Symbol          string // unique ticker, upper-case
	ContractAddress string // lower-case 0x-prefixed hex
	DeploymentBlock uint64 // first block the contract could emit events
	Decimals        uint8  // informational; transfer records carry their own
}
