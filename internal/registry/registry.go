// Package registry holds the fixed set of token contracts a run can sync.
package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"token-backfill/internal/domain"
)

// SelectAll selects every token in the registry and makes the run a full run.
const SelectAll = "ALL"

// Registry is an immutable, ordered set of token configurations.
// Accessors return copies.
type Registry struct {
	tokens   []domain.TokenConfig
	bySymbol map[string]int
}

type fileFormat struct {
	Tokens []fileToken `yaml:"tokens"`
}

type fileToken struct {
	Symbol          string `yaml:"symbol"`
	Address         string `yaml:"address"`
	DeploymentBlock uint64 `yaml:"deployment_block"`
	Decimals        uint8  `yaml:"decimals"`
}

// New validates tokens and builds a registry preserving their order.
// Symbols are upper-cased and must be unique; addresses must be 20-byte hex.
func New(tokens []domain.TokenConfig) (*Registry, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: token registry is empty", domain.ErrConfiguration)
	}

	r := &Registry{
		tokens:   make([]domain.TokenConfig, 0, len(tokens)),
		bySymbol: make(map[string]int, len(tokens)),
	}
	addresses := make(map[string]string, len(tokens))

	for i, t := range tokens {
		symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("%w: token #%d has no symbol", domain.ErrConfiguration, i)
		}
		if symbol == SelectAll {
			return nil, fmt.Errorf("%w: %q is reserved", domain.ErrConfiguration, SelectAll)
		}
		if _, dup := r.bySymbol[symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate token symbol %s", domain.ErrConfiguration, symbol)
		}
		if !common.IsHexAddress(t.ContractAddress) {
			return nil, fmt.Errorf("%w: token %s has invalid contract address %q",
				domain.ErrConfiguration, symbol, t.ContractAddress)
		}
		address := strings.ToLower(common.HexToAddress(t.ContractAddress).Hex())
		if other, dup := addresses[address]; dup {
			return nil, fmt.Errorf("%w: tokens %s and %s share contract %s",
				domain.ErrConfiguration, other, symbol, address)
		}
		addresses[address] = symbol

		r.bySymbol[symbol] = len(r.tokens)
		r.tokens = append(r.tokens, domain.TokenConfig{
			Symbol:          symbol,
			ContractAddress: address,
			DeploymentBlock: t.DeploymentBlock,
			Decimals:        t.Decimals,
		})
	}

	return r, nil
}

// Parse builds a registry from YAML of the form
//
//	tokens:
//	  - symbol: USDT
//	    address: "0x..."
//	    deployment_block: 4000000
//	    decimals: 6
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse token registry: %w", domain.ErrConfiguration, err)
	}

	tokens := make([]domain.TokenConfig, 0, len(f.Tokens))
	for _, t := range f.Tokens {
		tokens = append(tokens, domain.TokenConfig{
			Symbol:          t.Symbol,
			ContractAddress: t.Address,
			DeploymentBlock: t.DeploymentBlock,
			Decimals:        t.Decimals,
		})
	}
	return New(tokens)
}

// Load reads and parses a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read token registry: %w", domain.ErrConfiguration, err)
	}
	return Parse(data)
}

// All returns every token in registry order.
func (r *Registry) All() []domain.TokenConfig {
	out := make([]domain.TokenConfig, len(r.tokens))
	copy(out, r.tokens)
	return out
}

// Len returns the number of tokens.
func (r *Registry) Len() int {
	return len(r.tokens)
}

// Lookup finds a token by symbol, case-insensitively.
func (r *Registry) Lookup(symbol string) (domain.TokenConfig, bool) {
	i, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return domain.TokenConfig{}, false
	}
	return r.tokens[i], true
}

// Select resolves a --token selector: ALL returns every token, anything
// else must name exactly one registered token.
func (r *Registry) Select(selector string) ([]domain.TokenConfig, error) {
	if IsSelectAll(selector) {
		return r.All(), nil
	}
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("%w: token selector is empty", domain.ErrConfiguration)
	}
	token, ok := r.Lookup(selector)
	if !ok {
		return nil, fmt.Errorf("%w: unknown token %q (known: %s, %s)",
			domain.ErrConfiguration, selector, strings.Join(r.symbols(), ", "), SelectAll)
	}
	return []domain.TokenConfig{token}, nil
}

// IsSelectAll reports whether selector requests a full-registry run.
func IsSelectAll(selector string) bool {
	return strings.EqualFold(strings.TrimSpace(selector), SelectAll)
}

func (r *Registry) symbols() []string {
	out := make([]string, len(r.tokens))
	for i, t := range r.tokens {
		out[i] = t.Symbol
	}
	return out
}
