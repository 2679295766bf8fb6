// Package chainrpc resolves the current chain head through a JSON-RPC node.
package chainrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"token-backfill/internal/domain"
	"token-backfill/internal/observability"
)

// DefaultTimeout bounds a single head lookup.
const DefaultTimeout = 15 * time.Second

// HeadResolver returns the latest block number of the chain.
type HeadResolver interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// Client implements HeadResolver over go-ethereum's ethclient.
type Client struct {
	eth     *ethclient.Client
	timeout time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rpc: %v", domain.ErrNetwork, err)
	}
	c := &Client{eth: eth, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LatestBlock implements HeadResolver.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	block, err := c.eth.BlockNumber(ctx)
	observability.RecordRPCCall("eth_blockNumber", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %v", domain.ErrNetwork, err)
	}
	return block, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}
