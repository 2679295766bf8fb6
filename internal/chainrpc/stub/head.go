// Package stub provides a fixed chainrpc.HeadResolver for tests.
package stub

import (
	"context"
	"sync/atomic"
)

// HeadResolver returns a fixed block number or error.
type HeadResolver struct {
	Block uint64
	Err   error

	calls atomic.Int32
}

// LatestBlock implements chainrpc.HeadResolver.
func (h *HeadResolver) LatestBlock(ctx context.Context) (uint64, error) {
	h.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if h.Err != nil {
		return 0, h.Err
	}
	return h.Block, nil
}

// Calls returns how many times LatestBlock was invoked.
func (h *HeadResolver) Calls() int {
	return int(h.calls.Load())
}
