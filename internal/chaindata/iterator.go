package chaindata

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"token-backfill/internal/domain"
)

// pageIterator walks a block range page by page. When the next page would
// run past the API result window it restarts the query at the last block
// seen and skips the rows of that block it already emitted.
type pageIterator struct {
	client   *Client
	contract string
	start    uint64
	end      *uint64

	page      int
	done      bool
	emitted   bool
	lastBlock uint64
	seen      map[string]struct{} // keys emitted for lastBlock
}

func newPageIterator(c *Client, contract string, startBlock uint64, endBlock *uint64) *pageIterator {
	return &pageIterator{
		client:   c,
		contract: contract,
		start:    startBlock,
		end:      endBlock,
		page:     1,
		done:     endBlock != nil && startBlock > *endBlock,
		seen:     make(map[string]struct{}),
	}
}

// Next implements PageIterator.
func (it *pageIterator) Next(ctx context.Context) ([]domain.RawTransfer, error) {
	for !it.done {
		if it.page*it.client.pageSize > it.client.window {
			if err := it.slide(); err != nil {
				return nil, err
			}
		}

		rows, err := it.client.fetchPage(ctx, it.contract, it.start, it.end, it.page)
		if err != nil {
			return nil, err
		}
		it.page++
		if len(rows) < it.client.pageSize {
			it.done = true
		}

		out, err := it.accept(rows)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, io.EOF
}

// slide moves the query start to the last emitted block.
func (it *pageIterator) slide() error {
	if !it.emitted || it.lastBlock <= it.start {
		return fmt.Errorf("%w: block %d of %s holds more transfers than the %d-row result window",
			domain.ErrNetwork, it.start, it.contract, it.client.window)
	}
	it.start = it.lastBlock
	it.page = 1
	return nil
}

// accept drops rows already emitted for the boundary block and tracks the
// keys of the highest block seen.
func (it *pageIterator) accept(rows []domain.RawTransfer) ([]domain.RawTransfer, error) {
	out := rows[:0:0]
	for _, r := range rows {
		block, err := parseBlock(r.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid blockNumber %q in %s: %v", domain.ErrNetwork, r.BlockNumber, r.Hash, err)
		}

		key := transferKey(r)
		if it.emitted && block == it.lastBlock {
			if _, dup := it.seen[key]; dup {
				continue
			}
		} else {
			it.lastBlock = block
			it.seen = make(map[string]struct{})
		}
		it.seen[key] = struct{}{}
		it.emitted = true
		out = append(out, r)
	}
	return out, nil
}

// transferKey identifies one transfer event within a block.
func transferKey(r domain.RawTransfer) string {
	hash := strings.ToLower(r.Hash)
	if r.LogIndex != "" {
		return hash + "|" + r.LogIndex
	}
	return strings.Join([]string{hash, strings.ToLower(r.From), strings.ToLower(r.To), r.Value}, "|")
}

func parseBlock(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
