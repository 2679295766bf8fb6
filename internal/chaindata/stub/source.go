// Package stub provides an in-memory chaindata.TransferSource for tests.
package stub

import (
	"context"
	"io"
	"strings"
	"sync"

	"token-backfill/internal/chaindata"
	"token-backfill/internal/domain"
)

// Source serves preloaded pages per contract. Range arguments are recorded
// but not applied; tests load exactly the pages they expect.
type Source struct {
	mu    sync.Mutex
	pages map[string][][]domain.RawTransfer
	errs  map[string]pageError
	calls []Call
}

// Call records one Transfers invocation.
type Call struct {
	Contract   string
	StartBlock uint64
	EndBlock   *uint64
}

type pageError struct {
	after int
	err   error
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{
		pages: make(map[string][][]domain.RawTransfer),
		errs:  make(map[string]pageError),
	}
}

// AddPage appends a page for a contract.
func (s *Source) AddPage(contract string, page []domain.RawTransfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(contract)
	s.pages[key] = append(s.pages[key], page)
}

// FailAfter makes the contract's iterator return err once n pages have been
// served.
func (s *Source) FailAfter(contract string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[strings.ToLower(contract)] = pageError{after: n, err: err}
}

// Calls returns every Transfers invocation so far.
func (s *Source) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Transfers implements chaindata.TransferSource.
func (s *Source) Transfers(contract string, startBlock uint64, endBlock *uint64) chaindata.PageIterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Contract: contract, StartBlock: startBlock, EndBlock: endBlock})

	key := strings.ToLower(contract)
	it := &iterator{pages: s.pages[key]}
	if pe, ok := s.errs[key]; ok {
		it.failAfter = pe.after
		it.err = pe.err
	}
	return it
}

type iterator struct {
	pages     [][]domain.RawTransfer
	served    int
	failAfter int
	err       error
}

// Next implements chaindata.PageIterator. Empty preloaded pages are skipped.
func (it *iterator) Next(ctx context.Context) ([]domain.RawTransfer, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.err != nil && it.served >= it.failAfter {
			return nil, it.err
		}
		if len(it.pages) == 0 {
			return nil, io.EOF
		}
		page := it.pages[0]
		it.pages = it.pages[1:]
		it.served++
		if len(page) > 0 {
			return page, nil
		}
	}
}
