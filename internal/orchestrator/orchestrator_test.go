package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-backfill/internal/chaindata/stub"
	"token-backfill/internal/chainrpc"
	headstub "token-backfill/internal/chainrpc/stub"
	"token-backfill/internal/domain"
	"token-backfill/internal/ingestion"
	"token-backfill/internal/registry"
	"token-backfill/internal/storage"
	"token-backfill/internal/storage/memory"
)

const (
	usdt = "0xc2132d05d31c914a87c6611c10748aeb04b58e8f"
	usdc = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	weth = "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619"
)

type fixture struct {
	source   *stub.Source
	head     *headstub.HeadResolver
	txs      *memory.TransactionStore
	progress *memory.ProgressStore
	tracker  *ingestion.ProgressTracker
	registry *registry.Registry
	states   []Transition
}

func newFixture(t *testing.T, headBlock uint64) *fixture {
	t.Helper()
	reg, err := registry.New([]domain.TokenConfig{
		{Symbol: "USDT", ContractAddress: usdt, DeploymentBlock: 10, Decimals: 6},
		{Symbol: "USDC", ContractAddress: usdc, DeploymentBlock: 20, Decimals: 6},
		{Symbol: "WETH", ContractAddress: weth, DeploymentBlock: 30, Decimals: 18},
	})
	require.NoError(t, err)

	progress := memory.NewProgressStore()
	return &fixture{
		source:   stub.NewSource(),
		head:     &headstub.HeadResolver{Block: headBlock},
		txs:      memory.NewTransactionStore(),
		progress: progress,
		tracker:  ingestion.NewProgressTracker(progress, 137, nil),
		registry: reg,
	}
}

func (f *fixture) orchestrator(syncer TokenSyncer) *Orchestrator {
	if syncer == nil {
		syncer = ingestion.NewBackfiller(ingestion.BackfillOptions{
			Source:    f.source,
			Persister: ingestion.NewPersister(f.txs, ingestion.PersisterOptions{ChunkSize: 2}),
		})
	}
	return New(Options{
		Registry:      f.registry,
		Syncer:        syncer,
		Head:          f.head,
		Progress:      f.tracker,
		OnStateChange: func(tr Transition) { f.states = append(f.states, tr) },
	})
}

func (f *fixture) stateSequence() []State {
	out := make([]State, len(f.states))
	for i, s := range f.states {
		out[i] = s.To
	}
	return out
}

var txCounter int

func transfers(blocks ...uint64) []domain.RawTransfer {
	page := make([]domain.RawTransfer, len(blocks))
	for i, b := range blocks {
		txCounter++
		page[i] = domain.RawTransfer{
			Hash:        fmt.Sprintf("0x%064x", txCounter),
			BlockNumber: strconv.FormatUint(b, 10),
			LogIndex:    "0",
			From:        "0x1111111111111111111111111111111111111111",
			To:          "0x2222222222222222222222222222222222222222",
			Value:       "1000",
			TimeStamp:   "1700000000",
		}
	}
	return page
}

func TestRun_AllCommitsResolvedEndBlock(t *testing.T) {
	f := newFixture(t, 5000)
	f.source.AddPage(usdt, transfers(10, 11, 12))
	f.source.AddPage(usdc, transfers(25))
	ctx := context.Background()

	result, err := f.orchestrator(nil).Run(ctx, "ALL")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, ModeAll, result.Mode)
	require.NotNil(t, result.EndBlock)
	assert.Equal(t, uint64(5000), *result.EndBlock)
	assert.True(t, result.Committed)
	assert.Len(t, result.Tokens, 3)
	assert.Equal(t, 4, result.Total.Fetched)
	assert.Equal(t, 4, result.Total.Saved)
	assert.Equal(t, 1, f.head.Calls())

	progress, err := f.tracker.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), progress.LastProcessedBlock)
	assert.Equal(t, uint64(5000), progress.CurrentBlock)
	assert.False(t, progress.IsSyncing)

	for _, call := range f.source.Calls() {
		require.NotNil(t, call.EndBlock, "contract %s", call.Contract)
		assert.Equal(t, uint64(5000), *call.EndBlock)
	}

	assert.Equal(t, []State{
		StateResolvingEndBlock,
		StateSyncingToken, StateSyncingToken, StateSyncingToken,
		StateCommittingProgress,
		StateDone,
	}, f.stateSequence())
	assert.Equal(t, "WETH", f.states[3].Token)
	assert.Equal(t, 3, f.states[3].Index)
}

func TestRun_SelectorIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, 100)

	result, err := f.orchestrator(nil).Run(context.Background(), "all")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, result.Mode)

	result, err = f.orchestrator(nil).Run(context.Background(), "usdc")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, result.Mode)
}

func TestRun_SingleTokenLeavesCursorAlone(t *testing.T) {
	f := newFixture(t, 5000)
	f.source.AddPage(usdc, transfers(30, 31))
	ctx := context.Background()

	result, err := f.orchestrator(nil).Run(ctx, "USDC")
	require.NoError(t, err)

	assert.Equal(t, ModeSingle, result.Mode)
	assert.Nil(t, result.EndBlock)
	assert.False(t, result.Committed)
	assert.Equal(t, 2, result.Total.Saved)
	assert.Equal(t, 0, f.head.Calls())

	_, err = f.tracker.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	calls := f.source.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, usdc, calls[0].Contract)
	assert.Equal(t, uint64(20), calls[0].StartBlock)
	assert.Nil(t, calls[0].EndBlock)

	assert.Equal(t, []State{StateSyncingToken, StateDone}, f.stateSequence())
}

func TestRun_UnknownTokenFailsBeforeIO(t *testing.T) {
	f := newFixture(t, 5000)

	result, err := f.orchestrator(nil).Run(context.Background(), "BOGUS")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Nil(t, result)
	assert.Empty(t, f.source.Calls())
	assert.Equal(t, 0, f.head.Calls())
	assert.Equal(t, []State{StateFailed}, f.stateSequence())
}

func TestRun_TokenFailureSkipsCommit(t *testing.T) {
	f := newFixture(t, 5000)
	f.source.AddPage(usdt, transfers(10, 11))
	f.source.AddPage(usdc, transfers(20))
	f.source.AddPage(usdc, transfers(21))
	f.source.FailAfter(usdc, 1, fmt.Errorf("%w: connection reset", domain.ErrNetwork))
	ctx := context.Background()

	o := f.orchestrator(nil)
	result, err := o.Run(ctx, "ALL")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)

	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateFailed, o.State())
	assert.False(t, result.Committed)
	assert.Equal(t, 3, result.Total.Saved, "counts of completed work are reported on failure")

	_, err = f.tracker.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// WETH never started.
	for _, call := range f.source.Calls() {
		assert.NotEqual(t, weth, call.Contract)
	}
	assert.Equal(t, 3, f.txs.Len())
}

func TestRun_HeadFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.head.Err = fmt.Errorf("%w: rpc down", domain.ErrNetwork)

	result, err := f.orchestrator(nil).Run(context.Background(), "ALL")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, f.source.Calls())
}

func TestRun_CursorMonotonic(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	_, err := f.orchestrator(nil).Run(ctx, "ALL")
	require.NoError(t, err)

	f.head.Block = 2000
	_, err = f.orchestrator(nil).Run(ctx, "ALL")
	require.NoError(t, err)

	progress, err := f.tracker.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), progress.LastProcessedBlock)

	// A lagging node reports a head below the cursor.
	f.head.Block = 1500
	result, err := f.orchestrator(nil).Run(ctx, "ALL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCursorRegression)
	assert.ErrorIs(t, err, domain.ErrNetwork, "a lagging head is a network-class failure")
	assert.NotErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, StateFailed, result.State)

	progress, err = f.tracker.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), progress.LastProcessedBlock)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t, 100)
	f.source.AddPage(usdt, transfers(10, 11))
	ctx := context.Background()

	first, err := f.orchestrator(nil).Run(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Total.Saved)

	second, err := f.orchestrator(nil).Run(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total.Saved)
	assert.Equal(t, 2, second.Total.Duplicates)
	assert.Equal(t, 2, f.txs.Len())
}

// commitFailingCursor wraps a tracker and fails Commit.
type commitFailingCursor struct {
	Cursor
}

func (c commitFailingCursor) Commit(context.Context, uint64) error {
	return fmt.Errorf("%w: write failed", domain.ErrPersistence)
}

func TestRun_CommitFailure(t *testing.T) {
	f := newFixture(t, 100)
	o := f.orchestrator(nil)
	o.progress = commitFailingCursor{Cursor: f.tracker}

	result, err := o.Run(context.Background(), "ALL")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.False(t, result.Committed)
	assert.Equal(t, StateCommittingProgress, f.states[len(f.states)-2].To)
}

// recordingSyncer returns canned results without touching storage.
type recordingSyncer struct {
	synced []string
	err    map[string]error
}

func (s *recordingSyncer) SyncToken(_ context.Context, token domain.TokenConfig, _ *uint64) (*ingestion.TokenResult, error) {
	s.synced = append(s.synced, token.Symbol)
	return &ingestion.TokenResult{Symbol: token.Symbol, Fetched: 1, Saved: 1}, s.err[token.Symbol]
}

func TestRun_TokensRunSequentiallyInRegistryOrder(t *testing.T) {
	f := newFixture(t, 100)
	syncer := &recordingSyncer{}

	result, err := f.orchestrator(syncer).Run(context.Background(), "ALL")
	require.NoError(t, err)
	assert.Equal(t, []string{"USDT", "USDC", "WETH"}, syncer.synced)
	assert.Equal(t, 3, result.Total.Saved)
}

func TestRun_CancelledBetweenTokens(t *testing.T) {
	f := newFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	syncer := &cancellingSyncer{cancel: cancel}

	result, err := f.orchestrator(syncer).Run(ctx, "ALL")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, syncer.calls)
	assert.False(t, result.Committed)
}

type cancellingSyncer struct {
	cancel context.CancelFunc
	calls  int
}

func (s *cancellingSyncer) SyncToken(_ context.Context, token domain.TokenConfig, _ *uint64) (*ingestion.TokenResult, error) {
	s.calls++
	s.cancel()
	return &ingestion.TokenResult{Symbol: token.Symbol}, nil
}

func TestRun_AllWithoutHeadResolver(t *testing.T) {
	f := newFixture(t, 100)
	o := New(Options{Registry: f.registry, Syncer: &recordingSyncer{}})

	_, err := o.Run(context.Background(), "ALL")
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

var _ chainrpc.HeadResolver = (*headstub.HeadResolver)(nil)
