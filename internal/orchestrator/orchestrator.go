// Package orchestrator drives a backfill run across the token registry.
// Flow: resolve end block (ALL only) → sync each token → commit progress (ALL only)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"token-backfill/internal/chainrpc"
	"token-backfill/internal/domain"
	"token-backfill/internal/ingestion"
	"token-backfill/internal/logger"
	"token-backfill/internal/observability"
	"token-backfill/internal/registry"
	"token-backfill/internal/storage"
)

// State is a step of a run.
type State string

const (
	StateInitializing       State = "INITIALIZING"
	StateResolvingEndBlock  State = "RESOLVING_END_BLOCK"
	StateSyncingToken       State = "SYNCING_TOKEN"
	StateCommittingProgress State = "COMMITTING_PROGRESS"
	StateDone               State = "DONE"
	StateFailed             State = "FAILED"
)

// Run modes, used as metric labels.
const (
	ModeAll    = "all"
	ModeSingle = "single"
)

// ErrCursorRegression is returned when the stored cursor is ahead of the
// resolved chain head. Committing would move the cursor backwards. The head
// comes from the RPC endpoint, so a lagging or misrouted node is the expected
// cause and the error is network-class: a rerun against a synced node succeeds.
var ErrCursorRegression = fmt.Errorf("%w: stored cursor is ahead of chain head", domain.ErrNetwork)

// TokenSyncer syncs the history of one token up to an optional end block.
type TokenSyncer interface {
	SyncToken(ctx context.Context, token domain.TokenConfig, endBlock *uint64) (*ingestion.TokenResult, error)
}

// Cursor loads and commits the resumable progress cursor.
type Cursor interface {
	Load(ctx context.Context) (*domain.SyncProgress, error)
	Commit(ctx context.Context, endBlock uint64) error
}

// Transition describes one state change. Token and Index are set for
// StateSyncingToken.
type Transition struct {
	From  State
	To    State
	Token string
	Index int
	Total int
}

// Options for creating Orchestrator.
type Options struct {
	Registry *registry.Registry
	Syncer   TokenSyncer
	Head     chainrpc.HeadResolver // required for ALL runs
	Progress Cursor                // required for ALL runs
	Logger   *logger.Logger

	// OnStateChange is called synchronously on every transition.
	OnStateChange func(Transition)
}

// Orchestrator sequences a run. It is not safe for concurrent use.
type Orchestrator struct {
	registry      *registry.Registry
	syncer        TokenSyncer
	head          chainrpc.HeadResolver
	progress      Cursor
	log           *logger.Logger
	onStateChange func(Transition)

	state State
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		registry:      opts.Registry,
		syncer:        opts.Syncer,
		head:          opts.Head,
		progress:      opts.Progress,
		log:           log,
		onStateChange: opts.OnStateChange,
		state:         StateInitializing,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Selector  string
	Mode      string
	EndBlock  *uint64 // nil for single-token runs
	Tokens    []*ingestion.TokenResult
	Total     ingestion.TokenResult
	Committed bool
	State     State
	Duration  time.Duration
}

// Run syncs the tokens chosen by selector ("ALL" or one symbol).
//
// ALL runs resolve a single end block shared by every token and commit it
// as the progress cursor once every token succeeded. Single-token runs sync
// up to the latest block and leave the cursor untouched.
//
// The result is non-nil whenever the selector was valid, including on
// failure, so callers can report partial counts.
func (o *Orchestrator) Run(ctx context.Context, selector string) (*RunResult, error) {
	start := time.Now()
	o.state = StateInitializing

	tokens, err := o.registry.Select(selector)
	if err != nil {
		o.transition(Transition{To: StateFailed})
		return nil, err
	}

	all := registry.IsSelectAll(selector)
	result := &RunResult{Selector: selector, Mode: ModeSingle}
	if all {
		result.Mode = ModeAll
	}

	fail := func(err error) (*RunResult, error) {
		o.transition(Transition{To: StateFailed})
		result.State = StateFailed
		result.Duration = time.Since(start)
		observability.RecordSyncRun(result.Mode, "failed", result.Duration.Seconds())
		o.log.Errorw("backfill failed",
			o.summary(result, "error", err)...,
		)
		return result, err
	}

	o.log.Infow("backfill started",
		"selector", selector,
		"mode", result.Mode,
		"tokens", len(tokens),
	)

	if all {
		o.transition(Transition{To: StateResolvingEndBlock})
		endBlock, err := o.resolveEndBlock(ctx)
		if err != nil {
			return fail(err)
		}
		result.EndBlock = &endBlock
	}

	for i, token := range tokens {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		o.transition(Transition{To: StateSyncingToken, Token: token.Symbol, Index: i + 1, Total: len(tokens)})
		tokenResult, err := o.syncer.SyncToken(ctx, token, result.EndBlock)
		if tokenResult != nil {
			result.Tokens = append(result.Tokens, tokenResult)
			result.Total.Add(tokenResult)
		}
		if err != nil {
			return fail(err)
		}
	}

	if all {
		o.transition(Transition{To: StateCommittingProgress})
		if err := o.progress.Commit(ctx, *result.EndBlock); err != nil {
			return fail(err)
		}
		result.Committed = true
	}

	o.transition(Transition{To: StateDone})
	result.State = StateDone
	result.Duration = time.Since(start)
	observability.RecordSyncRun(result.Mode, "success", result.Duration.Seconds())
	o.log.Infow("backfill finished", o.summary(result)...)

	return result, nil
}

// resolveEndBlock fixes the run's cutoff at the current chain head and
// refuses a head below the committed cursor.
func (o *Orchestrator) resolveEndBlock(ctx context.Context) (uint64, error) {
	if o.head == nil || o.progress == nil {
		return 0, fmt.Errorf("%w: ALL runs need a head resolver and a progress tracker", domain.ErrConfiguration)
	}

	head, err := o.head.LatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve end block: %w", err)
	}

	current, err := o.progress.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, fmt.Errorf("%w: load progress: %w", domain.ErrPersistence, err)
	case current.LastProcessedBlock > head:
		return 0, fmt.Errorf("%w: cursor %d, head %d", ErrCursorRegression, current.LastProcessedBlock, head)
	}

	o.log.Infow("end block resolved", "end_block", head)
	return head, nil
}

func (o *Orchestrator) transition(t Transition) {
	t.From = o.state
	o.state = t.To

	if t.To == StateSyncingToken {
		o.log.Debugw("state change", "from", t.From, "to", t.To, "token", t.Token, "index", t.Index, "total", t.Total)
	} else {
		o.log.Debugw("state change", "from", t.From, "to", t.To)
	}

	if o.onStateChange != nil {
		o.onStateChange(t)
	}
}

// summary builds the aggregate log fields of a run.
func (o *Orchestrator) summary(r *RunResult, extra ...interface{}) []interface{} {
	fields := []interface{}{
		"selector", r.Selector,
		"tokens_synced", len(r.Tokens),
		"fetched", r.Total.Fetched,
		"saved", r.Total.Saved,
		"filtered", r.Total.Filtered,
		"duplicates", r.Total.Duplicates,
		"committed", r.Committed,
		"duration", r.Duration,
	}
	if r.EndBlock != nil {
		fields = append(fields, "end_block", *r.EndBlock)
	}
	return append(fields, extra...)
}
