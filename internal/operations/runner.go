package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/abort"
	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/progress"
)

// Store is the database surface a Runner needs.
type Store interface {
	batch.Finder
	batch.Ledger
	Catalog
	SetLastRun(ctx context.Context, op database.OperationType, t time.Time) error
}

// Runner starts batch runs for any operation. It is shared by the HTTP
// handlers, the job queue and the CLI.
type Runner struct {
	store    Store
	resolver batch.Resolver
	registry *abort.Registry
	deps     Deps
	defaults batch.Options
}

// NewRunner creates a Runner. deps.Catalog defaults to store.
func NewRunner(store Store, resolver batch.Resolver, registry *abort.Registry, deps Deps, defaults batch.Options) *Runner {
	if deps.Catalog == nil {
		deps.Catalog = store
	}
	return &Runner{
		store:    store,
		resolver: resolver,
		registry: registry,
		deps:     deps,
		defaults: defaults,
	}
}

// Defaults returns the configured run options. Callers override fields per
// request.
func (r *Runner) Defaults() batch.Options { return r.defaults }

// Registry returns the abort registry runs are registered with.
func (r *Runner) Registry() *abort.Registry { return r.registry }

// NewToken returns a fresh abort token.
func NewToken() string { return uuid.New().String() }

// Begin registers a run under token, generating one when token is empty.
// It returns abort.ErrTokenInUse for an active token. The returned run must
// be passed to Run, which releases it.
func (r *Runner) Begin(ctx context.Context, token string) (*abort.Run, error) {
	if token == "" {
		token = NewToken()
	}
	return r.registry.Begin(ctx, token)
}

// Operation builds the per-item operation for op.
func (r *Runner) Operation(op database.OperationType, p Params) (batch.Operation, error) {
	return New(op, r.deps, p)
}

// Run drives op to completion under run, writing progress to emit (which
// may be nil), and releases the run's token on return.
func (r *Runner) Run(run *abort.Run, op database.OperationType, opts batch.Options, p Params, emit batch.Emitter) (batch.Summary, error) {
	defer r.registry.Release(run.Token())

	operation, err := r.Operation(op, p)
	if err != nil {
		if emit != nil {
			ev := progress.Event{
				Status:    progress.StatusError,
				Message:   err.Error(),
				Error:     err.Error(),
				Operation: string(op),
				Token:     run.Token(),
			}
			ev.Normalize()
			if eerr := emit.Emit(context.WithoutCancel(run.Context()), ev); eerr != nil {
				logging.Debug("Failed to send %s error frame: %v", op, eerr)
			}
		}
		return batch.Summary{}, err
	}

	if opts.Method == "" && op == database.OpExif && p.Method != "" {
		opts.Method = string(p.Method)
	}

	ctx := run.Context()
	summary := batch.NewDriver(r.store, r.store, r.resolver, opts).Run(ctx, operation, run, emit)

	if summary.State != batch.StateFailed {
		if err := r.store.SetLastRun(context.WithoutCancel(ctx), op, time.Now()); err != nil {
			logging.Warn("Failed to record last %s run: %v", op, err)
		}
	}
	return summary, nil
}

// ProcessOne runs op on a single item synchronously.
func (r *Runner) ProcessOne(ctx context.Context, op database.OperationType, p Params, item *database.MediaItem) (batch.ItemResult, error) {
	operation, err := r.Operation(op, p)
	if err != nil {
		return batch.ItemResult{}, err
	}
	opts := r.defaults
	if op == database.OpExif {
		opts.Method = string(p.Method)
	}
	return batch.NewDriver(r.store, r.store, r.resolver, opts).ProcessItem(ctx, operation, item), nil
}

// RunDetached begins and runs op under a fresh token with the default options
// and every page (All). It is what background jobs use.
func (r *Runner) RunDetached(ctx context.Context, op database.OperationType, token string) (batch.Summary, error) {
	run, err := r.Begin(ctx, token)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("begin %s run: %w", op, err)
	}
	opts := r.defaults
	opts.All = true
	return r.Run(run, op, opts, Params{}, nil)
}
