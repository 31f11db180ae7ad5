package abort

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// ErrTokenInUse is returned by Begin when the token belongs to an active run.
var ErrTokenInUse = errors.New("abort token already in use")

// DefaultTTL is how long an abort flag outlives its run.
const DefaultTTL = time.Hour

var log = logging.Named("abort")

// Store persists abort flags so they can be seen across instances and before
// a run registers.
type Store interface {
	Set(ctx context.Context, token string, ttl time.Duration) error
	IsSet(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
}

// Registry tracks active runs by token.
type Registry struct {
	store Store
	ttl   time.Duration

	mu   sync.Mutex
	runs map[string]*Run
}

// NewRegistry creates a Registry. A nil store selects a MemoryStore and a
// non-positive ttl selects DefaultTTL.
func NewRegistry(store Store, ttl time.Duration) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		store: store,
		ttl:   ttl,
		runs:  make(map[string]*Run),
	}
}

// Run is the cancellation handle of one batch run.
type Run struct {
	token   string
	ctx     context.Context
	cancel  context.CancelFunc
	store   Store
	aborted atomic.Bool
}

// Token returns the run's token.
func (r *Run) Token() string { return r.token }

// Context is cancelled when the run is aborted, released, or its parent
// context is done.
func (r *Run) Context() context.Context { return r.ctx }

// Aborted reports whether the run should stop. It checks the local flag, the
// parent context and then the shared store.
func (r *Run) Aborted() bool {
	if r.aborted.Load() {
		return true
	}
	if r.ctx.Err() != nil {
		return true
	}

	set, err := r.store.IsSet(r.ctx, r.token)
	if err != nil {
		log.Debug("store check for %s failed: %v", r.token, err)
		return false
	}
	if set {
		r.signal()
		return true
	}
	return false
}

func (r *Run) signal() {
	r.aborted.Store(true)
	r.cancel()
}

// Begin registers a run under token. It fails with ErrTokenInUse when the
// token is already active.
func (g *Registry) Begin(ctx context.Context, token string) (*Run, error) {
	if token == "" {
		return nil, fmt.Errorf("empty abort token")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.runs[token]; ok {
		return nil, ErrTokenInUse
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		token:  token,
		ctx:    runCtx,
		cancel: cancel,
		store:  g.store,
	}

	pre, err := g.store.IsSet(ctx, token)
	if err != nil {
		log.Warn("failed to check pre-abort for %s: %v", token, err)
	}
	if pre {
		log.Info("run %s was aborted before it started", token)
		run.signal()
	}

	g.runs[token] = run
	metrics.AbortTokensActive.Set(float64(len(g.runs)))
	return run, nil
}

// Abort signals the run registered under token and records the flag in the
// store. It reports whether a local run was signalled.
func (g *Registry) Abort(ctx context.Context, token string) (bool, error) {
	storeErr := g.store.Set(ctx, token, g.ttl)

	g.mu.Lock()
	run, ok := g.runs[token]
	g.mu.Unlock()

	if ok {
		run.signal()
	}
	metrics.AbortRequestsTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
	log.Info("abort requested for %s (local run: %v)", token, ok)

	if storeErr != nil {
		return ok, fmt.Errorf("failed to record abort for %s: %w", token, storeErr)
	}
	return ok, nil
}

// AbortAll signals every active run and returns how many were signalled.
func (g *Registry) AbortAll(ctx context.Context) int {
	g.mu.Lock()
	runs := make([]*Run, 0, len(g.runs))
	for _, run := range g.runs {
		runs = append(runs, run)
	}
	g.mu.Unlock()

	for _, run := range runs {
		run.signal()
		if err := g.store.Set(ctx, run.token, g.ttl); err != nil {
			log.Warn("failed to record abort for %s: %v", run.token, err)
		}
	}
	metrics.AbortRequestsTotal.WithLabelValues("true").Add(float64(len(runs)))
	log.Info("aborted %d active runs", len(runs))
	return len(runs)
}

// Release unregisters token and clears its store flag. It must be called on
// every terminal path of a run and is safe to call more than once.
func (g *Registry) Release(token string) {
	g.mu.Lock()
	run, ok := g.runs[token]
	delete(g.runs, token)
	metrics.AbortTokensActive.Set(float64(len(g.runs)))
	g.mu.Unlock()

	if ok {
		run.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.store.Delete(ctx, token); err != nil {
		log.Warn("failed to clear abort flag for %s: %v", token, err)
	}
}

// Active returns the tokens of all registered runs, sorted.
func (g *Registry) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	tokens := make([]string, 0, len(g.runs))
	for token := range g.runs {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
