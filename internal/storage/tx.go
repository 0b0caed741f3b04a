package storage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/tx"
)

// defaultTxTimeout is the maximum duration of one unit of work.
const defaultTxTimeout = 5 * time.Second

// Runner serializes units of work against a Store. Every public operation of
// the core runs inside RunInTx: the whole read-modify-write sequence holds the
// store-wide lock and its writes are buffered until fn returns nil.
//
// Nested calls that pass the context they were given join the enclosing unit
// of work, so a tally issuance, the attendance upsert it causes and the
// evolution recompute that follows commit or fail together. All components
// sharing a Store must share one Runner.
type Runner struct {
	mu      sync.Mutex
	store   Store
	timeout time.Duration
}

type RunnerOption func(*Runner)

// WithTimeout bounds how long a unit of work may wait for and hold the lock.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

func NewRunner(store Store, opts ...RunnerOption) *Runner {
	r := &Runner{store: store, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInTx executes fn with a buffered view of the store. Reads observe the
// unit's own pending writes. Nothing reaches the backend unless fn succeeds.
// Hooks registered with AfterCommit run once the outermost unit has committed
// and the lock is released.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	if sess, ok := tx.From[*session](ctx); ok && sess.runner == r {
		return fn(ctx, sess)
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "unit of work aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	hooks, err := r.run(ctx, fn)
	if err != nil {
		return err
	}
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range hooks {
		hook(hookCtx)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context, s Store) error) ([]func(context.Context), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "unit of work aborted: context cancelled")
	}

	sess := &session{runner: r, base: r.store, pending: make(map[string][]byte)}
	if err := fn(tx.WithTx(ctx, sess), sess); err != nil {
		return nil, err
	}
	if err := sess.commit(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit unit of work")
	}
	return sess.hooks, nil
}

// AfterCommit defers fn until the unit of work carried by ctx commits. A
// unit that fails drops its hooks. Outside a unit of work fn runs at once.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if sess, ok := tx.From[*session](ctx); ok {
		sess.hooks = append(sess.hooks, fn)
		return
	}
	fn(ctx)
}

// session is the write-buffering Store handed to a unit of work.
type session struct {
	runner  *Runner
	base    Store
	pending map[string][]byte
	hooks   []func(context.Context)
}

func (s *session) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.pending[key]; ok {
		return slices.Clone(v), nil
	}
	return s.base.Get(ctx, key)
}

func (s *session) Set(_ context.Context, key string, value []byte) error {
	s.pending[key] = slices.Clone(value)
	return nil
}

func (s *session) commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if batch, ok := s.base.(BatchStore); ok {
		return batch.SetBatch(ctx, s.pending)
	}
	for _, key := range slices.Sorted(maps.Keys(s.pending)) {
		if err := s.base.Set(ctx, key, s.pending[key]); err != nil {
			return err
		}
	}
	return nil
}
