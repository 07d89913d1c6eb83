// Package mutation runs backing-store writes and keeps the query cache
// consistent with them.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"storefront/internal/querycache"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ErrPending is returned when a mutation of the same kind is still running.
var ErrPending = errors.New("mutation already in progress")

// Error is a failed mutation. Message is meant for the user.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Config describes how a mutation touches the cache.
type Config[In, Out any] struct {
	// Name is the action in lower case, e.g. "approve order".
	Name string
	// Validate runs before anything else; a failure never reaches the backing store.
	Validate func(in In) error
	// Prepare completes the input after validation, e.g. copying fields
	// read from the backing store. A failure never reaches the write.
	Prepare func(ctx context.Context, in In) (In, error)
	// Optimistic writes the expected effect into the cache before the call.
	// The returned snapshots are rolled back if the call fails.
	Optimistic func(c *querycache.Cache, in In) []querycache.Snapshot
	// Apply writes the confirmed result into the cache after success.
	Apply func(c *querycache.Cache, in In, out Out)
	// Invalidate lists keys marked stale after success.
	Invalidate []querycache.Key
	// OnSuccess runs last, after the cache has been updated.
	OnSuccess func(ctx context.Context, in In, out Out)
}

// Mutation wraps one kind of write.
type Mutation[In, Out any] struct {
	cfg     Config[In, Out]
	fn      func(ctx context.Context, in In) (Out, error)
	cache   *querycache.Cache
	pending atomic.Bool
	logger  *zap.Logger
}

func New[In, Out any](cache *querycache.Cache, cfg Config[In, Out], fn func(ctx context.Context, in In) (Out, error)) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		cfg:    cfg,
		fn:     fn,
		cache:  cache,
		logger: util.NamedLogger("mutation"),
	}
}

// Pending reports whether a call is in flight.
func (m *Mutation[In, Out]) Pending() bool {
	return m.pending.Load()
}

// Mutate runs the write. Only one call per Mutation runs at a time; others
// get ErrPending. Failures are returned as *Error and leave the cache as it
// was before the call.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	var zero Out
	if !m.pending.CompareAndSwap(false, true) {
		util.MutationsTotal.WithLabelValues(m.cfg.Name, "pending").Inc()
		return zero, ErrPending
	}
	defer m.pending.Store(false)

	ctx, span := util.StartSpan(ctx, "Mutation.Mutate")
	defer span.End()

	if m.cfg.Validate != nil {
		if err := m.cfg.Validate(in); err != nil {
			util.MutationsTotal.WithLabelValues(m.cfg.Name, "invalid").Inc()
			return zero, m.fail(err)
		}
	}

	if m.cfg.Prepare != nil {
		prepared, err := m.cfg.Prepare(ctx, in)
		if err != nil {
			util.MutationsTotal.WithLabelValues(m.cfg.Name, "rejected").Inc()
			return zero, m.fail(err)
		}
		in = prepared
	}

	var snaps []querycache.Snapshot
	if m.cfg.Optimistic != nil {
		snaps = m.cfg.Optimistic(m.cache, in)
	}

	start := time.Now()
	out, err := m.fn(ctx, in)
	util.MutationLatency.WithLabelValues(m.cfg.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		for i := len(snaps) - 1; i >= 0; i-- {
			m.cache.Rollback(snaps[i])
		}
		util.MutationsTotal.WithLabelValues(m.cfg.Name, "failure").Inc()
		m.logger.Warn("Mutation failed",
			zap.String("mutation", m.cfg.Name),
			zap.Int("rolled_back", len(snaps)),
			zap.Error(err))
		return zero, m.fail(err)
	}

	if m.cfg.Apply != nil {
		m.cfg.Apply(m.cache, in, out)
	}
	if len(m.cfg.Invalidate) > 0 {
		m.cache.Invalidate(m.cfg.Invalidate...)
	}
	if m.cfg.OnSuccess != nil {
		m.cfg.OnSuccess(ctx, in, out)
	}

	util.MutationsTotal.WithLabelValues(m.cfg.Name, "success").Inc()
	m.logger.Info("Mutation succeeded", zap.String("mutation", m.cfg.Name))
	return out, nil
}

func (m *Mutation[In, Out]) fail(err error) *Error {
	return &Error{
		Op:      m.cfg.Name,
		Message: fmt.Sprintf("Failed to %s: %s", m.cfg.Name, err.Error()),
		Err:     err,
	}
}
