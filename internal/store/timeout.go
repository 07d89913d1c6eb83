package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"
)

// WithTimeout bounds every call on b by d and traces it. A call still running
// at the deadline is abandoned, not cancelled: its eventual result is dropped.
func WithTimeout(b Backend, d time.Duration) Backend {
	return &timeoutBackend{next: b, timeout: d}
}

type timeoutBackend struct {
	next    Backend
	timeout time.Duration
}

type outcome[T any] struct {
	val T
	err error
}

func bounded[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := util.StartSpan(ctx, "Backend."+op)
	defer span.End()

	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{v, err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			span.RecordError(ErrTimeout)
			return zero, fmt.Errorf("%w: %s after %s", ErrTimeout, op, d)
		}
		return zero, ctx.Err()
	}
}

func boundedErr(ctx context.Context, d time.Duration, op string, fn func(context.Context) error) error {
	_, err := bounded(ctx, d, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (t *timeoutBackend) GetStores(ctx context.Context) ([]models.Store, error) {
	return bounded(ctx, t.timeout, "GetStores", t.next.GetStores)
}

func (t *timeoutBackend) AddStore(ctx context.Context, in models.StoreInput) (models.Store, error) {
	return bounded(ctx, t.timeout, "AddStore", func(ctx context.Context) (models.Store, error) {
		return t.next.AddStore(ctx, in)
	})
}

func (t *timeoutBackend) UpdateStore(ctx context.Context, id string, patch models.StorePatch) (models.Store, error) {
	return bounded(ctx, t.timeout, "UpdateStore", func(ctx context.Context) (models.Store, error) {
		return t.next.UpdateStore(ctx, id, patch)
	})
}

func (t *timeoutBackend) DeleteStore(ctx context.Context, id string) error {
	return boundedErr(ctx, t.timeout, "DeleteStore", func(ctx context.Context) error {
		return t.next.DeleteStore(ctx, id)
	})
}

func (t *timeoutBackend) GetMembers(ctx context.Context) ([]models.Member, error) {
	return bounded(ctx, t.timeout, "GetMembers", t.next.GetMembers)
}

func (t *timeoutBackend) AddMember(ctx context.Context, in models.MemberInput) (models.Member, error) {
	return bounded(ctx, t.timeout, "AddMember", func(ctx context.Context) (models.Member, error) {
		return t.next.AddMember(ctx, in)
	})
}

func (t *timeoutBackend) UpdateMember(ctx context.Context, id string, patch models.MemberPatch) (models.Member, error) {
	return bounded(ctx, t.timeout, "UpdateMember", func(ctx context.Context) (models.Member, error) {
		return t.next.UpdateMember(ctx, id, patch)
	})
}

func (t *timeoutBackend) DeleteMember(ctx context.Context, id string) error {
	return boundedErr(ctx, t.timeout, "DeleteMember", func(ctx context.Context) error {
		return t.next.DeleteMember(ctx, id)
	})
}

func (t *timeoutBackend) GetProducts(ctx context.Context) ([]models.Product, error) {
	return bounded(ctx, t.timeout, "GetProducts", t.next.GetProducts)
}

func (t *timeoutBackend) GetOrders(ctx context.Context) ([]models.Order, error) {
	return bounded(ctx, t.timeout, "GetOrders", t.next.GetOrders)
}

func (t *timeoutBackend) AddOrder(ctx context.Context, in models.OrderInput) (models.Order, error) {
	return bounded(ctx, t.timeout, "AddOrder", func(ctx context.Context) (models.Order, error) {
		return t.next.AddOrder(ctx, in)
	})
}

func (t *timeoutBackend) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	return bounded(ctx, t.timeout, "UpdateOrderStatus", func(ctx context.Context) (models.Order, error) {
		return t.next.UpdateOrderStatus(ctx, id, status)
	})
}
