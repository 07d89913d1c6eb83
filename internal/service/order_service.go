package service

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/mutation"
	"storefront/internal/querycache"
	"storefront/internal/store"
	"storefront/internal/util"
)

// OrderRetries is how many times a failed order fetch is retried.
const OrderRetries = 3

// OrderService handles order business logic
type OrderService struct {
	backend        store.Backend
	cache          *querycache.Cache
	stale          time.Duration
	dashboardStale time.Duration
	retryDelay     func(int) time.Duration

	place   *mutation.Mutation[models.OrderInput, models.Order]
	approve *mutation.Mutation[string, models.Order]
	reject  *mutation.Mutation[string, models.Order]
}

// NewOrderService creates a new order service. dashboardStale is the shorter
// freshness window used by the dashboard's view of the same orders.
func NewOrderService(
	backend store.Backend,
	cache *querycache.Cache,
	events *broker.EventPublisher,
	stale, dashboardStale time.Duration,
) *OrderService {
	s := &OrderService{
		backend:        backend,
		cache:          cache,
		stale:          stale,
		dashboardStale: dashboardStale,
		retryDelay:     querycache.ExponentialBackoff,
	}

	s.place = mutation.New(cache, mutation.Config[models.OrderInput, models.Order]{
		Name:       "place order",
		Validate:   models.OrderInput.Validate,
		Invalidate: []querycache.Key{KeyOrders},
		OnSuccess: func(ctx context.Context, _ models.OrderInput, out models.Order) {
			util.OrdersPlacedTotal.Inc()
			events.PublishOrderPlaced(ctx, out)
		},
	}, backend.AddOrder)

	s.approve = s.statusMutation("approve order", models.OrderStatusApproved, events)
	s.reject = s.statusMutation("reject order", models.OrderStatusRejected, events)
	return s
}

// statusMutation moves an order to status. The cached order list is patched
// before the call and reverted if it fails.
func (s *OrderService) statusMutation(name string, status models.OrderStatus, events *broker.EventPublisher) *mutation.Mutation[string, models.Order] {
	return mutation.New(s.cache, mutation.Config[string, models.Order]{
		Name: name,
		Optimistic: func(c *querycache.Cache, id string) []querycache.Snapshot {
			if !querycache.Peek[[]models.Order](c, KeyOrders, false).HasData {
				return nil
			}
			snap := querycache.SetData(c, KeyOrders, func(orders []models.Order, _ bool) []models.Order {
				return replaceOrder(orders, id, func(o models.Order) models.Order {
					if moved, err := o.Transition(status); err == nil {
						return moved
					}
					return o
				})
			})
			return []querycache.Snapshot{snap}
		},
		Apply: func(c *querycache.Cache, id string, out models.Order) {
			if !querycache.Peek[[]models.Order](c, KeyOrders, false).HasData {
				return
			}
			querycache.SetData(c, KeyOrders, func(orders []models.Order, _ bool) []models.Order {
				return replaceOrder(orders, id, func(models.Order) models.Order { return out })
			})
		},
		OnSuccess: func(ctx context.Context, _ string, out models.Order) {
			util.OrderStatusTransitionsTotal.WithLabelValues(string(out.Status)).Inc()
			events.PublishOrderStatusChanged(ctx, out)
		},
	}, func(ctx context.Context, id string) (models.Order, error) {
		return s.backend.UpdateOrderStatus(ctx, id, status)
	})
}

// replaceOrder returns a copy of orders with the order id passed through fn.
func replaceOrder(orders []models.Order, id string, fn func(models.Order) models.Order) []models.Order {
	out := make([]models.Order, len(orders))
	for i, o := range orders {
		if o.ID == id {
			o = fn(o)
		}
		out[i] = o
	}
	return out
}

func (s *OrderService) options(stale time.Duration) querycache.Options {
	return querycache.Options{StaleTime: stale, Retry: OrderRetries, RetryDelay: s.retryDelay}
}

// List returns all orders
func (s *OrderService) List(ctx context.Context) querycache.Result[[]models.Order] {
	return querycache.Query(ctx, s.cache, KeyOrders, s.backend.GetOrders, s.options(s.stale))
}

// Recent returns all orders under the dashboard's freshness window. Once
// loaded, stale orders are served immediately while a refresh runs.
func (s *OrderService) Recent(ctx context.Context) querycache.Result[[]models.Order] {
	opts := s.options(s.dashboardStale)
	opts.Background, opts.ShowRefreshing = true, true
	return querycache.Query(ctx, s.cache, KeyOrders, s.backend.GetOrders, opts)
}

// Search lists orders matching term with status "all" or a specific status
func (s *OrderService) Search(ctx context.Context, term, status string, refresh bool) querycache.Result[[]models.Order] {
	var res querycache.Result[[]models.Order]
	if refresh {
		opts := s.options(s.stale)
		opts.ShowRefreshing = true
		res = querycache.Refetch(ctx, s.cache, KeyOrders, s.backend.GetOrders, opts)
	} else {
		res = s.List(ctx)
	}
	return filtered(res, func(orders []models.Order) []models.Order { return FilterOrders(orders, term, status) })
}

// History returns a member's orders, newest first
func (s *OrderService) History(ctx context.Context, memberID string) querycache.Result[[]models.Order] {
	return filtered(s.List(ctx), func(orders []models.Order) []models.Order {
		mine := make([]models.Order, 0)
		for _, o := range orders {
			if o.MemberID == memberID {
				mine = append(mine, o)
			}
		}
		return NewestFirst(mine)
	})
}

func (s *OrderService) Approve(ctx context.Context, id string) (models.Order, error) {
	return s.approve.Mutate(ctx, id)
}

func (s *OrderService) Reject(ctx context.Context, id string) (models.Order, error) {
	return s.reject.Mutate(ctx, id)
}

// Placer returns the mutation checkout submits orders through
func (s *OrderService) Placer() *mutation.Mutation[models.OrderInput, models.Order] {
	return s.place
}

// Pending reports whether an approve or reject is in flight
func (s *OrderService) Pending() bool {
	return s.approve.Pending() || s.reject.Pending()
}
