package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/clock"
	"storefront/internal/models"

	"github.com/google/uuid"
)

// Operation names accepted by Memory.FailNext
const (
	OpGetStores         = "GetStores"
	OpAddStore          = "AddStore"
	OpUpdateStore       = "UpdateStore"
	OpDeleteStore       = "DeleteStore"
	OpGetMembers        = "GetMembers"
	OpAddMember         = "AddMember"
	OpUpdateMember      = "UpdateMember"
	OpDeleteMember      = "DeleteMember"
	OpGetProducts       = "GetProducts"
	OpGetOrders         = "GetOrders"
	OpAddOrder          = "AddOrder"
	OpUpdateOrderStatus = "UpdateOrderStatus"
)

// Memory is the in-process mock backing store. Every call waits the
// configured latency on the injected clock before touching the arrays.
type Memory struct {
	mu       sync.Mutex
	clock    clock.Clock
	latency  time.Duration
	stores   []models.Store
	members  []models.Member
	products []models.Product
	orders   []models.Order
	orderSeq int
	failures map[string][]error
	calls    map[string]int
}

var _ Backend = (*Memory)(nil)

// NewMemory creates a mock store holding a copy of seed.
func NewMemory(c clock.Clock, latency time.Duration, seed Seed) *Memory {
	m := &Memory{
		clock:    c,
		latency:  latency,
		stores:   append([]models.Store(nil), seed.Stores...),
		members:  append([]models.Member(nil), seed.Members...),
		products: append([]models.Product(nil), seed.Products...),
		orderSeq: len(seed.Orders),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
	for _, o := range seed.Orders {
		m.orders = append(m.orders, copyOrder(o))
	}
	return m
}

// FailNext makes the next call of op return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls reports how many times op has been invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// begin simulates latency, counts the call and pops an injected failure.
// On success the caller holds m.mu and must unlock it.
func (m *Memory) begin(ctx context.Context, op string) error {
	if err := m.clock.Sleep(ctx, m.latency); err != nil {
		return err
	}
	m.mu.Lock()
	m.calls[op]++
	if queued := m.failures[op]; len(queued) > 0 {
		err := queued[0]
		m.failures[op] = queued[1:]
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Memory) GetStores(ctx context.Context) ([]models.Store, error) {
	if err := m.begin(ctx, OpGetStores); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return append([]models.Store(nil), m.stores...), nil
}

func (m *Memory) AddStore(ctx context.Context, in models.StoreInput) (models.Store, error) {
	if err := in.Validate(); err != nil {
		return models.Store{}, err
	}
	if err := m.begin(ctx, OpAddStore); err != nil {
		return models.Store{}, err
	}
	defer m.mu.Unlock()

	s := models.Store{
		ID:          uuid.NewString(),
		StoreID:     in.StoreID,
		Name:        in.Name,
		MemberCount: in.MemberCount,
	}
	m.stores = append(m.stores, s)
	return s, nil
}

func (m *Memory) UpdateStore(ctx context.Context, id string, patch models.StorePatch) (models.Store, error) {
	if err := m.begin(ctx, OpUpdateStore); err != nil {
		return models.Store{}, err
	}
	defer m.mu.Unlock()

	for i := range m.stores {
		if m.stores[i].ID != id {
			continue
		}
		updated, err := patch.Apply(m.stores[i])
		if err != nil {
			return models.Store{}, err
		}
		m.stores[i] = updated
		return updated, nil
	}
	return models.Store{}, fmt.Errorf("store %s: %w", id, ErrNotFound)
}

func (m *Memory) DeleteStore(ctx context.Context, id string) error {
	if err := m.begin(ctx, OpDeleteStore); err != nil {
		return err
	}
	defer m.mu.Unlock()

	for i := range m.stores {
		if m.stores[i].ID == id {
			m.stores = append(m.stores[:i], m.stores[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("store %s: %w", id, ErrNotFound)
}

func (m *Memory) GetMembers(ctx context.Context) ([]models.Member, error) {
	if err := m.begin(ctx, OpGetMembers); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return append([]models.Member(nil), m.members...), nil
}

func (m *Memory) AddMember(ctx context.Context, in models.MemberInput) (models.Member, error) {
	if err := in.Validate(); err != nil {
		return models.Member{}, err
	}
	if err := m.begin(ctx, OpAddMember); err != nil {
		return models.Member{}, err
	}
	defer m.mu.Unlock()

	member := models.Member{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		StoreID:   in.StoreID,
		StoreName: in.StoreName,
		Password:  in.Password,
		CreatedAt: m.clock.Now().UTC(),
	}
	m.members = append(m.members, member)
	return member, nil
}

func (m *Memory) UpdateMember(ctx context.Context, id string, patch models.MemberPatch) (models.Member, error) {
	if err := m.begin(ctx, OpUpdateMember); err != nil {
		return models.Member{}, err
	}
	defer m.mu.Unlock()

	for i := range m.members {
		if m.members[i].ID != id {
			continue
		}
		updated, err := patch.Apply(m.members[i])
		if err != nil {
			return models.Member{}, err
		}
		m.members[i] = updated
		return updated, nil
	}
	return models.Member{}, fmt.Errorf("member %s: %w", id, ErrNotFound)
}

func (m *Memory) DeleteMember(ctx context.Context, id string) error {
	if err := m.begin(ctx, OpDeleteMember); err != nil {
		return err
	}
	defer m.mu.Unlock()

	for i := range m.members {
		if m.members[i].ID == id {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %s: %w", id, ErrNotFound)
}

func (m *Memory) GetProducts(ctx context.Context) ([]models.Product, error) {
	if err := m.begin(ctx, OpGetProducts); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return append([]models.Product(nil), m.products...), nil
}

func (m *Memory) GetOrders(ctx context.Context) ([]models.Order, error) {
	if err := m.begin(ctx, OpGetOrders); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	out := make([]models.Order, len(m.orders))
	for i, o := range m.orders {
		out[i] = copyOrder(o)
	}
	return out, nil
}

func (m *Memory) AddOrder(ctx context.Context, in models.OrderInput) (models.Order, error) {
	if err := in.Validate(); err != nil {
		return models.Order{}, err
	}
	if err := m.begin(ctx, OpAddOrder); err != nil {
		return models.Order{}, err
	}
	defer m.mu.Unlock()

	m.orderSeq++
	o := models.Order{
		ID:         fmt.Sprintf("order-%d", m.orderSeq),
		MemberID:   in.MemberID,
		MemberName: in.MemberName,
		StoreID:    in.StoreID,
		StoreName:  in.StoreName,
		Items:      append([]models.OrderItem(nil), in.Items...),
		Total:      in.Total,
		Status:     models.OrderStatusPending,
		CreatedAt:  m.clock.Now().UTC(),
	}
	m.orders = append(m.orders, o)
	return copyOrder(o), nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	if err := m.begin(ctx, OpUpdateOrderStatus); err != nil {
		return models.Order{}, err
	}
	defer m.mu.Unlock()

	for i := range m.orders {
		if m.orders[i].ID != id {
			continue
		}
		updated, err := m.orders[i].Transition(status)
		if err != nil {
			return models.Order{}, err
		}
		m.orders[i] = updated
		return copyOrder(updated), nil
	}
	return models.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}
