package cart

import (
	"context"
	"sync"
	"time"

	"storefront/internal/clock"
)

// Persister keeps a cart across restarts, keyed by owner.
type Persister interface {
	SaveCart(ctx context.Context, owner string, lines []Line) error
	LoadCart(ctx context.Context, owner string) ([]Line, error)
	DeleteCart(ctx context.Context, owner string) error
}

// Claimer grants a key to the first caller until it expires or is released.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryPersister keeps carts in process memory.
type MemoryPersister struct {
	mu    sync.Mutex
	carts map[string][]Line
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{carts: make(map[string][]Line)}
}

func (p *MemoryPersister) SaveCart(_ context.Context, owner string, lines []Line) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.carts[owner] = append([]Line(nil), lines...)
	return nil
}

func (p *MemoryPersister) LoadCart(_ context.Context, owner string) ([]Line, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Line(nil), p.carts[owner]...), nil
}

func (p *MemoryPersister) DeleteCart(_ context.Context, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.carts, owner)
	return nil
}

// MemoryClaimer tracks claims in process memory with expiry on clock.
type MemoryClaimer struct {
	mu     sync.Mutex
	clock  clock.Clock
	claims map[string]time.Time
}

func NewMemoryClaimer(c clock.Clock) *MemoryClaimer {
	return &MemoryClaimer{clock: c, claims: make(map[string]time.Time)}
}

func (m *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if exp, ok := m.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryClaimer) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}
