package store

import (
	"context"
	"errors"

	"storefront/internal/models"
)

var (
	// ErrNotFound is returned when an entity id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTimeout is returned when a backing-store call exceeds its deadline.
	ErrTimeout = errors.New("backing store timed out")
)

// Backend is the CRUD surface the console reads and writes through.
type Backend interface {
	GetStores(ctx context.Context) ([]models.Store, error)
	AddStore(ctx context.Context, in models.StoreInput) (models.Store, error)
	UpdateStore(ctx context.Context, id string, patch models.StorePatch) (models.Store, error)
	DeleteStore(ctx context.Context, id string) error

	GetMembers(ctx context.Context) ([]models.Member, error)
	AddMember(ctx context.Context, in models.MemberInput) (models.Member, error)
	UpdateMember(ctx context.Context, id string, patch models.MemberPatch) (models.Member, error)
	DeleteMember(ctx context.Context, id string) error

	GetProducts(ctx context.Context) ([]models.Product, error)

	GetOrders(ctx context.Context) ([]models.Order, error)
	AddOrder(ctx context.Context, in models.OrderInput) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error)
}
