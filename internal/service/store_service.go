package service

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/mutation"
	"storefront/internal/querycache"
	"storefront/internal/store"
)

// StoreUpdate identifies the store a patch applies to.
type StoreUpdate struct {
	ID    string
	Patch models.StorePatch
}

// StoreService manages store locations
type StoreService struct {
	backend store.Backend
	cache   *querycache.Cache
	stale   time.Duration

	create *mutation.Mutation[models.StoreInput, models.Store]
	update *mutation.Mutation[StoreUpdate, models.Store]
	remove *mutation.Mutation[string, struct{}]
}

// NewStoreService creates a new store service
func NewStoreService(backend store.Backend, cache *querycache.Cache, events *broker.EventPublisher, stale time.Duration) *StoreService {
	s := &StoreService{backend: backend, cache: cache, stale: stale}

	changed := func(action string) func(context.Context, string) {
		return func(ctx context.Context, id string) {
			events.PublishEntityChanged(ctx, models.EventTypeStoreChanged, id, action)
		}
	}
	created, updated, deleted := changed(models.ActionCreated), changed(models.ActionUpdated), changed(models.ActionDeleted)

	s.create = mutation.New(cache, mutation.Config[models.StoreInput, models.Store]{
		Name:       "add store",
		Validate:   models.StoreInput.Validate,
		Invalidate: []querycache.Key{KeyStores},
		OnSuccess:  func(ctx context.Context, _ models.StoreInput, out models.Store) { created(ctx, out.ID) },
	}, backend.AddStore)

	s.update = mutation.New(cache, mutation.Config[StoreUpdate, models.Store]{
		Name:       "update store",
		Invalidate: []querycache.Key{KeyStores},
		OnSuccess:  func(ctx context.Context, _ StoreUpdate, out models.Store) { updated(ctx, out.ID) },
	}, func(ctx context.Context, in StoreUpdate) (models.Store, error) {
		return backend.UpdateStore(ctx, in.ID, in.Patch)
	})

	s.remove = mutation.New(cache, mutation.Config[string, struct{}]{
		Name:       "delete store",
		Invalidate: []querycache.Key{KeyStores},
		OnSuccess:  func(ctx context.Context, id string, _ struct{}) { deleted(ctx, id) },
	}, func(ctx context.Context, id string) (struct{}, error) {
		return struct{}{}, backend.DeleteStore(ctx, id)
	})

	return s
}

func (s *StoreService) options() querycache.Options {
	return querycache.Options{StaleTime: s.stale}
}

// List returns all stores
func (s *StoreService) List(ctx context.Context) querycache.Result[[]models.Store] {
	return querycache.Query(ctx, s.cache, KeyStores, s.backend.GetStores, s.options())
}

// latest serves the cached stores at once and refreshes them in the
// background when stale. Only the first load blocks.
func (s *StoreService) latest(ctx context.Context) querycache.Result[[]models.Store] {
	opts := s.options()
	opts.Background, opts.ShowRefreshing = true, true
	return querycache.Query(ctx, s.cache, KeyStores, s.backend.GetStores, opts)
}

// Refresh refetches the stores regardless of freshness
func (s *StoreService) Refresh(ctx context.Context) querycache.Result[[]models.Store] {
	opts := s.options()
	opts.ShowRefreshing = true
	return querycache.Refetch(ctx, s.cache, KeyStores, s.backend.GetStores, opts)
}

// Search lists stores matching term
func (s *StoreService) Search(ctx context.Context, term string, refresh bool) querycache.Result[[]models.Store] {
	var res querycache.Result[[]models.Store]
	if refresh {
		res = s.Refresh(ctx)
	} else {
		res = s.List(ctx)
	}
	return filtered(res, func(stores []models.Store) []models.Store { return FilterStores(stores, term) })
}

func (s *StoreService) Create(ctx context.Context, in models.StoreInput) (models.Store, error) {
	return s.create.Mutate(ctx, in)
}

func (s *StoreService) Update(ctx context.Context, id string, patch models.StorePatch) (models.Store, error) {
	return s.update.Mutate(ctx, StoreUpdate{ID: id, Patch: patch})
}

func (s *StoreService) Delete(ctx context.Context, id string) error {
	_, err := s.remove.Mutate(ctx, id)
	return err
}

// Pending reports whether any store write is in flight
func (s *StoreService) Pending() bool {
	return s.create.Pending() || s.update.Pending() || s.remove.Pending()
}
