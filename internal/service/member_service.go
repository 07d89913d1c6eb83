package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/mutation"
	"storefront/internal/querycache"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const tempPasswordAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// TempPassword returns "temp" followed by six random base-36 characters.
func TempPassword() (string, error) {
	out := []byte("temp")
	buf := make([]byte, 16)
	for len(out) < 4+6 {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate temporary password: %w", err)
		}
		for _, b := range buf {
			// Bytes at or above the largest multiple of 36 would bias the result.
			if int(b) >= 256-256%len(tempPasswordAlphabet) {
				continue
			}
			out = append(out, tempPasswordAlphabet[int(b)%len(tempPasswordAlphabet)])
			if len(out) == 4+6 {
				break
			}
		}
	}
	return string(out), nil
}

// MemberUpdate identifies the member a patch applies to.
type MemberUpdate struct {
	ID    string
	Patch models.MemberPatch
}

// MemberService manages store member accounts
type MemberService struct {
	backend store.Backend
	cache   *querycache.Cache
	stale   time.Duration
	logger  *zap.Logger

	create *mutation.Mutation[models.MemberInput, models.Member]
	update *mutation.Mutation[MemberUpdate, models.Member]
	remove *mutation.Mutation[string, struct{}]
}

// NewMemberService creates a new member service
func NewMemberService(backend store.Backend, cache *querycache.Cache, events *broker.EventPublisher, stale time.Duration) *MemberService {
	s := &MemberService{backend: backend, cache: cache, stale: stale, logger: util.NamedLogger("members")}

	publish := func(ctx context.Context, id, action string) {
		events.PublishEntityChanged(ctx, models.EventTypeMemberChanged, id, action)
	}

	s.create = mutation.New(cache, mutation.Config[models.MemberInput, models.Member]{
		Name:       "add member",
		Validate:   models.MemberInput.Validate,
		Prepare:    s.prepareCreate,
		Invalidate: []querycache.Key{KeyMembers},
		OnSuccess: func(ctx context.Context, _ models.MemberInput, out models.Member) {
			publish(ctx, out.ID, models.ActionCreated)
		},
	}, backend.AddMember)

	s.update = mutation.New(cache, mutation.Config[MemberUpdate, models.Member]{
		Name:       "update member",
		Prepare:    s.prepareUpdate,
		Invalidate: []querycache.Key{KeyMembers},
		OnSuccess: func(ctx context.Context, _ MemberUpdate, out models.Member) {
			publish(ctx, out.ID, models.ActionUpdated)
		},
	}, func(ctx context.Context, in MemberUpdate) (models.Member, error) {
		return backend.UpdateMember(ctx, in.ID, in.Patch)
	})

	s.remove = mutation.New(cache, mutation.Config[string, struct{}]{
		Name:       "delete member",
		Invalidate: []querycache.Key{KeyMembers},
		OnSuccess: func(ctx context.Context, id string, _ struct{}) {
			publish(ctx, id, models.ActionDeleted)
		},
	}, func(ctx context.Context, id string) (struct{}, error) {
		return struct{}{}, backend.DeleteMember(ctx, id)
	})

	return s
}

func (s *MemberService) options() querycache.Options {
	return querycache.Options{StaleTime: s.stale}
}

// List returns all members
func (s *MemberService) List(ctx context.Context) querycache.Result[[]models.Member] {
	return querycache.Query(ctx, s.cache, KeyMembers, s.backend.GetMembers, s.options())
}

// latest serves the cached members at once and refreshes them in the
// background when stale.
func (s *MemberService) latest(ctx context.Context) querycache.Result[[]models.Member] {
	opts := s.options()
	opts.Background, opts.ShowRefreshing = true, true
	return querycache.Query(ctx, s.cache, KeyMembers, s.backend.GetMembers, opts)
}

// Search lists members matching term, optionally limited to one store
func (s *MemberService) Search(ctx context.Context, term, storeID string, refresh bool) querycache.Result[[]models.Member] {
	var res querycache.Result[[]models.Member]
	if refresh {
		opts := s.options()
		opts.ShowRefreshing = true
		res = querycache.Refetch(ctx, s.cache, KeyMembers, s.backend.GetMembers, opts)
	} else {
		res = s.List(ctx)
	}
	return filtered(res, func(members []models.Member) []models.Member { return FilterMembers(members, term, storeID) })
}

// storeName looks up the current name of a store. The name is copied onto
// the member and not kept in sync afterwards.
func (s *MemberService) storeName(ctx context.Context, storeID string) (string, error) {
	stores, err := s.backend.GetStores(ctx)
	if err != nil {
		s.logger.Warn("Failed to resolve store name", zap.String("store_id", storeID), zap.Error(err))
		return "", fmt.Errorf("failed to look up store %s: %w", storeID, err)
	}
	for _, st := range stores {
		if st.ID == storeID {
			return st.Name, nil
		}
	}
	return "", fmt.Errorf("%w: store %s not found", models.ErrValidation, storeID)
}

func (s *MemberService) prepareCreate(ctx context.Context, in models.MemberInput) (models.MemberInput, error) {
	name, err := s.storeName(ctx, in.StoreID)
	if err != nil {
		return in, err
	}
	in.StoreName = name
	return in, nil
}

func (s *MemberService) prepareUpdate(ctx context.Context, in MemberUpdate) (MemberUpdate, error) {
	in.Patch.StoreName = nil
	if in.Patch.StoreID == nil {
		return in, nil
	}
	name, err := s.storeName(ctx, *in.Patch.StoreID)
	if err != nil {
		return in, err
	}
	in.Patch.StoreName = &name
	return in, nil
}

// Create adds a member. A temporary password is generated when none is
// given, and the store name is copied from the referenced store.
func (s *MemberService) Create(ctx context.Context, in models.MemberInput) (models.Member, error) {
	if in.Password == "" {
		password, err := TempPassword()
		if err != nil {
			return models.Member{}, err
		}
		in.Password = password
	}
	in.StoreName = ""
	return s.create.Mutate(ctx, in)
}

// Update patches a member. An empty password keeps the existing one.
func (s *MemberService) Update(ctx context.Context, id string, patch models.MemberPatch) (models.Member, error) {
	if patch.Password != nil && *patch.Password == "" {
		patch.Password = nil
	}
	return s.update.Mutate(ctx, MemberUpdate{ID: id, Patch: patch})
}

func (s *MemberService) Delete(ctx context.Context, id string) error {
	_, err := s.remove.Mutate(ctx, id)
	return err
}

// Pending reports whether any member write is in flight
func (s *MemberService) Pending() bool {
	return s.create.Pending() || s.update.Pending() || s.remove.Pending()
}
