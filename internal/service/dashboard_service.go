package service

import (
	"context"
	"errors"

	"storefront/internal/models"
	"storefront/internal/util"
)

// RecentOrderCount is how many orders the dashboard lists.
const RecentOrderCount = 6

// StoreShare is a store's member count relative to the largest store.
type StoreShare struct {
	Store models.Store `json:"store"`
	Share float64      `json:"share"`
}

// DashboardStats summarises the admin dashboard
type DashboardStats struct {
	ApprovedOrders int            `json:"approvedOrders"`
	PendingOrders  int            `json:"pendingOrders"`
	Stores         int            `json:"stores"`
	Members        int            `json:"members"`
	RecentOrders   []models.Order `json:"recentOrders"`
	StoreShares    []StoreShare   `json:"storeShares"`
	// Refreshing is set while stale collections are being refetched.
	Refreshing bool `json:"refreshing"`
	// Errors lists fetch failures for collections served stale or missing.
	Errors []string `json:"errors,omitempty"`
}

// DashboardService aggregates the other services' cached collections
type DashboardService struct {
	stores  *StoreService
	members *MemberService
	orders  *OrderService
}

func NewDashboardService(stores *StoreService, members *MemberService, orders *OrderService) *DashboardService {
	return &DashboardService{stores: stores, members: members, orders: orders}
}

// Stats computes the dashboard from whatever data is available. Stale
// collections are used as-is and refreshed in the background. It fails only
// when no collection could be loaded at all.
func (s *DashboardService) Stats(ctx context.Context) (DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Stats")
	defer span.End()

	stores := s.stores.latest(ctx)
	members := s.members.latest(ctx)
	orders := s.orders.Recent(ctx)

	stats := DashboardStats{Refreshing: stores.IsLoading || members.IsLoading || orders.IsLoading}
	var errs []error
	for _, err := range []error{stores.Err, members.Err, orders.Err} {
		if err != nil {
			errs = append(errs, err)
			stats.Errors = append(stats.Errors, err.Error())
		}
	}
	if !stores.HasData && !members.HasData && !orders.HasData && len(errs) > 0 {
		return DashboardStats{}, errors.Join(errs...)
	}

	stats.Stores = len(stores.Data)
	stats.Members = len(members.Data)
	for _, o := range orders.Data {
		switch o.Status {
		case models.OrderStatusApproved:
			stats.ApprovedOrders++
		case models.OrderStatusPending:
			stats.PendingOrders++
		}
	}

	recent := NewestFirst(orders.Data)
	if len(recent) > RecentOrderCount {
		recent = recent[:RecentOrderCount]
	}
	stats.RecentOrders = recent
	stats.StoreShares = StoreShares(stores.Data)
	return stats, nil
}

// StoreShares divides each store's member count by the largest one. All
// shares are zero when every count is zero.
func StoreShares(stores []models.Store) []StoreShare {
	largest := 0
	for _, st := range stores {
		if st.MemberCount > largest {
			largest = st.MemberCount
		}
	}
	out := make([]StoreShare, 0, len(stores))
	for _, st := range stores {
		share := 0.0
		if largest > 0 {
			share = float64(st.MemberCount) / float64(largest)
		}
		out = append(out, StoreShare{Store: st, Share: share})
	}
	return out
}
