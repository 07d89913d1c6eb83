// Package service exposes the console's reads and writes: reads go through
// the query cache, writes through mutations that keep it consistent.
package service

import (
	"sort"
	"strings"

	"storefront/internal/models"
	"storefront/internal/querycache"
)

// Cache keys, one per entity collection.
const (
	KeyStores   querycache.Key = "stores"
	KeyMembers  querycache.Key = "members"
	KeyOrders   querycache.Key = "orders"
	KeyProducts querycache.Key = "products"
)

// FilterAll disables a select-style filter.
const FilterAll = "all"

func contains(field, term string) bool {
	return strings.Contains(strings.ToLower(field), term)
}

func normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// FilterStores matches term against name and store code, case-insensitively.
func FilterStores(stores []models.Store, term string) []models.Store {
	term = normalize(term)
	out := make([]models.Store, 0, len(stores))
	for _, s := range stores {
		if term == "" || contains(s.Name, term) || contains(s.StoreID, term) {
			out = append(out, s)
		}
	}
	return out
}

// FilterMembers matches term against name and email and, unless storeID is
// empty or "all", keeps only members of that store.
func FilterMembers(members []models.Member, term, storeID string) []models.Member {
	term = normalize(term)
	out := make([]models.Member, 0, len(members))
	for _, m := range members {
		if storeID != "" && storeID != FilterAll && m.StoreID != storeID {
			continue
		}
		if term == "" || contains(m.Name, term) || contains(m.Email, term) {
			out = append(out, m)
		}
	}
	return out
}

// FilterOrders matches term against order id, member name and store name
// and, unless status is empty or "all", keeps only that status.
func FilterOrders(orders []models.Order, term, status string) []models.Order {
	term = normalize(term)
	status = normalize(status)
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if status != "" && status != FilterAll && string(o.Status) != status {
			continue
		}
		if term == "" || contains(o.ID, term) || contains(o.MemberName, term) || contains(o.StoreName, term) {
			out = append(out, o)
		}
	}
	return out
}

// NewestFirst returns a copy of orders sorted by creation time, newest first.
func NewestFirst(orders []models.Order) []models.Order {
	out := append([]models.Order(nil), orders...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// filtered applies fn to the data of res, keeping its state flags.
func filtered[T any](res querycache.Result[[]T], fn func([]T) []T) querycache.Result[[]T] {
	if res.HasData {
		res.Data = fn(res.Data)
	} else {
		res.Data = []T{}
	}
	return res
}
