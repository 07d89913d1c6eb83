package store

import (
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Seed is the initial content of a backing store.
type Seed struct {
	Stores   []models.Store
	Members  []models.Member
	Products []models.Product
	Orders   []models.Order
}

// DefaultSeed returns the demo data set: four stores, five members, eight
// products and fifteen orders cycling through pending, approved and rejected.
func DefaultSeed(now time.Time) Seed {
	now = now.UTC()

	stores := []models.Store{
		{ID: "1", StoreID: "ST001", Name: "Downtown Store", MemberCount: 12},
		{ID: "2", StoreID: "ST002", Name: "Mall Location", MemberCount: 8},
		{ID: "3", StoreID: "ST003", Name: "Airport Branch", MemberCount: 5},
		{ID: "4", StoreID: "ST004", Name: "Suburban Center", MemberCount: 10},
	}

	member := func(id, name, email string, store models.Store, age time.Duration) models.Member {
		return models.Member{
			ID:        id,
			Name:      name,
			Email:     email,
			StoreID:   store.ID,
			StoreName: store.Name,
			Password:  "password",
			CreatedAt: now.Add(-age),
		}
	}
	day := 24 * time.Hour
	members := []models.Member{
		member("2", "John Smith", "john@store1.com", stores[0], 90*day),
		member("3", "Sarah Johnson", "sarah@store2.com", stores[1], 75*day),
		member("4", "Mike Wilson", "mike@store3.com", stores[2], 60*day),
		member("5", "Emma Brown", "emma@store4.com", stores[3], 45*day),
		member("6", "David Lee", "david@store1.com", stores[0], 30*day),
	}

	product := func(id, name, desc, price, category string, stock int) models.Product {
		return models.Product{
			ID:          id,
			Name:        name,
			Description: desc,
			Price:       decimal.RequireFromString(price),
			Category:    category,
			Image:       "/images/products/" + id + ".jpg",
			Stock:       stock,
		}
	}
	products := []models.Product{
		product("1", "Wireless Headphones", "Over-ear noise cancelling headphones", "89.99", "Electronics", 25),
		product("2", "Coffee Maker", "12-cup programmable drip coffee maker", "49.50", "Kitchen", 15),
		product("3", "Running Shoes", "Lightweight trail running shoes", "74.00", "Apparel", 40),
		product("4", "Desk Lamp", "LED desk lamp with adjustable arm", "32.25", "Home", 0),
		product("5", "Yoga Mat", "Non-slip 6mm exercise mat", "24.99", "Fitness", 60),
		product("6", "Bluetooth Speaker", "Portable waterproof speaker", "59.95", "Electronics", 18),
		product("7", "Chef Knife", "8-inch stainless steel chef knife", "39.00", "Kitchen", 22),
		product("8", "Backpack", "30L commuter backpack", "64.75", "Apparel", 9),
	}

	statuses := []models.OrderStatus{models.OrderStatusPending, models.OrderStatusApproved, models.OrderStatusRejected}
	orders := make([]models.Order, 0, 15)
	for i := 0; i < 15; i++ {
		m := members[i%len(members)]
		p := products[i%len(products)]
		items := []models.OrderItem{{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    i%3 + 1,
			Price:       p.Price,
		}}
		orders = append(orders, models.Order{
			ID:         fmt.Sprintf("order-%d", i+1),
			MemberID:   m.ID,
			MemberName: m.Name,
			StoreID:    m.StoreID,
			StoreName:  m.StoreName,
			Items:      items,
			Total:      models.SumItems(items),
			Status:     statuses[i%len(statuses)],
			CreatedAt:  now.Add(-time.Duration((i*7)%30) * day).Add(-time.Duration(i) * time.Hour),
		})
	}

	return Seed{Stores: stores, Members: members, Products: products, Orders: orders}
}
