package models

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation marks a payload rejected before any backing-store call.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition is returned when an order status change is not allowed.
var ErrInvalidTransition = errors.New("invalid order status transition")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Role of an authenticated identity
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleStoreMember Role = "store_member"
)

// OrderStatus of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusApproved OrderStatus = "approved"
	OrderStatusRejected OrderStatus = "rejected"
)

// ParseOrderStatus accepts the three known statuses.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case OrderStatusPending, OrderStatusApproved, OrderStatusRejected:
		return st, nil
	}
	return "", invalid("unknown order status %q", s)
}

// Store is a physical store location. MemberCount is informational and is not
// derived from member rows.
type Store struct {
	ID          string `db:"id" json:"id"`
	StoreID     string `db:"store_code" json:"storeId"`
	Name        string `db:"name" json:"name"`
	MemberCount int    `db:"member_count" json:"memberCount"`
}

// StoreInput is the payload for creating a store
type StoreInput struct {
	StoreID     string `json:"storeId" binding:"required"`
	Name        string `json:"name" binding:"required"`
	MemberCount int    `json:"memberCount"`
}

func (in StoreInput) Validate() error {
	if strings.TrimSpace(in.StoreID) == "" {
		return invalid("store code is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return invalid("store name is required")
	}
	if in.MemberCount < 0 {
		return invalid("member count must be non-negative")
	}
	return nil
}

// StorePatch carries a partial store update; nil fields are left unchanged.
type StorePatch struct {
	StoreID     *string `json:"storeId"`
	Name        *string `json:"name"`
	MemberCount *int    `json:"memberCount"`
}

// Apply returns s with the patch applied, validating the result.
func (p StorePatch) Apply(s Store) (Store, error) {
	if p.StoreID != nil {
		s.StoreID = *p.StoreID
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.MemberCount != nil {
		s.MemberCount = *p.MemberCount
	}
	err := StoreInput{StoreID: s.StoreID, Name: s.Name, MemberCount: s.MemberCount}.Validate()
	return s, err
}

// Member is a store member account. StoreName is a copy of the referenced
// store's name taken at write time; it is not resynchronised on rename.
// Password is plaintext demo data.
type Member struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	StoreID   string    `db:"store_id" json:"storeId"`
	StoreName string    `db:"store_name" json:"storeName"`
	Password  string    `db:"password" json:"password"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MemberInput is the payload for creating a member. StoreName is never read
// from clients; it is copied from the referenced store before the write.
type MemberInput struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	StoreID   string `json:"storeId" binding:"required"`
	StoreName string `json:"-"`
	Password  string `json:"password"`
}

func (in MemberInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("member name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalid("email %q is not valid", in.Email)
	}
	if strings.TrimSpace(in.StoreID) == "" {
		return invalid("store is required")
	}
	return nil
}

// MemberPatch carries a partial member update. StoreName follows StoreID
// and is filled in server-side.
type MemberPatch struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	StoreID   *string `json:"storeId"`
	StoreName *string `json:"-"`
	Password  *string `json:"password"`
}

func (p MemberPatch) Apply(m Member) (Member, error) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	if p.StoreID != nil {
		m.StoreID = *p.StoreID
	}
	if p.StoreName != nil {
		m.StoreName = *p.StoreName
	}
	if p.Password != nil {
		m.Password = *p.Password
	}
	err := MemberInput{Name: m.Name, Email: m.Email, StoreID: m.StoreID}.Validate()
	return m, err
}

// Product represents a product in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Category    string          `db:"category" json:"category"`
	Image       string          `db:"image" json:"image"`
	Stock       int             `db:"stock" json:"stock"`
}

// NewProduct builds a product, rejecting negative price or stock.
func NewProduct(id, name, description string, price decimal.Decimal, category, image string, stock int) (Product, error) {
	p := Product{
		ID:          id,
		Name:        name,
		Description: description,
		Price:       price,
		Category:    category,
		Image:       image,
		Stock:       stock,
	}
	return p, p.Validate()
}

func (p Product) Validate() error {
	if p.ID == "" {
		return invalid("product id is required")
	}
	if p.Price.IsNegative() {
		return invalid("product %s price must be non-negative", p.ID)
	}
	if p.Stock < 0 {
		return invalid("product %s stock must be non-negative", p.ID)
	}
	return nil
}

// OrderItem is a product line captured on an order
type OrderItem struct {
	ProductID   string          `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// NewOrderItem builds an order line, rejecting quantity below one or negative price.
func NewOrderItem(productID, productName string, quantity int, price decimal.Decimal) (OrderItem, error) {
	item := OrderItem{ProductID: productID, ProductName: productName, Quantity: quantity, Price: price}
	return item, item.Validate()
}

func (i OrderItem) Validate() error {
	if i.ProductID == "" {
		return invalid("order item product id is required")
	}
	if i.Quantity < 1 {
		return invalid("order item %s quantity must be at least 1", i.ProductID)
	}
	if i.Price.IsNegative() {
		return invalid("order item %s price must be non-negative", i.ProductID)
	}
	return nil
}

// Subtotal is quantity × price
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems totals quantity × price across items.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Order represents a member order
type Order struct {
	ID         string          `db:"id" json:"id"`
	MemberID   string          `db:"member_id" json:"memberId"`
	MemberName string          `db:"member_name" json:"memberName"`
	StoreID    string          `db:"store_id" json:"storeId"`
	StoreName  string          `db:"store_name" json:"storeName"`
	Items      []OrderItem     `db:"-" json:"items"`
	Total      decimal.Decimal `db:"total" json:"total"`
	Status     OrderStatus     `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Transition returns the order moved to status. Only pending orders may
// change, and only to approved or rejected.
func (o Order) Transition(status OrderStatus) (Order, error) {
	if o.Status != OrderStatusPending {
		return o, fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, o.ID, o.Status)
	}
	if status != OrderStatusApproved && status != OrderStatusRejected {
		return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
	}
	o.Status = status
	return o, nil
}

// OrderInput is the payload for placing an order
type OrderInput struct {
	MemberID   string          `json:"memberId"`
	MemberName string          `json:"memberName"`
	StoreID    string          `json:"storeId"`
	StoreName  string          `json:"storeName"`
	Items      []OrderItem     `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Status     OrderStatus     `json:"status"`
}

// Validate checks the items and that Total equals the sum of the items exactly.
func (in OrderInput) Validate() error {
	if in.MemberID == "" {
		return invalid("order member is required")
	}
	if in.StoreID == "" {
		return invalid("order store is required")
	}
	if len(in.Items) == 0 {
		return invalid("order must contain at least one item")
	}
	for _, item := range in.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if sum := SumItems(in.Items); !sum.Equal(in.Total) {
		return invalid("order total %s does not match items total %s", in.Total, sum)
	}
	if in.Status != "" && in.Status != OrderStatusPending {
		return invalid("new orders must be pending, got %s", in.Status)
	}
	return nil
}

// Session is the authenticated identity for the process.
type Session struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	StoreID   string `json:"storeId,omitempty"`
	StoreName string `json:"storeName,omitempty"`
}
