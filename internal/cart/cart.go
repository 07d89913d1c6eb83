// Package cart holds the shopping cart of a store member and turns it into
// an order at checkout.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart  = errors.New("cart is empty")
	ErrOutOfStock = errors.New("not enough stock")
)

// Line is one product in the cart with a snapshot of the product taken when
// it was first added.
type Line struct {
	Product  models.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

// Subtotal is price × quantity
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart maps product ids to lines, keeping insertion order. Safe for
// concurrent use.
type Cart struct {
	mu      sync.Mutex
	order   []string
	lines   map[string]*Line
	version string
}

func New() *Cart {
	return &Cart{lines: make(map[string]*Line), version: uuid.NewString()}
}

// Restore builds a cart from persisted lines. Lines with quantity below one
// are dropped.
func Restore(lines []Line) *Cart {
	c := New()
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if existing, ok := c.lines[l.Product.ID]; ok {
			existing.Quantity += l.Quantity
			continue
		}
		line := l
		c.lines[l.Product.ID] = &line
		c.order = append(c.order, l.Product.ID)
	}
	return c
}

// AddItem adds quantity of product, merging with an existing line. The line
// may not exceed the product's stock.
func (c *Cart) AddItem(product models.Product, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", models.ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	have := 0
	if l, ok := c.lines[product.ID]; ok {
		have = l.Quantity
	}
	if have+quantity > product.Stock {
		return fmt.Errorf("%w: %s has %d in stock", ErrOutOfStock, product.Name, product.Stock)
	}

	if l, ok := c.lines[product.ID]; ok {
		l.Quantity += quantity
	} else {
		c.lines[product.ID] = &Line{Product: product, Quantity: quantity}
		c.order = append(c.order, product.ID)
	}
	c.touch()
	return nil
}

func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(productID)
}

func (c *Cart) removeLocked(productID string) {
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.touch()
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
// Unknown products are ignored.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if quantity <= 0 {
		c.removeLocked(productID)
		return nil
	}
	l, ok := c.lines[productID]
	if !ok {
		return nil
	}
	if quantity > l.Product.Stock {
		return fmt.Errorf("%w: %s has %d in stock", ErrOutOfStock, l.Product.Name, l.Product.Stock)
	}
	l.Quantity = quantity
	c.touch()
	return nil
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]*Line)
	c.order = nil
	c.touch()
}

// TotalItems is the sum of line quantities.
func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice is recomputed from the current lines on every call.
func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

// Version changes on every modification.
func (c *Cart) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Cart) touch() {
	c.version = uuid.NewString()
}
