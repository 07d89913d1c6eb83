package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDuplicateCheckout is returned when the same cart contents are already
// being, or have been, submitted.
var ErrDuplicateCheckout = errors.New("checkout already submitted for this cart")

// ClaimTTL bounds how long a submitted cart version stays claimed.
const ClaimTTL = 10 * time.Minute

// Submitter places an order. The order mutation satisfies it.
type Submitter interface {
	Mutate(ctx context.Context, in models.OrderInput) (models.Order, error)
}

// Summary is the cart as rendered to the member.
type Summary struct {
	Lines      []Line          `json:"lines"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type ownedCart struct {
	mu   sync.Mutex
	cart *Cart
}

// Service keeps one cart per owner, persisting every change.
type Service struct {
	persister Persister
	claimer   Claimer
	submit    Submitter
	logger    *zap.Logger

	mu    sync.Mutex
	carts map[string]*ownedCart
}

func NewService(persister Persister, claimer Claimer, submit Submitter) *Service {
	return &Service{
		persister: persister,
		claimer:   claimer,
		submit:    submit,
		logger:    util.NamedLogger("cart"),
		carts:     make(map[string]*ownedCart),
	}
}

func (s *Service) open(ctx context.Context, owner string) *ownedCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if oc, ok := s.carts[owner]; ok {
		return oc
	}

	lines, err := s.persister.LoadCart(ctx, owner)
	if err != nil {
		s.logger.Warn("Failed to load saved cart, starting empty", zap.String("owner", owner), zap.Error(err))
		lines = nil
	}
	oc := &ownedCart{cart: Restore(lines)}
	s.carts[owner] = oc
	return oc
}

func (s *Service) save(ctx context.Context, owner string, c *Cart) {
	if err := s.persister.SaveCart(ctx, owner, c.Lines()); err != nil {
		s.logger.Warn("Failed to save cart", zap.String("owner", owner), zap.Error(err))
	}
}

func summarize(c *Cart) Summary {
	return Summary{Lines: c.Lines(), TotalItems: c.TotalItems(), TotalPrice: c.TotalPrice()}
}

func (s *Service) View(ctx context.Context, owner string) Summary {
	oc := s.open(ctx, owner)
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return summarize(oc.cart)
}

func (s *Service) Add(ctx context.Context, owner string, product models.Product, quantity int) (Summary, error) {
	return s.modify(ctx, owner, func(c *Cart) error { return c.AddItem(product, quantity) })
}

func (s *Service) Update(ctx context.Context, owner, productID string, quantity int) (Summary, error) {
	return s.modify(ctx, owner, func(c *Cart) error { return c.UpdateQuantity(productID, quantity) })
}

func (s *Service) Remove(ctx context.Context, owner, productID string) Summary {
	sum, _ := s.modify(ctx, owner, func(c *Cart) error {
		c.RemoveItem(productID)
		return nil
	})
	return sum
}

func (s *Service) Clear(ctx context.Context, owner string) Summary {
	sum, _ := s.modify(ctx, owner, func(c *Cart) error {
		c.Clear()
		return nil
	})
	return sum
}

func (s *Service) modify(ctx context.Context, owner string, fn func(*Cart) error) (Summary, error) {
	oc := s.open(ctx, owner)
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := fn(oc.cart); err != nil {
		return summarize(oc.cart), err
	}
	s.save(ctx, owner, oc.cart)
	return summarize(oc.cart), nil
}

// BuildOrder snapshots lines into a pending order for the session's member
// and store.
func BuildOrder(session models.Session, lines []Line) (models.OrderInput, error) {
	if len(lines) == 0 {
		return models.OrderInput{}, ErrEmptyCart
	}
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		item, err := models.NewOrderItem(l.Product.ID, l.Product.Name, l.Quantity, l.Product.Price)
		if err != nil {
			return models.OrderInput{}, err
		}
		items = append(items, item)
	}
	return models.OrderInput{
		MemberID:   session.UserID,
		MemberName: session.Name,
		StoreID:    session.StoreID,
		StoreName:  session.StoreName,
		Items:      items,
		Total:      models.SumItems(items),
		Status:     models.OrderStatusPending,
	}, nil
}

// Checkout submits the session owner's cart as an order and clears the cart
// once the order is accepted. On any failure the cart is left as it was.
func (s *Service) Checkout(ctx context.Context, session models.Session) (models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Cart.Checkout")
	defer span.End()

	oc := s.open(ctx, session.UserID)
	oc.mu.Lock()
	defer oc.mu.Unlock()

	input, err := BuildOrder(session, oc.cart.Lines())
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid").Inc()
		return models.Order{}, err
	}

	claimKey := fmt.Sprintf("checkout:%s:%s", session.UserID, oc.cart.Version())
	claimed, err := s.claimer.Claim(ctx, claimKey, ClaimTTL)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("claim_error").Inc()
		return models.Order{}, fmt.Errorf("failed to claim checkout: %w", err)
	}
	if !claimed {
		util.CheckoutsFailedTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("Duplicate checkout detected", zap.String("claim_key", claimKey))
		return models.Order{}, ErrDuplicateCheckout
	}

	order, err := s.submit.Mutate(ctx, input)
	if err != nil {
		if rerr := s.claimer.Release(ctx, claimKey); rerr != nil {
			s.logger.Warn("Failed to release checkout claim", zap.String("claim_key", claimKey), zap.Error(rerr))
		}
		util.CheckoutsFailedTotal.WithLabelValues("submit").Inc()
		return models.Order{}, err
	}

	oc.cart.Clear()
	if err := s.persister.DeleteCart(ctx, session.UserID); err != nil {
		s.logger.Warn("Failed to delete saved cart", zap.String("owner", session.UserID), zap.Error(err))
	}

	s.logger.Info("Checkout completed",
		zap.String("order_id", order.ID),
		zap.String("member_id", session.UserID),
		zap.String("total", order.Total.String()))
	return order, nil
}
