// Package cart keeps one mutable cart per owner. Each line captures the
// product price the first time the product is added and keeps it.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
	"github.com/google/uuid"
)

// MaxQuantity bounds a single cart line. It matches the INTEGER column the
// quantity is stored in.
const MaxQuantity = math.MaxInt32

var (
	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	ErrInvalidProduct      = fmt.Errorf("%w: product_id is required", domain.ErrValidation)
	ErrInvalidOwner        = fmt.Errorf("%w: %w", domain.ErrValidation, model.ErrInvalidOwner)
	ErrProductUnavailable  = fmt.Errorf("%w: product does not exist or is inactive", domain.ErrNotFound)
	ErrItemNotFound        = fmt.Errorf("%w: item not found", domain.ErrNotFound)
	ErrSessionKeyRequired  = fmt.Errorf("%w: session key is required", domain.ErrValidation)
	ErrUserRequiredToMerge = fmt.Errorf("%w: merging needs an authenticated user", domain.ErrValidation)
)

type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With("component", "cart"),
		now:    time.Now,
	}
}

// load returns the owner's cart, creating an empty one on first access.
// With lock set the cart row stays locked for the rest of the transaction.
func (s *Service) load(ctx context.Context, tx store.Tx, owner model.CartOwner, lock bool) (*model.Cart, error) {
	get := tx.GetCart
	if lock {
		get = tx.LockCart
	}

	c, err := get(ctx, owner)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	c = &model.Cart{
		ID:         uuid.New().String(),
		UserID:     owner.UserID,
		SessionKey: owner.SessionKey,
		CreatedAt:  s.now(),
	}
	switch err := tx.InsertCart(ctx, c); {
	case err == nil:
		s.logger.Debug("cart created", "cart_id", c.ID, "owner", owner.String())
		return c, nil
	case errors.Is(err, store.ErrDuplicate):
		// Lost the race against a concurrent first access.
		return get(ctx, owner)
	default:
		return nil, fmt.Errorf("create cart: %w", err)
	}
}

// GetOrCreate returns the owner's cart, creating an empty one if needed.
func (s *Service) GetOrCreate(ctx context.Context, owner model.CartOwner) (*model.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}
	var c *model.Cart
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = s.load(ctx, tx, owner, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// mutate runs fn against the owner's locked cart and returns the cart as it
// stands after fn.
func (s *Service) mutate(ctx context.Context, owner model.CartOwner, fn func(tx store.Tx, c *model.Cart) error) (*model.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}
	var out *model.Cart
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := s.load(ctx, tx, owner, true)
		if err != nil {
			return err
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		out, err = tx.GetCart(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func findByProduct(c *model.Cart, productID string) (model.CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return model.CartItem{}, false
}

// addQuantity sums two line quantities, both already within MaxQuantity.
func addQuantity(a, b int) (int, error) {
	if a > MaxQuantity-b {
		return 0, ErrInvalidQuantity
	}
	return a + b, nil
}

// AddItem adds quantity of the product to the cart. A new line snapshots the
// current product price; an existing line only grows its quantity and keeps
// the price it was created with.
func (s *Service) AddItem(ctx context.Context, owner model.CartOwner, productID string, quantity int) (*model.Cart, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	return s.mutate(ctx, owner, func(tx store.Tx, c *model.Cart) error {
		p, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductUnavailable
		}
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if !p.IsActive {
			return ErrProductUnavailable
		}

		if existing, ok := findByProduct(c, productID); ok {
			total, err := addQuantity(existing.Quantity, quantity)
			if err != nil {
				return err
			}
			if err := tx.UpdateCartItemQuantity(ctx, existing.ID, total); err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
			s.logger.Debug("cart item quantity increased",
				"cart_id", c.ID, "item_id", existing.ID, "quantity", total)
			return nil
		}

		item := &model.CartItem{
			ID:        uuid.New().String(),
			CartID:    c.ID,
			ProductID: productID,
			Quantity:  quantity,
			Price:     p.Price,
			AddedAt:   s.now(),
		}
		if err := tx.InsertCartItem(ctx, item); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
		s.logger.Debug("cart item added",
			"cart_id", c.ID, "item_id", item.ID, "product_id", productID, "price", item.Price.StringFixed(2))
		return nil
	})
}

// UpdateItemQuantity sets the quantity of a line. Zero or a negative value
// removes the line, exactly like RemoveItem.
func (s *Service) UpdateItemQuantity(ctx context.Context, owner model.CartOwner, itemID string, quantity int) (*model.Cart, error) {
	if quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, owner, func(tx store.Tx, c *model.Cart) error {
		if _, ok := c.FindItem(itemID); !ok {
			return ErrItemNotFound
		}
		if quantity <= 0 {
			return tx.DeleteCartItem(ctx, itemID)
		}
		return tx.UpdateCartItemQuantity(ctx, itemID, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, owner model.CartOwner, itemID string) (*model.Cart, error) {
	return s.mutate(ctx, owner, func(tx store.Tx, c *model.Cart) error {
		if _, ok := c.FindItem(itemID); !ok {
			return ErrItemNotFound
		}
		return tx.DeleteCartItem(ctx, itemID)
	})
}

// MergeSession moves the lines of an anonymous cart into the user's cart.
// Lines for products the user already has add their quantity and keep the
// user's price; other lines move over with their own captured price. The
// anonymous cart is left empty.
func (s *Service) MergeSession(ctx context.Context, userID, sessionKey string) (*model.Cart, error) {
	if userID == "" {
		return nil, ErrUserRequiredToMerge
	}
	if sessionKey == "" {
		return nil, ErrSessionKeyRequired
	}

	moved := 0
	c, err := s.mutate(ctx, model.UserOwner(userID), func(tx store.Tx, c *model.Cart) error {
		anon, err := tx.LockCart(ctx, model.SessionOwner(sessionKey))
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load session cart: %w", err)
		}

		for _, line := range anon.Items {
			if existing, ok := findByProduct(c, line.ProductID); ok {
				total, err := addQuantity(existing.Quantity, line.Quantity)
				if err != nil {
					return err
				}
				if err := tx.UpdateCartItemQuantity(ctx, existing.ID, total); err != nil {
					return fmt.Errorf("update cart item: %w", err)
				}
			} else {
				item := &model.CartItem{
					ID:        uuid.New().String(),
					CartID:    c.ID,
					ProductID: line.ProductID,
					Quantity:  line.Quantity,
					Price:     line.Price,
					AddedAt:   line.AddedAt,
				}
				if err := tx.InsertCartItem(ctx, item); err != nil {
					return fmt.Errorf("insert cart item: %w", err)
				}
			}
			moved++
		}
		_, err = tx.ClearCart(ctx, anon.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if moved > 0 {
		s.logger.Info("session cart merged", "cart_id", c.ID, "user_id", userID, "lines", moved)
	}
	return c, nil
}
