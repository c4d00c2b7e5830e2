// Package order turns carts into orders and manages their status afterwards.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = fmt.Errorf("%w: order not found", domain.ErrNotFound)
	ErrEmptyCart         = fmt.Errorf("%w: Cart is empty", domain.ErrEmptyCart)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", domain.ErrConflict)
	ErrUnauthenticated   = fmt.Errorf("%w: an authenticated user is required", domain.ErrForbidden)
	// ErrCheckoutFailed wraps storage failures during checkout. It carries no
	// error kind and surfaces as an internal error.
	ErrCheckoutFailed = errors.New("checkout failed")
)

// Options switch on stricter behaviour. The zero value keeps the permissive
// defaults: no stock floor, free status writes, no restock on cancel.
type Options struct {
	EnforceStockFloor bool
	StrictTransitions bool
	RestockOnCancel   bool
}

// CheckoutRequest carries the customer-supplied order fields. Status is
// accepted for compatibility with clients that send it and always ignored.
type CheckoutRequest struct {
	ShippingAddress string
	Phone           string
	Status          string
}

type Service struct {
	store  store.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, opts Options, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		opts:   opts,
		logger: logger.With("component", "order"),
		now:    time.Now,
	}
}

// Checkout converts the caller's cart into a PENDING order in a single
// transaction: order and items are written, product stock is decremented,
// the total is computed, the cart is emptied and an OrderPlaced event is
// queued. Any failure leaves no trace.
func (s *Service) Checkout(ctx context.Context, caller domain.Caller, req CheckoutRequest) (*model.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if req.Status != "" && req.Status != string(model.OrderStatusPending) {
		s.logger.Debug("ignoring client supplied order status", "user_id", caller.UserID, "status", req.Status)
	}

	var placed *model.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := s.checkout(ctx, tx, caller, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		if domain.Kind(err) == nil {
			s.logger.Error("checkout failed", "user_id", caller.UserID, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
		}
		return nil, err
	}

	s.logger.Info("order placed",
		"order_id", placed.ID,
		"user_id", placed.UserID,
		"items", len(placed.Items),
		"total", placed.TotalPrice.StringFixed(2))
	return placed, nil
}

func (s *Service) checkout(ctx context.Context, tx store.Tx, caller domain.Caller, req CheckoutRequest) (*model.Order, error) {
	c, err := tx.LockCart(ctx, model.UserOwner(caller.UserID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	now := s.now()
	o := &model.Order{
		ID:              uuid.New().String(),
		UserID:          caller.UserID,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Status:          model.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	// Product rows are locked in id order so two checkouts sharing products
	// cannot deadlock.
	lines := make([]model.CartItem, len(c.Items))
	copy(lines, c.Items)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	for _, line := range lines {
		if s.opts.EnforceStockFloor {
			p, err := tx.LockProduct(ctx, line.ProductID)
			if err != nil {
				return nil, fmt.Errorf("lock product %s: %w", line.ProductID, err)
			}
			if p.Stock < line.Quantity {
				return nil, fmt.Errorf("%w: product %s has %d, %d requested",
					ErrInsufficientStock, p.ID, p.Stock, line.Quantity)
			}
		}

		item := model.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
			CreatedAt: now,
		}
		if err := tx.InsertOrderItem(ctx, &item); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
		o.Items = append(o.Items, item)

		stock, err := tx.AdjustProductStock(ctx, line.ProductID, -line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock of %s: %w", line.ProductID, err)
		}
		if stock < 0 {
			s.logger.Warn("product stock below zero after checkout",
				"product_id", line.ProductID, "stock", stock, "order_id", o.ID)
		}
	}

	o.TotalPrice = o.ComputeTotal()
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("store order total: %w", err)
	}

	if _, err := tx.ClearCart(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	ev, err := store.NewEvent(o.ID, AggregateType, EventOrderPlaced, OrderPlaced{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Email:           caller.Email,
		ShippingAddress: o.ShippingAddress,
		Items:           eventItems(o.Items),
		Total:           o.TotalPrice,
		PlacedAt:        now,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("encode order placed event: %w", err)
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("append order placed event: %w", err)
	}
	return o, nil
}

// ListForUser returns the caller's own orders, newest first.
func (s *Service) ListForUser(ctx context.Context, caller domain.Caller) ([]model.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	var out []model.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, store.OrderFilter{UserID: caller.UserID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// Get returns one order. Orders of other users are reported as not found
// unless the caller is an administrator.
func (s *Service) Get(ctx context.Context, caller domain.Caller, id string) (*model.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) get(ctx context.Context, id string) (*model.Order, error) {
	var o *model.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}
