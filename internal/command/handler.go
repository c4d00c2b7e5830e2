// Package command runs the write side of the API: it calls the domain
// services with the caller's identity, records metrics and returns the
// resulting read models.
package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/catalog"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/metrics"
	"github.com/example/ec-storefront/internal/model"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

type Handler struct {
	catalogSvc *catalog.Service
	cartSvc    *cart.Service
	orderSvc   *order.Service
	adminSvc   *order.AdminService
	views      *query.Handler
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewHandler(
	catalogSvc *catalog.Service,
	cartSvc *cart.Service,
	orderSvc *order.Service,
	adminSvc *order.AdminService,
	views *query.Handler,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		catalogSvc: catalogSvc,
		cartSvc:    cartSvc,
		orderSvc:   orderSvc,
		adminSvc:   adminSvc,
		views:      views,
		metrics:    m,
		logger:     logger.With("component", "command"),
	}
}

// Categories

func (h *Handler) CreateCategory(ctx context.Context, caller domain.Caller, cmd CreateCategory) (*readmodel.CategoryReadModel, error) {
	c, err := h.catalogSvc.CreateCategory(ctx, caller, catalog.CategoryInput{Name: cmd.Name, Slug: cmd.Slug})
	if err != nil {
		return nil, err
	}
	return readmodel.NewCategory(*c), nil
}

func (h *Handler) UpdateCategory(ctx context.Context, caller domain.Caller, cmd UpdateCategory) (*readmodel.CategoryReadModel, error) {
	c, err := h.catalogSvc.UpdateCategory(ctx, caller, cmd.CategoryID, catalog.CategoryInput{Name: cmd.Name, Slug: cmd.Slug})
	if err != nil {
		return nil, err
	}
	return readmodel.NewCategory(*c), nil
}

func (h *Handler) DeleteCategory(ctx context.Context, caller domain.Caller, cmd DeleteCategory) error {
	return h.catalogSvc.DeleteCategory(ctx, caller, cmd.CategoryID)
}

// Products

func (h *Handler) CreateProduct(ctx context.Context, caller domain.Caller, cmd CreateProduct) (*readmodel.ProductReadModel, error) {
	p, err := h.catalogSvc.CreateProduct(ctx, caller, catalog.ProductInput{
		CategoryID:  cmd.CategoryID,
		Name:        cmd.Name,
		Slug:        cmd.Slug,
		Description: cmd.Description,
		Price:       cmd.Price,
		Stock:       cmd.Stock,
		IsActive:    cmd.IsActive,
	})
	if err != nil {
		return nil, err
	}
	return h.views.ProductView(ctx, p)
}

func (h *Handler) UpdateProduct(ctx context.Context, caller domain.Caller, cmd UpdateProduct) (*readmodel.ProductReadModel, error) {
	p, err := h.catalogSvc.UpdateProduct(ctx, caller, cmd.ProductID, catalog.ProductInput{
		CategoryID:  cmd.CategoryID,
		Name:        cmd.Name,
		Slug:        cmd.Slug,
		Description: cmd.Description,
		Price:       cmd.Price,
		Stock:       cmd.Stock,
		IsActive:    cmd.IsActive,
	})
	if err != nil {
		return nil, err
	}
	return h.views.ProductView(ctx, p)
}

func (h *Handler) DeleteProduct(ctx context.Context, caller domain.Caller, cmd DeleteProduct) error {
	return h.catalogSvc.DeleteProduct(ctx, caller, cmd.ProductID)
}

// Cart

func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.AddItem(ctx, cmd.Owner, cmd.ProductID, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	return h.views.CartView(ctx, c)
}

// UpdateCartItem sets the quantity of a line; zero or less removes it.
func (h *Handler) UpdateCartItem(ctx context.Context, cmd UpdateCartItem) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.UpdateItemQuantity(ctx, cmd.Owner, cmd.ItemID, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	return h.views.CartView(ctx, c)
}

func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.RemoveItem(ctx, cmd.Owner, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	return h.views.CartView(ctx, c)
}

func (h *Handler) MergeCart(ctx context.Context, cmd MergeCart) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.MergeSession(ctx, cmd.UserID, cmd.SessionKey)
	if err != nil {
		return nil, err
	}
	return h.views.CartView(ctx, c)
}

// Orders

// PlaceOrder checks out the caller's cart.
func (h *Handler) PlaceOrder(ctx context.Context, caller domain.Caller, cmd PlaceOrder) (*readmodel.OrderReadModel, error) {
	o, err := h.orderSvc.Checkout(ctx, caller, order.CheckoutRequest{
		ShippingAddress: cmd.ShippingAddress,
		Phone:           cmd.Phone,
		Status:          cmd.Status,
	})
	h.recordCheckout(err)
	if err != nil {
		return nil, err
	}
	if h.metrics != nil {
		total, _ := o.TotalPrice.Float64()
		h.metrics.CheckoutTotal.Observe(total)
	}
	return h.views.OrderView(ctx, o)
}

func (h *Handler) recordCheckout(err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmptyCart):
		result = "empty_cart"
	case errors.Is(err, order.ErrInsufficientStock):
		result = "insufficient_stock"
	case domain.Kind(err) != nil:
		result = "rejected"
	default:
		result = "error"
	}
	h.metrics.Checkouts.WithLabelValues(result).Inc()
}

func (h *Handler) ReplaceOrder(ctx context.Context, caller domain.Caller, cmd ReplaceOrder) (*readmodel.OrderReadModel, error) {
	o, err := h.adminSvc.Replace(ctx, caller, cmd.OrderID, order.OrderFields{
		ShippingAddress: cmd.ShippingAddress,
		Phone:           cmd.Phone,
		Status:          cmd.Status,
	})
	if err != nil {
		return nil, err
	}
	h.recordOrderUpdate("replace", o.Status)
	return h.views.OrderView(ctx, o)
}

func (h *Handler) PatchOrder(ctx context.Context, caller domain.Caller, cmd PatchOrder) (*readmodel.OrderReadModel, error) {
	o, err := h.adminSvc.PartialUpdate(ctx, caller, cmd.OrderID, order.OrderPatch{
		ShippingAddress: cmd.ShippingAddress,
		Phone:           cmd.Phone,
		Status:          cmd.Status,
	})
	if err != nil {
		return nil, err
	}
	h.recordOrderUpdate("patch", o.Status)
	return h.views.OrderView(ctx, o)
}

// CancelOrder soft-cancels an order.
func (h *Handler) CancelOrder(ctx context.Context, caller domain.Caller, cmd CancelOrder) error {
	o, err := h.adminSvc.Cancel(ctx, caller, cmd.OrderID)
	if err != nil {
		return err
	}
	h.recordOrderUpdate("cancel", o.Status)
	return nil
}

func (h *Handler) recordOrderUpdate(op string, status model.OrderStatus) {
	if h.metrics == nil {
		return
	}
	h.metrics.OrderUpdates.WithLabelValues(op, string(status)).Inc()
}
