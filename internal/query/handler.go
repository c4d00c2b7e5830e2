// Package query assembles the read models returned by the API. Access rules
// stay in the domain services; this package only joins products and
// categories onto what they return.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/catalog"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
	"github.com/example/ec-storefront/internal/readmodel"
)

type Handler struct {
	store   store.Store
	catalog *catalog.Service
	carts   *cart.Service
	orders  *order.Service
	admin   *order.AdminService
	logger  *slog.Logger
}

func NewHandler(
	st store.Store,
	catalogSvc *catalog.Service,
	cartSvc *cart.Service,
	orderSvc *order.Service,
	adminSvc *order.AdminService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		store:   st,
		catalog: catalogSvc,
		carts:   cartSvc,
		orders:  orderSvc,
		admin:   adminSvc,
		logger:  logger.With("component", "query"),
	}
}

// Categories

func (h *Handler) ListCategories(ctx context.Context) ([]*readmodel.CategoryReadModel, error) {
	cats, err := h.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*readmodel.CategoryReadModel, 0, len(cats))
	for _, c := range cats {
		out = append(out, readmodel.NewCategory(c))
	}
	return out, nil
}

func (h *Handler) GetCategory(ctx context.Context, id string) (*readmodel.CategoryReadModel, error) {
	c, err := h.catalog.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	return readmodel.NewCategory(*c), nil
}

// Products

func (h *Handler) ListProducts(ctx context.Context, categoryID string) ([]*readmodel.ProductReadModel, error) {
	products, err := h.catalog.ListProducts(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	cats, err := h.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*readmodel.ProductReadModel, 0, len(products))
	for _, p := range products {
		out = append(out, readmodel.NewProduct(p, cats[p.CategoryID]))
	}
	return out, nil
}

func (h *Handler) GetProduct(ctx context.Context, caller domain.Caller, id string) (*readmodel.ProductReadModel, error) {
	p, err := h.catalog.GetProduct(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return h.ProductView(ctx, p)
}

// ProductView renders a product with its category.
func (h *Handler) ProductView(ctx context.Context, p *model.Product) (*readmodel.ProductReadModel, error) {
	c, err := h.catalog.GetCategory(ctx, p.CategoryID)
	if err != nil && !errors.Is(err, catalog.ErrCategoryNotFound) {
		return nil, err
	}
	return readmodel.NewProduct(*p, c), nil
}

// Cart

// GetCart returns the owner's cart, creating an empty one on first access.
func (h *Handler) GetCart(ctx context.Context, owner model.CartOwner) (*readmodel.CartReadModel, error) {
	c, err := h.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	return h.CartView(ctx, c)
}

func (h *Handler) CartView(ctx context.Context, c *model.Cart) (*readmodel.CartReadModel, error) {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	idx, err := h.productIndex(ctx, ids)
	if err != nil {
		return nil, err
	}
	return readmodel.NewCart(c, idx), nil
}

// Orders

func (h *Handler) ListOrdersByUser(ctx context.Context, caller domain.Caller) ([]*readmodel.OrderReadModel, error) {
	orders, err := h.orders.ListForUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	return h.orderViews(ctx, orders)
}

func (h *Handler) GetOrder(ctx context.Context, caller domain.Caller, id string) (*readmodel.OrderReadModel, error) {
	o, err := h.orders.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return h.OrderView(ctx, o)
}

// ListAllOrders returns all orders (for admin use)
func (h *Handler) ListAllOrders(ctx context.Context, caller domain.Caller) ([]*readmodel.OrderReadModel, error) {
	orders, err := h.admin.List(ctx, caller)
	if err != nil {
		return nil, err
	}
	return h.orderViews(ctx, orders)
}

func (h *Handler) GetAnyOrder(ctx context.Context, caller domain.Caller, id string) (*readmodel.OrderReadModel, error) {
	o, err := h.admin.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return h.OrderView(ctx, o)
}

func (h *Handler) OrderView(ctx context.Context, o *model.Order) (*readmodel.OrderReadModel, error) {
	views, err := h.orderViews(ctx, []model.Order{*o})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (h *Handler) orderViews(ctx context.Context, orders []model.Order) ([]*readmodel.OrderReadModel, error) {
	var ids []string
	for _, o := range orders {
		for _, item := range o.Items {
			ids = append(ids, item.ProductID)
		}
	}
	idx, err := h.productIndex(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*readmodel.OrderReadModel, 0, len(orders))
	for i := range orders {
		out = append(out, readmodel.NewOrder(&orders[i], idx))
	}
	return out, nil
}

// productIndex loads the named products with their categories in a single
// transaction. Products that no longer exist are left out.
func (h *Handler) productIndex(ctx context.Context, ids []string) (readmodel.ProductIndex, error) {
	idx := make(readmodel.ProductIndex, len(ids))
	if len(ids) == 0 {
		return idx, nil
	}
	err := h.store.WithTx(ctx, func(tx store.Tx) error {
		cats := make(map[string]*model.Category)
		for _, id := range ids {
			if _, seen := idx[id]; seen {
				continue
			}
			p, err := tx.GetProduct(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				h.logger.Warn("product referenced by a line is missing", "product_id", id)
				continue
			}
			if err != nil {
				return err
			}
			c, ok := cats[p.CategoryID]
			if !ok {
				c, err = tx.GetCategory(ctx, p.CategoryID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				cats[p.CategoryID] = c
			}
			idx[id] = readmodel.NewProduct(*p, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return idx, nil
}

func (h *Handler) categoryIndex(ctx context.Context) (map[string]*model.Category, error) {
	cats, err := h.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Category, len(cats))
	for i := range cats {
		out[cats[i].ID] = &cats[i]
	}
	return out, nil
}
