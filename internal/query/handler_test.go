package query

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/catalog"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	customer = domain.Caller{UserID: "user-1", Role: domain.RoleCustomer}
)

type testEnv struct {
	handler *Handler
	catalog *catalog.Service
	carts   *cart.Service
	orders  *order.Service
}

func newTestQueryHandler() *testEnv {
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalogSvc := catalog.NewService(st, logger)
	cartSvc := cart.NewService(st, logger)
	orderSvc := order.NewService(st, order.Options{}, logger)
	adminSvc := order.NewAdminService(st, order.Options{}, logger)
	return &testEnv{
		handler: NewHandler(st, catalogSvc, cartSvc, orderSvc, adminSvc, logger),
		catalog: catalogSvc,
		carts:   cartSvc,
		orders:  orderSvc,
	}
}

func (e *testEnv) product(t *testing.T, price string) *model.Product {
	t.Helper()
	ctx := context.Background()
	c, err := e.catalog.CreateCategory(ctx, admin, catalog.CategoryInput{Name: "Books " + price})
	require.NoError(t, err)
	p, err := e.catalog.CreateProduct(ctx, admin, catalog.ProductInput{
		CategoryID: c.ID, Name: "Novel " + price, Price: decimal.RequireFromString(price), Stock: 5,
	})
	require.NoError(t, err)
	return p
}

// ============================================
// Product Query Tests
// ============================================

func TestHandler_GetProduct_IncludesCategory(t *testing.T) {
	env := newTestQueryHandler()
	p := env.product(t, "25")

	view, err := env.handler.GetProduct(context.Background(), customer, p.ID)

	require.NoError(t, err)
	assert.Equal(t, "25.00", view.Price)
	require.NotNil(t, view.Category)
	assert.Equal(t, "books-25", view.Category.Slug)
}

func TestHandler_GetProduct_NotFound(t *testing.T) {
	env := newTestQueryHandler()

	view, err := env.handler.GetProduct(context.Background(), customer, "non-existent")

	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.Nil(t, view)
}

func TestHandler_ListProducts(t *testing.T) {
	env := newTestQueryHandler()
	env.product(t, "1")
	env.product(t, "2")

	products, err := env.handler.ListProducts(context.Background(), "")

	require.NoError(t, err)
	assert.Len(t, products, 2)
	for _, p := range products {
		assert.NotNil(t, p.Category)
	}
}

// ============================================
// Cart Query Tests
// ============================================

func TestHandler_GetCart_EmptyCart(t *testing.T) {
	env := newTestQueryHandler()

	view, err := env.handler.GetCart(context.Background(), model.UserOwner("user-1"))

	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.NotNil(t, view.Items)
	assert.Empty(t, view.Items)
	assert.Equal(t, "0.00", view.Total)
}

func TestHandler_GetCart_WithItems(t *testing.T) {
	env := newTestQueryHandler()
	ctx := context.Background()
	p := env.product(t, "12.5")
	_, err := env.carts.AddItem(ctx, model.UserOwner("user-1"), p.ID, 2)
	require.NoError(t, err)

	view, err := env.handler.GetCart(ctx, model.UserOwner("user-1"))

	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	item := view.Items[0]
	assert.Equal(t, p.ID, item.Product.ID)
	assert.Equal(t, "Novel 12.5", item.Product.Name)
	assert.Equal(t, "12.50", item.Price)
	assert.Equal(t, "25.00", item.Subtotal)
	assert.Equal(t, "25.00", view.Total)
}

// ============================================
// Order Query Tests
// ============================================

func TestHandler_Orders(t *testing.T) {
	env := newTestQueryHandler()
	ctx := context.Background()
	p := env.product(t, "3")
	_, err := env.carts.AddItem(ctx, model.UserOwner(customer.UserID), p.ID, 3)
	require.NoError(t, err)
	o, err := env.orders.Checkout(ctx, customer, order.CheckoutRequest{ShippingAddress: "1 Main St", Phone: "555"})
	require.NoError(t, err)

	mine, err := env.handler.ListOrdersByUser(ctx, customer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "9.00", mine[0].TotalPrice)
	assert.Equal(t, "PENDING", mine[0].Status)
	require.Len(t, mine[0].Items, 1)
	assert.Equal(t, p.ID, mine[0].Items[0].Product.ID)
	assert.Equal(t, "9.00", mine[0].Items[0].Subtotal)

	one, err := env.handler.GetOrder(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, one.ID)

	_, err = env.handler.ListAllOrders(ctx, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := env.handler.ListAllOrders(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	got, err := env.handler.GetAnyOrder(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.UserID, got.UserID)
}
