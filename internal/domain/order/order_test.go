package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/example/ec-storefront/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = domain.Caller{UserID: "user-1", Email: "user-1@example.com", Role: domain.RoleCustomer}
	other    = domain.Caller{UserID: "user-2", Email: "user-2@example.com", Role: domain.RoleCustomer}
	admin    = domain.Caller{UserID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store  store.Store
	mem    *store.MemoryStore
	orders *Service
	admin  *AdminService
	carts  *cart.Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	return newFixtureWithStore(t, mem, mem, opts)
}

func newFixtureWithStore(t *testing.T, mem *store.MemoryStore, st store.Store, opts Options) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		store:  st,
		mem:    mem,
		orders: NewService(st, opts, discardLogger()),
		admin:  NewAdminService(st, opts, discardLogger()),
		carts:  cart.NewService(mem, discardLogger()),
	}
	f.orders.now = clock.Now
	f.admin.now = clock.Now
	f.admin.orders.now = clock.Now
	return f
}

func (f *fixture) seedProduct(t *testing.T, price string, stock int) string {
	t.Helper()
	ctx := context.Background()
	catID := uuid.New().String()
	prodID := uuid.New().String()
	err := f.mem.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertCategory(ctx, &model.Category{ID: catID, Name: "cat " + catID, Slug: "cat-" + catID}); err != nil {
			return err
		}
		return tx.InsertProduct(ctx, &model.Product{
			ID:         prodID,
			CategoryID: catID,
			Name:       "product " + prodID,
			Slug:       "product-" + prodID,
			Price:      decimal.RequireFromString(price),
			Stock:      stock,
			IsActive:   true,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		})
	})
	require.NoError(t, err)
	return prodID
}

func (f *fixture) addToCart(t *testing.T, userID, productID string, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), model.UserOwner(userID), productID, qty)
	require.NoError(t, err)
}

func (f *fixture) product(t *testing.T, id string) model.Product {
	t.Helper()
	var p *model.Product
	require.NoError(t, f.mem.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.GetProduct(context.Background(), id)
		return err
	}))
	return *p
}

func (f *fixture) setPrice(t *testing.T, id, price string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.mem.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		p.Price = decimal.RequireFromString(price)
		return tx.UpdateProduct(ctx, p)
	}))
}

func (f *fixture) events(t *testing.T) []store.Event {
	t.Helper()
	var out []store.Event
	require.NoError(t, f.mem.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.PendingEvents(context.Background(), 0)
		return err
	}))
	return out
}

func (f *fixture) allOrders(t *testing.T) []model.Order {
	t.Helper()
	var out []model.Order
	require.NoError(t, f.mem.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.ListOrders(context.Background(), store.OrderFilter{})
		return err
	}))
	return out
}

func (f *fixture) cartItems(t *testing.T, userID string) []model.CartItem {
	t.Helper()
	c, err := f.carts.GetOrCreate(context.Background(), model.UserOwner(userID))
	require.NoError(t, err)
	return c.Items
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{ShippingAddress: "1 Main St", Phone: "555-0100"}
}

// ============================================
// Checkout Tests
// ============================================

func TestService_Checkout_Success(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	p1 := f.seedProduct(t, "10.00", 5)
	p2 := f.seedProduct(t, "5.50", 3)
	f.addToCart(t, customer.UserID, p1, 2)
	f.addToCart(t, customer.UserID, p2, 1)

	o, err := f.orders.Checkout(ctx, customer, checkoutRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, customer.UserID, o.UserID)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, "1 Main St", o.ShippingAddress)
	assert.Equal(t, "555-0100", o.Phone)
	assert.Equal(t, "25.50", o.TotalPrice.StringFixed(2))
	assert.Len(t, o.Items, 2)

	assert.Equal(t, 3, f.product(t, p1).Stock)
	assert.Equal(t, 2, f.product(t, p2).Stock)
	assert.Empty(t, f.cartItems(t, customer.UserID))

	stored, err := f.orders.Get(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalPrice.Equal(stored.ComputeTotal()))
	assert.Len(t, stored.Items, 2)
}

func TestService_Checkout_AppendsOrderPlacedEvent(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.seedProduct(t, "7.25", 10)
	f.addToCart(t, customer.UserID, p, 2)

	o, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())
	require.NoError(t, err)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderPlaced, events[0].EventType)
	assert.Equal(t, AggregateType, events[0].AggregateType)
	assert.Equal(t, o.ID, events[0].AggregateID)

	var payload OrderPlaced
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, customer.Email, payload.Email)
	assert.Equal(t, "14.50", payload.Total.StringFixed(2))
	require.Len(t, payload.Items, 1)
	assert.Equal(t, 2, payload.Items[0].Quantity)
}

func TestService_Checkout_UsesCartSnapshotPrice(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.seedProduct(t, "10.00", 5)
	f.addToCart(t, customer.UserID, p, 1)
	f.setPrice(t, p, "99.99")

	o, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "10.00", o.Items[0].Price.StringFixed(2))
	assert.Equal(t, "10.00", o.TotalPrice.StringFixed(2))
}

func TestService_Checkout_IgnoresRequestedStatus(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.seedProduct(t, "1.00", 5)
	f.addToCart(t, customer.UserID, p, 1)

	req := checkoutRequest()
	req.Status = "DELIVERED"
	o, err := f.orders.Checkout(context.Background(), customer, req)

	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, o.Status)
}

func TestService_Checkout_NoCart(t *testing.T) {
	f := newFixture(t, Options{})

	o, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.NotErrorIs(t, err, ErrCheckoutFailed)
	assert.Nil(t, o)
	assert.Empty(t, f.allOrders(t))
}

func TestService_Checkout_CartWithoutItems(t *testing.T) {
	f := newFixture(t, Options{})
	f.cartItems(t, customer.UserID)

	_, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.allOrders(t))
	assert.Empty(t, f.events(t))
}

func TestService_Checkout_SecondCheckoutFindsEmptyCart(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.seedProduct(t, "3.00", 5)
	f.addToCart(t, customer.UserID, p, 1)

	_, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())
	require.NoError(t, err)

	_, err = f.orders.Checkout(context.Background(), customer, checkoutRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Len(t, f.allOrders(t), 1)
	assert.Equal(t, 4, f.product(t, p).Stock)
}

func TestService_Checkout_RefilledCartTwice(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := f.seedProduct(t, "3.00", 4)

	f.addToCart(t, customer.UserID, p, 3)
	first, err := f.orders.Checkout(ctx, customer, checkoutRequest())
	require.NoError(t, err)

	f.addToCart(t, customer.UserID, p, 2)
	second, err := f.orders.Checkout(ctx, customer, checkoutRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "9.00", first.TotalPrice.StringFixed(2))
	assert.Equal(t, "6.00", second.TotalPrice.StringFixed(2))
	assert.Len(t, f.allOrders(t), 2)
	assert.Equal(t, 4-3-2, f.product(t, p).Stock)
	assert.Empty(t, f.cartItems(t, customer.UserID))
}

func TestService_Checkout_Unauthenticated(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.orders.Checkout(context.Background(), domain.Caller{}, checkoutRequest())

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestService_Checkout_StockMayGoNegativeByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.seedProduct(t, "2.00", 1)
	f.addToCart(t, customer.UserID, p, 3)

	_, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())

	require.NoError(t, err)
	assert.Equal(t, -2, f.product(t, p).Stock)
}

func TestService_Checkout_StockFloorEnforced(t *testing.T) {
	f := newFixture(t, Options{EnforceStockFloor: true})
	p1 := f.seedProduct(t, "2.00", 10)
	p2 := f.seedProduct(t, "2.00", 1)
	f.addToCart(t, customer.UserID, p1, 2)
	f.addToCart(t, customer.UserID, p2, 3)

	_, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.allOrders(t))
	assert.Equal(t, 10, f.product(t, p1).Stock)
	assert.Equal(t, 1, f.product(t, p2).Stock)
	assert.Len(t, f.cartItems(t, customer.UserID), 2)
}

// ============================================
// Rollback Tests
// ============================================

func TestService_Checkout_RollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		method string
		nth    int
	}{
		{name: "first order insert", method: "InsertOrder", nth: 1},
		{name: "second order item", method: "InsertOrderItem", nth: 2},
		{name: "second stock decrement", method: "AdjustProductStock", nth: 2},
		{name: "total update", method: "UpdateOrder", nth: 1},
		{name: "cart clear", method: "ClearCart", nth: 1},
		{name: "outbox append", method: "AppendEvent", nth: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemoryStore()
			failing := mocks.NewFailingStore(mem)
			f := newFixtureWithStore(t, mem, failing, Options{})

			p1 := f.seedProduct(t, "4.00", 5)
			p2 := f.seedProduct(t, "6.00", 5)
			f.addToCart(t, customer.UserID, p1, 1)
			f.addToCart(t, customer.UserID, p2, 2)

			boom := errors.New("disk on fire")
			failing.FailOn(tt.method, tt.nth, boom)

			o, err := f.orders.Checkout(context.Background(), customer, checkoutRequest())

			require.Error(t, err)
			assert.Nil(t, o)
			assert.ErrorIs(t, err, ErrCheckoutFailed)
			assert.ErrorIs(t, err, boom)
			assert.Nil(t, domain.Kind(err))

			assert.Empty(t, f.allOrders(t))
			assert.Equal(t, 5, f.product(t, p1).Stock)
			assert.Equal(t, 5, f.product(t, p2).Stock)
			assert.Len(t, f.cartItems(t, customer.UserID), 2)
			assert.Empty(t, f.events(t))
		})
	}
}

// ============================================
// Read Tests
// ============================================

func TestService_ListForUser_NewestFirstAndOwnOnly(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := f.seedProduct(t, "1.00", 100)

	f.addToCart(t, customer.UserID, p, 1)
	first, err := f.orders.Checkout(ctx, customer, checkoutRequest())
	require.NoError(t, err)

	f.addToCart(t, other.UserID, p, 1)
	_, err = f.orders.Checkout(ctx, other, checkoutRequest())
	require.NoError(t, err)

	f.addToCart(t, customer.UserID, p, 2)
	second, err := f.orders.Checkout(ctx, customer, checkoutRequest())
	require.NoError(t, err)

	orders, err := f.orders.ListForUser(ctx, customer)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}

func TestService_Get_OtherUsersOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := f.seedProduct(t, "1.00", 10)
	f.addToCart(t, customer.UserID, p, 1)
	o, err := f.orders.Checkout(ctx, customer, checkoutRequest())
	require.NoError(t, err)

	_, err = f.orders.Get(ctx, other, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := f.orders.Get(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestService_Get_Missing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.orders.Get(context.Background(), customer, "missing")

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
