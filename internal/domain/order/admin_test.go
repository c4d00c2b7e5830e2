package order

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// placeOrder checks out a single 12.50 line from a fresh product stocked
// at 10 and returns the order and the product id.
func (f *fixture) placeOrder(t *testing.T, caller domain.Caller, qty int) (*model.Order, string) {
	t.Helper()
	p := f.seedProduct(t, "12.50", 10)
	f.addToCart(t, caller.UserID, p, qty)
	o, err := f.orders.Checkout(context.Background(), caller, checkoutRequest())
	require.NoError(t, err)
	return o, p
}

// ============================================
// Access Tests
// ============================================

func TestAdminService_RequiresAdmin(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 1)
	ctx := context.Background()

	_, err := f.admin.List(ctx, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.admin.Get(ctx, customer, o.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.admin.Replace(ctx, customer, o.ID, OrderFields{Status: "SHIPPED"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.admin.PartialUpdate(ctx, customer, o.ID, OrderPatch{Phone: strPtr("1")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.admin.Cancel(ctx, customer, o.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAdminService_List_AllUsersNewestFirst(t *testing.T) {
	f := newFixture(t, Options{})
	first, _ := f.placeOrder(t, customer, 1)
	second, _ := f.placeOrder(t, other, 1)

	orders, err := f.admin.List(context.Background(), admin)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}

// ============================================
// Replace / PartialUpdate Tests
// ============================================

func TestAdminService_Replace_ProtectsOwnerTotalAndCreatedAt(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 2)

	updated, err := f.admin.Replace(context.Background(), admin, o.ID, OrderFields{
		ShippingAddress: "2 Side St",
		Phone:           "555-0199",
		Status:          "SHIPPED",
	})

	require.NoError(t, err)
	assert.Equal(t, "2 Side St", updated.ShippingAddress)
	assert.Equal(t, "555-0199", updated.Phone)
	assert.Equal(t, model.OrderStatusShipped, updated.Status)
	assert.Equal(t, customer.UserID, updated.UserID)
	assert.Equal(t, "25.00", updated.TotalPrice.StringFixed(2))
	assert.True(t, updated.CreatedAt.Equal(o.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(o.UpdatedAt))
}

func TestAdminService_Replace_StatusValidation(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 1)
	ctx := context.Background()

	_, err := f.admin.Replace(ctx, admin, o.ID, OrderFields{ShippingAddress: "x"})
	assert.ErrorIs(t, err, ErrStatusRequired)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.admin.Replace(ctx, admin, o.ID, OrderFields{Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.admin.Replace(ctx, admin, o.ID, OrderFields{Status: "shipped"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestAdminService_PartialUpdate_OnlyPresentFields(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 1)

	updated, err := f.admin.PartialUpdate(context.Background(), admin, o.ID, OrderPatch{Phone: strPtr("555-7777")})

	require.NoError(t, err)
	assert.Equal(t, "555-7777", updated.Phone)
	assert.Equal(t, o.ShippingAddress, updated.ShippingAddress)
	assert.Equal(t, model.OrderStatusPending, updated.Status)

	// No status change, no event beyond the OrderPlaced one.
	assert.Len(t, f.events(t), 1)
}

func TestAdminService_PartialUpdate_InvalidStatus(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 1)

	_, err := f.admin.PartialUpdate(context.Background(), admin, o.ID, OrderPatch{Status: strPtr("")})

	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestAdminService_StatusChangeAppendsEvent(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 1)

	_, err := f.admin.PartialUpdate(context.Background(), admin, o.ID, OrderPatch{Status: strPtr("SHIPPED")})
	require.NoError(t, err)

	events := f.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, EventOrderStatusChanged, events[1].EventType)

	var payload OrderStatusChanged
	require.NoError(t, json.Unmarshal(events[1].Data, &payload))
	assert.Equal(t, model.OrderStatusPending, payload.From)
	assert.Equal(t, model.OrderStatusShipped, payload.To)
	assert.Equal(t, admin.UserID, payload.ChangedBy)
}

func TestAdminService_Update_Missing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.admin.Replace(context.Background(), admin, "missing", OrderFields{Status: "SHIPPED"})

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// ============================================
// Transition Tests
// ============================================

func TestAdminService_LeavingTerminalStatusAllowedByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	o, _ := f.placeOrder(t, customer, 1)
	ctx := context.Background()

	_, err := f.admin.Replace(ctx, admin, o.ID, OrderFields{Status: "DELIVERED"})
	require.NoError(t, err)

	updated, err := f.admin.Replace(ctx, admin, o.ID, OrderFields{Status: "PENDING"})

	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, updated.Status)
}

func TestAdminService_StrictTransitions(t *testing.T) {
	f := newFixture(t, Options{StrictTransitions: true})
	o, _ := f.placeOrder(t, customer, 1)
	ctx := context.Background()

	_, err := f.admin.Replace(ctx, admin, o.ID, OrderFields{Status: "DELIVERED"})
	require.NoError(t, err)

	_, err = f.admin.Replace(ctx, admin, o.ID, OrderFields{Status: "PENDING"})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := f.admin.Get(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, got.Status)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.OrderStatus
		want     bool
	}{
		{model.OrderStatusPending, model.OrderStatusShipped, true},
		{model.OrderStatusPending, model.OrderStatusDelivered, true},
		{model.OrderStatusPending, model.OrderStatusCancelled, true},
		{model.OrderStatusShipped, model.OrderStatusDelivered, true},
		{model.OrderStatusShipped, model.OrderStatusCancelled, true},
		{model.OrderStatusShipped, model.OrderStatusPending, false},
		{model.OrderStatusDelivered, model.OrderStatusCancelled, false},
		{model.OrderStatusCancelled, model.OrderStatusPending, false},
		{model.OrderStatusCancelled, model.OrderStatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}

	assert.True(t, IsTerminal(model.OrderStatusDelivered))
	assert.True(t, IsTerminal(model.OrderStatusCancelled))
	assert.False(t, IsTerminal(model.OrderStatusPending))
}

// ============================================
// Cancel Tests
// ============================================

func TestAdminService_Cancel_SoftDeletesWithoutRestock(t *testing.T) {
	f := newFixture(t, Options{})
	o, p := f.placeOrder(t, customer, 3)
	ctx := context.Background()

	cancelled, err := f.admin.Cancel(ctx, admin, o.ID)

	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 7, f.product(t, p).Stock)

	got, err := f.orders.Get(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)
	assert.Len(t, got.Items, 1)

	events := f.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, EventOrderCancelled, events[1].EventType)
	var payload OrderCancelled
	require.NoError(t, json.Unmarshal(events[1].Data, &payload))
	assert.False(t, payload.Restocked)
}

func TestAdminService_Cancel_RestockOnce(t *testing.T) {
	f := newFixture(t, Options{RestockOnCancel: true})
	o, p := f.placeOrder(t, customer, 3)
	ctx := context.Background()

	_, err := f.admin.Cancel(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.product(t, p).Stock)

	_, err = f.admin.Cancel(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.product(t, p).Stock)
	assert.Len(t, f.events(t), 2)
}

func TestAdminService_Cancel_ReopenedOrderNotRestockedTwice(t *testing.T) {
	f := newFixture(t, Options{RestockOnCancel: true})
	o, p := f.placeOrder(t, customer, 3)
	ctx := context.Background()
	require.Equal(t, 7, f.product(t, p).Stock)

	_, err := f.admin.Cancel(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.product(t, p).Stock)

	pending := string(model.OrderStatusPending)
	reopened, err := f.admin.PartialUpdate(ctx, admin, o.ID, OrderPatch{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, reopened.Status)
	assert.True(t, reopened.Restocked)

	_, err = f.admin.Cancel(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.product(t, p).Stock)

	events := f.events(t)
	require.Len(t, events, 4)
	var first, second OrderCancelled
	require.NoError(t, json.Unmarshal(events[1].Data, &first))
	require.NoError(t, json.Unmarshal(events[3].Data, &second))
	assert.True(t, first.Restocked)
	assert.False(t, second.Restocked)
}

func TestAdminService_Cancel_Missing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.admin.Cancel(context.Background(), admin, "missing")

	assert.ErrorIs(t, err, ErrOrderNotFound)
}
