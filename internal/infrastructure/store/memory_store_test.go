package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog(t *testing.T, s *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertCategory(ctx, &model.Category{ID: "cat-1", Name: "Books", Slug: "books"}); err != nil {
			return err
		}
		return tx.InsertProduct(ctx, &model.Product{
			ID: "prod-1", CategoryID: "cat-1", Name: "Novel", Slug: "novel",
			Price: decimal.RequireFromString("9.99"), Stock: 3, IsActive: true,
		})
	}))
}

// ============================================
// Transaction Tests
// ============================================

func TestMemoryStore_WithTx_RollbackDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	seedCatalog(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.AdjustProductStock(ctx, "prod-1", -10); err != nil {
			return err
		}
		if err := tx.InsertCart(ctx, &model.Cart{ID: "cart-1", UserID: "u1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, "prod-1")
		require.NoError(t, err)
		assert.Equal(t, 3, p.Stock)
		_, err = tx.GetCart(ctx, model.UserOwner("u1"))
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestMemoryStore_WithTx_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(tx Tx) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	seedCatalog(t, s)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, "prod-1")
		require.NoError(t, err)
		p.Stock = 999
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, "prod-1")
		require.NoError(t, err)
		assert.Equal(t, 3, p.Stock)
		return nil
	}))
}

// ============================================
// Cart Tests
// ============================================

func TestMemoryStore_InsertCart_Duplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertCart(ctx, &model.Cart{ID: "c1", UserID: "u1"}))
		assert.ErrorIs(t, tx.InsertCart(ctx, &model.Cart{ID: "c2", UserID: "u1"}), ErrDuplicate)
		return nil
	}))
}

func TestMemoryStore_ClearCart(t *testing.T) {
	s := NewMemoryStore()
	seedCatalog(t, s)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertCart(ctx, &model.Cart{ID: "c1", UserID: "u1"}))
		require.NoError(t, tx.InsertCartItem(ctx, &model.CartItem{ID: "i1", CartID: "c1", ProductID: "prod-1", Quantity: 2}))
		assert.ErrorIs(t, tx.InsertCartItem(ctx, &model.CartItem{ID: "i2", CartID: "c1", ProductID: "prod-1", Quantity: 1}), ErrDuplicate)

		referenced, err := tx.ProductReferenced(ctx, "prod-1")
		require.NoError(t, err)
		assert.True(t, referenced)

		n, err := tx.ClearCart(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		c, err := tx.GetCart(ctx, model.UserOwner("u1"))
		require.NoError(t, err)
		assert.Empty(t, c.Items)
		return nil
	}))
}

// ============================================
// Order Tests
// ============================================

func TestMemoryStore_ListOrders_NewestFirst(t *testing.T) {
	s := NewMemoryStore()
	seedCatalog(t, s)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, &model.Order{ID: "o1", UserID: "u1", CreatedAt: at}))
		require.NoError(t, tx.InsertOrder(ctx, &model.Order{ID: "o2", UserID: "u2", CreatedAt: at}))
		require.NoError(t, tx.InsertOrder(ctx, &model.Order{ID: "o3", UserID: "u1", CreatedAt: at.Add(-time.Hour)}))
		return tx.InsertOrderItem(ctx, &model.OrderItem{ID: "oi1", OrderID: "o1", ProductID: "prod-1", Quantity: 1})
	}))

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		all, err := tx.ListOrders(ctx, OrderFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"o2", "o1", "o3"}, []string{all[0].ID, all[1].ID, all[2].ID})

		mine, err := tx.ListOrders(ctx, OrderFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "o1", mine[0].ID)
		assert.Len(t, mine[0].Items, 1)
		return nil
	}))
}

func TestMemoryStore_UpdateOrder_WritesOnlyMutableFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, &model.Order{ID: "o1", UserID: "u1", CreatedAt: created, Status: model.OrderStatusPending}))
		return tx.UpdateOrder(ctx, &model.Order{ID: "o1", UserID: "intruder", CreatedAt: time.Now(), Status: model.OrderStatusShipped, Phone: "1"})
	}))

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrder(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, "u1", o.UserID)
		assert.True(t, o.CreatedAt.Equal(created))
		assert.Equal(t, model.OrderStatusShipped, o.Status)
		assert.Equal(t, "1", o.Phone)
		return nil
	}))
}

// ============================================
// Outbox Tests
// ============================================

func TestMemoryStore_Outbox(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		for _, id := range []string{"a", "b", "c"} {
			e, err := NewEvent(id, "Order", "OrderPlaced", map[string]string{"order_id": id}, now)
			require.NoError(t, err)
			require.NoError(t, tx.AppendEvent(ctx, e))
		}
		return nil
	}))

	var first []Event
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.PendingEvents(ctx, 2)
		require.NoError(t, err)
		return tx.MarkEventsSent(ctx, []string{first[0].ID, first[1].ID}, now)
	}))
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].AggregateID)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		rest, err := tx.PendingEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "c", rest[0].AggregateID)
		return nil
	}))
}
