package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/ec-storefront/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store runs units of work. Everything fn does through tx commits together
// or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction. Lock* methods
// take a row lock that is held until the transaction ends.
type Tx interface {
	CatalogTx
	CartTx
	OrderTx
	OutboxTx
}

type ProductFilter struct {
	CategoryID string
	ActiveOnly bool
}

type CatalogTx interface {
	InsertCategory(ctx context.Context, c *model.Category) error
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id string) error
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	InsertProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	LockProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	// AdjustProductStock adds delta to the stored stock and returns the new
	// value. No floor is applied.
	AdjustProductStock(ctx context.Context, id string, delta int) (int, error)
	// ProductReferenced reports whether any cart item or order item points
	// at the product.
	ProductReferenced(ctx context.Context, id string) (bool, error)
}

type CartTx interface {
	// GetCart returns the owner's cart with its items.
	GetCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error)
	LockCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error)
	// InsertCart returns ErrDuplicate when the owner already has a cart.
	InsertCart(ctx context.Context, c *model.Cart) error
	InsertCartItem(ctx context.Context, item *model.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error
	DeleteCartItem(ctx context.Context, itemID string) error
	// ClearCart deletes every item of the cart and returns how many went.
	ClearCart(ctx context.Context, cartID string) (int, error)
}

type OrderFilter struct {
	UserID string
}

type OrderTx interface {
	InsertOrder(ctx context.Context, o *model.Order) error
	InsertOrderItem(ctx context.Context, item *model.OrderItem) error
	// UpdateOrder writes shipping address, phone, status, total and
	// updated_at. The owner and created_at are never written.
	UpdateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	LockOrder(ctx context.Context, id string) (*model.Order, error)
	// ListOrders returns orders newest first, items included.
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
}

type OutboxTx interface {
	AppendEvent(ctx context.Context, e *Event) error
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventsSent(ctx context.Context, ids []string, at time.Time) error
}
