// Package model contains the persisted records shared by the store and the
// domain services.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

type Product struct {
	ID          string
	CategoryID  string
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Stock       int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cart belongs to exactly one owner: a user or an anonymous session.
type Cart struct {
	ID         string
	UserID     string
	SessionKey string
	CreatedAt  time.Time
	Items      []CartItem
}

// Total is the sum of item subtotals. Carts have no persisted total.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// FindItem returns the item with the given id, if it belongs to the cart.
func (c *Cart) FindItem(itemID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}

// CartItem.Price is the product price captured when the line was first
// added. It is never refreshed afterwards.
type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	AddedAt   time.Time
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID              string
	UserID          string
	ShippingAddress string
	Phone           string
	TotalPrice      decimal.Decimal
	Status          OrderStatus
	// Restocked is set once cancelling the order has returned its quantities
	// to stock.
	Restocked bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []OrderItem
}

// ComputeTotal sums price × quantity over the order items.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderItem is copied from a cart item at checkout and never changes.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	CreatedAt time.Time
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
