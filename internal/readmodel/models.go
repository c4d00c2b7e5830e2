// Package readmodel holds the JSON shapes returned by the API. Money is
// rendered as a string with two decimals.
package readmodel

import (
	"time"

	"github.com/example/ec-storefront/internal/model"
	"github.com/shopspring/decimal"
)

func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CategoryReadModel is the read model for product categories
type CategoryReadModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductReadModel is the read model for products
type ProductReadModel struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Slug        string             `json:"slug"`
	Description string             `json:"description"`
	Price       string             `json:"price"`
	Stock       int                `json:"stock"`
	IsActive    bool               `json:"is_active"`
	Category    *CategoryReadModel `json:"category,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CartItemReadModel represents an item in the cart
type CartItemReadModel struct {
	ID       string            `json:"id"`
	Product  *ProductReadModel `json:"product"`
	Quantity int               `json:"quantity"`
	Price    string            `json:"price"`
	Subtotal string            `json:"subtotal"`
}

// CartReadModel is the read model for shopping cart
type CartReadModel struct {
	ID         string              `json:"id"`
	UserID     string              `json:"user,omitempty"`
	SessionKey string              `json:"session_key,omitempty"`
	Items      []CartItemReadModel `json:"items"`
	Total      string              `json:"total"`
	CreatedAt  time.Time           `json:"created_at"`
}

// OrderItemReadModel represents an item in an order
type OrderItemReadModel struct {
	ID       string            `json:"id"`
	Product  *ProductReadModel `json:"product"`
	Quantity int               `json:"quantity"`
	Price    string            `json:"price"`
	Subtotal string            `json:"subtotal"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user"`
	TotalPrice      string               `json:"total_price"`
	Status          string               `json:"status"`
	ShippingAddress string               `json:"shipping_address"`
	Phone           string               `json:"phone"`
	Items           []OrderItemReadModel `json:"items"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// ProductIndex resolves product ids to their read models. Products that are
// missing from the index render as an id-only stub.
type ProductIndex map[string]*ProductReadModel

func (idx ProductIndex) lookup(id string) *ProductReadModel {
	if p, ok := idx[id]; ok {
		return p
	}
	return &ProductReadModel{ID: id}
}

func NewCategory(c model.Category) *CategoryReadModel {
	return &CategoryReadModel{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

// NewProduct builds the product view. category may be nil.
func NewProduct(p model.Product, category *model.Category) *ProductReadModel {
	rm := &ProductReadModel{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       Money(p.Price),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if category != nil {
		rm.Category = NewCategory(*category)
	}
	return rm
}

func NewCart(c *model.Cart, products ProductIndex) *CartReadModel {
	rm := &CartReadModel{
		ID:         c.ID,
		UserID:     c.UserID,
		SessionKey: c.SessionKey,
		Items:      make([]CartItemReadModel, 0, len(c.Items)),
		Total:      Money(c.Total()),
		CreatedAt:  c.CreatedAt,
	}
	for _, item := range c.Items {
		rm.Items = append(rm.Items, CartItemReadModel{
			ID:       item.ID,
			Product:  products.lookup(item.ProductID),
			Quantity: item.Quantity,
			Price:    Money(item.Price),
			Subtotal: Money(item.Subtotal()),
		})
	}
	return rm
}

func NewOrder(o *model.Order, products ProductIndex) *OrderReadModel {
	rm := &OrderReadModel{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalPrice:      Money(o.TotalPrice),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		Phone:           o.Phone,
		Items:           make([]OrderItemReadModel, 0, len(o.Items)),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		rm.Items = append(rm.Items, OrderItemReadModel{
			ID:       item.ID,
			Product:  products.lookup(item.ProductID),
			Quantity: item.Quantity,
			Price:    Money(item.Price),
			Subtotal: Money(item.Subtotal()),
		})
	}
	return rm
}
