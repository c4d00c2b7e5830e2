package command

import (
	"github.com/example/ec-storefront/internal/model"
	"github.com/shopspring/decimal"
)

// Category Commands
type CreateCategory struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type UpdateCategory struct {
	CategoryID string `json:"-"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
}

type DeleteCategory struct {
	CategoryID string `json:"category_id"`
}

// Product Commands
type CreateProduct struct {
	CategoryID  string          `json:"category_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsActive    *bool           `json:"is_active"`
}

type UpdateProduct struct {
	ProductID   string          `json:"-"`
	CategoryID  string          `json:"category_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsActive    *bool           `json:"is_active"`
}

type DeleteProduct struct {
	ProductID string `json:"product_id"`
}

// Cart Commands
type AddToCart struct {
	Owner     model.CartOwner `json:"-"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
}

type UpdateCartItem struct {
	Owner    model.CartOwner
	ItemID   string
	Quantity int
}

type RemoveFromCart struct {
	Owner  model.CartOwner
	ItemID string
}

type MergeCart struct {
	UserID     string `json:"-"`
	SessionKey string `json:"session_key"`
}

// Order Commands
type PlaceOrder struct {
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`
	Status          string `json:"status"`
}

type ReplaceOrder struct {
	OrderID         string `json:"-"`
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`
	Status          string `json:"status"`
}

type PatchOrder struct {
	OrderID         string  `json:"-"`
	ShippingAddress *string `json:"shipping_address"`
	Phone           *string `json:"phone"`
	Status          *string `json:"status"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
}
