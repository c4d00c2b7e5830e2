package order

import (
	"time"

	"github.com/example/ec-storefront/internal/model"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
)

type EventItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlaced struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Email           string          `json:"email,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	Items           []EventItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	PlacedAt        time.Time       `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	From      model.OrderStatus `json:"from"`
	To        model.OrderStatus `json:"to"`
	ChangedBy string            `json:"changed_by"`
	ChangedAt time.Time         `json:"changed_at"`
}

type OrderCancelled struct {
	OrderID     string            `json:"order_id"`
	UserID      string            `json:"user_id"`
	From        model.OrderStatus `json:"from"`
	Restocked   bool              `json:"restocked"`
	CancelledBy string            `json:"cancelled_by"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

func eventItems(items []model.OrderItem) []EventItem {
	out := make([]EventItem, len(items))
	for i, item := range items {
		out[i] = EventItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	return out
}
