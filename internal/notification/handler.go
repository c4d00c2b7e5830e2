// Package notification turns order events into customer emails.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
)

type Mailer interface {
	SendOrderConfirmation(to string, c email.OrderConfirmation) error
	SendStatusUpdate(to string, u email.StatusUpdate) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer Mailer
	store  store.Store
	logger *slog.Logger

	// Order id to recipient, learned from OrderPlaced. Orders carry no
	// contact address of their own. Entries are dropped once the order is
	// delivered or cancelled.
	mu         sync.Mutex
	recipients map[string]string
}

// NewHandler creates a new notification handler. st is used to look up
// product names and may be nil.
func NewHandler(mailer Mailer, st store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		mailer:     mailer,
		store:      st,
		logger:     logger.With("component", "notifier"),
		recipients: make(map[string]string),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		return h.handleOrderPlaced(ctx, e)
	case order.EventOrderStatusChanged:
		var e order.OrderStatusChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		if e.To != model.OrderStatusShipped && e.To != model.OrderStatusDelivered {
			return nil
		}
		return h.sendStatus(e.OrderID, e.To)
	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		return h.sendStatus(e.OrderID, model.OrderStatusCancelled)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, e order.OrderPlaced) error {
	if e.Email == "" {
		h.logger.Info("order has no contact email, skipping confirmation", "order_id", e.OrderID, "user_id", e.UserID)
		return nil
	}
	h.mu.Lock()
	h.recipients[e.OrderID] = e.Email
	h.mu.Unlock()

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		items[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      h.productName(ctx, item.ProductID),
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	err := h.mailer.SendOrderConfirmation(e.Email, email.OrderConfirmation{
		OrderID:         e.OrderID,
		ShippingAddress: e.ShippingAddress,
		Items:           items,
		Total:           e.Total,
	})
	if err != nil {
		return err
	}
	h.logger.Info("order confirmation sent", "order_id", e.OrderID, "to", e.Email)
	return nil
}

func (h *Handler) sendStatus(orderID string, status model.OrderStatus) error {
	h.mu.Lock()
	to, ok := h.recipients[orderID]
	h.mu.Unlock()
	if !ok {
		h.logger.Info("no known recipient for order, skipping status mail", "order_id", orderID, "status", status)
		return nil
	}
	if err := h.mailer.SendStatusUpdate(to, email.StatusUpdate{OrderID: orderID, Status: string(status)}); err != nil {
		return err
	}
	if status == model.OrderStatusDelivered || status == model.OrderStatusCancelled {
		h.forget(orderID)
	}
	h.logger.Info("status update sent", "order_id", orderID, "status", status, "to", to)
	return nil
}

func (h *Handler) forget(orderID string) {
	h.mu.Lock()
	delete(h.recipients, orderID)
	h.mu.Unlock()
}

// productName falls back to the id when the product is gone or the
// lookup fails.
func (h *Handler) productName(ctx context.Context, id string) string {
	if h.store == nil {
		return id
	}
	name := id
	err := h.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		name = p.Name
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("product lookup failed", "product_id", id, "error", err)
	}
	return name
}
