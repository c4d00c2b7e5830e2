package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
)

var ErrStatusRequired = fmt.Errorf("%w: status is required", domain.ErrValidation)

// OrderFields is a full replacement of the writable order fields.
type OrderFields struct {
	ShippingAddress string
	Phone           string
	Status          string
}

// OrderPatch updates only the fields that are set.
type OrderPatch struct {
	ShippingAddress *string
	Phone           *string
	Status          *string
}

// AdminService is the back-office view of orders. Owner, total and creation
// time are never written through it.
type AdminService struct {
	orders *Service
	store  store.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewAdminService(st store.Store, opts Options, logger *slog.Logger) *AdminService {
	return &AdminService{
		orders: NewService(st, opts, logger),
		store:  st,
		opts:   opts,
		logger: logger.With("component", "order_admin"),
		now:    time.Now,
	}
}

// List returns every order, newest first.
func (a *AdminService) List(ctx context.Context, caller domain.Caller) ([]model.Order, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	var out []model.Order
	err := a.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, store.OrderFilter{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (a *AdminService) Get(ctx context.Context, caller domain.Caller, id string) (*model.Order, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return a.orders.get(ctx, id)
}

// Replace overwrites shipping address, phone and status. Status is required.
func (a *AdminService) Replace(ctx context.Context, caller domain.Caller, id string, f OrderFields) (*model.Order, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if f.Status == "" {
		return nil, ErrStatusRequired
	}
	status, err := ParseStatus(f.Status)
	if err != nil {
		return nil, err
	}
	return a.apply(ctx, caller, id, func(o *model.Order) model.OrderStatus {
		o.ShippingAddress = f.ShippingAddress
		o.Phone = f.Phone
		return status
	})
}

// PartialUpdate writes only the fields present in the patch.
func (a *AdminService) PartialUpdate(ctx context.Context, caller domain.Caller, id string, p OrderPatch) (*model.Order, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	var status model.OrderStatus
	if p.Status != nil {
		var err error
		if status, err = ParseStatus(*p.Status); err != nil {
			return nil, err
		}
	}
	return a.apply(ctx, caller, id, func(o *model.Order) model.OrderStatus {
		if p.ShippingAddress != nil {
			o.ShippingAddress = *p.ShippingAddress
		}
		if p.Phone != nil {
			o.Phone = *p.Phone
		}
		if p.Status == nil {
			return o.Status
		}
		return status
	})
}

// Cancel marks the order CANCELLED. The row is kept.
func (a *AdminService) Cancel(ctx context.Context, caller domain.Caller, id string) (*model.Order, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return a.apply(ctx, caller, id, func(*model.Order) model.OrderStatus {
		return model.OrderStatusCancelled
	})
}

// apply locks the order, lets edit change the writable fields and return the
// target status, then persists the result and queues the matching event.
func (a *AdminService) apply(ctx context.Context, caller domain.Caller, id string, edit func(o *model.Order) model.OrderStatus) (*model.Order, error) {
	var out *model.Order
	err := a.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		from := o.Status
		to := edit(o)
		if from != to {
			if !CanTransition(from, to) {
				if a.opts.StrictTransitions {
					return transitionError(from, to)
				}
				a.logger.Warn("order status moved outside the usual lifecycle",
					"order_id", o.ID, "from", from, "to", to, "admin_id", caller.UserID)
			}
		}
		o.Status = to
		o.UpdatedAt = a.now()
		restocked := false
		if from != to && to == model.OrderStatusCancelled && a.opts.RestockOnCancel && !o.Restocked {
			if err := restock(ctx, tx, o); err != nil {
				return err
			}
			restocked = len(o.Items) > 0
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if from != to {
			if err := a.recordStatusChange(ctx, tx, caller, o, from, restocked); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("order updated", "order_id", out.ID, "status", out.Status, "admin_id", caller.UserID)
	return out, nil
}

// restock returns the order quantities to stock and flags the order so a
// later cancel of the same order leaves stock alone.
func restock(ctx context.Context, tx store.Tx, o *model.Order) error {
	for _, item := range o.Items {
		if _, err := tx.AdjustProductStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("restock %s: %w", item.ProductID, err)
		}
	}
	o.Restocked = true
	return nil
}

func (a *AdminService) recordStatusChange(ctx context.Context, tx store.Tx, caller domain.Caller, o *model.Order, from model.OrderStatus, restocked bool) error {
	var (
		eventType string
		payload   any
	)
	if o.Status == model.OrderStatusCancelled {
		eventType = EventOrderCancelled
		payload = OrderCancelled{
			OrderID:     o.ID,
			UserID:      o.UserID,
			From:        from,
			Restocked:   restocked,
			CancelledBy: caller.UserID,
			CancelledAt: o.UpdatedAt,
		}
	} else {
		eventType = EventOrderStatusChanged
		payload = OrderStatusChanged{
			OrderID:   o.ID,
			UserID:    o.UserID,
			From:      from,
			To:        o.Status,
			ChangedBy: caller.UserID,
			ChangedAt: o.UpdatedAt,
		}
	}

	ev, err := store.NewEvent(o.ID, AggregateType, eventType, payload, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	return nil
}
