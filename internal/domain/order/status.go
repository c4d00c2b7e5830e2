package order

import (
	"fmt"
	"slices"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/model"
)

var (
	ErrInvalidStatus     = fmt.Errorf("%w: unknown order status", domain.ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: invalid order status transition", domain.ErrConflict)
)

// conventionalTransitions lists the moves an order normally makes.
// DELIVERED and CANCELLED are terminal by convention. The table is only
// enforced when Options.StrictTransitions is set.
var conventionalTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:   {model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled},
	model.OrderStatusShipped:   {model.OrderStatusDelivered, model.OrderStatusCancelled},
	model.OrderStatusDelivered: {},
	model.OrderStatusCancelled: {},
}

// CanTransition reports whether from → to is a conventional move.
func CanTransition(from, to model.OrderStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := conventionalTransitions[from]
	return ok && slices.Contains(allowed, to)
}

// IsTerminal reports whether no conventional move leaves the status.
func IsTerminal(s model.OrderStatus) bool {
	allowed, ok := conventionalTransitions[s]
	return ok && len(allowed) == 0
}

// ParseStatus accepts the upper-case status names.
func ParseStatus(s string) (model.OrderStatus, error) {
	st := model.OrderStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func transitionError(from, to model.OrderStatus) error {
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, from, to)
}
