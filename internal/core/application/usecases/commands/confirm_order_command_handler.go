package commands

import (
	"context"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
)

// ConfirmOrderCommandHandler performs PENDING -> CONFIRMED. The PUT carries the
// recomputed totals and the changelist of removed and replaced items.
type ConfirmOrderCommandHandler struct {
	deps Deps
}

func NewConfirmOrderCommandHandler(deps Deps) ConfirmOrderCommandHandler {
	return ConfirmOrderCommandHandler{deps: deps}
}

// Handle returns the confirmation that was sent. Local validation failures are
// returned before any network call.
func (h ConfirmOrderCommandHandler) Handle(ctx context.Context, cmd ConfirmOrderCommand) (order.ConfirmResult, error) {
	if err := cmd.Validate(); err != nil {
		return order.ConfirmResult{}, err
	}

	var result order.ConfirmResult
	updated, err := h.deps.Orders.Mutate(cmd.OrderID(), func(o *order.Order) error {
		for _, u := range cmd.Unavailable() {
			if err := o.MarkItemUnavailable(u.MenuID, u.Replacement); err != nil {
				return err
			}
		}
		var confirmErr error
		result, confirmErr = o.Confirm(cmd.EstimatedMinutes())
		return confirmErr
	})
	if err != nil {
		return order.ConfirmResult{}, err
	}

	err = h.deps.sendStatus(ctx, updated, ports.StatusChange{
		Status:         order.Confirmed,
		Reason:         cmd.Reason(),
		DeliveryOption: chosenOption(updated),
		Confirmation:   &result,
	})
	return result, err
}
