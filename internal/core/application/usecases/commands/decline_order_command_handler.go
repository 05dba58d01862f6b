package commands

import (
	"context"
	"time"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
)

// DeclineOrderCommandHandler performs PENDING -> DECLINED.
type DeclineOrderCommandHandler struct {
	deps Deps
	now  func() time.Time
}

func NewDeclineOrderCommandHandler(deps Deps) DeclineOrderCommandHandler {
	return DeclineOrderCommandHandler{deps: deps, now: time.Now}
}

func (h DeclineOrderCommandHandler) Handle(ctx context.Context, cmd DeclineOrderCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	updated, err := h.deps.Orders.Mutate(cmd.OrderID(), func(o *order.Order) error {
		return o.Decline(cmd.Reason(), cmd.DeclinedBy(), h.now())
	})
	if err != nil {
		return err
	}

	return h.deps.sendStatus(ctx, updated, ports.StatusChange{
		Status:       order.Declined,
		StatusReason: cmd.Reason(),
		Reason:       cmd.Reason(),
	})
}
