package commands

import (
	"errors"
	"fmt"
	"strings"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

var ErrConfirmOrderCommandIsNotConstructed = errors.New(
	"ConfirmOrderCommand must be created via NewConfirmOrderCommand constructor",
)

// UnavailableItem marks one menu line as out of stock. Replacement is honoured
// only when the order's unavailable mode is replace.
type UnavailableItem struct {
	MenuID      string
	Replacement *order.Item
}

// ConfirmOrderCommand accepts a pending order with a preparation time.
//
// Example:
//
//	cmd, err := NewConfirmOrderCommand("812", 20, "accepted", []UnavailableItem{{MenuID: "m2"}})
//	if err != nil {
//	    return err // blocked locally, nothing was sent
//	}
//	err = handler.Handle(ctx, cmd)
type ConfirmOrderCommand struct {
	orderID          string
	estimatedMinutes int
	reason           string
	unavailable      []UnavailableItem

	guard guard.ConstructorGuard
}

// NewConfirmOrderCommand validates the input without touching the order.
func NewConfirmOrderCommand(
	orderID string,
	estimatedMinutes int,
	reason string,
	unavailable []UnavailableItem,
) (ConfirmOrderCommand, error) {
	var errList []error
	if strings.TrimSpace(orderID) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("order_id"))
	}
	if estimatedMinutes <= 0 {
		errList = append(errList, errs.NewValueIsRequiredErrorWithCause("estimated_minutes",
			fmt.Errorf("%d is not a positive number of minutes", estimatedMinutes)))
	}
	for i, u := range unavailable {
		if u.MenuID == "" {
			errList = append(errList, fmt.Errorf("unavailable[%d]: %w", i, errs.NewValueIsRequiredError("menu_id")))
		}
	}
	if err := errors.Join(errList...); err != nil {
		return ConfirmOrderCommand{}, err
	}

	return ConfirmOrderCommand{
		orderID:          strings.TrimSpace(orderID),
		estimatedMinutes: estimatedMinutes,
		reason:           strings.TrimSpace(reason),
		unavailable:      append([]UnavailableItem(nil), unavailable...),
		guard:            guard.NewConstructorGuard(),
	}, nil
}

// Validate ensures the command was created through the constructor.
func (c ConfirmOrderCommand) Validate() error {
	return c.guard.Validate(ErrConfirmOrderCommandIsNotConstructed)
}

func (c ConfirmOrderCommand) OrderID() string { return c.orderID }
func (c ConfirmOrderCommand) EstimatedMinutes() int { return c.estimatedMinutes }
func (c ConfirmOrderCommand) Reason() string { return c.reason }
func (c ConfirmOrderCommand) Unavailable() []UnavailableItem {
	return append([]UnavailableItem(nil), c.unavailable...)
}
