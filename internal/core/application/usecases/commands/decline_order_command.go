package commands

import (
	"errors"
	"strings"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

var ErrDeclineOrderCommandIsNotConstructed = errors.New(
	"DeclineOrderCommand must be created via NewDeclineOrderCommand constructor",
)

// DeclineOrderCommand rejects a pending order. The reason needs at least
// order.MinDeclineReasonLength characters.
type DeclineOrderCommand struct {
	orderID    string
	reason     string
	declinedBy string

	guard guard.ConstructorGuard
}

// NewDeclineOrderCommand validates the order id and the reason.
func NewDeclineOrderCommand(orderID, reason, declinedBy string) (DeclineOrderCommand, error) {
	var errList []error
	if strings.TrimSpace(orderID) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("order_id"))
	}
	errList = append(errList, order.ValidateDeclineReason(reason))
	if err := errors.Join(errList...); err != nil {
		return DeclineOrderCommand{}, err
	}

	return DeclineOrderCommand{
		orderID:    strings.TrimSpace(orderID),
		reason:     strings.TrimSpace(reason),
		declinedBy: declinedBy,
		guard:      guard.NewConstructorGuard(),
	}, nil
}

// Validate ensures the command was created through the constructor.
func (c DeclineOrderCommand) Validate() error {
	return c.guard.Validate(ErrDeclineOrderCommandIsNotConstructed)
}

func (c DeclineOrderCommand) OrderID() string { return c.orderID }
func (c DeclineOrderCommand) Reason() string { return c.reason }
func (c DeclineOrderCommand) DeclinedBy() string { return c.declinedBy }
