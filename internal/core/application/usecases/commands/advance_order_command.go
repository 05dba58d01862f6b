package commands

import (
	"errors"
	"strings"

	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

var ErrAdvanceOrderCommandIsNotConstructed = errors.New(
	"AdvanceOrderCommand must be created via NewAdvanceOrderCommand constructor",
)

// AdvanceOrderCommand moves an order one step along its success path
// (CONFIRMED -> READY -> OUT_FOR_DELIVERY -> COMPLETED).
type AdvanceOrderCommand struct {
	orderID string
	reason  string

	guard guard.ConstructorGuard
}

func NewAdvanceOrderCommand(orderID, reason string) (AdvanceOrderCommand, error) {
	if strings.TrimSpace(orderID) == "" {
		return AdvanceOrderCommand{}, errs.NewValueIsRequiredError("order_id")
	}
	return AdvanceOrderCommand{
		orderID: strings.TrimSpace(orderID),
		reason:  strings.TrimSpace(reason),
		guard:   guard.NewConstructorGuard(),
	}, nil
}

// Validate ensures the command was created through the constructor.
func (c AdvanceOrderCommand) Validate() error {
	return c.guard.Validate(ErrAdvanceOrderCommandIsNotConstructed)
}

func (c AdvanceOrderCommand) OrderID() string { return c.orderID }
func (c AdvanceOrderCommand) Reason() string { return c.reason }
