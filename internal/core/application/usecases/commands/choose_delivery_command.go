package commands

import (
	"errors"
	"strings"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

var ErrChooseDeliveryCommandIsNotConstructed = errors.New(
	"ChooseDeliveryCommand must be created via NewChooseDeliveryCommand constructor",
)

// ChooseDeliveryCommand picks SELF or GRAB for an order of a BOTH business.
type ChooseDeliveryCommand struct {
	orderID string
	option  order.DeliveryOption

	guard guard.ConstructorGuard
}

func NewChooseDeliveryCommand(orderID string, option order.DeliveryOption) (ChooseDeliveryCommand, error) {
	var errList []error
	if strings.TrimSpace(orderID) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("order_id"))
	}
	if option != order.Self && option != order.Grab {
		errList = append(errList, errs.NewValueIsInvalidError("delivery_option"))
	}
	if err := errors.Join(errList...); err != nil {
		return ChooseDeliveryCommand{}, err
	}
	return ChooseDeliveryCommand{
		orderID: strings.TrimSpace(orderID),
		option:  option,
		guard:   guard.NewConstructorGuard(),
	}, nil
}

// Validate ensures the command was created through the constructor.
func (c ChooseDeliveryCommand) Validate() error {
	return c.guard.Validate(ErrChooseDeliveryCommandIsNotConstructed)
}

func (c ChooseDeliveryCommand) OrderID() string { return c.orderID }
func (c ChooseDeliveryCommand) Option() order.DeliveryOption { return c.option }
