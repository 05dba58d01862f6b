package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

// MinDeclineReasonLength is the minimum trimmed length of a decline reason.
const MinDeclineReasonLength = 3

var (
	// ErrOrderIsNotConstructed is returned when an Order was not created through NewOrder.
	ErrOrderIsNotConstructed = errors.New("Order must be created via NewOrder constructor")

	// ErrTransitionNotAllowed is returned when a manual status change is not the next legal step.
	ErrTransitionNotAllowed = errors.New("status transition is not allowed")
)

// Params carries everything needed to build an Order from a backend payload.
type Params struct {
	ID              string
	Code            string
	BusinessID      string
	UserID          string
	Status          string
	Fulfillment     FulfillmentType
	DeliveryOption  DeliveryOption
	ChosenOption    DeliveryOption
	AddressText     string
	Drop            kernel.Coordinates
	Items           []Item
	Totals          Totals
	PaymentMethod   string
	UnavailableMode UnavailableMode
	StatusReason    string
	DriverID        string
}

// Cancellation records who declined or cancelled an order and why.
type Cancellation struct {
	Reason string
	By     string
	At     time.Time
}

// Order is the client-side projection of a backend order. It is the aggregate the
// reconciliation engine owns; everything else works on clones.
//
// Order follows these invariants:
//   - Has an id or a code (the code is stable across renames)
//   - Status is always the output of Normalize
//   - Manual status changes follow NextTransition
//   - Can only be created through NewOrder
type Order struct {
	id         string
	code       string
	businessID string
	userID     string

	status       Status
	statusReason string
	cancellation *Cancellation

	fulfillment    FulfillmentType
	deliveryOption DeliveryOption
	chosenOption   DeliveryOption

	addressText string
	drop        kernel.Coordinates

	items           []Item
	totals          Totals
	paymentMethod   string
	unavailableMode UnavailableMode

	estimatedMinutes int
	driverID         string

	guard guard.ConstructorGuard
}

// NewOrder validates p and builds an Order.
//
// Example:
//
//	o, err := order.NewOrder(order.Params{
//	    ID:          "812",
//	    Code:        "ORD-812",
//	    Status:      "accepted",
//	    Fulfillment: order.Delivery,
//	})
//	// o.Status() == order.Confirmed
func NewOrder(p Params) (*Order, error) {
	o := &Order{
		id:              strings.TrimSpace(p.ID),
		code:            strings.TrimSpace(p.Code),
		businessID:      p.BusinessID,
		userID:          p.UserID,
		status:          Normalize(p.Status),
		statusReason:    p.StatusReason,
		fulfillment:     p.Fulfillment,
		deliveryOption:  p.DeliveryOption,
		chosenOption:    p.ChosenOption,
		addressText:     p.AddressText,
		drop:            p.Drop,
		totals:          p.Totals,
		paymentMethod:   p.PaymentMethod,
		unavailableMode: p.UnavailableMode,
		driverID:        p.DriverID,
		guard:           guard.NewConstructorGuard(),
	}
	if o.fulfillment == "" {
		o.fulfillment = UnknownFulfillment
	}
	if o.deliveryOption == "" {
		o.deliveryOption = UnknownDeliveryOption
	}
	if o.chosenOption == "" {
		o.chosenOption = UnknownDeliveryOption
	}

	var errList []error
	if o.id == "" && o.code == "" {
		errList = append(errList, errs.NewValueIsRequiredError("order_id or order_code"))
	}
	o.items = make([]Item, 0, len(p.Items))
	for idx, it := range p.Items {
		if err := it.Validate(); err != nil {
			errList = append(errList, fmt.Errorf("items[%d]: %w", idx, err))
			continue
		}
		o.items = append(o.items, it.clone())
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	if o.totals.Subtotal.IsZero() {
		o.totals.Subtotal = sumSubtotals(o.items)
	}
	return o, nil
}

// Validate ensures the Order was built by NewOrder.
func (o *Order) Validate() error {
	if o == nil {
		return ErrOrderIsNotConstructed
	}
	return o.guard.Validate(ErrOrderIsNotConstructed)
}

// Key is the identity used for reconciliation, bus topics and room joins.
// The order id is preferred; the code is used when the backend omits the id.
func (o *Order) Key() string {
	if o.id != "" {
		return o.id
	}
	return o.code
}

// ID returns the backend order id (may be empty).
func (o *Order) ID() string { return o.id }

// Code returns the order code used in REST paths.
func (o *Order) Code() string {
	if o.code != "" {
		return o.code
	}
	return o.id
}

// BusinessID returns the owning business.
func (o *Order) BusinessID() string { return o.businessID }

// UserID returns the customer user id.
func (o *Order) UserID() string { return o.userID }

// Status returns the canonical status.
func (o *Order) Status() Status { return o.status }

// StatusReason returns the last reason attached to a status change.
func (o *Order) StatusReason() string { return o.statusReason }

// Cancellation returns decline metadata, or nil.
func (o *Order) Cancellation() *Cancellation {
	if o.cancellation == nil {
		return nil
	}
	c := *o.cancellation
	return &c
}

// Fulfillment returns the fulfillment type.
func (o *Order) Fulfillment() FulfillmentType { return o.fulfillment }

// DeliveryOption returns the business-level delivery option.
func (o *Order) DeliveryOption() DeliveryOption { return o.deliveryOption }

// ChosenOption returns the per-order choice made when the business allows BOTH.
func (o *Order) ChosenOption() DeliveryOption { return o.chosenOption }

// AddressText returns the human readable delivery address.
func (o *Order) AddressText() string { return o.addressText }

// Drop returns the delivery coordinates; IsSet is false when none could be resolved.
func (o *Order) Drop() kernel.Coordinates { return o.drop }

// Items returns a copy of the order lines.
func (o *Order) Items() []Item {
	out := make([]Item, len(o.items))
	for i, it := range o.items {
		out[i] = it.clone()
	}
	return out
}

// Totals returns the current monetary figures.
func (o *Order) Totals() Totals { return o.totals }

// PaymentMethod returns the raw payment method flag.
func (o *Order) PaymentMethod() string { return o.paymentMethod }

// IsCashOnDelivery reports whether the courier has to collect cash.
func (o *Order) IsCashOnDelivery() bool {
	switch strings.ToUpper(strings.TrimSpace(o.paymentMethod)) {
	case "COD", "CASH", "CASH_ON_DELIVERY", "CASH ON DELIVERY":
		return true
	default:
		return false
	}
}

// UnavailableMode returns how unavailable items are resolved on confirmation.
func (o *Order) UnavailableMode() UnavailableMode { return o.unavailableMode }

// EstimatedMinutes returns the preparation time given on confirmation.
func (o *Order) EstimatedMinutes() int { return o.estimatedMinutes }

// DriverID returns the accepted driver, or "".
func (o *Order) DriverID() string { return o.driverID }

// HasDriver reports whether a driver accepted the delivery.
func (o *Order) HasDriver() bool { return o.driverID != "" }

// IsTerminal reports whether the order has reached the end of its lifecycle.
func (o *Order) IsTerminal() bool {
	return o.status.IsTerminalFor(o.fulfillment)
}

// InheritDeliveryOption applies the business-level option to an order that does
// not carry its own.
func (o *Order) InheritDeliveryOption(opt DeliveryOption) {
	if o.deliveryOption != UnknownDeliveryOption {
		return
	}
	switch opt {
	case Self, Grab, Both:
		o.deliveryOption = opt
	}
}

// ResolvesToGrab reports whether delivery involves an external courier:
// GRAB, or BOTH with GRAB chosen for this order.
func (o *Order) ResolvesToGrab() bool {
	return o.deliveryOption == Grab || (o.deliveryOption == Both && o.chosenOption == Grab)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (o *Order) Clone() *Order {
	c := *o
	c.items = o.Items()
	if o.cancellation != nil {
		cc := *o.cancellation
		c.cancellation = &cc
	}
	return &c
}

// MarkItemUnavailable flags a line as out of stock, optionally with a replacement.
func (o *Order) MarkItemUnavailable(menuID string, replacement *Item) error {
	if o.status != Pending {
		return fmt.Errorf("%w: items can only change while %s", ErrTransitionNotAllowed, Pending)
	}
	if replacement != nil {
		if err := replacement.Validate(); err != nil {
			return err
		}
	}
	for i := range o.items {
		if o.items[i].MenuID == menuID {
			o.items[i].Available = false
			if replacement != nil {
				r := replacement.clone()
				o.items[i].Replacement = &r
			}
			return nil
		}
	}
	return errs.NewObjectNotFoundError("menu_id", menuID)
}

// ChooseDelivery records SELF or GRAB for an order whose business allows BOTH.
func (o *Order) ChooseDelivery(option DeliveryOption) error {
	if o.deliveryOption != Both {
		return errs.NewValueIsInvalidErrorWithCause("delivery_option",
			fmt.Errorf("business option is %s, not %s", o.deliveryOption, Both))
	}
	if option != Self && option != Grab {
		return errs.NewValueIsInvalidErrorWithCause("delivery_option",
			fmt.Errorf("%s is not %s or %s", option, Self, Grab))
	}
	o.chosenOption = option
	return nil
}

// ConfirmResult is what the CONFIRMED request must carry.
type ConfirmResult struct {
	EstimatedMinutes int
	Totals           Totals
	Changes          Changelist
}

// Confirm performs PENDING -> CONFIRMED. It requires a positive preparation time,
// resolves unavailable items with the order's UnavailableMode and recomputes totals.
func (o *Order) Confirm(estimatedMinutes int) (ConfirmResult, error) {
	if o.status != Pending {
		return ConfirmResult{}, fmt.Errorf("%w: confirm from %s", ErrTransitionNotAllowed, o.status)
	}
	if estimatedMinutes <= 0 {
		return ConfirmResult{}, errs.NewValueIsRequiredErrorWithCause("estimated_minutes",
			fmt.Errorf("%d is not a positive number of minutes", estimatedMinutes))
	}

	originalSubtotal := o.totals.Subtotal
	kept, changes := resolveUnavailable(o.items, o.unavailableMode)
	totals := recomputeTotals(o.totals, originalSubtotal, kept)

	o.items = kept
	o.totals = totals
	o.estimatedMinutes = estimatedMinutes
	o.status = Confirmed

	return ConfirmResult{EstimatedMinutes: estimatedMinutes, Totals: totals, Changes: changes}, nil
}

// Decline performs PENDING -> DECLINED with a reason of at least MinDeclineReasonLength characters.
func (o *Order) Decline(reason, by string, at time.Time) error {
	if o.status != Pending {
		return fmt.Errorf("%w: decline from %s", ErrTransitionNotAllowed, o.status)
	}
	if err := ValidateDeclineReason(reason); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(reason)
	o.status = Declined
	o.statusReason = trimmed
	o.cancellation = &Cancellation{Reason: trimmed, By: by, At: at}
	return nil
}

// ValidateDeclineReason checks the reason length rule on its own.
func ValidateDeclineReason(reason string) error {
	if n := len([]rune(strings.TrimSpace(reason))); n < MinDeclineReasonLength {
		return errs.NewValueIsInvalidErrorWithCause("reason",
			fmt.Errorf("%d characters, need at least %d", n, MinDeclineReasonLength))
	}
	return nil
}

// Advance performs a manual transition to the next status. CONFIRMED must go
// through Confirm and DECLINED through Decline.
func (o *Order) Advance(to Status, reason string) error {
	next, ok := NextTransition(o)
	if !ok {
		if IsGated(o) {
			return fmt.Errorf("%w: %s waits for a driver to accept", ErrTransitionNotAllowed, o.status)
		}
		return fmt.Errorf("%w: no transition from %s", ErrTransitionNotAllowed, o.status)
	}
	if next == Confirmed {
		return fmt.Errorf("%w: use Confirm for %s", ErrTransitionNotAllowed, Confirmed)
	}
	if to != next {
		return fmt.Errorf("%w: %s -> %s, expected %s", ErrTransitionNotAllowed, o.status, to, next)
	}
	o.status = to
	if reason != "" {
		o.statusReason = reason
	}
	return nil
}

// AdoptStatus overwrites the status after the reconciliation engine accepted it.
// It performs no lifecycle checks; callers own the merge rules.
func (o *Order) AdoptStatus(s Status) {
	o.status = s
}

// Patch is the set of non-status fields an update may carry.
// Nil fields are left untouched.
type Patch struct {
	StatusReason     *string
	CancelReason     *string
	CancelledBy      *string
	ChosenOption     *DeliveryOption
	DriverID         *string
	Drop             *kernel.Coordinates
	EstimatedMinutes *int
	Totals           *Totals
}

// IsEmpty reports whether the patch carries nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Merge applies p and reports whether any field changed.
func (o *Order) Merge(p Patch) bool {
	changed := false
	if p.StatusReason != nil && *p.StatusReason != o.statusReason {
		o.statusReason = *p.StatusReason
		changed = true
	}
	if p.CancelReason != nil || p.CancelledBy != nil {
		if o.cancellation == nil {
			o.cancellation = &Cancellation{}
		}
		if p.CancelReason != nil && *p.CancelReason != o.cancellation.Reason {
			o.cancellation.Reason = *p.CancelReason
			changed = true
		}
		if p.CancelledBy != nil && *p.CancelledBy != o.cancellation.By {
			o.cancellation.By = *p.CancelledBy
			changed = true
		}
	}
	if p.ChosenOption != nil && *p.ChosenOption != o.chosenOption {
		o.chosenOption = *p.ChosenOption
		changed = true
	}
	if p.DriverID != nil && *p.DriverID != o.driverID {
		o.driverID = *p.DriverID
		changed = true
	}
	if p.Drop != nil && p.Drop.IsSet() && *p.Drop != o.drop {
		o.drop = *p.Drop
		changed = true
	}
	if p.EstimatedMinutes != nil && *p.EstimatedMinutes != o.estimatedMinutes {
		o.estimatedMinutes = *p.EstimatedMinutes
		changed = true
	}
	if p.Totals != nil {
		o.totals = *p.Totals
		changed = true
	}
	return changed
}
