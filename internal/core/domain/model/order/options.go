package order

import "strings"

// FulfillmentType tells whether the customer collects the order or gets it delivered.
type FulfillmentType string

const (
	// UnknownFulfillment is treated like Delivery by the state machine.
	UnknownFulfillment FulfillmentType = "unknown"
	Delivery           FulfillmentType = "Delivery"
	Pickup             FulfillmentType = "Pickup"
)

// ParseFulfillmentType accepts the backend's loose spellings.
func ParseFulfillmentType(raw string) FulfillmentType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delivery", "deliver":
		return Delivery
	case "pickup", "pick up", "pick_up", "self_pickup", "takeaway":
		return Pickup
	default:
		return UnknownFulfillment
	}
}

// DeliveryOption is the courier arrangement configured by the business, or chosen
// per order when the business allows both.
type DeliveryOption string

const (
	UnknownDeliveryOption DeliveryOption = "UNKNOWN"
	// Self means the merchant's own rider delivers.
	Self DeliveryOption = "SELF"
	// Grab means an external courier is requested through the dispatch broadcast.
	Grab DeliveryOption = "GRAB"
	// Both lets the merchant choose SELF or GRAB per order.
	Both DeliveryOption = "BOTH"
)

// ParseDeliveryOption normalizes a delivery option string.
func ParseDeliveryOption(raw string) DeliveryOption {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SELF":
		return Self
	case "GRAB":
		return Grab
	case "BOTH":
		return Both
	default:
		return UnknownDeliveryOption
	}
}

// UnavailableMode decides what happens to items the merchant marks unavailable.
type UnavailableMode int

const (
	// ModeRemove drops unavailable items from the order.
	ModeRemove UnavailableMode = iota
	// ModeReplace substitutes unavailable items with a replacement chosen by the merchant.
	ModeReplace
)

// ParseUnavailableMode reads the backend's free-text if_unavailable setting.
// Anything mentioning a replacement selects ModeReplace; everything else removes.
func ParseUnavailableMode(raw string) UnavailableMode {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "replace") || strings.Contains(lower, "substitut") {
		return ModeReplace
	}
	return ModeRemove
}

// String implements fmt.Stringer.
func (m UnavailableMode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "remove"
}
