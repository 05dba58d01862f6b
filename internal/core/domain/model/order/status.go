package order

import "strings"

// Status is a canonical order status. Unrecognized backend tokens are carried as
// their trimmed upper-case text so they travel through the pipeline without failing.
type Status string

const (
	// Pending is the initial status and the result of normalizing an empty string.
	Pending Status = "PENDING"
	// Confirmed means the merchant accepted the order and is preparing it.
	Confirmed Status = "CONFIRMED"
	// Ready means the order is packed. Terminal success for pickup orders.
	Ready Status = "READY"
	// OutForDelivery means a courier (own or GRAB) is on the road.
	OutForDelivery Status = "OUT_FOR_DELIVERY"
	// Completed is terminal success for delivery orders.
	Completed Status = "COMPLETED"
	// Declined is a terminal sentinel. It is compared by equality only and has no rank.
	Declined Status = "DECLINED"
)

// synonyms maps upper-cased, whitespace-collapsed tokens to their canonical status.
var synonyms = map[string]Status{
	"PENDING": Pending,

	"CONFIRMED": Confirmed,
	"ACCEPTED":  Confirmed,
	"ACCEPT":    Confirmed,
	"CONFIRM":   Confirmed,
	"PREPARING": Confirmed,

	"READY": Ready,

	"OUT_FOR_DELIVERY": OutForDelivery,
	"ON ROAD":          OutForDelivery,
	"ON_ROAD":          OutForDelivery,
	"ONROAD":           OutForDelivery,
	"OUT FOR DELIVERY": OutForDelivery,
	"DELIVERING":       OutForDelivery,

	"COMPLETED":         Completed,
	"DELIVERED":         Completed,
	"DELIVERY_COMPLETE": Completed,
	"DELIVERY COMPLETE": Completed,
	"DELIVER_COMPLETE":  Completed,
	"DELIVER COMPLETE":  Completed,

	"DECLINED": Declined,
}

var ranks = map[Status]int{
	Pending:        0,
	Confirmed:      1,
	Ready:          2,
	OutForDelivery: 3,
	Completed:      4,
}

// Normalize canonicalizes a raw status string from any backend or driver.
//
// Matching is case-insensitive. Empty input yields Pending; unrecognized input is
// returned trimmed and upper-cased. Normalize is idempotent.
//
// Example:
//
//	order.Normalize("on road")   // OUT_FOR_DELIVERY
//	order.Normalize("accepted")  // CONFIRMED
//	order.Normalize(" weird ")   // WEIRD
func Normalize(raw string) Status {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return Pending
	}
	if s, ok := synonyms[strings.Join(strings.Fields(upper), " ")]; ok {
		return s
	}
	return Status(upper)
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Rank returns the position of s on the success path. ok is false for Declined
// and for pass-through statuses the normalizer did not recognize.
func (s Status) Rank() (rank int, ok bool) {
	rank, ok = ranks[s]
	return rank, ok
}

// IsKnown reports whether s is one of the canonical statuses.
func (s Status) IsKnown() bool {
	_, ranked := ranks[s]
	return ranked || s == Declined
}

// IsTerminalFor reports whether no further transition exists for the fulfillment type.
func (s Status) IsTerminalFor(ft FulfillmentType) bool {
	switch s {
	case Completed, Declined:
		return true
	case Ready:
		return ft == Pickup
	default:
		return false
	}
}
