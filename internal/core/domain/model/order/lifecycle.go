package order

// successPath lists the manual transitions in order.
var successPath = map[Status]Status{
	Pending:        Confirmed,
	Confirmed:      Ready,
	Ready:          OutForDelivery,
	OutForDelivery: Completed,
}

// IsGated reports whether the order sits on the externally gated edge: READY, a
// GRAB-involved delivery, and no driver has accepted yet. While gated only a push
// event confirming driver progress can move the status forward.
func IsGated(o *Order) bool {
	return o.status == Ready &&
		o.fulfillment != Pickup &&
		o.ResolvesToGrab() &&
		!o.HasDriver()
}

// NextTransition returns the next status a merchant may move the order to.
//
// ok is false when:
//   - the status is terminal (COMPLETED, DECLINED, or READY for pickup)
//   - the status is not a recognized canonical status
//   - the order is externally gated (see IsGated)
//
// Unknown fulfillment types follow the delivery sequence.
func NextTransition(o *Order) (next Status, ok bool) {
	if o.status.IsTerminalFor(o.fulfillment) {
		return "", false
	}
	if IsGated(o) {
		return "", false
	}
	next, ok = successPath[o.status]
	return next, ok
}
