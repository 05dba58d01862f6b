package reconcile

import "merchantdispatch/internal/core/domain/model/order"

// Source identifies where an update came from.
type Source int

const (
	// SourceLocal is an optimistic write from a merchant action.
	SourceLocal Source = iota
	// SourcePoll is the live poll or a confirmation fetch.
	SourcePoll
	// SourcePush is a push-channel event.
	SourcePush
	// SourceBus is another session's engine.
	SourceBus
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourcePoll:
		return "poll"
	case SourcePush:
		return "push"
	case SourceBus:
		return "bus"
	default:
		return "unknown"
	}
}

// Outcome is the result of Apply.
type Outcome int

const (
	// OutcomeStale means the update was older than the held state and was dropped.
	OutcomeStale Outcome = iota
	// OutcomeMerged means the rank was equal (or absent); auxiliary fields were merged
	// and no notification was emitted.
	OutcomeMerged
	// OutcomeAdvanced means the status moved forward.
	OutcomeAdvanced
	// OutcomeIgnored means the order is not tracked, the engine is closed, or the
	// status is unrecognized. Patch fields of unrecognized statuses are still merged.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStale:
		return "stale"
	case OutcomeMerged:
		return "merged"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Update is one observation of an order. An empty Status carries only the patch.
type Update struct {
	OrderID string
	Status  string
	Patch   order.Patch
	Source  Source
}

// OrderUpdated is the payload of the order-updated bus topic. The topic is the order id.
type OrderUpdated struct {
	// Origin is the publishing engine, so it can skip its own messages.
	Origin  string
	OrderID string
	Status  order.Status
	Patch   order.Patch
}

// PatchFrom extracts the mergeable fields a polled order carries.
func PatchFrom(o *order.Order) order.Patch {
	var p order.Patch
	if r := o.StatusReason(); r != "" {
		p.StatusReason = &r
	}
	if d := o.DriverID(); d != "" {
		p.DriverID = &d
	}
	if drop := o.Drop(); drop.IsSet() {
		p.Drop = &drop
	}
	if opt := o.ChosenOption(); opt == order.Self || opt == order.Grab {
		p.ChosenOption = &opt
	}
	if c := o.Cancellation(); c != nil {
		if c.Reason != "" {
			p.CancelReason = &c.Reason
		}
		if c.By != "" {
			p.CancelledBy = &c.By
		}
	}
	return p
}

// localPatch is PatchFrom plus the fields only a local action recomputes, so other
// sessions receive the confirmed totals and preparation time with the status.
func localPatch(o *order.Order) order.Patch {
	p := PatchFrom(o)
	totals := o.Totals()
	p.Totals = &totals
	if m := o.EstimatedMinutes(); m > 0 {
		p.EstimatedMinutes = &m
	}
	return p
}
