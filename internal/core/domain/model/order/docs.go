// Package order models a merchant order as seen by the dispatch coordinator.
//
// The package includes:
//   - Status: the canonical status vocabulary, Normalize for free-form backend and
//     driver strings, and the monotonic Rank used to refuse regressions
//   - NextTransition: the fulfillment state machine, including the externally gated
//     READY edge for GRAB deliveries that waits on a driver
//   - Order: the aggregate with its items, totals and confirm/decline/advance rules
//
// Key business rules:
//   - Delivery: PENDING -> CONFIRMED -> READY -> OUT_FOR_DELIVERY -> COMPLETED
//   - Pickup stops at READY
//   - DECLINED is reachable only from PENDING and needs a reason of at least 3 characters
//   - Confirming needs a positive preparation time and recomputed totals
package order
