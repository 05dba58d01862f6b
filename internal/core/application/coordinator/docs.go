// Package coordinator runs the courier dispatch protocol for one screen session.
//
// It freezes clusters of dispatchable orders into batches, builds and posts the
// dispatch broadcast, arms the resend prompt, and consumes the push events that
// follow: driver acceptance, arrival and live location. Status changes carried by
// those events flow through the reconciliation engine; location events are scoped
// to the batches this session owns.
package coordinator
