// Package reconcile merges order observations from three concurrent sources into
// one canonical state per order: optimistic local writes, periodic REST polls and
// push-channel events. Other screen sessions contribute through the in-process bus.
//
// The merge is last-writer-wins by rank. An update with a lower rank than the
// held status is discarded, an equal rank merges auxiliary fields without a new
// notification, and a higher rank is adopted, published and confirmed by a
// debounced fetch from the polling source. DECLINED is a sentinel compared by
// equality only.
package reconcile
