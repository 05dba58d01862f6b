// Package batch models a delivery batch: a frozen set of orders dispatched together
// to one courier, the backend identifiers assigned after dispatch and the phase
// derived from member statuses.
package batch
