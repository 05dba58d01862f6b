// Package dispatch models the courier dispatch protocol: the broadcast payload sent
// to the courier-matching backend, the request record kept per batch and the driver
// assignment created when a courier accepts.
package dispatch
