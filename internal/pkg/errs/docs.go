// Package errs provides the typed errors shared by the coordinator.
//
// The package follows one pattern for every error kind:
//   - A sentinel error variable (e.g., ErrValueIsRequired)
//   - A struct type carrying the details
//   - Constructor functions with and without cause
//   - Error() for formatting and Unwrap() for errors.Is
//
// Validation errors (ValueIsRequiredError, ValueIsInvalidError, ValueIsOutOfRangeError)
// block an action locally and are never sent to the network. NetworkError wraps
// transport failures and non-2xx responses from the merchant backend.
package errs
