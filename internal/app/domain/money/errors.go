package money

import "errors"

// Failure classes surfaced by the stores and the ledger service. Callers
// discriminate with errors.Is; anything else is a store or transport failure.
var (
	// ErrNotFound means the referenced account or transaction has no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict means an insert collided with an existing row.
	ErrConflict = errors.New("already exists")

	// ErrAuthFailure means the presented session pair did not match the
	// registered one. Deliberately carries no detail: the caller cannot tell
	// an unknown account from a wrong token.
	ErrAuthFailure = errors.New("session check failure")

	// ErrInsufficientFunds means the sender balance was below the requested
	// amount. No state was mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTerminalStatus means a status transition was attempted on a
	// transaction already in Success or Failed.
	ErrTerminalStatus = errors.New("transaction already settled")

	// ErrForbidden means a privileged operation was refused by configuration
	// (force transfers disabled, wrong banker avatar, bad script key).
	ErrForbidden = errors.New("operation not allowed")

	// ErrInvalidAmount means the request carried a negative amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDeliveryFailed means the paying region did not confirm delivery of a
	// purchased object and the transaction was rolled back.
	ErrDeliveryFailed = errors.New("delivery not confirmed")
)
