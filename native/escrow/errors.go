package escrow

import "errors"

// The engine reports every validation failure through one of these sentinels,
// wrapped with call-site context. Callers match with errors.Is.
var (
	// ErrInvalidAmount rejects zero, negative or malformed unit amounts.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrInvalidDuration rejects non-positive order or judge durations.
	ErrInvalidDuration = errors.New("escrow: invalid duration")
	// ErrRoleNotBound is returned when an operation names a role the instance
	// does not recognise or that has not been bound to an address yet.
	ErrRoleNotBound = errors.New("escrow: role not bound")
	// ErrInsufficientBalance is returned when a debit or transfer exceeds the
	// available balance.
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	// ErrUnauthorized is returned when the caller is not the address bound to
	// the role the operation requires.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrPhaseMismatch is returned when the instance is not in a phase that
	// admits the requested operation.
	ErrPhaseMismatch = errors.New("escrow: phase mismatch")
	// ErrInstanceTerminal is returned for any mutation against a settled,
	// refunded or expired instance.
	ErrInstanceTerminal = errors.New("escrow: instance terminal")
	// ErrNotFound is returned when the instance identifier is unknown.
	ErrNotFound = errors.New("escrow: instance not found")
	// ErrUnsupportedToken is returned when the denominating token is not part
	// of the genesis token registry.
	ErrUnsupportedToken = errors.New("escrow: unsupported token")
	// ErrInvalidOutcome is returned for a dispute decision outside the
	// supported outcome set.
	ErrInvalidOutcome = errors.New("escrow: invalid outcome")
)
