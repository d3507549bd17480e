package storage

import "errors"

// Sentinel errors returned by the storage layer. Callers match with
// errors.Is; higher layers translate them into user-facing error types.
var (
	// ErrNotFound is returned when an entity or property is not visible
	// in the calling transaction's merged view.
	ErrNotFound = errors.New("not found")

	// ErrTransactionClosed is returned for any operation on a transaction
	// that has already committed, rolled back, or been terminated.
	ErrTransactionClosed = errors.New("transaction is closed")

	// ErrTokenSpaceExhausted is returned when a token category (label,
	// property key, relationship type) has no free ids left.
	ErrTokenSpaceExhausted = errors.New("token space exhausted")

	// ErrCorruptChain is returned when an overflow chain cannot be
	// reconstructed (missing block, cycle, or length mismatch). The
	// transaction that hits it is terminated.
	ErrCorruptChain = errors.New("corrupt overflow chain")

	// ErrEngineClosed is returned when the engine has been shut down.
	ErrEngineClosed = errors.New("engine is closed")
)
