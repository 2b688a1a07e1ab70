package service

import "errors"

var (
	// ErrNotFound reports a recompute/detect call against an account or
	// user that has no ledger. Caller-input error, not a system fault.
	ErrNotFound = errors.New("not found")

	// ErrLedgerInconsistency reports that a recompute could not complete
	// atomically. The surrounding transaction has been rolled back; the
	// engine never retries on its own.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")

	// ErrInvalidPattern reports an unparseable rule pattern at save time.
	// Rules are compiled before they are stored, so the matcher itself has
	// no bad-pattern path at classification time.
	ErrInvalidPattern = errors.New("invalid rule pattern")
)
