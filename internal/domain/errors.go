package domain

import "errors"

// Error taxonomy surfaced to callers. Collaborator unavailability is
// deliberately absent: scoring always completes by degrading to the
// fallback path, it never propagates a collaborator error.
var (
	// ErrInvalidInput marks malformed or missing submission fields,
	// out-of-range amounts, or under-length reason/notes strings.
	// No mutation occurs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing claim or claimant profile.
	ErrNotFound = errors.New("record not found")

	// ErrTerminalState marks an attempted transition on a claim already
	// approved or rejected. No mutation occurs.
	ErrTerminalState = errors.New("claim is in a terminal state")

	// ErrConflict marks a concurrent transition that raced and lost the
	// optimistic version check. Retryable.
	ErrConflict = errors.New("concurrent modification conflict")
)
