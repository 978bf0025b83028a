package services

import (
	"errors"
)

// Domain error taxonomy. Handlers map these to HTTP statuses and machine
// codes; participant-facing messages stay generic and the detailed cause is
// only ever logged server-side.
var (
	// ErrRoundLocked covers both an explicit lock/complete status and an
	// elapsed lock time. Callers cannot tell the two causes apart through
	// the error; a separate boolean "locked" flag exists for UI messaging.
	ErrRoundLocked = errors.New("round is locked")

	// ErrInvalidCandidate means a single-kind pick is not a case-sensitive
	// member of the round's candidate list.
	ErrInvalidCandidate = errors.New("pick is not one of the round's candidates")

	// ErrEmptySubmission means no non-blank value was submitted.
	ErrEmptySubmission = errors.New("submission contains no values")

	// ErrTooManyValues means a single-pick round received more than one
	// non-blank value.
	ErrTooManyValues = errors.New("round takes exactly one pick")

	// ErrInvalidTransition is an illegal round status change. Not
	// user-facing; logged as a server fault.
	ErrInvalidTransition = errors.New("invalid round status transition")

	// ErrInvalidPlacement means a recorded outcome used a placement
	// outside 1..5.
	ErrInvalidPlacement = errors.New("placement must be between 1 and 5")

	// Token resolution errors. NotFound and Expired must be presented to
	// clients with identical generic messages, distinguishable only by the
	// explicit machine code.
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenConsumed = errors.New("token already used")
)
