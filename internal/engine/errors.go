package engine

import (
	"errors"

	"bountypot/internal/access"
)

// Failure kinds reported to callers. Every operation either completes fully
// or fails with one of these and no state change.
var (
	ErrUnauthorized = access.ErrUnauthorized
	ErrPaused       = access.ErrPaused

	ErrReservedPrincipal = errors.New("principal name is reserved")

	ErrBelowMinimumFee     = errors.New("value below minimum entry fee")
	ErrTooEarly            = errors.New("round not yet ended")
	ErrInsufficientPlayers = errors.New("not enough unique players")

	ErrZeroBounty          = errors.New("bounty must be greater than zero")
	ErrAlreadyRegistered   = errors.New("worker already registered")
	ErrAlreadyApplied      = errors.New("worker already applied to this gig")
	ErrAlreadySubmitted    = errors.New("work already submitted for this gig")
	ErrWorkerNotRegistered = errors.New("worker not registered")
	ErrSkillMismatch       = errors.New("worker does not have the required skill")
	ErrInvalidState        = errors.New("operation not valid in current state")
)
