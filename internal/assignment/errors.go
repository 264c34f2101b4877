package assignment

import "errors"

// Sentinel errors let the HTTP layer map engine outcomes to status codes.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrFreelancerNotFound = errors.New("freelancer not found")

	// ErrNotEligible covers a freelancer acting on an offer that is not theirs
	ErrNotEligible = errors.New("assignment does not belong to this freelancer")

	// ErrAlreadyDecided covers accept/reject on a non-offered row
	ErrAlreadyDecided = errors.New("assignment already decided")

	// ErrOrderTaken is returned to the loser of an accept race
	ErrOrderTaken = errors.New("order already accepted by another freelancer")

	ErrReasonRequired = errors.New("rejection reason required")
	ErrOrderTerminal  = errors.New("order is in a terminal state")
	ErrNotAssigned    = errors.New("caller is not the assigned freelancer")
	ErrBadTransition  = errors.New("order is not in the required state")
	ErrAtCapacity     = errors.New("freelancer is at capacity")
)
