package assignment

import (
	"context"
	"time"
)

// OrderStore is the order side of the ledger. Mutations that enforce an
// invariant are conditional: they report whether the row matched the
// expected prior state, so the caller can distinguish a lost race from a
// storage failure.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*Order, error)

	// SetAssignmentStatus overwrites the order-level assignment summary.
	SetAssignmentStatus(ctx context.Context, id, status string) error

	// TryLockOrder claims the order for a freelancer. It succeeds only while
	// assigned_freelancer_id is still NULL and the order is pending, so
	// exactly one accept can ever win.
	TryLockOrder(ctx context.Context, orderID, freelancerID string) (bool, error)

	// TryTransition moves order status from -> to and reports whether the
	// order was in the expected state.
	TryTransition(ctx context.Context, orderID, from, to string) (bool, error)

	// ReleaseOrder clears the assigned freelancer (used when an accept loses
	// the order lock race after its row update, or on cancellation).
	ReleaseOrder(ctx context.Context, orderID string) error

	// ListUnassigned returns non-terminal orders that have no accepted
	// freelancer yet; the redispatch worker scans these.
	ListUnassigned(ctx context.Context, limit int) ([]Order, error)
}

// FreelancerStore is the registry side.
type FreelancerStore interface {
	GetFreelancer(ctx context.Context, id string) (*Freelancer, error)

	// ListCandidates returns approved, active freelancers covering the ZIP
	// and offering the service, regardless of remaining capacity. The policy
	// splits the capacity dimension itself so it can tell "nobody matches"
	// apart from "everybody is overbooked".
	ListCandidates(ctx context.Context, zip, service string) ([]Freelancer, error)

	// TryReserveSlot increments current_active_jobs only while it is below
	// max_concurrent_jobs.
	TryReserveSlot(ctx context.Context, freelancerID string) (bool, error)

	// ReleaseSlot decrements current_active_jobs, flooring at zero.
	ReleaseSlot(ctx context.Context, freelancerID string) error
}

// AssignmentStore is the offer ledger.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, id string) (*Assignment, error)

	// CreateOffers inserts offered rows for the order and marks the order
	// assignment_status 'assigned' in the same transaction. Either the whole
	// fan-out lands or nothing does.
	CreateOffers(ctx context.Context, orderID string, freelancerIDs []string, at time.Time) ([]Assignment, error)

	// TryAccept moves a row offered -> accepted. It fails (false) if the row
	// is no longer offered, or if any sibling row for the same order has
	// already been accepted.
	TryAccept(ctx context.Context, id string, at time.Time) (bool, error)

	// TryReject moves a row offered -> rejected with the given reason.
	TryReject(ctx context.Context, id, reason string, at time.Time) (bool, error)

	// MarkExpired force-expires a single row regardless of prior state short
	// of accepted.
	MarkExpired(ctx context.Context, id string) error

	// ExpireSiblings expires every still-offered row for the order except
	// the accepted one.
	ExpireSiblings(ctx context.Context, orderID, acceptedID string) error

	// ExpireStale expires offered rows assigned before the cutoff and
	// returns how many it touched.
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)

	HasAccepted(ctx context.Context, orderID string) (bool, error)
	CountOffered(ctx context.Context, orderID string) (int, error)

	ListByOrder(ctx context.Context, orderID string) ([]Assignment, error)
	ListOffersForFreelancer(ctx context.Context, freelancerID string) ([]Assignment, error)
}
