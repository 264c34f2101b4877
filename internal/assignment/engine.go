package assignment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultFanOut is how many freelancers receive an offer for one order.
const DefaultFanOut = 3

// Engine implements the auto-assignment policy and the offer/job state
// machines over the three stores. It holds no state of its own; every
// invariant is enforced through conditional writes so concurrent callers
// from independent sessions resolve to one winner.
type Engine struct {
	orders      OrderStore
	freelancers FreelancerStore
	offers      AssignmentStore

	fanOut int
	now    func() time.Time
}

type Option func(*Engine)

// WithFanOut overrides the offer fan-out bound
func WithFanOut(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanOut = n
		}
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(orders OrderStore, freelancers FreelancerStore, offers AssignmentStore, opts ...Option) *Engine {
	e := &Engine{
		orders:      orders,
		freelancers: freelancers,
		offers:      offers,
		fanOut:      DefaultFanOut,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Order reads one order through the engine's store
func (e *Engine) Order(ctx context.Context, id string) (*Order, error) {
	return e.orders.GetOrder(ctx, id)
}

// Offers lists the offer ledger for an order
func (e *Engine) Offers(ctx context.Context, orderID string) ([]Assignment, error) {
	return e.offers.ListByOrder(ctx, orderID)
}

// AutoAssign runs the selection policy for an order: filter the registry by
// ZIP, service, verification and capacity, rank by (rating desc, active jobs
// asc), offer to the top candidates. Re-invoking it for an order that already
// has an accepted offer is a no-op; Manual Assign and the redispatch worker
// rely on that.
func (e *Engine) AutoAssign(ctx context.Context, orderID string) (*Outcome, []Event, error) {
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Terminal() {
		return nil, nil, ErrOrderTerminal
	}

	accepted, err := e.offers.HasAccepted(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if accepted || order.AssignedFreelancerID != nil {
		return &Outcome{Status: AssignAssigned, NoOp: true}, nil, nil
	}

	if strings.TrimSpace(order.CustomerZipCode) == "" {
		// No location, nobody can be matched
		return e.markUnmatched(ctx, order)
	}

	candidates, err := e.freelancers.ListCandidates(ctx, order.CustomerZipCode, order.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return e.markUnmatched(ctx, order)
	}

	eligible := candidates[:0:0]
	for _, f := range candidates {
		if f.HasCapacity() {
			eligible = append(eligible, f)
		}
	}
	if len(eligible) == 0 {
		// Matching freelancers exist but all are fully booked
		if err := e.orders.SetAssignmentStatus(ctx, orderID, AssignOverbooked); err != nil {
			return nil, nil, err
		}
		return &Outcome{Status: AssignOverbooked}, nil, nil
	}

	// Skip freelancers who already hold a ledger row for this order, so a
	// re-run never double-offers or re-offers to someone who declined.
	prior, err := e.offers.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(prior))
	for _, a := range prior {
		seen[a.FreelancerID] = true
	}
	fresh := eligible[:0:0]
	for _, f := range eligible {
		if !seen[f.ID] {
			fresh = append(fresh, f)
		}
	}
	if len(fresh) == 0 {
		outstanding, err := e.offers.CountOffered(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}
		if outstanding > 0 {
			// Offers are already out; nothing to add
			return &Outcome{Status: AssignAssigned, NoOp: true}, nil, nil
		}
		// Everyone eligible has already declined
		return e.markUnmatched(ctx, order)
	}

	rank(fresh)
	if len(fresh) > e.fanOut {
		fresh = fresh[:e.fanOut]
	}

	ids := make([]string, len(fresh))
	for i, f := range fresh {
		ids[i] = f.ID
	}
	created, err := e.offers.CreateOffers(ctx, orderID, ids, e.now())
	if err != nil {
		// Fan-out is transactional: on failure assignment_status is untouched
		return nil, nil, err
	}

	outcome := &Outcome{Status: AssignAssigned}
	events := make([]Event, 0, len(created))
	for i, a := range created {
		outcome.OfferIDs = append(outcome.OfferIDs, a.ID)
		events = append(events, Event{
			Type:         EventOfferCreated,
			UserID:       fresh[i].UserID,
			OrderID:      orderID,
			AssignmentID: a.ID,
			Title:        "New job offer",
			Body:         fmt.Sprintf("You have a new %s job offer in %s.", order.ServiceName, order.CustomerZipCode),
		})
	}
	return outcome, events, nil
}

// rank orders candidates best-first: higher rating, then fewer active jobs.
// The ID tie-break keeps the order deterministic.
func rank(fs []Freelancer) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Rating != fs[j].Rating {
			return fs[i].Rating > fs[j].Rating
		}
		if fs[i].CurrentActiveJobs != fs[j].CurrentActiveJobs {
			return fs[i].CurrentActiveJobs < fs[j].CurrentActiveJobs
		}
		return fs[i].ID < fs[j].ID
	})
}

// markUnmatched records that no freelancer could be offered the order. The
// customer event fires only on the first transition into
// no_freelancers_available; the redispatch worker re-runs AutoAssign every
// sweep and must not re-notify an order that is already marked.
func (e *Engine) markUnmatched(ctx context.Context, order *Order) (*Outcome, []Event, error) {
	if err := e.orders.SetAssignmentStatus(ctx, order.ID, AssignNoMatch); err != nil {
		return nil, nil, err
	}
	if order.AssignmentStatus == AssignNoMatch {
		return &Outcome{Status: AssignNoMatch, NoOp: true}, nil, nil
	}
	return &Outcome{Status: AssignNoMatch}, e.unmatchedEvents(order), nil
}

func (e *Engine) unmatchedEvents(order *Order) []Event {
	return []Event{{
		Type:    EventOrderUnmatched,
		UserID:  order.CustomerID,
		OrderID: order.ID,
		Title:   "We're finding you a pro",
		Body:    "No provider is available right now. We'll keep looking and let you know.",
	}}
}

// Accept records a freelancer taking an offer. At most one freelancer ever
// wins an order: the offer row flips offered -> accepted with a no-sibling
// guard, then the order lock is claimed while assigned_freelancer_id is
// still NULL. A loser gets ErrOrderTaken, never a silent overwrite.
func (e *Engine) Accept(ctx context.Context, assignmentID, freelancerID string) ([]Event, error) {
	a, err := e.offers.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.FreelancerID != freelancerID {
		return nil, ErrNotEligible
	}
	if a.Status != OfferOffered {
		return nil, ErrAlreadyDecided
	}

	order, err := e.orders.GetOrder(ctx, a.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		return nil, ErrOrderTerminal
	}

	ok, err := e.offers.TryAccept(ctx, assignmentID, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		taken, herr := e.offers.HasAccepted(ctx, a.OrderID)
		if herr == nil && taken {
			return nil, ErrOrderTaken
		}
		return nil, ErrAlreadyDecided
	}

	locked, err := e.orders.TryLockOrder(ctx, a.OrderID, freelancerID)
	if err != nil {
		return nil, err
	}
	if !locked {
		// Lost the order lock after winning the row; roll the row back
		_ = e.offers.MarkExpired(ctx, assignmentID)
		return nil, ErrOrderTaken
	}

	reserved, err := e.freelancers.TryReserveSlot(ctx, freelancerID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		_ = e.offers.MarkExpired(ctx, assignmentID)
		_ = e.orders.ReleaseOrder(ctx, a.OrderID)
		return nil, ErrAtCapacity
	}

	// The moment one offer is accepted its siblings are moot
	if err := e.offers.ExpireSiblings(ctx, a.OrderID, assignmentID); err != nil {
		return nil, err
	}

	return []Event{{
		Type:         EventOfferAccepted,
		UserID:       order.CustomerID,
		OrderID:      order.ID,
		AssignmentID: assignmentID,
		Title:        "A pro accepted your booking",
		Body:         fmt.Sprintf("Your %s booking has been accepted.", order.ServiceName),
	}}, nil
}

// Reject records a freelancer declining an offer. The parent order is never
// mutated here; a fully-declined order is picked up by the redispatch worker.
func (e *Engine) Reject(ctx context.Context, assignmentID, freelancerID, reason string) ([]Event, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	a, err := e.offers.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.FreelancerID != freelancerID {
		return nil, ErrNotEligible
	}
	if a.Status != OfferOffered {
		return nil, ErrAlreadyDecided
	}

	ok, err := e.offers.TryReject(ctx, assignmentID, reason, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyDecided
	}

	return []Event{{
		Type:         EventOfferRejected,
		UserID:       freelancerID,
		OrderID:      a.OrderID,
		AssignmentID: assignmentID,
		Title:        "Offer declined",
		Body:         "You declined this job offer.",
	}}, nil
}

// Start moves an assigned order to in_progress. Only the accepted
// freelancer may start the job.
func (e *Engine) Start(ctx context.Context, orderID, freelancerID string) ([]Event, error) {
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AssignedFreelancerID == nil || *order.AssignedFreelancerID != freelancerID {
		return nil, ErrNotAssigned
	}

	ok, err := e.orders.TryTransition(ctx, orderID, OrderAssigned, OrderInProgress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadTransition
	}

	return []Event{{
		Type:    EventJobStarted,
		UserID:  order.CustomerID,
		OrderID: orderID,
		Title:   "Your service has started",
		Body:    fmt.Sprintf("Work on your %s booking is underway.", order.ServiceName),
	}}, nil
}

// Complete moves an in_progress order to completed and releases the
// freelancer's capacity slot.
func (e *Engine) Complete(ctx context.Context, orderID, freelancerID string) ([]Event, error) {
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AssignedFreelancerID == nil || *order.AssignedFreelancerID != freelancerID {
		return nil, ErrNotAssigned
	}

	ok, err := e.orders.TryTransition(ctx, orderID, OrderInProgress, OrderCompleted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadTransition
	}

	if err := e.freelancers.ReleaseSlot(ctx, freelancerID); err != nil {
		return nil, err
	}

	return []Event{{
		Type:    EventJobCompleted,
		UserID:  order.CustomerID,
		OrderID: orderID,
		Title:   "Service completed",
		Body:    fmt.Sprintf("Your %s booking is complete. How did we do? Leave a review.", order.ServiceName),
	}}, nil
}

// Cancel ends an order from any non-terminal state, releasing capacity and
// expiring outstanding offers.
func (e *Engine) Cancel(ctx context.Context, orderID string) ([]Event, error) {
	return e.finish(ctx, orderID, OrderCancelled, EventOrderCancelled, "Booking cancelled")
}

// Refund marks an order refunded (admin path); same teardown as Cancel.
func (e *Engine) Refund(ctx context.Context, orderID string) ([]Event, error) {
	return e.finish(ctx, orderID, OrderRefunded, EventOrderCancelled, "Booking refunded")
}

func (e *Engine) finish(ctx context.Context, orderID, to, eventType, title string) ([]Event, error) {
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		return nil, ErrOrderTerminal
	}

	ok, err := e.orders.TryTransition(ctx, orderID, order.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The order moved under us; the caller can re-read and retry
		return nil, ErrBadTransition
	}

	if err := e.offers.ExpireSiblings(ctx, orderID, ""); err != nil {
		return nil, err
	}

	events := []Event{{
		Type:    eventType,
		UserID:  order.CustomerID,
		OrderID: orderID,
		Title:   title,
		Body:    fmt.Sprintf("Your %s booking is %s.", order.ServiceName, to),
	}}

	if order.AssignedFreelancerID != nil {
		fid := *order.AssignedFreelancerID
		if err := e.freelancers.ReleaseSlot(ctx, fid); err != nil {
			return nil, err
		}
		if f, ferr := e.freelancers.GetFreelancer(ctx, fid); ferr == nil {
			events = append(events, Event{
				Type:    eventType,
				UserID:  f.UserID,
				OrderID: orderID,
				Title:   title,
				Body:    fmt.Sprintf("The %s job you accepted was %s.", order.ServiceName, to),
			})
		}
	}
	return events, nil
}
