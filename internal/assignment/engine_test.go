package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedFreelancer(id string, rating float64, zips, services []string) Freelancer {
	return Freelancer{
		ID:                 id,
		UserID:             "user-" + id,
		ServiceAreas:       zips,
		ServicesOffered:    services,
		Rating:             rating,
		MaxConcurrentJobs:  3,
		VerificationStatus: "approved",
		IsActive:           true,
	}
}

func pendingOrder(id, zip, service string) Order {
	return Order{
		ID:               id,
		CustomerID:       "cust-" + id,
		ServiceName:      service,
		Amount:           12000,
		Status:           OrderPending,
		AssignmentStatus: AssignPending,
		CustomerZipCode:  zip,
		DurationHours:    2,
	}
}

func TestAutoAssignRanksAndFansOut(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("f-low", 4.2, []string{"10001"}, []string{"cleaning"}))
	store.PutFreelancer(approvedFreelancer("f-high", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, events, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, AssignAssigned, outcome.Status)
	assert.False(t, outcome.NoOp)
	require.Len(t, outcome.OfferIDs, 2)
	require.Len(t, events, 2)

	// Higher-rated freelancer is ranked first
	first, err := store.GetAssignment(context.Background(), outcome.OfferIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "f-high", first.FreelancerID)

	o, err := store.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, AssignAssigned, o.AssignmentStatus)
}

func TestAutoAssignFanOutBound(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	for _, f := range []struct {
		id     string
		rating float64
	}{
		{"f1", 5.0}, {"f2", 4.9}, {"f3", 4.8}, {"f4", 4.7}, {"f5", 4.6},
	} {
		store.PutFreelancer(approvedFreelancer(f.id, f.rating, []string{"10001"}, []string{"cleaning"}))
	}

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, outcome.OfferIDs, DefaultFanOut)

	offered := map[string]bool{}
	rows, _ := store.ListByOrder(context.Background(), "o1")
	for _, a := range rows {
		offered[a.FreelancerID] = true
	}
	assert.True(t, offered["f1"])
	assert.True(t, offered["f2"])
	assert.True(t, offered["f3"])
	assert.False(t, offered["f4"])
	assert.False(t, offered["f5"])
}

func TestAutoAssignNoCoverage(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "99999", "cleaning"))
	store.PutFreelancer(approvedFreelancer("f1", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, AssignNoMatch, outcome.Status)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	assert.Empty(t, rows)

	o, _ := store.GetOrder(context.Background(), "o1")
	assert.Equal(t, AssignNoMatch, o.AssignmentStatus)
}

func TestAutoAssignMissingZip(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "", "cleaning"))
	store.PutFreelancer(approvedFreelancer("f1", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, AssignNoMatch, outcome.Status)
}

func TestAutoAssignOverbooked(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	full := approvedFreelancer("f1", 4.8, []string{"10001"}, []string{"cleaning"})
	full.CurrentActiveJobs = 3
	full.MaxConcurrentJobs = 3
	store.PutFreelancer(full)

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, AssignOverbooked, outcome.Status)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	assert.Empty(t, rows)
}

func TestAutoAssignSkipsIneligible(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))

	wrongService := approvedFreelancer("f-plumber", 5.0, []string{"10001"}, []string{"plumbing"})
	unverified := approvedFreelancer("f-pending", 5.0, []string{"10001"}, []string{"cleaning"})
	unverified.VerificationStatus = "pending"
	inactive := approvedFreelancer("f-inactive", 5.0, []string{"10001"}, []string{"cleaning"})
	inactive.IsActive = false
	ok := approvedFreelancer("f-ok", 4.0, []string{"10001"}, []string{"cleaning"})

	store.PutFreelancer(wrongService)
	store.PutFreelancer(unverified)
	store.PutFreelancer(inactive)
	store.PutFreelancer(ok)

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, outcome.OfferIDs, 1)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	require.Len(t, rows, 1)
	assert.Equal(t, "f-ok", rows[0].FreelancerID)
}

func TestAutoAssignIdempotentAfterAcceptance(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("f1", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, outcome.OfferIDs, 1)

	_, err = eng.Accept(context.Background(), outcome.OfferIDs[0], "f1")
	require.NoError(t, err)

	// Manual Assign and retry paths depend on this being a no-op
	again, events, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, again.NoOp)
	assert.Empty(t, events)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	assert.Len(t, rows, 1)
}

func TestAcceptLocksOrderAndExpiresSiblings(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))
	store.PutFreelancer(approvedFreelancer("fb", 4.2, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, outcome.OfferIDs, 2)

	winner := outcome.OfferIDs[0]
	loser := outcome.OfferIDs[1]

	wa, _ := store.GetAssignment(context.Background(), winner)
	events, err := eng.Accept(context.Background(), winner, wa.FreelancerID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventOfferAccepted, events[0].Type)

	o, _ := store.GetOrder(context.Background(), "o1")
	require.NotNil(t, o.AssignedFreelancerID)
	assert.Equal(t, wa.FreelancerID, *o.AssignedFreelancerID)
	assert.Equal(t, OrderAssigned, o.Status)

	f, _ := store.GetFreelancer(context.Background(), wa.FreelancerID)
	assert.Equal(t, 1, f.CurrentActiveJobs)

	// Sibling offer is no longer actionable
	sib, _ := store.GetAssignment(context.Background(), loser)
	assert.Equal(t, OfferExpired, sib.Status)

	la, _ := store.GetAssignment(context.Background(), loser)
	_, err = eng.Accept(context.Background(), loser, la.FreelancerID)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestConcurrentAcceptsExactlyOneWinner(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))
	store.PutFreelancer(approvedFreelancer("fb", 4.2, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, outcome.OfferIDs, 2)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, offerID := range outcome.OfferIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			a, _ := store.GetAssignment(context.Background(), id)
			_, results[i] = eng.Accept(context.Background(), id, a.FreelancerID)
		}(i, offerID)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			// The loser fails cleanly: either it lost the CAS or saw the
			// already-expired sibling, never a silent overwrite
			failedClean := errors.Is(err, ErrOrderTaken) || errors.Is(err, ErrAlreadyDecided)
			assert.True(t, failedClean, "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one accept must win")

	accepted := 0
	rows, _ := store.ListByOrder(context.Background(), "o1")
	for _, a := range rows {
		if a.Status == OfferAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	o, _ := store.GetOrder(context.Background(), "o1")
	require.NotNil(t, o.AssignedFreelancerID)
}

func TestAcceptWrongFreelancer(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)

	_, err = eng.Accept(context.Background(), outcome.OfferIDs[0], "somebody-else")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestRejectRequiresReason(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)

	_, err = eng.Reject(context.Background(), outcome.OfferIDs[0], "fa", "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	a, _ := store.GetAssignment(context.Background(), outcome.OfferIDs[0])
	assert.Equal(t, OfferOffered, a.Status)
}

func TestRejectNeverMutatesOrder(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)

	_, err = eng.Reject(context.Background(), outcome.OfferIDs[0], "fa", "too far out")
	require.NoError(t, err)

	a, _ := store.GetAssignment(context.Background(), outcome.OfferIDs[0])
	assert.Equal(t, OfferRejected, a.Status)
	assert.Equal(t, "too far out", a.RejectionReason)

	o, _ := store.GetOrder(context.Background(), "o1")
	assert.Nil(t, o.AssignedFreelancerID)
	assert.Equal(t, OrderPending, o.Status)
}

func TestRedispatchSkipsPriorRejectors(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)

	_, err = eng.Reject(context.Background(), outcome.OfferIDs[0], "fa", "busy week")
	require.NoError(t, err)

	// Everyone eligible has declined; the re-run must not re-offer to fa
	again, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, AssignNoMatch, again.Status)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	assert.Len(t, rows, 1)
}

func TestStartAndCompleteLifecycle(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	_, err = eng.Accept(context.Background(), outcome.OfferIDs[0], "fa")
	require.NoError(t, err)

	// Only the accepted freelancer may start
	_, err = eng.Start(context.Background(), "o1", "fb")
	assert.ErrorIs(t, err, ErrNotAssigned)

	events, err := eng.Start(context.Background(), "o1", "fa")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventJobStarted, events[0].Type)

	// Cannot complete twice, cannot start twice
	_, err = eng.Start(context.Background(), "o1", "fa")
	assert.ErrorIs(t, err, ErrBadTransition)

	events, err = eng.Complete(context.Background(), "o1", "fa")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventJobCompleted, events[0].Type)

	o, _ := store.GetOrder(context.Background(), "o1")
	assert.Equal(t, OrderCompleted, o.Status)

	// Capacity released on completion
	f, _ := store.GetFreelancer(context.Background(), "fa")
	assert.Equal(t, 0, f.CurrentActiveJobs)

	_, err = eng.Complete(context.Background(), "o1", "fa")
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestCancelReleasesCapacityAndExpiresOffers(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.8, []string{"10001"}, []string{"cleaning"}))
	store.PutFreelancer(approvedFreelancer("fb", 4.2, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	_, err = eng.Accept(context.Background(), outcome.OfferIDs[0], "fa")
	require.NoError(t, err)

	events, err := eng.Cancel(context.Background(), "o1")
	require.NoError(t, err)
	assert.Len(t, events, 2) // customer and freelancer

	o, _ := store.GetOrder(context.Background(), "o1")
	assert.Equal(t, OrderCancelled, o.Status)

	f, _ := store.GetFreelancer(context.Background(), "fa")
	assert.Equal(t, 0, f.CurrentActiveJobs)

	// Terminal orders stay terminal
	_, err = eng.Cancel(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrOrderTerminal)
	_, _, err = eng.AutoAssign(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrOrderTerminal)
}
