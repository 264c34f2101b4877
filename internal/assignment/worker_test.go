package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpiresStaleOffersAndRedispatches(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("f-slow", 4.9, []string{"10001"}, []string{"cleaning"}))
	store.PutFreelancer(approvedFreelancer("f-next", 4.1, []string{"10001"}, []string{"cleaning"}))

	// Fan out with a clock in the past so the offers look stale
	past := time.Now().Add(-2 * time.Hour)
	eng := NewEngine(store, store, store, WithFanOut(1), WithClock(func() time.Time { return past }))
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, outcome.OfferIDs, 1)

	var delivered []Event
	live := NewEngine(store, store, store, WithFanOut(1))
	w := NewRedispatchWorker(live, store, store, func(events []Event) {
		delivered = append(delivered, events...)
	}).WithOfferTTL(30 * time.Minute)

	require.NoError(t, w.Sweep(context.Background()))

	// The ignored offer is expired so f-slow can no longer act on it
	stale, _ := store.GetAssignment(context.Background(), outcome.OfferIDs[0])
	assert.Equal(t, OfferExpired, stale.Status)

	// And a fresh offer went to the next candidate
	rows, _ := store.ListByOrder(context.Background(), "o1")
	fresh := 0
	for _, a := range rows {
		if a.Status == OfferOffered {
			fresh++
			assert.Equal(t, "f-next", a.FreelancerID)
		}
	}
	assert.Equal(t, 1, fresh)
	assert.NotEmpty(t, delivered)
}

func TestSweepLeavesLiveOffersAlone(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))
	store.PutFreelancer(approvedFreelancer("fa", 4.9, []string{"10001"}, []string{"cleaning"}))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)

	w := NewRedispatchWorker(eng, store, store, nil)
	require.NoError(t, w.Sweep(context.Background()))

	a, _ := store.GetAssignment(context.Background(), outcome.OfferIDs[0])
	assert.Equal(t, OfferOffered, a.Status)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	assert.Len(t, rows, 1)
}

func TestSweepRetriesUnmatchedOrders(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))

	eng := NewEngine(store, store, store)
	outcome, _, err := eng.AutoAssign(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, AssignNoMatch, outcome.Status)

	// A provider comes online later; the next sweep picks the order up
	store.PutFreelancer(approvedFreelancer("fa", 4.9, []string{"10001"}, []string{"cleaning"}))

	w := NewRedispatchWorker(eng, store, store, nil)
	require.NoError(t, w.Sweep(context.Background()))

	o, _ := store.GetOrder(context.Background(), "o1")
	assert.Equal(t, AssignAssigned, o.AssignmentStatus)

	rows, _ := store.ListByOrder(context.Background(), "o1")
	assert.Len(t, rows, 1)
}

func TestSweepNotifiesUnmatchedOrderOnce(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(pendingOrder("o1", "10001", "cleaning"))

	var delivered []Event
	eng := NewEngine(store, store, store)
	w := NewRedispatchWorker(eng, store, store, func(events []Event) {
		delivered = append(delivered, events...)
	})

	// No provider ever covers the area; every sweep re-runs the policy
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Sweep(context.Background()))
	}

	unmatched := 0
	for _, ev := range delivered {
		if ev.Type == EventOrderUnmatched {
			unmatched++
		}
	}
	assert.Equal(t, 1, unmatched, "customer is told once, not on every sweep")

	o, _ := store.GetOrder(context.Background(), "o1")
	assert.Equal(t, AssignNoMatch, o.AssignmentStatus)
}
