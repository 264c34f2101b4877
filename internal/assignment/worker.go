package assignment

import (
	"context"
	"log"
	"time"
)

// Notifier receives the events a transition produced. The worker uses it so
// redispatch runs deliver the same notifications the HTTP paths do.
type Notifier func(events []Event)

// RedispatchWorker periodically retries orders that have no accepted
// freelancer: ones marked no_freelancers_available or freelancers_overbooked,
// and ones whose offers were all rejected or went stale. Offers older than
// the TTL are expired first so nobody acts on a dead offer.
type RedispatchWorker struct {
	engine *Engine
	orders OrderStore
	offers AssignmentStore
	notify Notifier

	interval  time.Duration
	offerTTL  time.Duration
	batchSize int
}

func NewRedispatchWorker(engine *Engine, orders OrderStore, offers AssignmentStore, notify Notifier) *RedispatchWorker {
	return &RedispatchWorker{
		engine:    engine,
		orders:    orders,
		offers:    offers,
		notify:    notify,
		interval:  time.Minute,
		offerTTL:  30 * time.Minute,
		batchSize: 50,
	}
}

// WithInterval overrides the scan interval
func (w *RedispatchWorker) WithInterval(d time.Duration) *RedispatchWorker {
	w.interval = d
	return w
}

// WithOfferTTL overrides how long an offer may sit unanswered
func (w *RedispatchWorker) WithOfferTTL(d time.Duration) *RedispatchWorker {
	w.offerTTL = d
	return w
}

// Run blocks until the context is cancelled
func (w *RedispatchWorker) Run(ctx context.Context) {
	log.Println("redispatch worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("redispatch worker stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				log.Printf("redispatch sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one pass: expire stale offers, then re-run the policy for every
// pending order with nothing outstanding.
func (w *RedispatchWorker) Sweep(ctx context.Context) error {
	expired, err := w.offers.ExpireStale(ctx, time.Now().Add(-w.offerTTL))
	if err != nil {
		return err
	}
	if expired > 0 {
		log.Printf("expired %d stale offers", expired)
	}

	orders, err := w.orders.ListUnassigned(ctx, w.batchSize)
	if err != nil {
		return err
	}

	for _, o := range orders {
		outstanding, err := w.offers.CountOffered(ctx, o.ID)
		if err != nil {
			log.Printf("redispatch: count offers for order %s: %v", o.ID, err)
			continue
		}
		if outstanding > 0 {
			// Offers are still live, give freelancers time to respond
			continue
		}

		outcome, events, err := w.engine.AutoAssign(ctx, o.ID)
		if err != nil {
			log.Printf("redispatch: auto-assign order %s: %v", o.ID, err)
			continue
		}
		if w.notify != nil && len(events) > 0 {
			w.notify(events)
		}
		if !outcome.NoOp && outcome.Status == AssignAssigned {
			log.Printf("redispatched order %s: %d new offers", o.ID, len(outcome.OfferIDs))
		}
	}
	return nil
}
