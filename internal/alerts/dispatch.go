package alerts

import (
	"context"
	"log"

	"github.com/homeservehq/homeserve/internal/assignment"
	"github.com/homeservehq/homeserve/internal/db"
)

// PublishFeed forwards events to the realtime feed. Wired at startup;
// left nil in tests and tools that have no websocket layer.
var PublishFeed func(eventType, orderID, assignmentID, title string)

// taskFor maps a lifecycle event to its email task type.
func taskFor(eventType string) string {
	switch eventType {
	case assignment.EventOfferCreated:
		return TaskOfferCreated
	case assignment.EventOfferAccepted:
		return TaskOfferAccepted
	case assignment.EventJobStarted:
		return TaskJobStarted
	case assignment.EventJobCompleted:
		return TaskJobCompleted
	case assignment.EventOrderCancelled:
		return TaskOrderCancelled
	case assignment.EventOrderUnmatched:
		return TaskOrderUnmatched
	}
	return ""
}

// Dispatch fans lifecycle events out to the in-app notification table,
// the email queue and the admin live feed. Failures are logged and
// swallowed; a dropped notification must never fail the transition that
// produced it.
func Dispatch(events []assignment.Event) {
	for _, ev := range events {
		ref := ev.OrderID
		if err := CreateNotification(ev.UserID, ev.Type, ev.Title, ev.Body, &ref); err != nil {
			log.Printf("[notify][ERROR] notification insert failed user=%s type=%s: %v", ev.UserID, ev.Type, err)
		}

		if task := taskFor(ev.Type); task != "" {
			var email string
			err := db.Conn.QueryRow(context.Background(),
				`SELECT email FROM users WHERE id = $1`, ev.UserID,
			).Scan(&email)
			if err != nil {
				log.Printf("[notify][ERROR] recipient lookup failed user=%s: %v", ev.UserID, err)
			} else if err := EnqueueOrderEvent(task, ev.OrderID, ev.AssignmentID, ev.UserID, email, ev.Title, ev.Body); err != nil {
				log.Printf("[notify][ERROR] enqueue %s failed order=%s: %v", task, ev.OrderID, err)
			}
		}

		if PublishFeed != nil {
			PublishFeed(ev.Type, ev.OrderID, ev.AssignmentID, ev.Title)
		}
	}
}
