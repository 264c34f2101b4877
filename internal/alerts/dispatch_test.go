package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homeservehq/homeserve/internal/assignment"
)

func TestTaskForLifecycleEvents(t *testing.T) {
	assert.Equal(t, TaskOfferCreated, taskFor(assignment.EventOfferCreated))
	assert.Equal(t, TaskOfferAccepted, taskFor(assignment.EventOfferAccepted))
	assert.Equal(t, TaskJobStarted, taskFor(assignment.EventJobStarted))
	assert.Equal(t, TaskJobCompleted, taskFor(assignment.EventJobCompleted))
	assert.Equal(t, TaskOrderCancelled, taskFor(assignment.EventOrderCancelled))

	// Unmatched is not a cancellation; the email must say we're still looking
	assert.Equal(t, TaskOrderUnmatched, taskFor(assignment.EventOrderUnmatched))

	// Rejections stay in-app only; the freelancer just declined, no email
	assert.Equal(t, "", taskFor(assignment.EventOfferRejected))
	assert.Equal(t, "", taskFor("something:else"))
}
