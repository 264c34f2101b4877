package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanSubscribe(t *testing.T) {
	const (
		customer       = "user-customer"
		freelancerUser = "user-freelancer"
		profileID      = "freelancer-profile"
	)

	// The assigned freelancer joins with their user id; orders store the
	// profile id, which must never be what we compare against.
	assert.True(t, canSubscribe(freelancerUser, "freelancer", customer, freelancerUser))
	assert.False(t, canSubscribe(profileID, "freelancer", customer, freelancerUser))

	assert.True(t, canSubscribe(customer, "customer", customer, freelancerUser))
	assert.True(t, canSubscribe("someone-else", "admin", customer, freelancerUser))
	assert.False(t, canSubscribe("someone-else", "customer", customer, freelancerUser))

	// Unassigned order: only the customer and admins
	assert.True(t, canSubscribe(customer, "customer", customer, ""))
	assert.False(t, canSubscribe(freelancerUser, "freelancer", customer, ""))
	assert.False(t, canSubscribe("", "customer", customer, ""))
}
