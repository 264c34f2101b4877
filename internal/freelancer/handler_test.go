package freelancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleMayApply(t *testing.T) {
	assert.True(t, roleMayApply("customer"))
	// An existing freelancer reaches the conflict check, not a silent insert
	assert.True(t, roleMayApply("freelancer"))

	assert.False(t, roleMayApply("admin"))
	assert.False(t, roleMayApply("suspended"))
	assert.False(t, roleMayApply(""))
}
