package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTestUUID_Deterministic(t *testing.T) {
	a := NewTestUUID("acme-agency")
	b := NewTestUUID("acme-agency")
	c := NewTestUUID("other-agency")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, TestTenantID(), NewTestUUID("test-tenant"))
	assert.NotEqual(t, TestTenantID(), TestClientID())
}
