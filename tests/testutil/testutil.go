// Package testutil provides the fixtures pipeline tests share: stable UUIDs
// for tenants and clients, and a recording event handler for bus wiring.
package testutil

import "github.com/google/uuid"

// fixtureNamespace seeds the deterministic UUIDs below. The value is the
// RFC 4122 DNS namespace; any fixed UUID would do.
var fixtureNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewTestUUID derives a UUID from seed. The same seed always yields the
// same UUID, so fixtures survive reruns and read well in failure output.
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(seed))
}

// TestTenantID returns the tenant most tests run under.
func TestTenantID() uuid.UUID {
	return NewTestUUID("test-tenant")
}

// TestClientID returns the client most tests attach rows to.
func TestClientID() uuid.UUID {
	return NewTestUUID("test-client")
}
