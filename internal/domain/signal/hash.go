package signal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// ComputeDedupHash derives the content hash that identifies a signal for
// deduplication. The hash covers tenant, source, type and the canonical form
// of the dedup basis, so the same event delivered twice (a webhook retry, a
// re-run of a detection job) always produces the same hash while distinct
// events collide only with SHA-256 probability.
//
// The basis is normally the full normalized payload. Adapters whose events
// have a narrower identity than their content (anomaly signals are keyed by
// client, metric and date, not by the measured values) pass the identity
// fields only.
func ComputeDedupHash(tenantID uuid.UUID, source Source, signalType string, basis Payload) string {
	input := tenantID.String() + "::" + string(source) + "::" + signalType + "::" + basis.Canonical()
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
