package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchClaimer coordinates pipeline stage runs across worker instances.
// A stage acquires a short-lived claim before processing a batch so that two
// workers never process the same tenant's backlog concurrently. Claims are
// advisory: stage handlers stay idempotent even if a claim expires mid-run.
type BatchClaimer interface {
	// Acquire attempts to take the claim for the given key with a TTL.
	// Returns true if the claim was newly acquired, false if another worker
	// already holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a held claim so the next run does not wait for expiry.
	Release(ctx context.Context, key string) error

	// Close closes the claimer and releases resources
	Close() error
}

// ClaimConfig holds configuration for batch claims
type ClaimConfig struct {
	// TTL is how long a claim is held before it expires on its own.
	// It bounds the damage of a worker dying mid-batch. Default: 5 minutes.
	TTL time.Duration

	// Enabled determines whether claiming is enforced
	// Default: true
	Enabled bool
}

// DefaultClaimConfig returns the default claim configuration
func DefaultClaimConfig() ClaimConfig {
	return ClaimConfig{
		TTL:     5 * time.Minute,
		Enabled: true,
	}
}

// StageClaimKey builds the claim key for a tenant-wide stage run
func StageClaimKey(stage string, tenantID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", stage, tenantID)
}

// ClientClaimKey builds the claim key for a per-client stage run
func ClientClaimKey(stage string, tenantID, clientID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", stage, tenantID, clientID)
}
