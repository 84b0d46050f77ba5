package signal

import (
	"context"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// SignalRepository defines the interface for signal persistence.
//
// Deduplication happens at this boundary: the store enforces a unique
// (tenant_id, dedup_hash) constraint and Create reports whether the insert
// won. There is no check-then-insert anywhere above this interface.
type SignalRepository interface {
	// Create inserts a new signal. Returns false when a signal with the
	// same (tenant, dedup hash) already exists; the insert is then a no-op
	// and the caller re-reads the winner via FindByDedupHash.
	Create(ctx context.Context, s *Signal) (bool, error)

	// Update persists state changes of an existing signal
	Update(ctx context.Context, s *Signal) error

	// FindByID finds a tenant's signal by ID
	// Returns shared.ErrNotFound if not found
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Signal, error)

	// FindByDedupHash finds a tenant's signal by its dedup hash
	// Returns shared.ErrNotFound if not found
	FindByDedupHash(ctx context.Context, tenantID uuid.UUID, hash string) (*Signal, error)

	// FindPending returns up to limit pending signals for a tenant,
	// oldest first
	FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]Signal, error)

	// FindAllForTenant lists a tenant's signals with optional status and
	// source filters
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Signal, error)

	// CountByStatus returns signal counts per status for a tenant
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int64, error)

	// DistinctTenants returns every tenant that has signals stored.
	// Scheduled stage runs iterate this set.
	DistinctTenants(ctx context.Context) ([]uuid.UUID, error)
}

// RoutingRuleRepository defines the interface for routing rule persistence.
type RoutingRuleRepository interface {
	// Create persists a new routing rule
	Create(ctx context.Context, rule *RoutingRule) error

	// Update persists changes to an existing routing rule
	Update(ctx context.Context, rule *RoutingRule) error

	// FindByID finds a tenant's routing rule by ID
	// Returns shared.ErrNotFound if not found
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*RoutingRule, error)

	// FindMatching returns the enabled rules whose source and type columns
	// admit the given signal shape, highest priority first. Urgency
	// allow-lists and payload filters are evaluated in the domain, not here.
	FindMatching(ctx context.Context, tenantID uuid.UUID, source Source, signalType string) ([]RoutingRule, error)

	// FindAllForTenant lists a tenant's routing rules
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]RoutingRule, error)

	// Delete removes a routing rule
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
