package outcome

import (
	"context"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OutcomeGroup identifies one quality metric scope: a recommendation type
// and an optional client.
type OutcomeGroup struct {
	RecommendationType string
	ClientID           *uuid.UUID
}

// OutcomeRepository stores tracked recommendation outcomes.
type OutcomeRepository interface {
	// Create persists a captured outcome.
	Create(ctx context.Context, outcome *Outcome) error

	// Update persists lifecycle changes.
	Update(ctx context.Context, outcome *Outcome) error

	// FindByID returns one outcome scoped to the tenant.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Outcome, error)

	// ListForPeriod returns the outcomes feeding one quality metric row:
	// the tenant's outcomes of the recommendation type captured in the
	// period, scoped to the client (nil means the client-less, tenant-wide
	// scope).
	ListForPeriod(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) ([]*Outcome, error)

	// DistinctGroups returns every (recommendation type, client) pair with
	// outcomes captured in the period. Scheduled quality recomputation
	// iterates this set.
	DistinctGroups(ctx context.Context, tenantID uuid.UUID, period string) ([]OutcomeGroup, error)

	// FindAllForTenant lists outcomes with paging and filtering.
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[Outcome], error)
}

// QualityMetricRepository stores the rolling period aggregates. One row
// exists per (tenant, recommendation type, client, period).
type QualityMetricRepository interface {
	// Upsert writes the recomputed row, replacing any previous version of
	// the same key.
	Upsert(ctx context.Context, metric *QualityMetric) error

	// Find returns the row for the key, or shared.ErrNotFound.
	Find(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) (*QualityMetric, error)

	// FindAllForTenant lists metric rows with paging and filtering.
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[QualityMetric], error)
}
