package insight

import (
	"context"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InsightRepository stores aggregated insights.
type InsightRepository interface {
	// Create persists a new insight.
	Create(ctx context.Context, insight *Insight) error

	// Update persists state transitions.
	Update(ctx context.Context, insight *Insight) error

	// FindByID returns one insight scoped to the tenant.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Insight, error)

	// FindOpen returns up to limit open insights, oldest first, for the
	// priority engine to score.
	FindOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Insight, error)

	// FindAllForTenant lists insights with paging and filtering.
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[Insight], error)

	// CountByStatus returns insight counts per status for the tenant.
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int64, error)
}

// SettingsRepository stores per-tenant aggregator tuning. Get returns the
// defaults when the tenant has no stored record.
type SettingsRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (AggregationSettings, error)
	Save(ctx context.Context, tenantID uuid.UUID, settings AggregationSettings) error
}
