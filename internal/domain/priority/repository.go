package priority

import (
	"context"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// PriorityRepository stores scored priorities.
type PriorityRepository interface {
	// Create persists a new priority. Each insight holds at most one.
	Create(ctx context.Context, priority *Priority) error

	// Update persists state transitions.
	Update(ctx context.Context, priority *Priority) error

	// FindByID returns one priority scoped to the tenant.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Priority, error)

	// FindByInsightID returns the priority scored for an insight, if any.
	FindByInsightID(ctx context.Context, tenantID, insightID uuid.UUID) (*Priority, error)

	// Queue returns up to limit pending priorities ordered by composite
	// score, highest first.
	Queue(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Priority, error)

	// FindOverdue returns pending priorities whose recommended due date has
	// passed.
	FindOverdue(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Priority, error)

	// FindAllForTenant lists priorities with paging and filtering.
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[Priority], error)

	// CountPendingByBucket returns pending counts per tier for the tenant.
	CountPendingByBucket(ctx context.Context, tenantID uuid.UUID) (map[Bucket]int64, error)
}
