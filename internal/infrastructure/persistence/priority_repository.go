package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clientpulse/backend/internal/domain/priority"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/models"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPriorityRepository implements priority.PriorityRepository using GORM
type GormPriorityRepository struct {
	db *gorm.DB
}

// NewGormPriorityRepository creates a new GormPriorityRepository
func NewGormPriorityRepository(db *gorm.DB) *GormPriorityRepository {
	return &GormPriorityRepository{db: db}
}

// Create persists a new priority. The unique index on insight_id keeps
// scoring one-to-one with insights: a second scorer racing on the same
// insight affects zero rows and gets PRIORITY_EXISTS.
func (r *GormPriorityRepository) Create(ctx context.Context, p *priority.Priority) error {
	model := models.PriorityModelFromDomain(p)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "insight_id"}},
			DoNothing: true,
		}).
		Create(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("PRIORITY_EXISTS", "Insight already has a priority")
	}
	return nil
}

// Update persists state transitions with optimistic locking. Transitions
// bump the aggregate version in the domain, so the guard admits only rows
// still carrying an older version.
func (r *GormPriorityRepository) Update(ctx context.Context, p *priority.Priority) error {
	model := models.PriorityModelFromDomain(p)

	result := r.db.WithContext(ctx).
		Model(&models.PriorityModel{}).
		Scopes(tenant.Scope(p.TenantID)).
		Where("id = ? AND version < ?", p.ID, model.Version).
		Updates(map[string]any{
			"status":     model.Status,
			"acted_at":   model.ActedAt,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Check if priority exists
		var count int64
		r.db.WithContext(ctx).Model(&models.PriorityModel{}).
			Scopes(tenant.Scope(p.TenantID)).
			Where("id = ?", p.ID).
			Count(&count)
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Priority was modified by another transaction")
	}
	return nil
}

// FindByID returns one priority scoped to the tenant
func (r *GormPriorityRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*priority.Priority, error) {
	var model models.PriorityModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInsightID returns the priority scored for an insight, if any
func (r *GormPriorityRepository) FindByInsightID(ctx context.Context, tenantID, insightID uuid.UUID) (*priority.Priority, error) {
	var model models.PriorityModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("insight_id = ?", insightID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Queue returns up to limit pending priorities ordered by composite score,
// highest first. Ties break toward the earlier due date.
func (r *GormPriorityRepository) Queue(ctx context.Context, tenantID uuid.UUID, limit int) ([]*priority.Priority, error) {
	var priorityModels []models.PriorityModel

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("status = ?", priority.StatusPending).
		Order("composite_score DESC, recommended_due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&priorityModels).Error; err != nil {
		return nil, err
	}

	priorities := make([]*priority.Priority, len(priorityModels))
	for i, model := range priorityModels {
		priorities[i] = model.ToDomain()
	}
	return priorities, nil
}

// FindOverdue returns pending priorities whose recommended due date has
// passed, longest overdue first
func (r *GormPriorityRepository) FindOverdue(ctx context.Context, tenantID uuid.UUID, limit int) ([]*priority.Priority, error) {
	var priorityModels []models.PriorityModel

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("status = ? AND recommended_due_at < ?", priority.StatusPending, time.Now()).
		Order("recommended_due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&priorityModels).Error; err != nil {
		return nil, err
	}

	priorities := make([]*priority.Priority, len(priorityModels))
	for i, model := range priorityModels {
		priorities[i] = model.ToDomain()
	}
	return priorities, nil
}

// FindAllForTenant lists priorities with paging and filtering
func (r *GormPriorityRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[priority.Priority], error) {
	var total int64
	countQuery := r.db.WithContext(ctx).
		Model(&models.PriorityModel{}).
		Scopes(tenant.Scope(tenantID))
	countQuery = r.applyFilterWithoutPagination(countQuery, filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	var priorityModels []models.PriorityModel
	query := r.db.WithContext(ctx).
		Model(&models.PriorityModel{}).
		Scopes(tenant.Scope(tenantID))
	query = r.applyFilter(query, filter)
	if err := query.Find(&priorityModels).Error; err != nil {
		return nil, err
	}

	priorities := make([]priority.Priority, len(priorityModels))
	for i, model := range priorityModels {
		priorities[i] = *model.ToDomain()
	}

	page, pageSize := normalizePagination(filter)
	result := shared.NewPaginated(priorities, total, page, pageSize)
	return &result, nil
}

// CountPendingByBucket returns pending counts per tier for the tenant
func (r *GormPriorityRepository) CountPendingByBucket(ctx context.Context, tenantID uuid.UUID) (map[priority.Bucket]int64, error) {
	var rows []struct {
		Bucket string
		Count  int64
	}

	if err := r.db.WithContext(ctx).
		Model(&models.PriorityModel{}).
		Scopes(tenant.Scope(tenantID)).
		Where("status = ?", priority.StatusPending).
		Select("bucket, COUNT(*) as count").
		Group("bucket").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[priority.Bucket]int64, len(rows))
	for _, row := range rows {
		counts[priority.Bucket(row.Bucket)] = row.Count
	}
	return counts, nil
}

// applyFilter applies filter options to the query
func (r *GormPriorityRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering with validated sort field and direction
	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, PrioritySortFields, "composite_score")
		sortOrder := ValidateSortOrder(filter.OrderDir)
		query = query.Order(sortField + " " + sortOrder)
	} else {
		query = query.Order("composite_score DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormPriorityRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "bucket":
			query = query.Where("bucket = ?", value)
		case "insight_id":
			query = query.Where("insight_id = ?", value)
		case "min_score":
			query = query.Where("composite_score >= ?", value)
		}
	}

	return query
}

// Ensure GormPriorityRepository implements PriorityRepository
var _ priority.PriorityRepository = (*GormPriorityRepository)(nil)

// GormWeightConfigRepository implements priority.WeightConfigRepository using GORM
type GormWeightConfigRepository struct {
	db *gorm.DB
}

// NewGormWeightConfigRepository creates a new GormWeightConfigRepository
func NewGormWeightConfigRepository(db *gorm.DB) *GormWeightConfigRepository {
	return &GormWeightConfigRepository{db: db}
}

// Get returns the tenant's scoring weights, falling back to the defaults
// when no record is stored
func (r *GormWeightConfigRepository) Get(ctx context.Context, tenantID uuid.UUID) (priority.WeightConfig, error) {
	var model models.WeightConfigModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return priority.DefaultWeights(), nil
		}
		return priority.WeightConfig{}, err
	}
	return model.ToDomain(), nil
}

// Save upserts the tenant's scoring weight record
func (r *GormWeightConfigRepository) Save(ctx context.Context, tenantID uuid.UUID, weights priority.WeightConfig) error {
	if tenantID == uuid.Nil {
		return tenant.ErrTenantRequired
	}

	model := &models.WeightConfigModel{
		BaseModel: models.BaseModel{
			ID:        uuid.New(),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		TenantID:   tenantID,
		Impact:     weights.Impact,
		Urgency:    weights.Urgency,
		Confidence: weights.Confidence,
		Resource:   weights.Resource,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"impact", "urgency", "confidence", "resource", "updated_at"}),
		}).
		Create(model).Error
}

// Ensure GormWeightConfigRepository implements WeightConfigRepository
var _ priority.WeightConfigRepository = (*GormWeightConfigRepository)(nil)
