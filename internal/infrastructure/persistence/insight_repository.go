package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/models"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInsightRepository implements insight.InsightRepository using GORM
type GormInsightRepository struct {
	db *gorm.DB
}

// NewGormInsightRepository creates a new GormInsightRepository
func NewGormInsightRepository(db *gorm.DB) *GormInsightRepository {
	return &GormInsightRepository{db: db}
}

// Create persists a new insight
func (r *GormInsightRepository) Create(ctx context.Context, ins *insight.Insight) error {
	model := models.InsightModelFromDomain(ins)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists state transitions with optimistic locking. Transitions
// bump the aggregate version in the domain, so the guard admits only rows
// still carrying an older version.
func (r *GormInsightRepository) Update(ctx context.Context, ins *insight.Insight) error {
	model := models.InsightModelFromDomain(ins)

	result := r.db.WithContext(ctx).
		Model(&models.InsightModel{}).
		Scopes(tenant.Scope(ins.TenantID)).
		Where("id = ? AND version < ?", ins.ID, model.Version).
		Updates(map[string]any{
			"status":         model.Status,
			"dismiss_reason": model.DismissReason,
			"prioritized_at": model.PrioritizedAt,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Check if insight exists
		var count int64
		r.db.WithContext(ctx).Model(&models.InsightModel{}).
			Scopes(tenant.Scope(ins.TenantID)).
			Where("id = ?", ins.ID).
			Count(&count)
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Insight was modified by another transaction")
	}
	return nil
}

// FindByID returns one insight scoped to the tenant
func (r *GormInsightRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*insight.Insight, error) {
	var model models.InsightModel
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

// FindOpen returns up to limit open insights, oldest first, so the priority
// engine scores the longest-waiting work first
func (r *GormInsightRepository) FindOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]*insight.Insight, error) {
	var insightModels []models.InsightModel

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("status = ?", insight.StatusOpen).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&insightModels).Error; err != nil {
		return nil, err
	}

	insights := make([]*insight.Insight, len(insightModels))
	for i, model := range insightModels {
		insights[i] = model.ToDomain()
	}
	return insights, nil
}

// FindAllForTenant lists insights with paging and filtering
func (r *GormInsightRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[insight.Insight], error) {
	var total int64
	countQuery := r.db.WithContext(ctx).
		Model(&models.InsightModel{}).
		Scopes(tenant.Scope(tenantID))
	countQuery = r.applyFilterWithoutPagination(countQuery, filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	var insightModels []models.InsightModel
	query := r.db.WithContext(ctx).
		Model(&models.InsightModel{}).
		Scopes(tenant.Scope(tenantID))
	query = r.applyFilter(query, filter)
	if err := query.Find(&insightModels).Error; err != nil {
		return nil, err
	}

	insights := make([]insight.Insight, len(insightModels))
	for i, model := range insightModels {
		insights[i] = *model.ToDomain()
	}

	page, pageSize := normalizePagination(filter)
	result := shared.NewPaginated(insights, total, page, pageSize)
	return &result, nil
}

// CountByStatus returns insight counts per status for the tenant
func (r *GormInsightRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[insight.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}

	if err := r.db.WithContext(ctx).
		Model(&models.InsightModel{}).
		Scopes(tenant.Scope(tenantID)).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[insight.Status]int64, len(rows))
	for _, row := range rows {
		counts[insight.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// applyFilter applies filter options to the query
func (r *GormInsightRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering with validated sort field and direction
	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, InsightSortFields, "created_at")
		sortOrder := ValidateSortOrder(filter.OrderDir)
		query = query.Order(sortField + " " + sortOrder)
	} else {
		query = query.Order("created_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormInsightRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("title ILIKE ? OR summary ILIKE ?",
			searchPattern, searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "category":
			query = query.Where("category = ?", value)
		case "type":
			query = query.Where("type = ?", value)
		case "severity":
			query = query.Where("severity = ?", value)
		case "client_id":
			query = query.Where("client_id = ?", value)
		case "min_confidence":
			query = query.Where("confidence >= ?", value)
		}
	}

	return query
}

// Ensure GormInsightRepository implements InsightRepository
var _ insight.InsightRepository = (*GormInsightRepository)(nil)

// GormAggregationSettingsRepository implements insight.SettingsRepository using GORM
type GormAggregationSettingsRepository struct {
	db *gorm.DB
}

// NewGormAggregationSettingsRepository creates a new GormAggregationSettingsRepository
func NewGormAggregationSettingsRepository(db *gorm.DB) *GormAggregationSettingsRepository {
	return &GormAggregationSettingsRepository{db: db}
}

// Get returns the tenant's aggregator tuning, falling back to the defaults
// when no record is stored
func (r *GormAggregationSettingsRepository) Get(ctx context.Context, tenantID uuid.UUID) (insight.AggregationSettings, error) {
	var model models.AggregationSettingsModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return insight.DefaultAggregationSettings(), nil
		}
		return insight.AggregationSettings{}, err
	}
	return model.ToDomain(), nil
}

// Save upserts the tenant's aggregator tuning record
func (r *GormAggregationSettingsRepository) Save(ctx context.Context, tenantID uuid.UUID, settings insight.AggregationSettings) error {
	if tenantID == uuid.Nil {
		return tenant.ErrTenantRequired
	}

	model := &models.AggregationSettingsModel{
		BaseModel: models.BaseModel{
			ID:        uuid.New(),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		TenantID:      tenantID,
		MinConfidence: settings.MinConfidence,
		BatchSize:     settings.BatchSize,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"min_confidence", "batch_size", "updated_at"}),
		}).
		Create(model).Error
}

// Ensure GormAggregationSettingsRepository implements SettingsRepository
var _ insight.SettingsRepository = (*GormAggregationSettingsRepository)(nil)
