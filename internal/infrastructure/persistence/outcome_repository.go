package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/models"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// periodBounds resolves a "2006-01" period key into its half-open UTC time
// range. Period filters compare timestamps against these bounds instead of
// formatting dates in SQL, which keeps the queries dialect free.
func periodBounds(period string) (start, end time.Time, err error) {
	start, err = time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, time.Time{}, shared.NewDomainError("INVALID_PERIOD", "Period must use the YYYY-MM format")
	}
	return start, start.AddDate(0, 1, 0), nil
}

// GormOutcomeRepository implements outcome.OutcomeRepository using GORM
type GormOutcomeRepository struct {
	db *gorm.DB
}

// NewGormOutcomeRepository creates a new GormOutcomeRepository
func NewGormOutcomeRepository(db *gorm.DB) *GormOutcomeRepository {
	return &GormOutcomeRepository{db: db}
}

// Create persists a captured outcome
func (r *GormOutcomeRepository) Create(ctx context.Context, o *outcome.Outcome) error {
	model := models.OutcomeModelFromDomain(o)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists lifecycle changes with optimistic locking. Transitions
// bump the aggregate version in the domain, so the guard admits only rows
// still carrying an older version.
func (r *GormOutcomeRepository) Update(ctx context.Context, o *outcome.Outcome) error {
	model := models.OutcomeModelFromDomain(o)

	result := r.db.WithContext(ctx).
		Model(&models.OutcomeModel{}).
		Scopes(tenant.Scope(o.TenantID)).
		Where("id = ? AND version < ?", o.ID, model.Version).
		Updates(map[string]any{
			"actual_impact":      model.ActualImpactJSON,
			"variance_score":     model.VarianceScore,
			"variance_direction": model.VarianceDirection,
			"status":             model.Status,
			"accepted_at":        model.AcceptedAt,
			"rejected_at":        model.RejectedAt,
			"completed_at":       model.CompletedAt,
			"measured_at":        model.MeasuredAt,
			"version":            model.Version,
			"updated_at":         model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Check if outcome exists
		var count int64
		r.db.WithContext(ctx).Model(&models.OutcomeModel{}).
			Scopes(tenant.Scope(o.TenantID)).
			Where("id = ?", o.ID).
			Count(&count)
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Outcome was modified by another transaction")
	}
	return nil
}

// FindByID returns one outcome scoped to the tenant
func (r *GormOutcomeRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*outcome.Outcome, error) {
	var model models.OutcomeModel
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

// ListForPeriod returns the outcomes feeding one quality metric row: the
// tenant's outcomes of the recommendation type captured in the period,
// scoped to the client. A nil client selects the client-less, tenant-wide
// rows, not every row.
func (r *GormOutcomeRepository) ListForPeriod(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) ([]*outcome.Outcome, error) {
	start, end, err := periodBounds(period)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("recommendation_type = ?", recommendationType).
		Where("created_at >= ? AND created_at < ?", start, end)
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	} else {
		query = query.Where("client_id IS NULL")
	}

	var outcomeModels []models.OutcomeModel
	if err := query.Order("created_at ASC").Find(&outcomeModels).Error; err != nil {
		return nil, err
	}

	outcomes := make([]*outcome.Outcome, len(outcomeModels))
	for i, model := range outcomeModels {
		outcomes[i] = model.ToDomain()
	}
	return outcomes, nil
}

// DistinctGroups returns every (recommendation type, client) pair with
// outcomes captured in the period. Scheduled quality recomputation iterates
// this set.
func (r *GormOutcomeRepository) DistinctGroups(ctx context.Context, tenantID uuid.UUID, period string) ([]outcome.OutcomeGroup, error) {
	start, end, err := periodBounds(period)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		RecommendationType string
		ClientID           *uuid.UUID
	}

	if err := r.db.WithContext(ctx).
		Model(&models.OutcomeModel{}).
		Scopes(tenant.Scope(tenantID)).
		Where("created_at >= ? AND created_at < ?", start, end).
		Distinct("recommendation_type", "client_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	groups := make([]outcome.OutcomeGroup, len(rows))
	for i, row := range rows {
		groups[i] = outcome.OutcomeGroup{
			RecommendationType: row.RecommendationType,
			ClientID:           row.ClientID,
		}
	}
	return groups, nil
}

// FindAllForTenant lists outcomes with paging and filtering
func (r *GormOutcomeRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[outcome.Outcome], error) {
	var total int64
	countQuery := r.db.WithContext(ctx).
		Model(&models.OutcomeModel{}).
		Scopes(tenant.Scope(tenantID))
	countQuery = r.applyFilterWithoutPagination(countQuery, filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	var outcomeModels []models.OutcomeModel
	query := r.db.WithContext(ctx).
		Model(&models.OutcomeModel{}).
		Scopes(tenant.Scope(tenantID))
	query = r.applyFilter(query, filter)
	if err := query.Find(&outcomeModels).Error; err != nil {
		return nil, err
	}

	outcomes := make([]outcome.Outcome, len(outcomeModels))
	for i, model := range outcomeModels {
		outcomes[i] = *model.ToDomain()
	}

	page, pageSize := normalizePagination(filter)
	result := shared.NewPaginated(outcomes, total, page, pageSize)
	return &result, nil
}

// applyFilter applies filter options to the query
func (r *GormOutcomeRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering with validated sort field and direction
	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, OutcomeSortFields, "created_at")
		sortOrder := ValidateSortOrder(filter.OrderDir)
		query = query.Order(sortField + " " + sortOrder)
	} else {
		query = query.Order("created_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormOutcomeRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "recommendation_type":
			query = query.Where("recommendation_type = ?", value)
		case "client_id":
			query = query.Where("client_id = ?", value)
		case "insight_id":
			query = query.Where("insight_id = ?", value)
		}
	}

	return query
}

// Ensure GormOutcomeRepository implements OutcomeRepository
var _ outcome.OutcomeRepository = (*GormOutcomeRepository)(nil)

// GormQualityMetricRepository implements outcome.QualityMetricRepository using GORM
type GormQualityMetricRepository struct {
	db *gorm.DB
}

// NewGormQualityMetricRepository creates a new GormQualityMetricRepository
func NewGormQualityMetricRepository(db *gorm.DB) *GormQualityMetricRepository {
	return &GormQualityMetricRepository{db: db}
}

// Upsert writes the recomputed row, replacing any previous version of the
// same (tenant, type, client, period) key. The key's client column is
// nullable, which rules out ON CONFLICT inference, so the write resolves
// the existing row first. Recomputation runs hold the per-tenant claim, so
// the lookup and write do not race.
func (r *GormQualityMetricRepository) Upsert(ctx context.Context, metric *outcome.QualityMetric) error {
	query := r.db.WithContext(ctx).
		Model(&models.QualityMetricModel{}).
		Scopes(tenant.Scope(metric.TenantID)).
		Where("recommendation_type = ? AND period = ?", metric.RecommendationType, metric.Period)
	if metric.ClientID != nil {
		query = query.Where("client_id = ?", *metric.ClientID)
	} else {
		query = query.Where("client_id IS NULL")
	}

	var existing models.QualityMetricModel
	err := query.First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model := models.QualityMetricModelFromDomain(metric)
			return r.db.WithContext(ctx).Create(model).Error
		}
		return err
	}

	model := models.QualityMetricModelFromDomain(metric)
	return r.db.WithContext(ctx).
		Model(&models.QualityMetricModel{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"sample_size":           model.SampleSize,
			"accepted_count":        model.AcceptedCount,
			"rejected_count":        model.RejectedCount,
			"measured_count":        model.MeasuredCount,
			"acceptance_rate":       model.AcceptanceRate,
			"success_rate":          model.SuccessRate,
			"completion_rate":       model.CompletionRate,
			"measured_success_rate": model.MeasuredSuccessRate,
			"avg_variance":          model.AvgVariance,
			"quality_score":         model.QualityScore,
			"confidence_level":      model.ConfidenceLevel,
			"updated_at":            time.Now(),
		}).Error
}

// Find returns the row for the (tenant, type, client, period) key
func (r *GormQualityMetricRepository) Find(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) (*outcome.QualityMetric, error) {
	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("recommendation_type = ? AND period = ?", recommendationType, period)
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	} else {
		query = query.Where("client_id IS NULL")
	}

	var model models.QualityMetricModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant lists metric rows with paging and filtering
func (r *GormQualityMetricRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[outcome.QualityMetric], error) {
	var total int64
	countQuery := r.db.WithContext(ctx).
		Model(&models.QualityMetricModel{}).
		Scopes(tenant.Scope(tenantID))
	countQuery = r.applyFilterWithoutPagination(countQuery, filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	var metricModels []models.QualityMetricModel
	query := r.db.WithContext(ctx).
		Model(&models.QualityMetricModel{}).
		Scopes(tenant.Scope(tenantID))
	query = r.applyFilter(query, filter)
	if err := query.Find(&metricModels).Error; err != nil {
		return nil, err
	}

	metrics := make([]outcome.QualityMetric, len(metricModels))
	for i, model := range metricModels {
		metrics[i] = *model.ToDomain()
	}

	page, pageSize := normalizePagination(filter)
	result := shared.NewPaginated(metrics, total, page, pageSize)
	return &result, nil
}

// applyFilter applies filter options to the query
func (r *GormQualityMetricRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering with validated sort field and direction
	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, QualityMetricSortFields, "period")
		sortOrder := ValidateSortOrder(filter.OrderDir)
		query = query.Order(sortField + " " + sortOrder)
	} else {
		query = query.Order("period DESC, recommendation_type ASC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormQualityMetricRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "period":
			query = query.Where("period = ?", value)
		case "recommendation_type":
			query = query.Where("recommendation_type = ?", value)
		case "client_id":
			query = query.Where("client_id = ?", value)
		case "confidence_level":
			query = query.Where("confidence_level = ?", value)
		}
	}

	return query
}

// Ensure GormQualityMetricRepository implements QualityMetricRepository
var _ outcome.QualityMetricRepository = (*GormQualityMetricRepository)(nil)
