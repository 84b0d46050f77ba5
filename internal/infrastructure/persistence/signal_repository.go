package persistence

import (
	"context"
	"errors"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/models"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSignalRepository implements signal.SignalRepository using GORM
type GormSignalRepository struct {
	db *gorm.DB
}

// NewGormSignalRepository creates a new GormSignalRepository
func NewGormSignalRepository(db *gorm.DB) *GormSignalRepository {
	return &GormSignalRepository{db: db}
}

// Create inserts a new signal. The unique (tenant_id, dedup_hash) index
// resolves duplicate submissions: a losing insert affects zero rows and the
// method reports false without an error, so the caller can re-read the winner.
func (r *GormSignalRepository) Create(ctx context.Context, s *signal.Signal) (bool, error) {
	model := models.SignalModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "dedup_hash"}},
			DoNothing: true,
		}).
		Create(model)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update persists state changes of an existing signal with optimistic locking.
// Status transitions bump the aggregate version in the domain, so the guard
// admits only rows still carrying an older version.
func (r *GormSignalRepository) Update(ctx context.Context, s *signal.Signal) error {
	model := models.SignalModelFromDomain(s)

	result := r.db.WithContext(ctx).
		Model(&models.SignalModel{}).
		Scopes(tenant.Scope(s.TenantID)).
		Where("id = ? AND version < ?", s.ID, model.Version).
		Updates(map[string]any{
			"status":        model.Status,
			"status_reason": model.StatusReason,
			"insight_id":    model.InsightID,
			"retry_count":   model.RetryCount,
			"processed_at":  model.ProcessedAt,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Check if signal exists
		var count int64
		r.db.WithContext(ctx).Model(&models.SignalModel{}).
			Scopes(tenant.Scope(s.TenantID)).
			Where("id = ?", s.ID).
			Count(&count)
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Signal was modified by another transaction")
	}
	return nil
}

// FindByID finds a tenant's signal by its ID
func (r *GormSignalRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*signal.Signal, error) {
	var model models.SignalModel
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

// FindByDedupHash finds a tenant's signal by its dedup hash
func (r *GormSignalRepository) FindByDedupHash(ctx context.Context, tenantID uuid.UUID, hash string) (*signal.Signal, error) {
	var model models.SignalModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("dedup_hash = ?", hash).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPending returns up to limit pending signals for a tenant, oldest first
// so aggregation batches drain the backlog in arrival order
func (r *GormSignalRepository) FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]signal.Signal, error) {
	var signalModels []models.SignalModel

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("status = ?", signal.StatusPending).
		Order("received_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&signalModels).Error; err != nil {
		return nil, err
	}

	signals := make([]signal.Signal, len(signalModels))
	for i, model := range signalModels {
		signals[i] = *model.ToDomain()
	}
	return signals, nil
}

// FindAllForTenant lists a tenant's signals with optional filtering
func (r *GormSignalRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]signal.Signal, error) {
	var signalModels []models.SignalModel

	query := r.db.WithContext(ctx).
		Model(&models.SignalModel{}).
		Scopes(tenant.Scope(tenantID))
	query = r.applyFilter(query, filter)

	if err := query.Find(&signalModels).Error; err != nil {
		return nil, err
	}

	signals := make([]signal.Signal, len(signalModels))
	for i, model := range signalModels {
		signals[i] = *model.ToDomain()
	}
	return signals, nil
}

// CountByStatus returns signal counts per status for a tenant
func (r *GormSignalRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[signal.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}

	if err := r.db.WithContext(ctx).
		Model(&models.SignalModel{}).
		Scopes(tenant.Scope(tenantID)).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[signal.Status]int64, len(rows))
	for _, row := range rows {
		counts[signal.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// DistinctTenants returns every tenant with stored signals. Scheduled
// pipeline runs fan out over this set.
func (r *GormSignalRepository) DistinctTenants(ctx context.Context) ([]uuid.UUID, error) {
	var tenantIDs []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.SignalModel{}).
		Distinct("tenant_id").
		Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return nil, err
	}
	return tenantIDs, nil
}

// applyFilter applies filter options to the query
func (r *GormSignalRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering with validated sort field and direction
	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, SignalSortFields, "received_at")
		sortOrder := ValidateSortOrder(filter.OrderDir)
		query = query.Order(sortField + " " + sortOrder)
	} else {
		query = query.Order("received_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormSignalRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("type ILIKE ? OR correlation_key ILIKE ?",
			searchPattern, searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "source":
			query = query.Where("source = ?", value)
		case "type":
			query = query.Where("type = ?", value)
		case "urgency":
			query = query.Where("urgency = ?", value)
		case "client_id":
			query = query.Where("client_id = ?", value)
		case "insight_id":
			query = query.Where("insight_id = ?", value)
		}
	}

	return query
}

// Ensure GormSignalRepository implements SignalRepository
var _ signal.SignalRepository = (*GormSignalRepository)(nil)
