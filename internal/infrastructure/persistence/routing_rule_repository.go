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
)

// GormRoutingRuleRepository implements signal.RoutingRuleRepository using GORM
type GormRoutingRuleRepository struct {
	db *gorm.DB
}

// NewGormRoutingRuleRepository creates a new GormRoutingRuleRepository
func NewGormRoutingRuleRepository(db *gorm.DB) *GormRoutingRuleRepository {
	return &GormRoutingRuleRepository{db: db}
}

// Create persists a new routing rule
func (r *GormRoutingRuleRepository) Create(ctx context.Context, rule *signal.RoutingRule) error {
	model := models.RoutingRuleModelFromDomain(rule)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists changes to an existing routing rule. Rules are operator
// managed configuration, so writes replace the full mutable column set
// without a version guard.
func (r *GormRoutingRuleRepository) Update(ctx context.Context, rule *signal.RoutingRule) error {
	model := models.RoutingRuleModelFromDomain(rule)

	result := r.db.WithContext(ctx).
		Model(&models.RoutingRuleModel{}).
		Scopes(tenant.Scope(rule.TenantID)).
		Where("id = ?", rule.ID).
		Updates(map[string]any{
			"name":        model.Name,
			"source":      model.Source,
			"signal_type": model.SignalType,
			"urgencies":   model.UrgenciesJSON,
			"filters":     model.FiltersJSON,
			"workflow_id": model.WorkflowID,
			"priority":    model.Priority,
			"enabled":     model.Enabled,
			"version":     model.Version,
			"updated_at":  model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a tenant's routing rule by its ID
func (r *GormRoutingRuleRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*signal.RoutingRule, error) {
	var model models.RoutingRuleModel
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

// FindMatching returns the enabled rules whose source and type columns admit
// the given signal shape, highest priority first. An empty column means the
// rule does not restrict that dimension. Urgency allow-lists and payload
// filters are evaluated in the domain against the full rule.
func (r *GormRoutingRuleRepository) FindMatching(ctx context.Context, tenantID uuid.UUID, source signal.Source, signalType string) ([]signal.RoutingRule, error) {
	var ruleModels []models.RoutingRuleModel

	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("enabled = ?", true).
		Where("source = '' OR source = ?", source).
		Where("signal_type = '' OR signal_type = ?", signalType).
		Order("priority DESC, created_at ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}

	rules := make([]signal.RoutingRule, len(ruleModels))
	for i, model := range ruleModels {
		rules[i] = *model.ToDomain()
	}
	return rules, nil
}

// FindAllForTenant lists a tenant's routing rules with optional filtering
func (r *GormRoutingRuleRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]signal.RoutingRule, error) {
	var ruleModels []models.RoutingRuleModel

	query := r.db.WithContext(ctx).
		Model(&models.RoutingRuleModel{}).
		Scopes(tenant.Scope(tenantID))
	query = r.applyFilter(query, filter)

	if err := query.Find(&ruleModels).Error; err != nil {
		return nil, err
	}

	rules := make([]signal.RoutingRule, len(ruleModels))
	for i, model := range ruleModels {
		rules[i] = *model.ToDomain()
	}
	return rules, nil
}

// Delete removes a routing rule
func (r *GormRoutingRuleRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&models.RoutingRuleModel{}, "tenant_id = ? AND id = ?", tenantID, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// applyFilter applies filter options to the query
func (r *GormRoutingRuleRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR signal_type ILIKE ?",
			searchPattern, searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "source":
			query = query.Where("source = ?", value)
		case "signal_type":
			query = query.Where("signal_type = ?", value)
		case "enabled":
			query = query.Where("enabled = ?", value)
		case "workflow_id":
			query = query.Where("workflow_id = ?", value)
		}
	}

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering with validated sort field and direction
	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, RoutingRuleSortFields, "priority")
		sortOrder := ValidateSortOrder(filter.OrderDir)
		query = query.Order(sortField + " " + sortOrder)
	} else {
		query = query.Order("priority DESC, created_at ASC")
	}

	return query
}

// Ensure GormRoutingRuleRepository implements RoutingRuleRepository
var _ signal.RoutingRuleRepository = (*GormRoutingRuleRepository)(nil)
