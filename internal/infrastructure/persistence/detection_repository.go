package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clientpulse/backend/internal/domain/anomaly"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/models"
	"github.com/clientpulse/backend/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// metricPointBatchSize caps rows per INSERT when sync jobs deliver large
// backfills
const metricPointBatchSize = 500

// GormMetricSeriesRepository implements anomaly.MetricSeriesRepository using GORM
type GormMetricSeriesRepository struct {
	db *gorm.DB
}

// NewGormMetricSeriesRepository creates a new GormMetricSeriesRepository
func NewGormMetricSeriesRepository(db *gorm.DB) *GormMetricSeriesRepository {
	return &GormMetricSeriesRepository{db: db}
}

// RecordBatch upserts observations keyed by (tenant, client, metric, day).
// Re-syncs land on the same unique index and overwrite the day's value
// instead of duplicating the row.
func (r *GormMetricSeriesRepository) RecordBatch(ctx context.Context, points []*anomaly.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	pointModels := make([]*models.MetricPointModel, len(points))
	for i, p := range points {
		pointModels[i] = models.MetricPointModelFromDomain(p)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"},
				{Name: "client_id"},
				{Name: "metric"},
				{Name: "observed_at"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		CreateInBatches(pointModels, metricPointBatchSize).Error
}

// HistoryWindow returns up to days of observations for one client metric,
// ordered oldest first the way the detectors consume them. The newest rows
// win when the series holds more days than requested.
func (r *GormMetricSeriesRepository) HistoryWindow(ctx context.Context, tenantID, clientID uuid.UUID, metric anomaly.MetricType, days int) ([]anomaly.MetricPoint, error) {
	var pointModels []models.MetricPointModel

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("client_id = ? AND metric = ?", clientID, metric).
		Order("observed_at DESC")
	if days > 0 {
		query = query.Limit(days)
	}

	if err := query.Find(&pointModels).Error; err != nil {
		return nil, err
	}

	// Reverse into chronological order
	points := make([]anomaly.MetricPoint, len(pointModels))
	for i, model := range pointModels {
		points[len(pointModels)-1-i] = *model.ToDomain()
	}
	return points, nil
}

// DistinctClients lists the clients with any recorded observations for the
// tenant. Detection runs fan out over this set.
func (r *GormMetricSeriesRepository) DistinctClients(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var clientIDs []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.MetricPointModel{}).
		Scopes(tenant.Scope(tenantID)).
		Distinct("client_id").
		Pluck("client_id", &clientIDs).Error; err != nil {
		return nil, err
	}
	return clientIDs, nil
}

// Ensure GormMetricSeriesRepository implements MetricSeriesRepository
var _ anomaly.MetricSeriesRepository = (*GormMetricSeriesRepository)(nil)

// GormAnomalyRepository implements anomaly.AnomalyRepository using GORM
type GormAnomalyRepository struct {
	db *gorm.DB
}

// NewGormAnomalyRepository creates a new GormAnomalyRepository
func NewGormAnomalyRepository(db *gorm.DB) *GormAnomalyRepository {
	return &GormAnomalyRepository{db: db}
}

// CreateBatch persists one detection run's output in a single insert,
// emission state included
func (r *GormAnomalyRepository) CreateBatch(ctx context.Context, detections []*anomaly.Anomaly) error {
	if len(detections) == 0 {
		return nil
	}

	anomalyModels := make([]*models.AnomalyModel, len(detections))
	for i, a := range detections {
		anomalyModels[i] = models.AnomalyModelFromDomain(a)
	}

	return r.db.WithContext(ctx).Create(&anomalyModels).Error
}

// FindRecent returns the newest detections for a tenant, optionally narrowed
// to one client
func (r *GormAnomalyRepository) FindRecent(ctx context.Context, tenantID uuid.UUID, clientID *uuid.UUID, limit int) ([]*anomaly.Anomaly, error) {
	var anomalyModels []models.AnomalyModel

	query := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Order("observed_at DESC, created_at DESC")
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&anomalyModels).Error; err != nil {
		return nil, err
	}

	anomalies := make([]*anomaly.Anomaly, len(anomalyModels))
	for i, model := range anomalyModels {
		anomalies[i] = model.ToDomain()
	}
	return anomalies, nil
}

// Ensure GormAnomalyRepository implements AnomalyRepository
var _ anomaly.AnomalyRepository = (*GormAnomalyRepository)(nil)

// GormThresholdOverrideRepository implements anomaly.ThresholdOverrideRepository using GORM
type GormThresholdOverrideRepository struct {
	db *gorm.DB
}

// NewGormThresholdOverrideRepository creates a new GormThresholdOverrideRepository
func NewGormThresholdOverrideRepository(db *gorm.DB) *GormThresholdOverrideRepository {
	return &GormThresholdOverrideRepository{db: db}
}

// Save upserts the override keyed by (tenant, client, metric). The key's
// client column is nullable, which rules out ON CONFLICT inference, so the
// write resolves the existing row first. Threshold tuning flows through the
// settings surface one call at a time, so the lookup and write do not race.
func (r *GormThresholdOverrideRepository) Save(ctx context.Context, override *anomaly.ThresholdOverride) error {
	query := r.db.WithContext(ctx).
		Model(&models.ThresholdOverrideModel{}).
		Scopes(tenant.Scope(override.TenantID)).
		Where("metric = ?", override.Metric)
	if override.ClientID != nil {
		query = query.Where("client_id = ?", *override.ClientID)
	} else {
		query = query.Where("client_id IS NULL")
	}

	var existing models.ThresholdOverrideModel
	err := query.First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model := models.ThresholdOverrideModelFromDomain(override)
			return r.db.WithContext(ctx).Create(model).Error
		}
		return err
	}

	model := models.ThresholdOverrideModelFromDomain(override)
	return r.db.WithContext(ctx).
		Model(&models.ThresholdOverrideModel{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"z_score":         model.ZScore,
			"percent_change":  model.PercentChange,
			"min_data_points": model.MinDataPoints,
			"enabled":         model.Enabled,
			"updated_at":      time.Now(),
		}).Error
}

// FindForTenant returns every override row for the tenant, tenant-wide and
// client-level alike, for the domain to layer
func (r *GormThresholdOverrideRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID) ([]*anomaly.ThresholdOverride, error) {
	var overrideModels []models.ThresholdOverrideModel

	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Order("metric ASC, created_at ASC").
		Find(&overrideModels).Error; err != nil {
		return nil, err
	}

	overrides := make([]*anomaly.ThresholdOverride, len(overrideModels))
	for i, model := range overrideModels {
		overrides[i] = model.ToDomain()
	}
	return overrides, nil
}

// Delete removes one override
func (r *GormThresholdOverrideRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&models.ThresholdOverrideModel{}, "tenant_id = ? AND id = ?", tenantID, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormThresholdOverrideRepository implements ThresholdOverrideRepository
var _ anomaly.ThresholdOverrideRepository = (*GormThresholdOverrideRepository)(nil)
