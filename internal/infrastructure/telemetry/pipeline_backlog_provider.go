// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBacklogProvider implements BacklogProvider using GORM.
// It queries the pipeline tables directly for backlog depths.
type GormBacklogProvider struct {
	db *gorm.DB
}

// NewGormBacklogProvider creates a new GormBacklogProvider.
func NewGormBacklogProvider(db *gorm.DB) *GormBacklogProvider {
	return &GormBacklogProvider{db: db}
}

// GetPendingSignalCount returns the number of signals awaiting aggregation for a tenant.
func (p *GormBacklogProvider) GetPendingSignalCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("signals").
		Where("tenant_id = ? AND status = ?", tenantID, "pending").
		Count(&count).Error

	return count, err
}

// GetOpenInsightCount returns the number of insights awaiting prioritization for a tenant.
func (p *GormBacklogProvider) GetOpenInsightCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("insights").
		Where("tenant_id = ? AND status = ?", tenantID, "open").
		Count(&count).Error

	return count, err
}

// GetPendingPriorityCountByBucket returns pending priority counts keyed by bucket.
func (p *GormBacklogProvider) GetPendingPriorityCountByBucket(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	type result struct {
		Bucket string `gorm:"column:bucket"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("priorities").
		Select("bucket, COUNT(*) as count").
		Where("tenant_id = ? AND status = ?", tenantID, "pending").
		Group("bucket").
		Find(&results).Error

	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Bucket] = r.Count
	}

	return m, nil
}

// GormTenantProvider implements TenantProvider using GORM.
// Tenants are implied by stored signal data rather than a dedicated table.
type GormTenantProvider struct {
	db *gorm.DB
}

// NewGormTenantProvider creates a new GormTenantProvider.
func NewGormTenantProvider(db *gorm.DB) *GormTenantProvider {
	return &GormTenantProvider{db: db}
}

// GetActiveTenantIDs returns every tenant with stored signals.
func (p *GormTenantProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("signals").
		Distinct("tenant_id").
		Pluck("tenant_id", &ids).Error

	return ids, err
}
