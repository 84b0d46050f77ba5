package anomaly

import (
	"context"

	"github.com/google/uuid"
)

// MetricSeriesRepository stores the daily client metric observations the
// detection engine scans.
type MetricSeriesRepository interface {
	// RecordBatch upserts observations keyed by (tenant, client, metric,
	// date); a re-sync overwrites the day's value instead of duplicating it.
	RecordBatch(ctx context.Context, points []*MetricPoint) error

	// HistoryWindow returns up to days of observations for one client
	// metric, ordered oldest first.
	HistoryWindow(ctx context.Context, tenantID, clientID uuid.UUID, metric MetricType, days int) ([]MetricPoint, error)

	// DistinctClients lists the clients with any recorded observations for
	// the tenant.
	DistinctClients(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
}

// AnomalyRepository keeps graded detections for inspection and audit.
type AnomalyRepository interface {
	// CreateBatch persists one detection run's output, emission state
	// included.
	CreateBatch(ctx context.Context, detections []*Anomaly) error

	// FindRecent returns the newest detections for a tenant, optionally
	// narrowed to one client.
	FindRecent(ctx context.Context, tenantID uuid.UUID, clientID *uuid.UUID, limit int) ([]*Anomaly, error)
}

// ThresholdOverrideRepository stores per tenant and per client threshold
// tuning.
type ThresholdOverrideRepository interface {
	// Save upserts the override keyed by (tenant, client, metric).
	Save(ctx context.Context, override *ThresholdOverride) error

	// FindForTenant returns every override row for the tenant, tenant-wide
	// and client-level alike.
	FindForTenant(ctx context.Context, tenantID uuid.UUID) ([]*ThresholdOverride, error)

	// Delete removes one override.
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
