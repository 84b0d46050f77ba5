// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PipelineMetrics provides business metrics for the signal pipeline.
// It tracks ingest volume, detection output, insight and priority flow,
// and outcome capture.
type PipelineMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	signalIngestedTotal   *Counter
	signalDuplicateTotal  *Counter
	anomalyDetectedTotal  *Counter
	insightCreatedTotal   *Counter
	insightDismissedTotal *Counter
	priorityCreatedTotal  *Counter
	priorityExpiredTotal  *Counter
	outcomeRecordedTotal  *Counter

	// Stage timing
	stageDuration *Histogram

	// Gauge metrics (point-in-time values)
	pendingSignalCount   *Gauge
	openInsightCount     *Gauge
	pendingPriorityCount *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	backlogProvider BacklogProvider
}

// BacklogProvider provides pipeline backlog depths for periodic metrics
// collection. This interface lets the telemetry layer query queue state
// without depending on the pipeline domains directly.
type BacklogProvider interface {
	// GetPendingSignalCount returns the number of signals awaiting aggregation
	GetPendingSignalCount(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// GetOpenInsightCount returns the number of insights awaiting prioritization
	GetOpenInsightCount(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// GetPendingPriorityCountByBucket returns pending priority counts keyed by bucket
	GetPendingPriorityCountByBucket(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error)
}

// PipelineMetricsConfig holds configuration for pipeline metrics.
type PipelineMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	BacklogProvider BacklogProvider
}

// NewPipelineMetrics creates a new PipelineMetrics instance.
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	// Initialize counter metrics
	var err error

	// Ingest metrics
	pm.signalIngestedTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_signal_ingested_total",
		"Total number of signals ingested",
		"{signals}",
	)
	if err != nil {
		return nil, err
	}

	pm.signalDuplicateTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_signal_duplicate_total",
		"Total number of ingested signals deduplicated onto an existing one",
		"{signals}",
	)
	if err != nil {
		return nil, err
	}

	// Detection metrics
	pm.anomalyDetectedTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_anomaly_detected_total",
		"Total number of graded anomaly detections",
		"{anomalies}",
	)
	if err != nil {
		return nil, err
	}

	// Insight metrics
	pm.insightCreatedTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_insight_created_total",
		"Total number of insights created from signal groups",
		"{insights}",
	)
	if err != nil {
		return nil, err
	}

	pm.insightDismissedTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_insight_dismissed_total",
		"Total number of insights dismissed",
		"{insights}",
	)
	if err != nil {
		return nil, err
	}

	// Priority metrics
	pm.priorityCreatedTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_priority_created_total",
		"Total number of priorities scored",
		"{priorities}",
	)
	if err != nil {
		return nil, err
	}

	pm.priorityExpiredTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_priority_expired_total",
		"Total number of priorities expired past their due window",
		"{priorities}",
	)
	if err != nil {
		return nil, err
	}

	// Outcome metrics
	pm.outcomeRecordedTotal, err = NewCounter(
		cfg.Meter,
		"clientpulse_outcome_recorded_total",
		"Total number of recommendation outcomes recorded",
		"{outcomes}",
	)
	if err != nil {
		return nil, err
	}

	// Stage timing
	pm.stageDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "clientpulse_stage_duration_seconds",
		Description: "Duration of pipeline stage batches",
		Unit:        "s",
		Boundaries:  StageDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	// Backlog gauge metrics
	pm.pendingSignalCount, err = NewGauge(
		cfg.Meter,
		"clientpulse_pending_signal_count",
		"Current number of signals awaiting aggregation",
		"{signals}",
	)
	if err != nil {
		return nil, err
	}

	pm.openInsightCount, err = NewGauge(
		cfg.Meter,
		"clientpulse_open_insight_count",
		"Current number of insights awaiting prioritization",
		"{insights}",
	)
	if err != nil {
		return nil, err
	}

	pm.pendingPriorityCount, err = NewGauge(
		cfg.Meter,
		"clientpulse_pending_priority_count",
		"Current number of pending priorities per bucket",
		"{priorities}",
	)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// =============================================================================
// Ingest Metrics
// =============================================================================

// RecordSignalIngested records a signal entering the pipeline.
func (pm *PipelineMetrics) RecordSignalIngested(ctx context.Context, tenantID uuid.UUID, source string) {
	pm.signalIngestedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrSignalSource.String(source),
	)
}

// RecordSignalDuplicate records an ingest that resolved to an existing signal.
func (pm *PipelineMetrics) RecordSignalDuplicate(ctx context.Context, tenantID uuid.UUID, source string) {
	pm.signalDuplicateTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrSignalSource.String(source),
	)
}

// =============================================================================
// Detection Metrics
// =============================================================================

// RecordAnomalyDetected records one graded detection.
func (pm *PipelineMetrics) RecordAnomalyDetected(ctx context.Context, tenantID uuid.UUID, metricName, severity string) {
	pm.anomalyDetectedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrMetricName.String(metricName),
		AttrSeverity.String(severity),
	)
}

// =============================================================================
// Insight Metrics
// =============================================================================

// RecordInsightCreated records an insight produced by aggregation.
func (pm *PipelineMetrics) RecordInsightCreated(ctx context.Context, tenantID uuid.UUID, category, severity string) {
	pm.insightCreatedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrCategory.String(category),
		AttrSeverity.String(severity),
	)
}

// RecordInsightDismissed records an insight dismissal.
func (pm *PipelineMetrics) RecordInsightDismissed(ctx context.Context, tenantID uuid.UUID) {
	pm.insightDismissedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
	)
}

// =============================================================================
// Priority Metrics
// =============================================================================

// RecordPriorityCreated records a scored priority entering the queue.
func (pm *PipelineMetrics) RecordPriorityCreated(ctx context.Context, tenantID uuid.UUID, bucket string) {
	pm.priorityCreatedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrBucket.String(bucket),
	)
}

// RecordPriorityExpired records a priority aging out of its due window.
func (pm *PipelineMetrics) RecordPriorityExpired(ctx context.Context, tenantID uuid.UUID) {
	pm.priorityExpiredTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
	)
}

// =============================================================================
// Outcome Metrics
// =============================================================================

// RecordOutcomeRecorded records an outcome status transition.
func (pm *PipelineMetrics) RecordOutcomeRecorded(ctx context.Context, tenantID uuid.UUID, status string) {
	pm.outcomeRecordedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrOutcomeStatus.String(status),
	)
}

// =============================================================================
// Stage Timing
// =============================================================================

// RecordStageDuration records how long one stage batch took for a tenant.
func (pm *PipelineMetrics) RecordStageDuration(ctx context.Context, tenantID uuid.UUID, stage string, elapsed time.Duration) {
	pm.stageDuration.RecordDuration(ctx, elapsed,
		AttrTenantID.String(tenantID.String()),
		AttrStage.String(stage),
	)
}

// =============================================================================
// Backlog Gauges
// =============================================================================

// RecordPendingSignals records the aggregation backlog depth.
// This is a gauge metric that should be updated periodically.
func (pm *PipelineMetrics) RecordPendingSignals(ctx context.Context, tenantID uuid.UUID, count int64) {
	pm.pendingSignalCount.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
	)
}

// RecordOpenInsights records the prioritization backlog depth.
// This is a gauge metric that should be updated periodically.
func (pm *PipelineMetrics) RecordOpenInsights(ctx context.Context, tenantID uuid.UUID, count int64) {
	pm.openInsightCount.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
	)
}

// RecordPendingPriorities records the pending priority depth for one bucket.
// This is a gauge metric that should be updated periodically.
func (pm *PipelineMetrics) RecordPendingPriorities(ctx context.Context, tenantID uuid.UUID, bucket string, count int64) {
	pm.pendingPriorityCount.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrBucket.String(bucket),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects backlog metrics every interval (default: 5 minutes).
// This is non-blocking - use Stop() to stop collection.
func (pm *PipelineMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go pm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (pm *PipelineMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	pm.collectBacklogMetrics(ctx, tenantProvider)

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("Stopping periodic pipeline metrics collection")
			return
		case <-ctx.Done():
			pm.logger.Info("Context cancelled, stopping periodic pipeline metrics collection")
			return
		case <-ticker.C:
			pm.collectBacklogMetrics(ctx, tenantProvider)
		}
	}
}

// collectBacklogMetrics collects backlog gauge metrics for all tenants.
func (pm *PipelineMetrics) collectBacklogMetrics(ctx context.Context, tenantProvider TenantProvider) {
	if pm.backlogProvider == nil {
		pm.logger.Debug("No backlog provider configured, skipping backlog metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		pm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		pm.collectTenantBacklogMetrics(ctx, tenantID)
	}
}

// collectTenantBacklogMetrics collects backlog metrics for a single tenant.
func (pm *PipelineMetrics) collectTenantBacklogMetrics(ctx context.Context, tenantID uuid.UUID) {
	pendingSignals, err := pm.backlogProvider.GetPendingSignalCount(ctx, tenantID)
	if err != nil {
		pm.logger.Warn("Failed to get pending signal count for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		pm.RecordPendingSignals(ctx, tenantID, pendingSignals)
	}

	openInsights, err := pm.backlogProvider.GetOpenInsightCount(ctx, tenantID)
	if err != nil {
		pm.logger.Warn("Failed to get open insight count for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		pm.RecordOpenInsights(ctx, tenantID, openInsights)
	}

	byBucket, err := pm.backlogProvider.GetPendingPriorityCountByBucket(ctx, tenantID)
	if err != nil {
		pm.logger.Warn("Failed to get pending priority counts for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		for bucket, count := range byBucket {
			pm.RecordPendingPriorities(ctx, tenantID, bucket, count)
		}
	}
}

// Stop stops the periodic collection.
func (pm *PipelineMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPipelineMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
