// Package pipeline coordinates scheduled stage runs. The executor maps a
// scheduler job onto the service that owns the stage; the services keep
// their own claims, so a pass that loses the claim race is a cheap no-op.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clientpulse/backend/internal/application/detection"
	"github.com/clientpulse/backend/internal/application/feedback"
	"github.com/clientpulse/backend/internal/application/insight"
	"github.com/clientpulse/backend/internal/application/priority"
	"github.com/clientpulse/backend/internal/infrastructure/logger"
	"github.com/clientpulse/backend/internal/infrastructure/scheduler"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
)

// DetectionRunner runs the anomaly detection stage
type DetectionRunner interface {
	ScanTenant(ctx context.Context, tenantID uuid.UUID) (*detection.TenantScanReport, error)
}

// AggregationRunner runs the signal aggregation stage
type AggregationRunner interface {
	ProcessSignals(ctx context.Context, tenantID uuid.UUID) (*insight.AggregationReport, error)
}

// PrioritizationRunner runs the scoring and expiry stages
type PrioritizationRunner interface {
	ProcessInsights(ctx context.Context, tenantID uuid.UUID) (*priority.PrioritizationReport, error)
	ExpireOverdue(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// QualityRunner runs the quality recalculation stage
type QualityRunner interface {
	RecalculateQuality(ctx context.Context, tenantID uuid.UUID, period string) (*feedback.RecalculationReport, error)
}

// StageExecutor dispatches scheduled jobs to the stage services
type StageExecutor struct {
	detection      DetectionRunner
	aggregation    AggregationRunner
	prioritization PrioritizationRunner
	quality        QualityRunner
	metrics        *telemetry.PipelineMetrics
	logger         *zap.Logger
}

// NewStageExecutor creates a new stage executor
func NewStageExecutor(
	detection DetectionRunner,
	aggregation AggregationRunner,
	prioritization PrioritizationRunner,
	quality QualityRunner,
	logger *zap.Logger,
) *StageExecutor {
	return &StageExecutor{
		detection:      detection,
		aggregation:    aggregation,
		prioritization: prioritization,
		quality:        quality,
		logger:         logger,
	}
}

// SetMetrics attaches pipeline metrics. Stage durations are recorded when set.
func (e *StageExecutor) SetMetrics(metrics *telemetry.PipelineMetrics) {
	e.metrics = metrics
}

// Execute implements scheduler.JobExecutor
func (e *StageExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	// The job came off the scheduler queue, so the span is a consumer.
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", string(job.Stage),
		telemetry.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrStage, string(job.Stage),
		telemetry.SpanAttrTenantID, job.TenantID.String(),
	)

	start := time.Now()
	var err error
	telemetry.NewProfilingScope(nil).
		WithStage(string(job.Stage)).
		WithTenantID(job.TenantID.String()).
		Run(ctx, func(ctx context.Context) {
			err = e.runStage(ctx, job)
		})

	if e.metrics != nil {
		e.metrics.RecordStageDuration(ctx, job.TenantID, string(job.Stage), time.Since(start))
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetOK(span)
	return nil
}

func (e *StageExecutor) runStage(ctx context.Context, job *scheduler.Job) error {
	switch job.Stage {
	case scheduler.StageDetection:
		return e.runDetection(ctx, job.TenantID)
	case scheduler.StageAggregation:
		return e.runAggregation(ctx, job.TenantID)
	case scheduler.StagePrioritization:
		return e.runPrioritization(ctx, job.TenantID)
	case scheduler.StageExpiry:
		return e.runExpiry(ctx, job.TenantID)
	case scheduler.StageQuality:
		return e.runQuality(ctx, job.TenantID)
	default:
		return scheduler.ErrInvalidStage
	}
}

// stageLogger carries the running stage span's trace ids on every line so
// a stage log can be joined back to its trace.
func (e *StageExecutor) stageLogger(ctx context.Context) *zap.Logger {
	return logger.WithTraceContext(ctx, e.logger)
}

// runDetection scans every client of the tenant. Per-client failures are
// partial and land in the report; only a tenant-level failure fails the job.
func (e *StageExecutor) runDetection(ctx context.Context, tenantID uuid.UUID) error {
	report, err := e.detection.ScanTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	e.stageLogger(ctx).Info("Detection stage completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("clients_scanned", report.ClientsScanned),
		zap.Int("clients_skipped", report.ClientsSkipped),
		zap.Int("anomalies_found", report.AnomaliesFound),
		zap.Int("signals_emitted", report.SignalsEmitted),
		zap.Int("client_failures", len(report.Failures)))
	return nil
}

func (e *StageExecutor) runAggregation(ctx context.Context, tenantID uuid.UUID) error {
	report, err := e.aggregation.ProcessSignals(ctx, tenantID)
	if err != nil {
		return err
	}
	if report.Skipped {
		e.stageLogger(ctx).Debug("Aggregation stage skipped, batch claimed elsewhere",
			zap.String("tenant_id", tenantID.String()))
		return nil
	}
	e.stageLogger(ctx).Info("Aggregation stage completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("signals_scanned", report.SignalsScanned),
		zap.Int("groups_formed", report.GroupsFormed),
		zap.Int("insights_created", report.InsightsCreated),
		zap.Int("signals_discarded", report.SignalsDiscarded))
	return nil
}

func (e *StageExecutor) runPrioritization(ctx context.Context, tenantID uuid.UUID) error {
	report, err := e.prioritization.ProcessInsights(ctx, tenantID)
	if err != nil {
		return err
	}
	if report.Skipped {
		e.stageLogger(ctx).Debug("Prioritization stage skipped, batch claimed elsewhere",
			zap.String("tenant_id", tenantID.String()))
		return nil
	}
	e.stageLogger(ctx).Info("Prioritization stage completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("insights_scored", report.InsightsScored),
		zap.Int("failed", report.Failed))
	return nil
}

func (e *StageExecutor) runExpiry(ctx context.Context, tenantID uuid.UUID) error {
	expired, err := e.prioritization.ExpireOverdue(ctx, tenantID)
	if err != nil {
		return err
	}
	if expired > 0 {
		e.stageLogger(ctx).Info("Expiry stage completed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("priorities_expired", expired))
	}
	return nil
}

// runQuality recalculates the current month. Closed periods keep the
// numbers they finished with.
func (e *StageExecutor) runQuality(ctx context.Context, tenantID uuid.UUID) error {
	report, err := e.quality.RecalculateQuality(ctx, tenantID, "")
	if err != nil {
		return err
	}
	if report.Skipped {
		e.stageLogger(ctx).Debug("Quality stage skipped, batch claimed elsewhere",
			zap.String("tenant_id", tenantID.String()))
		return nil
	}
	e.stageLogger(ctx).Info("Quality stage completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", report.Period),
		zap.Int("groups_recalculated", report.GroupsRecalculated),
		zap.Int("breaches_detected", report.BreachesDetected),
		zap.Int("group_failures", len(report.Failures)))
	return nil
}

// Ensure StageExecutor implements scheduler.JobExecutor
var _ scheduler.JobExecutor = (*StageExecutor)(nil)
