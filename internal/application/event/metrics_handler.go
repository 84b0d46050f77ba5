package event

import (
	"context"
	"fmt"

	"github.com/clientpulse/backend/internal/domain/anomaly"
	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/clientpulse/backend/internal/domain/priority"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// MetricsHandler feeds pipeline counters from domain events so the
// application services stay free of telemetry plumbing. It subscribes only
// to the event types it meters; everything else never reaches Handle.
type MetricsHandler struct {
	metrics *telemetry.PipelineMetrics
	logger  *zap.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics *telemetry.PipelineMetrics, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *MetricsHandler) EventTypes() []string {
	return []string{
		signal.EventTypeSignalReceived,
		anomaly.EventTypeAnomalyDetected,
		insight.EventTypeInsightCreated,
		insight.EventTypeInsightDismissed,
		priority.EventTypePriorityCreated,
		priority.EventTypePriorityExpired,
		outcome.EventTypeOutcomeCaptured,
		outcome.EventTypeOutcomeRejected,
		outcome.EventTypeOutcomeMeasured,
	}
}

// Handle maps one domain event onto its pipeline counter
func (h *MetricsHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := event.TenantID()

	switch e := event.(type) {
	case *signal.SignalReceivedEvent:
		h.metrics.RecordSignalIngested(ctx, tenantID, string(e.Source))

	case *anomaly.AnomalyDetectedEvent:
		h.metrics.RecordAnomalyDetected(ctx, tenantID, string(e.Metric), string(e.Severity))

	case *insight.InsightCreatedEvent:
		h.metrics.RecordInsightCreated(ctx, tenantID, e.Category, string(e.Severity))

	case *insight.InsightDismissedEvent:
		h.metrics.RecordInsightDismissed(ctx, tenantID)

	case *priority.PriorityCreatedEvent:
		h.metrics.RecordPriorityCreated(ctx, tenantID, string(e.Bucket))

	case *priority.PriorityExpiredEvent:
		h.metrics.RecordPriorityExpired(ctx, tenantID)

	case *outcome.OutcomeCapturedEvent:
		h.metrics.RecordOutcomeRecorded(ctx, tenantID, string(outcome.StatusPending))

	case *outcome.OutcomeRejectedEvent:
		h.metrics.RecordOutcomeRecorded(ctx, tenantID, string(outcome.StatusCancelled))

	case *outcome.OutcomeMeasuredEvent:
		h.metrics.RecordOutcomeRecorded(ctx, tenantID, string(e.Status))

	default:
		h.logger.Error("unexpected event type",
			zap.String("event_type", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	return nil
}

// Ensure MetricsHandler implements shared.EventHandler
var _ shared.EventHandler = (*MetricsHandler)(nil)
