// Package event hosts the cross-cutting bus subscribers the worker wires
// at startup. Handlers here observe pipeline activity; they never drive it.
package event

import (
	"context"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// LoggingHandler writes one structured log line per domain event. It
// subscribes as a wildcard so new event types are covered without a
// registration change.
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new logging handler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger.Named("events"),
	}
}

// EventTypes returns nil so the bus registers this handler for all events
func (h *LoggingHandler) EventTypes() []string {
	return nil
}

// Handle logs the event envelope. When the event was published under an
// active span, the line carries the trace and span IDs for correlation.
func (h *LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}
	if traceID := telemetry.GetTraceID(ctx); traceID != "" {
		fields = append(fields,
			zap.String("trace_id", traceID),
			zap.String("span_id", telemetry.GetSpanID(ctx)))
	}

	h.logger.Info("domain event", fields...)
	return nil
}

// Ensure LoggingHandler implements shared.EventHandler
var _ shared.EventHandler = (*LoggingHandler)(nil)
