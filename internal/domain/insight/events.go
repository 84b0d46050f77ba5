package insight

import (
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const (
	EventTypeInsightCreated     = "InsightCreated"
	EventTypeInsightPrioritised = "InsightPrioritised"
	EventTypeInsightDismissed   = "InsightDismissed"
)

// InsightCreatedEvent fires when the aggregator materializes a group.
type InsightCreatedEvent struct {
	shared.BaseDomainEvent
	InsightID   uuid.UUID `json:"insight_id"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	SignalCount int       `json:"signal_count"`
}

func NewInsightCreatedEvent(i *Insight) *InsightCreatedEvent {
	return &InsightCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInsightCreated, AggregateTypeInsight, i.ID, i.TenantID),
		InsightID:       i.ID,
		Category:        i.Category,
		Type:            i.Type,
		Severity:        i.Severity,
		Confidence:      i.Confidence,
		SignalCount:     len(i.SourceSignalIDs),
	}
}

// InsightPrioritisedEvent fires when the priority engine scores an insight.
type InsightPrioritisedEvent struct {
	shared.BaseDomainEvent
	InsightID uuid.UUID `json:"insight_id"`
	Severity  Severity  `json:"severity"`
}

func NewInsightPrioritisedEvent(i *Insight) *InsightPrioritisedEvent {
	return &InsightPrioritisedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInsightPrioritised, AggregateTypeInsight, i.ID, i.TenantID),
		InsightID:       i.ID,
		Severity:        i.Severity,
	}
}

// InsightDismissedEvent fires when an insight is closed without scoring.
type InsightDismissedEvent struct {
	shared.BaseDomainEvent
	InsightID uuid.UUID `json:"insight_id"`
	Reason    string    `json:"reason"`
}

func NewInsightDismissedEvent(i *Insight, reason string) *InsightDismissedEvent {
	return &InsightDismissedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInsightDismissed, AggregateTypeInsight, i.ID, i.TenantID),
		InsightID:       i.ID,
		Reason:          reason,
	}
}
