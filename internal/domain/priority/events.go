package priority

import (
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const (
	EventTypePriorityCreated = "PriorityCreated"
	EventTypePriorityActed   = "PriorityActed"
	EventTypePriorityExpired = "PriorityExpired"
)

// PriorityCreatedEvent fires when an insight is scored.
type PriorityCreatedEvent struct {
	shared.BaseDomainEvent
	PriorityID     uuid.UUID `json:"priority_id"`
	InsightID      uuid.UUID `json:"insight_id"`
	Bucket         Bucket    `json:"bucket"`
	CompositeScore float64   `json:"composite_score"`
}

func NewPriorityCreatedEvent(p *Priority) *PriorityCreatedEvent {
	return &PriorityCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriorityCreated, AggregateTypePriority, p.ID, p.TenantID),
		PriorityID:      p.ID,
		InsightID:       p.InsightID,
		Bucket:          p.Bucket,
		CompositeScore:  p.CompositeScore,
	}
}

// PriorityActedEvent fires when the recommended action is taken.
type PriorityActedEvent struct {
	shared.BaseDomainEvent
	PriorityID uuid.UUID `json:"priority_id"`
	InsightID  uuid.UUID `json:"insight_id"`
}

func NewPriorityActedEvent(p *Priority) *PriorityActedEvent {
	return &PriorityActedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriorityActed, AggregateTypePriority, p.ID, p.TenantID),
		PriorityID:      p.ID,
		InsightID:       p.InsightID,
	}
}

// PriorityExpiredEvent fires when a pending priority outlives its window.
type PriorityExpiredEvent struct {
	shared.BaseDomainEvent
	PriorityID uuid.UUID `json:"priority_id"`
	InsightID  uuid.UUID `json:"insight_id"`
	Bucket     Bucket    `json:"bucket"`
}

func NewPriorityExpiredEvent(p *Priority) *PriorityExpiredEvent {
	return &PriorityExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriorityExpired, AggregateTypePriority, p.ID, p.TenantID),
		PriorityID:      p.ID,
		InsightID:       p.InsightID,
		Bucket:          p.Bucket,
	}
}
