package outcome

import (
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const (
	EventTypeOutcomeCaptured = "OutcomeCaptured"
	EventTypeOutcomeAccepted = "OutcomeAccepted"
	EventTypeOutcomeRejected = "OutcomeRejected"
	EventTypeOutcomeMeasured = "OutcomeMeasured"
)

// OutcomeCapturedEvent fires when a recommendation starts being tracked.
type OutcomeCapturedEvent struct {
	shared.BaseDomainEvent
	OutcomeID          uuid.UUID  `json:"outcome_id"`
	RecommendationType string     `json:"recommendation_type"`
	ClientID           *uuid.UUID `json:"client_id,omitempty"`
}

func NewOutcomeCapturedEvent(o *Outcome) *OutcomeCapturedEvent {
	return &OutcomeCapturedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeOutcomeCaptured, AggregateTypeOutcome, o.ID, o.TenantID),
		OutcomeID:          o.ID,
		RecommendationType: o.RecommendationType,
		ClientID:           o.ClientID,
	}
}

// OutcomeAcceptedEvent fires when the recommendation is taken up.
type OutcomeAcceptedEvent struct {
	shared.BaseDomainEvent
	OutcomeID          uuid.UUID `json:"outcome_id"`
	RecommendationType string    `json:"recommendation_type"`
}

func NewOutcomeAcceptedEvent(o *Outcome) *OutcomeAcceptedEvent {
	return &OutcomeAcceptedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeOutcomeAccepted, AggregateTypeOutcome, o.ID, o.TenantID),
		OutcomeID:          o.ID,
		RecommendationType: o.RecommendationType,
	}
}

// OutcomeRejectedEvent fires when the recommendation is declined.
type OutcomeRejectedEvent struct {
	shared.BaseDomainEvent
	OutcomeID          uuid.UUID `json:"outcome_id"`
	RecommendationType string    `json:"recommendation_type"`
}

func NewOutcomeRejectedEvent(o *Outcome) *OutcomeRejectedEvent {
	return &OutcomeRejectedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeOutcomeRejected, AggregateTypeOutcome, o.ID, o.TenantID),
		OutcomeID:          o.ID,
		RecommendationType: o.RecommendationType,
	}
}

// OutcomeMeasuredEvent fires when actual impact lands.
type OutcomeMeasuredEvent struct {
	shared.BaseDomainEvent
	OutcomeID uuid.UUID `json:"outcome_id"`
	Status    Status    `json:"status"`
	Direction Direction `json:"direction"`
}

func NewOutcomeMeasuredEvent(o *Outcome) *OutcomeMeasuredEvent {
	return &OutcomeMeasuredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOutcomeMeasured, AggregateTypeOutcome, o.ID, o.TenantID),
		OutcomeID:       o.ID,
		Status:          o.Status,
		Direction:       o.VarianceDirection,
	}
}
