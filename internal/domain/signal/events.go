package signal

import (
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeSignalReceived       = "SignalReceived"
	EventTypeSignalRouted         = "SignalRouted"
	EventTypeSignalDiscarded      = "SignalDiscarded"
	EventTypeSignalRetryScheduled = "SignalRetryScheduled"
)

// SignalReceivedEvent is published when a new signal enters the pipeline
type SignalReceivedEvent struct {
	shared.BaseDomainEvent
	SignalID uuid.UUID  `json:"signal_id"`
	Source   Source     `json:"source"`
	Type     string     `json:"signal_type"`
	Urgency  Urgency    `json:"urgency"`
	ClientID *uuid.UUID `json:"client_id,omitempty"`
}

// NewSignalReceivedEvent creates a new SignalReceivedEvent
func NewSignalReceivedEvent(s *Signal) *SignalReceivedEvent {
	return &SignalReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeSignalReceived,
			AggregateTypeSignal,
			s.ID,
			s.TenantID,
		),
		SignalID: s.ID,
		Source:   s.Source,
		Type:     s.Type,
		Urgency:  s.Urgency,
		ClientID: s.ClientID,
	}
}

// SignalRoutedEvent is published after route matching, carrying the
// workflows the caller should trigger
type SignalRoutedEvent struct {
	shared.BaseDomainEvent
	SignalID    uuid.UUID   `json:"signal_id"`
	RuleIDs     []uuid.UUID `json:"rule_ids"`
	WorkflowIDs []uuid.UUID `json:"workflow_ids"`
}

// NewSignalRoutedEvent creates a new SignalRoutedEvent
func NewSignalRoutedEvent(s *Signal, ruleIDs, workflowIDs []uuid.UUID) *SignalRoutedEvent {
	return &SignalRoutedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeSignalRouted,
			AggregateTypeSignal,
			s.ID,
			s.TenantID,
		),
		SignalID:    s.ID,
		RuleIDs:     ruleIDs,
		WorkflowIDs: workflowIDs,
	}
}

// SignalDiscardedEvent is published when a signal is dropped before
// producing an insight
type SignalDiscardedEvent struct {
	shared.BaseDomainEvent
	SignalID uuid.UUID `json:"signal_id"`
	Reason   string    `json:"reason"`
}

// NewSignalDiscardedEvent creates a new SignalDiscardedEvent
func NewSignalDiscardedEvent(s *Signal, reason string) *SignalDiscardedEvent {
	return &SignalDiscardedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeSignalDiscarded,
			AggregateTypeSignal,
			s.ID,
			s.TenantID,
		),
		SignalID: s.ID,
		Reason:   reason,
	}
}

// SignalRetryScheduledEvent is published when a failed signal is requeued
type SignalRetryScheduledEvent struct {
	shared.BaseDomainEvent
	SignalID   uuid.UUID `json:"signal_id"`
	RetryCount int       `json:"retry_count"`
}

// NewSignalRetryScheduledEvent creates a new SignalRetryScheduledEvent
func NewSignalRetryScheduledEvent(s *Signal) *SignalRetryScheduledEvent {
	return &SignalRetryScheduledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeSignalRetryScheduled,
			AggregateTypeSignal,
			s.ID,
			s.TenantID,
		),
		SignalID:   s.ID,
		RetryCount: s.RetryCount,
	}
}
