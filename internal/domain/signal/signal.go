// Package signal contains the signal aggregate, the per-source normalization
// adapters and the routing rule DSL. A signal is the unit of work everything
// downstream (anomaly conversion, insight aggregation, prioritization)
// consumes: a tenant-scoped, deduplicated, normalized event.
package signal

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeSignal = "Signal"

// MaxRetryAttempts bounds how often a failed signal may be requeued
const MaxRetryAttempts = 3

// Source identifies the upstream system a signal originated from
type Source string

const (
	SourceAnalytics Source = "analytics"
	SourceCRM       Source = "crm"
	SourceSocial    Source = "social"
	SourceInternal  Source = "internal"
	SourceWebhook   Source = "webhook"
)

// IsValid returns true if the source is a known value
func (s Source) IsValid() bool {
	switch s {
	case SourceAnalytics, SourceCRM, SourceSocial, SourceInternal, SourceWebhook:
		return true
	}
	return false
}

// Category maps a source to the insight category its signals aggregate
// under. Internal signals (calibration, system health) surface as
// operations insights rather than client-facing ones.
func (s Source) Category() string {
	switch s {
	case SourceAnalytics:
		return "analytics"
	case SourceCRM:
		return "crm"
	case SourceSocial:
		return "social"
	case SourceInternal:
		return "operations"
	case SourceWebhook:
		return "integration"
	default:
		return "unknown"
	}
}

// Urgency grades how quickly a signal should surface downstream
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// IsValid returns true if the urgency is a known value
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Rank orders urgencies for comparisons (low=0 .. critical=3)
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 0
	case UrgencyNormal:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return 0
	}
}

// Status tracks a signal through the pipeline
type Status string

const (
	StatusPending Status = "pending"
	// StatusProcessed marks signals consumed outside insight aggregation
	// (e.g. routed directly to a workflow with no aggregation step).
	StatusProcessed Status = "processed"
	// StatusProcessedToInsight marks signals folded into an insight.
	StatusProcessedToInsight Status = "processed_to_insight"
	StatusDiscarded          Status = "discarded"
	StatusFailed             Status = "failed"
)

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusProcessedToInsight, StatusDiscarded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true when no further pipeline stage will pick the
// signal up. Failed signals are not terminal while retries remain.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusProcessedToInsight, StatusDiscarded:
		return true
	}
	return false
}

// Typed errors for signal lifecycle violations
var (
	ErrRetryLimitReached = shared.NewDomainError("RETRY_LIMIT_REACHED", "Signal has exhausted its retry attempts")
	ErrNotRetryable      = shared.NewDomainError("NOT_RETRYABLE", "Only failed signals can be retried")
)

// Signal is the aggregate root for a normalized pipeline event.
type Signal struct {
	shared.TenantAggregateRoot
	Source         Source     `json:"source"`
	Type           string     `json:"type"`
	Urgency        Urgency    `json:"urgency"`
	Payload        Payload    `json:"payload"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	CorrelationKey string     `json:"correlation_key,omitempty"`
	DedupHash      string     `json:"dedup_hash"`
	Status         Status     `json:"status"`
	StatusReason   string     `json:"status_reason,omitempty"`
	InsightID      *uuid.UUID `json:"insight_id,omitempty"`
	RetryCount     int        `json:"retry_count"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// NewSignal creates a pending signal from a normalized event. The dedup hash
// is derived here so that every construction path (adapters, anomaly
// conversion, calibration feedback) shares one hashing rule.
func NewSignal(tenantID uuid.UUID, source Source, n NormalizedSignal) (*Signal, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if !source.IsValid() {
		return nil, NewUnsupportedSourceError(source)
	}
	if n.Type == "" {
		return nil, shared.NewDomainError("SIGNAL_TYPE_REQUIRED", "Signal type is required")
	}

	urgency := n.Urgency
	if !urgency.IsValid() {
		urgency = UrgencyNormal
	}

	payload := n.Payload
	if payload == nil {
		payload = Payload{}
	}

	basis := n.DedupBasis
	if basis == nil {
		basis = payload
	}

	sig := &Signal{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Source:              source,
		Type:                n.Type,
		Urgency:             urgency,
		Payload:             payload,
		ClientID:            n.ClientID,
		CorrelationKey:      n.CorrelationKey,
		DedupHash:           ComputeDedupHash(tenantID, source, n.Type, basis),
		Status:              StatusPending,
		ReceivedAt:          time.Now(),
	}

	sig.AddDomainEvent(NewSignalReceivedEvent(sig))

	return sig, nil
}

// HasCorrelationKey returns true when the signal carries a real correlation
// key (grouping treats the absence as the literal bucket "none")
func (s *Signal) HasCorrelationKey() bool {
	return s.CorrelationKey != ""
}

// Category returns the insight category this signal aggregates under
func (s *Signal) Category() string {
	return s.Source.Category()
}

// Severity maps the signal's urgency onto the insight severity scale
func (s *Signal) Severity() string {
	switch s.Urgency {
	case UrgencyCritical:
		return "critical"
	case UrgencyHigh:
		return "high"
	case UrgencyNormal:
		return "medium"
	default:
		return "low"
	}
}

// MarkProcessed transitions a pending signal to processed
func (s *Signal) MarkProcessed() error {
	if s.Status != StatusPending {
		return shared.ErrInvalidState
	}
	now := time.Now()
	s.Status = StatusProcessed
	s.ProcessedAt = &now
	s.Touch()
	s.IncrementVersion()
	return nil
}

// MarkProcessedToInsight records that the signal was folded into an insight
func (s *Signal) MarkProcessedToInsight(insightID uuid.UUID) error {
	if s.Status != StatusPending {
		return shared.ErrInvalidState
	}
	now := time.Now()
	s.Status = StatusProcessedToInsight
	s.InsightID = &insightID
	s.ProcessedAt = &now
	s.Touch()
	s.IncrementVersion()
	return nil
}

// Discard drops a pending signal with a reason (low-confidence group,
// suppressed false positive)
func (s *Signal) Discard(reason string) error {
	if s.Status != StatusPending {
		return shared.ErrInvalidState
	}
	now := time.Now()
	s.Status = StatusDiscarded
	s.StatusReason = reason
	s.ProcessedAt = &now
	s.Touch()
	s.IncrementVersion()

	s.AddDomainEvent(NewSignalDiscardedEvent(s, reason))

	return nil
}

// MarkFailed records a processing failure. The signal stays eligible for
// retry until MaxRetryAttempts is reached.
func (s *Signal) MarkFailed(reason string) error {
	if s.Status != StatusPending {
		return shared.ErrInvalidState
	}
	s.Status = StatusFailed
	s.StatusReason = reason
	s.Touch()
	s.IncrementVersion()
	return nil
}

// ScheduleRetry requeues a failed signal. Only failed signals are
// retryable; once MaxRetryAttempts is exhausted the signal stays failed
// and the call returns ErrRetryLimitReached.
func (s *Signal) ScheduleRetry() error {
	if s.Status != StatusFailed {
		return ErrNotRetryable
	}
	if s.RetryCount >= MaxRetryAttempts {
		return ErrRetryLimitReached
	}

	s.RetryCount++
	s.Status = StatusPending
	s.StatusReason = ""
	s.ProcessedAt = nil
	s.Touch()
	s.IncrementVersion()

	s.AddDomainEvent(NewSignalRetryScheduledEvent(s))

	return nil
}
