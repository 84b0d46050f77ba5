// Package insight turns batches of pending signals into aggregated,
// human-readable insights. Signals are grouped on category, type,
// correlation key and client; each surviving group becomes one insight
// with templated copy and a confidence score, and hands its constituents
// over to the priority engine.
package insight

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const AggregateTypeInsight = "Insight"

// Status tracks an insight through the pipeline.
type Status string

const (
	StatusOpen        Status = "open"
	StatusPrioritised Status = "prioritised"
	StatusDismissed   Status = "dismissed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusPrioritised, StatusDismissed:
		return true
	}
	return false
}

// Severity mirrors the severity vocabulary signals carry.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a signal severity string, defaulting unknown values
// to low.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	default:
		return SeverityLow
	}
}

// Rank orders severities, low first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Insight is one aggregated finding derived from a group of signals.
type Insight struct {
	shared.TenantAggregateRoot
	ClientID        *uuid.UUID     `json:"client_id,omitempty"`
	Category        string         `json:"category"`
	Type            string         `json:"type"`
	CorrelationKey  string         `json:"correlation_key,omitempty"`
	Severity        Severity       `json:"severity"`
	Confidence      float64        `json:"confidence"`
	Title           string         `json:"title"`
	Summary         string         `json:"summary"`
	SuggestedAction string         `json:"suggested_action"`
	SourceSignalIDs []uuid.UUID    `json:"source_signal_ids"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Status          Status         `json:"status"`
	DismissReason   string         `json:"dismiss_reason,omitempty"`
	PrioritizedAt   *time.Time     `json:"prioritized_at,omitempty"`
}

// NewInsightFromGroup synthesizes the insight for one signal group. The
// group must be non-empty; confidence gating happens before this point.
func NewInsightFromGroup(group *SignalGroup) (*Insight, error) {
	if group == nil || len(group.Signals) == 0 {
		return nil, shared.NewDomainError("EMPTY_GROUP", "Cannot build an insight from an empty signal group")
	}

	severity := group.MaxSeverity()
	title, summary, action := renderTemplate(group.Category, severity, group)

	insight := &Insight{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(group.Signals[0].TenantID),
		ClientID:            group.ClientID,
		Category:            group.Category,
		Type:                group.Type,
		CorrelationKey:      group.CorrelationKey,
		Severity:            severity,
		Confidence:          group.Confidence(),
		Title:               title,
		Summary:             summary,
		SuggestedAction:     action,
		SourceSignalIDs:     group.SignalIDs(),
		Metadata:            group.Metadata(),
		Status:              StatusOpen,
	}

	insight.AddDomainEvent(NewInsightCreatedEvent(insight))
	return insight, nil
}

func (i *Insight) IsOpen() bool {
	return i.Status == StatusOpen
}

// MarkPrioritised records that the priority engine scored this insight.
func (i *Insight) MarkPrioritised() error {
	if i.Status != StatusOpen {
		return shared.ErrInvalidState
	}

	now := time.Now()
	i.Status = StatusPrioritised
	i.PrioritizedAt = &now
	i.Touch()
	i.IncrementVersion()
	i.AddDomainEvent(NewInsightPrioritisedEvent(i))
	return nil
}

// Dismiss closes an open insight without scoring it.
func (i *Insight) Dismiss(reason string) error {
	if i.Status != StatusOpen {
		return shared.ErrInvalidState
	}

	i.Status = StatusDismissed
	i.DismissReason = reason
	i.Touch()
	i.IncrementVersion()
	i.AddDomainEvent(NewInsightDismissedEvent(i, reason))
	return nil
}
