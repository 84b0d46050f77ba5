package anomaly

import (
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const (
	EventTypeAnomalyDetected = "AnomalyDetected"
	EventTypeAnomalyEmitted  = "AnomalyEmitted"
)

// AnomalyDetectedEvent fires for every graded detection, suppressed ones
// included.
type AnomalyDetectedEvent struct {
	shared.BaseDomainEvent
	AnomalyID       uuid.UUID  `json:"anomaly_id"`
	ClientID        uuid.UUID  `json:"client_id"`
	Metric          MetricType `json:"metric"`
	Type            string     `json:"type"`
	Severity        Severity   `json:"severity"`
	Confidence      float64    `json:"confidence"`
	IsFalsePositive bool       `json:"is_false_positive"`
}

func NewAnomalyDetectedEvent(a *Anomaly) *AnomalyDetectedEvent {
	return &AnomalyDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAnomalyDetected, AggregateTypeAnomaly, a.ID, a.TenantID),
		AnomalyID:       a.ID,
		ClientID:        a.ClientID,
		Metric:          a.Metric,
		Type:            a.Type,
		Severity:        a.Severity,
		Confidence:      a.Confidence,
		IsFalsePositive: a.IsFalsePositive,
	}
}

// AnomalyEmittedEvent fires when a detection converts into a signal.
type AnomalyEmittedEvent struct {
	shared.BaseDomainEvent
	AnomalyID uuid.UUID `json:"anomaly_id"`
	SignalID  uuid.UUID `json:"signal_id"`
	ClientID  uuid.UUID `json:"client_id"`
	Type      string    `json:"type"`
}

func NewAnomalyEmittedEvent(a *Anomaly, signalID uuid.UUID) *AnomalyEmittedEvent {
	return &AnomalyEmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAnomalyEmitted, AggregateTypeAnomaly, a.ID, a.TenantID),
		AnomalyID:       a.ID,
		SignalID:        signalID,
		ClientID:        a.ClientID,
		Type:            a.Type,
	}
}
