// Package outcome closes the pipeline's feedback loop. It records what
// happened to insight-derived recommendations, measures predicted versus
// actual impact, rolls the results into period-bucketed quality metrics,
// and raises calibration breaches that re-enter the pipeline as signals.
package outcome

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateTypeOutcome = "Outcome"

// Status is the recorded result of acting on a recommendation.
type Status string

const (
	StatusPending        Status = "pending"
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
	StatusCancelled      Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusPartialSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

// ImpactMap holds named impact figures, predicted or actual, e.g.
// {"sessions": 1200, "revenue": 4500}.
type ImpactMap map[string]decimal.Decimal

// Clone returns an independent copy.
func (m ImpactMap) Clone() ImpactMap {
	if m == nil {
		return nil
	}
	out := make(ImpactMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Outcome tracks one recommendation from acceptance through measurement.
type Outcome struct {
	shared.TenantAggregateRoot
	RecommendationType string           `json:"recommendation_type"`
	ClientID           *uuid.UUID       `json:"client_id,omitempty"`
	InsightID          *uuid.UUID       `json:"insight_id,omitempty"`
	PredictedImpact    ImpactMap        `json:"predicted_impact"`
	ActualImpact       ImpactMap        `json:"actual_impact,omitempty"`
	VarianceScore      *decimal.Decimal `json:"variance_score,omitempty"`
	VarianceDirection  Direction        `json:"variance_direction,omitempty"`
	Status             Status           `json:"status"`
	AcceptedAt         *time.Time       `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time       `json:"rejected_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	MeasuredAt         *time.Time       `json:"measured_at,omitempty"`
}

// NewOutcome captures a recommendation with its predicted impact.
func NewOutcome(tenantID uuid.UUID, recommendationType string, clientID, insightID *uuid.UUID, predicted ImpactMap) (*Outcome, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if recommendationType == "" {
		return nil, shared.NewDomainError("RECOMMENDATION_TYPE_REQUIRED", "Recommendation type is required")
	}

	o := &Outcome{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RecommendationType:  recommendationType,
		ClientID:            clientID,
		InsightID:           insightID,
		PredictedImpact:     predicted.Clone(),
		Status:              StatusPending,
	}

	o.AddDomainEvent(NewOutcomeCapturedEvent(o))
	return o, nil
}

// Accept records that the recommendation was taken up.
func (o *Outcome) Accept() error {
	if o.AcceptedAt != nil || o.RejectedAt != nil {
		return shared.ErrInvalidState
	}

	now := time.Now()
	o.AcceptedAt = &now
	o.Touch()
	o.IncrementVersion()
	o.AddDomainEvent(NewOutcomeAcceptedEvent(o))
	return nil
}

// Reject records that the recommendation was declined and closes the
// outcome as cancelled.
func (o *Outcome) Reject() error {
	if o.AcceptedAt != nil || o.RejectedAt != nil {
		return shared.ErrInvalidState
	}

	now := time.Now()
	o.RejectedAt = &now
	o.Status = StatusCancelled
	o.Touch()
	o.IncrementVersion()
	o.AddDomainEvent(NewOutcomeRejectedEvent(o))
	return nil
}

// MarkCompleted records that the accepted work was finished.
func (o *Outcome) MarkCompleted() error {
	if o.AcceptedAt == nil || o.CompletedAt != nil {
		return shared.ErrInvalidState
	}

	now := time.Now()
	o.CompletedAt = &now
	o.Touch()
	o.IncrementVersion()
	return nil
}

// RecordActual stores the measured impact and derives the variance score
// and direction from the fields shared with the prediction.
func (o *Outcome) RecordActual(actual ImpactMap) error {
	if len(actual) == 0 {
		return shared.NewDomainError("ACTUAL_IMPACT_REQUIRED", "Actual impact must contain at least one field")
	}

	now := time.Now()
	o.ActualImpact = actual.Clone()
	o.MeasuredAt = &now

	if variance, ok := ComputeVariance(o.PredictedImpact, o.ActualImpact); ok {
		o.VarianceScore = &variance
		o.VarianceDirection = DirectionFor(variance)
	}

	o.Touch()
	o.IncrementVersion()
	o.AddDomainEvent(NewOutcomeMeasuredEvent(o))
	return nil
}

// UpdateStatus moves the outcome to a caller-judged result. Once an
// outcome leaves pending it cannot return.
func (o *Outcome) UpdateStatus(status Status) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", "Unknown outcome status: "+string(status))
	}
	if status == StatusPending && o.Status != StatusPending {
		return shared.ErrInvalidState
	}
	if status == o.Status {
		return nil
	}

	o.Status = status
	o.Touch()
	o.IncrementVersion()
	return nil
}

// IsMeasured reports whether actual impact landed.
func (o *Outcome) IsMeasured() bool {
	return o.MeasuredAt != nil
}
