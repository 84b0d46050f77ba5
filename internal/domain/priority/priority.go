// Package priority ranks open insights. Each insight gets four sub-scores
// (impact, urgency, confidence, resource feasibility) combined through
// tenant-configurable weights into a composite, bucketed into five tiers
// with a fixed response window per tier.
package priority

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const AggregateTypePriority = "Priority"

// Status tracks what happened to a scored priority.
type Status string

const (
	StatusPending Status = "pending"
	StatusActed   Status = "acted"
	StatusExpired Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActed, StatusExpired:
		return true
	}
	return false
}

// Bucket is the ranked tier a composite score falls into.
type Bucket string

const (
	BucketCritical Bucket = "critical"
	BucketHigh     Bucket = "high"
	BucketMedium   Bucket = "medium"
	BucketLow      Bucket = "low"
	BucketMonitor  Bucket = "monitor"
)

// BucketForScore maps a composite score onto its tier.
func BucketForScore(score float64) Bucket {
	switch {
	case score >= 0.85:
		return BucketCritical
	case score >= 0.70:
		return BucketHigh
	case score >= 0.50:
		return BucketMedium
	case score >= 0.30:
		return BucketLow
	default:
		return BucketMonitor
	}
}

// SLA is the response window granted to the tier.
func (b Bucket) SLA() time.Duration {
	switch b {
	case BucketCritical:
		return 4 * time.Hour
	case BucketHigh:
		return 24 * time.Hour
	case BucketMedium:
		return 72 * time.Hour
	case BucketLow:
		return 168 * time.Hour
	default:
		return 336 * time.Hour
	}
}

// Rank orders buckets, monitor first.
func (b Bucket) Rank() int {
	switch b {
	case BucketCritical:
		return 4
	case BucketHigh:
		return 3
	case BucketMedium:
		return 2
	case BucketLow:
		return 1
	default:
		return 0
	}
}

// Priority is the scored, one-to-one companion of an insight.
type Priority struct {
	shared.TenantAggregateRoot
	InsightID        uuid.UUID  `json:"insight_id"`
	CompositeScore   float64    `json:"composite_score"`
	ImpactScore      float64    `json:"impact_score"`
	UrgencyScore     float64    `json:"urgency_score"`
	ConfidenceScore  float64    `json:"confidence_score"`
	ResourceScore    float64    `json:"resource_score"`
	Bucket           Bucket     `json:"bucket"`
	Status           Status     `json:"status"`
	RecommendedDueAt time.Time  `json:"recommended_due_at"`
	ActedAt          *time.Time `json:"acted_at,omitempty"`
}

// NewPriority records a score breakdown against its insight.
func NewPriority(tenantID, insightID uuid.UUID, breakdown ScoreBreakdown) (*Priority, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if insightID == uuid.Nil {
		return nil, shared.NewDomainError("INSIGHT_REQUIRED", "Insight ID is required")
	}

	p := &Priority{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		InsightID:           insightID,
		CompositeScore:      breakdown.Composite,
		ImpactScore:         breakdown.Impact,
		UrgencyScore:        breakdown.Urgency,
		ConfidenceScore:     breakdown.Confidence,
		ResourceScore:       breakdown.Resource,
		Bucket:              breakdown.Bucket,
		Status:              StatusPending,
		RecommendedDueAt:    breakdown.DueAt,
	}

	p.AddDomainEvent(NewPriorityCreatedEvent(p))
	return p, nil
}

// MarkActed records that someone took the recommended action.
func (p *Priority) MarkActed() error {
	if p.Status != StatusPending {
		return shared.ErrInvalidState
	}

	now := time.Now()
	p.Status = StatusActed
	p.ActedAt = &now
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPriorityActedEvent(p))
	return nil
}

// MarkExpired closes a priority whose window lapsed untouched.
func (p *Priority) MarkExpired() error {
	if p.Status != StatusPending {
		return shared.ErrInvalidState
	}

	p.Status = StatusExpired
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPriorityExpiredEvent(p))
	return nil
}

// IsOverdue reports whether the response window has lapsed on a still
// pending priority.
func (p *Priority) IsOverdue(now time.Time) bool {
	return p.Status == StatusPending && now.After(p.RecommendedDueAt)
}
