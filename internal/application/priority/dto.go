package priority

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/priority"
	"github.com/google/uuid"
)

// PrioritizationReport summarizes one scoring batch run
type PrioritizationReport struct {
	TenantID       uuid.UUID      `json:"tenant_id"`
	Skipped        bool           `json:"skipped"`
	InsightsScored int            `json:"insights_scored"`
	Failed         int            `json:"failed"`
	ByBucket       map[string]int `json:"by_bucket,omitempty"`
}

// PriorityResponse represents a scored priority in API responses
type PriorityResponse struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	InsightID        uuid.UUID  `json:"insight_id"`
	CompositeScore   float64    `json:"composite_score"`
	ImpactScore      float64    `json:"impact_score"`
	UrgencyScore     float64    `json:"urgency_score"`
	ConfidenceScore  float64    `json:"confidence_score"`
	ResourceScore    float64    `json:"resource_score"`
	Bucket           string     `json:"bucket"`
	Status           string     `json:"status"`
	RecommendedDueAt time.Time  `json:"recommended_due_at"`
	ActedAt          *time.Time `json:"acted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ToPriorityResponse converts a domain Priority to a PriorityResponse
func ToPriorityResponse(p *priority.Priority) *PriorityResponse {
	if p == nil {
		return nil
	}
	return &PriorityResponse{
		ID:               p.ID,
		TenantID:         p.TenantID,
		InsightID:        p.InsightID,
		CompositeScore:   p.CompositeScore,
		ImpactScore:      p.ImpactScore,
		UrgencyScore:     p.UrgencyScore,
		ConfidenceScore:  p.ConfidenceScore,
		ResourceScore:    p.ResourceScore,
		Bucket:           string(p.Bucket),
		Status:           string(p.Status),
		RecommendedDueAt: p.RecommendedDueAt,
		ActedAt:          p.ActedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// WeightsResponse represents a tenant's scoring weights
type WeightsResponse struct {
	Impact     float64 `json:"impact"`
	Urgency    float64 `json:"urgency"`
	Confidence float64 `json:"confidence"`
	Resource   float64 `json:"resource"`
}

// UpdateWeightsRequest replaces a tenant's scoring weights. The stored
// weights are renormalized to sum to one.
type UpdateWeightsRequest struct {
	Impact     float64 `json:"impact" binding:"min=0"`
	Urgency    float64 `json:"urgency" binding:"min=0"`
	Confidence float64 `json:"confidence" binding:"min=0"`
	Resource   float64 `json:"resource" binding:"min=0"`
}
