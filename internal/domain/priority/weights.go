package priority

import (
	"context"

	"github.com/google/uuid"
)

// WeightConfig is the per-tenant blend of the four sub-scores.
type WeightConfig struct {
	Impact     float64 `json:"impact"`
	Urgency    float64 `json:"urgency"`
	Confidence float64 `json:"confidence"`
	Resource   float64 `json:"resource"`
}

// DefaultWeights favors impact, then urgency.
func DefaultWeights() WeightConfig {
	return WeightConfig{Impact: 0.4, Urgency: 0.3, Confidence: 0.2, Resource: 0.1}
}

// Normalized rescales the weights to sum to 1. Tuples with a negative
// entry or a non-positive total cannot be rescaled meaningfully and fall
// back to the defaults.
func (w WeightConfig) Normalized() WeightConfig {
	if w.Impact < 0 || w.Urgency < 0 || w.Confidence < 0 || w.Resource < 0 {
		return DefaultWeights()
	}

	total := w.Impact + w.Urgency + w.Confidence + w.Resource
	if total <= 0 {
		return DefaultWeights()
	}

	return WeightConfig{
		Impact:     w.Impact / total,
		Urgency:    w.Urgency / total,
		Confidence: w.Confidence / total,
		Resource:   w.Resource / total,
	}
}

// WeightConfigRepository stores per-tenant weights. Get returns the
// defaults when the tenant has no stored record.
type WeightConfigRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (WeightConfig, error)
	Save(ctx context.Context, tenantID uuid.UUID, weights WeightConfig) error
}
