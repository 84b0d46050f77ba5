package priority

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
)

// ScoreBreakdown is one insight's full scoring result.
type ScoreBreakdown struct {
	Impact     float64
	Urgency    float64
	Confidence float64
	Resource   float64
	Composite  float64
	Bucket     Bucket
	DueAt      time.Time
}

// Insight types whose business consequences are outsized relative to
// their severity grade.
var highImpactTypes = map[string]bool{
	"traffic_drop":              true,
	"conversion_drop":           true,
	"position_drop":             true,
	"calibration:low_success":   true,
	"calibration:high_variance": true,
}

// Insight types that decay fast if nobody reacts.
var urgentTypes = map[string]bool{
	"traffic_drop":               true,
	"conversion_drop":            true,
	"deal_stage_changed":         true,
	"calibration:high_rejection": true,
}

// Scorer turns open insights into score breakdowns. Stateless beyond its
// weights, so one instance serves every tenant.
type Scorer struct {
	weights WeightConfig
	now     func() time.Time
}

// NewScorer builds a scorer over the given weights, renormalized to sum
// to 1.
func NewScorer(weights WeightConfig) *Scorer {
	return &Scorer{weights: weights.Normalized(), now: time.Now}
}

// Score computes the four sub-scores and their weighted composite for one
// insight. Each sub-score and the composite land in [0,1].
func (s *Scorer) Score(ins *insight.Insight) ScoreBreakdown {
	now := s.now()

	b := ScoreBreakdown{
		Impact:     s.impactScore(ins),
		Urgency:    s.urgencyScore(ins, now),
		Confidence: clamp(ins.Confidence),
		Resource:   s.resourceScore(ins),
	}

	b.Composite = s.weights.Impact*b.Impact +
		s.weights.Urgency*b.Urgency +
		s.weights.Confidence*b.Confidence +
		s.weights.Resource*b.Resource
	b.Bucket = BucketForScore(b.Composite)
	b.DueAt = now.Add(b.Bucket.SLA())
	return b
}

// Weights returns the normalized weights in use.
func (s *Scorer) Weights() WeightConfig {
	return s.weights
}

// impactScore blends the severity grade with the magnitude of the
// underlying change, whether the insight is pinned to one client, and
// whether the type is known to carry outsized consequences.
func (s *Scorer) impactScore(ins *insight.Insight) float64 {
	score := severityBase(ins.Severity)

	switch pct := metadataFloat(ins, "max_percent_change"); {
	case pct >= 75:
		score += 0.2
	case pct >= 50:
		score += 0.15
	case pct >= 30:
		score += 0.1
	case pct > 0:
		score += 0.05
	}

	if ins.ClientID != nil {
		score += 0.1
	}
	if highImpactTypes[ins.Type] {
		score += 0.1
	}
	return clamp(score)
}

// urgencyScore blends the severity grade with how long the insight has
// been waiting and whether the type is known to decay fast.
func (s *Scorer) urgencyScore(ins *insight.Insight, now time.Time) float64 {
	score := severityBase(ins.Severity)

	switch age := now.Sub(ins.CreatedAt); {
	case age >= 72*time.Hour:
		score += 0.3
	case age >= 24*time.Hour:
		score += 0.2
	case age >= 12*time.Hour:
		score += 0.1
	default:
		score += 0.05
	}

	if urgentTypes[ins.Type] {
		score += 0.1
	}
	return clamp(score)
}

// resourceScore is the inverse effort of acting on the insight, boosted
// when a concrete suggested action is already attached.
func (s *Scorer) resourceScore(ins *insight.Insight) float64 {
	score := effortBase(ins.Category)
	if ins.SuggestedAction != "" {
		score += 0.2
	}
	return clamp(score)
}

func severityBase(sev insight.Severity) float64 {
	switch sev {
	case insight.SeverityCritical:
		return 0.6
	case insight.SeverityHigh:
		return 0.45
	case insight.SeverityMedium:
		return 0.3
	default:
		return 0.15
	}
}

// effortBase grades categories by how heavy the typical follow-up is:
// client communication is light, marketing analysis moderate, internal
// engineering fixes heavy.
func effortBase(category string) float64 {
	switch category {
	case "crm", "social":
		return 0.7
	case "analytics", "integration":
		return 0.5
	case "operations":
		return 0.3
	default:
		return 0.5
	}
}

func metadataFloat(ins *insight.Insight, key string) float64 {
	if ins.Metadata == nil {
		return 0
	}
	switch v := ins.Metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
