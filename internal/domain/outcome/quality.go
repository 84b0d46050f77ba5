package outcome

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateTypeQualityMetric = "QualityMetric"

// ConfidenceLevel grades how much a quality metric's sample supports its
// rates.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// PeriodOf buckets a timestamp into the metric period key, e.g. "2026-08".
func PeriodOf(t time.Time) string {
	return t.Format("2006-01")
}

// QualityMetric is the rolling per-period aggregate over one
// recommendation type's outcomes, optionally narrowed to one client. One
// row exists per (tenant, type, client, period); recomputation replaces
// it.
type QualityMetric struct {
	shared.TenantAggregateRoot
	RecommendationType  string          `json:"recommendation_type"`
	ClientID            *uuid.UUID      `json:"client_id,omitempty"`
	Period              string          `json:"period"`
	SampleSize          int             `json:"sample_size"`
	AcceptedCount       int             `json:"accepted_count"`
	RejectedCount       int             `json:"rejected_count"`
	MeasuredCount       int             `json:"measured_count"`
	AcceptanceRate      float64         `json:"acceptance_rate"`
	SuccessRate         float64         `json:"success_rate"`
	CompletionRate      float64         `json:"completion_rate"`
	MeasuredSuccessRate float64         `json:"measured_success_rate"`
	AvgVariance         decimal.Decimal `json:"avg_variance"`
	QualityScore        float64         `json:"quality_score"`
	ConfidenceLevel     ConfidenceLevel `json:"confidence_level"`
}

// ComputeQualityMetric rolls one period's outcomes into a fresh metric
// row. The outcomes must already be filtered to the (tenant, type,
// client, period) the row describes.
func ComputeQualityMetric(tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string, outcomes []*Outcome) (*QualityMetric, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if recommendationType == "" {
		return nil, shared.NewDomainError("RECOMMENDATION_TYPE_REQUIRED", "Recommendation type is required")
	}
	if period == "" {
		return nil, shared.NewDomainError("PERIOD_REQUIRED", "Metric period is required")
	}

	m := &QualityMetric{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RecommendationType:  recommendationType,
		ClientID:            clientID,
		Period:              period,
		SampleSize:          len(outcomes),
		AvgVariance:         decimal.Zero,
	}

	if m.SampleSize == 0 {
		m.ConfidenceLevel = ConfidenceLow
		return m, nil
	}

	var successes, completions, measuredSuccesses, withVariance int
	var varianceSum decimal.Decimal

	for _, o := range outcomes {
		if o.AcceptedAt != nil {
			m.AcceptedCount++
		}
		if o.RejectedAt != nil {
			m.RejectedCount++
		}
		if o.Status == StatusSuccess {
			successes++
		}
		if o.CompletedAt != nil {
			completions++
		}
		if o.IsMeasured() {
			m.MeasuredCount++
			if o.Status == StatusSuccess {
				measuredSuccesses++
			}
		}
		if o.VarianceScore != nil {
			varianceSum = varianceSum.Add(*o.VarianceScore)
			withVariance++
		}
	}

	total := float64(m.SampleSize)
	m.AcceptanceRate = float64(m.AcceptedCount) / total
	m.SuccessRate = float64(successes) / total
	m.CompletionRate = float64(completions) / total
	if m.MeasuredCount > 0 {
		m.MeasuredSuccessRate = float64(measuredSuccesses) / float64(m.MeasuredCount)
	}
	if withVariance > 0 {
		m.AvgVariance = varianceSum.Div(decimal.NewFromInt(int64(withVariance)))
	}

	m.QualityScore = qualityScore(m.AcceptanceRate, m.SuccessRate, m.AvgVariance)
	m.ConfidenceLevel = confidenceLevelFor(m.SampleSize)
	return m, nil
}

// qualityScore weighs delivery success over uptake, with a penalty for
// predictions that miss in either direction.
func qualityScore(acceptance, success float64, avgVariance decimal.Decimal) float64 {
	accuracy := 1 - avgVariance.Abs().InexactFloat64()
	score := 0.3*acceptance + 0.5*success + 0.2*accuracy

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func confidenceLevelFor(sampleSize int) ConfidenceLevel {
	switch {
	case sampleSize >= 20:
		return ConfidenceHigh
	case sampleSize >= 10:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
