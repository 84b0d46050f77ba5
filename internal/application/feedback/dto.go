package feedback

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CaptureOutcomeRequest represents a request to track a recommendation
type CaptureOutcomeRequest struct {
	RecommendationType string                     `json:"recommendation_type" binding:"required,min=1,max=100"`
	ClientID           *uuid.UUID                 `json:"client_id"`
	InsightID          *uuid.UUID                 `json:"insight_id"`
	PredictedImpact    map[string]decimal.Decimal `json:"predicted_impact"`
}

// RecordActualRequest carries the measured impact for an outcome
type RecordActualRequest struct {
	ActualImpact map[string]decimal.Decimal `json:"actual_impact" binding:"required"`
}

// UpdateOutcomeStatusRequest moves an outcome to a judged result
type UpdateOutcomeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// OutcomeResponse represents a tracked outcome in API responses
type OutcomeResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	TenantID           uuid.UUID                  `json:"tenant_id"`
	RecommendationType string                     `json:"recommendation_type"`
	ClientID           *uuid.UUID                 `json:"client_id,omitempty"`
	InsightID          *uuid.UUID                 `json:"insight_id,omitempty"`
	PredictedImpact    map[string]decimal.Decimal `json:"predicted_impact,omitempty"`
	ActualImpact       map[string]decimal.Decimal `json:"actual_impact,omitempty"`
	VarianceScore      *decimal.Decimal           `json:"variance_score,omitempty"`
	VarianceDirection  string                     `json:"variance_direction,omitempty"`
	Status             string                     `json:"status"`
	AcceptedAt         *time.Time                 `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time                 `json:"rejected_at,omitempty"`
	CompletedAt        *time.Time                 `json:"completed_at,omitempty"`
	MeasuredAt         *time.Time                 `json:"measured_at,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// ToOutcomeResponse converts a domain Outcome to an OutcomeResponse
func ToOutcomeResponse(o *outcome.Outcome) *OutcomeResponse {
	if o == nil {
		return nil
	}
	return &OutcomeResponse{
		ID:                 o.ID,
		TenantID:           o.TenantID,
		RecommendationType: o.RecommendationType,
		ClientID:           o.ClientID,
		InsightID:          o.InsightID,
		PredictedImpact:    o.PredictedImpact,
		ActualImpact:       o.ActualImpact,
		VarianceScore:      o.VarianceScore,
		VarianceDirection:  string(o.VarianceDirection),
		Status:             string(o.Status),
		AcceptedAt:         o.AcceptedAt,
		RejectedAt:         o.RejectedAt,
		CompletedAt:        o.CompletedAt,
		MeasuredAt:         o.MeasuredAt,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

// OutcomeListFilter represents query parameters for listing outcomes
type OutcomeListFilter struct {
	Page               int     `form:"page"`
	PageSize           int     `form:"page_size"`
	Status             *string `form:"status"`
	RecommendationType *string `form:"recommendation_type"`
}

// OutcomeListResponse represents a paginated list of outcomes
type OutcomeListResponse struct {
	Outcomes   []OutcomeResponse `json:"outcomes"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ToOutcomeListResponse converts a paginated domain result to a response
func ToOutcomeListResponse(page *shared.Paginated[outcome.Outcome]) *OutcomeListResponse {
	responses := make([]OutcomeResponse, 0, len(page.Items))
	for i := range page.Items {
		responses = append(responses, *ToOutcomeResponse(&page.Items[i]))
	}
	return &OutcomeListResponse{
		Outcomes:   responses,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

// QualityMetricResponse represents a period quality aggregate in API
// responses
type QualityMetricResponse struct {
	ID                  uuid.UUID       `json:"id"`
	TenantID            uuid.UUID       `json:"tenant_id"`
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
	ConfidenceLevel     string          `json:"confidence_level"`
}

// ToQualityMetricResponse converts a domain QualityMetric to a response
func ToQualityMetricResponse(m *outcome.QualityMetric) *QualityMetricResponse {
	if m == nil {
		return nil
	}
	return &QualityMetricResponse{
		ID:                  m.ID,
		TenantID:            m.TenantID,
		RecommendationType:  m.RecommendationType,
		ClientID:            m.ClientID,
		Period:              m.Period,
		SampleSize:          m.SampleSize,
		AcceptedCount:       m.AcceptedCount,
		RejectedCount:       m.RejectedCount,
		MeasuredCount:       m.MeasuredCount,
		AcceptanceRate:      m.AcceptanceRate,
		SuccessRate:         m.SuccessRate,
		CompletionRate:      m.CompletionRate,
		MeasuredSuccessRate: m.MeasuredSuccessRate,
		AvgVariance:         m.AvgVariance,
		QualityScore:        m.QualityScore,
		ConfidenceLevel:     string(m.ConfidenceLevel),
	}
}

// QualityMetricListResponse represents a paginated list of quality
// metric rows
type QualityMetricListResponse struct {
	Metrics    []QualityMetricResponse `json:"metrics"`
	Total      int64                   `json:"total"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
	TotalPages int                     `json:"total_pages"`
}

// ToQualityMetricListResponse converts a paginated domain result to a
// response
func ToQualityMetricListResponse(page *shared.Paginated[outcome.QualityMetric]) *QualityMetricListResponse {
	responses := make([]QualityMetricResponse, 0, len(page.Items))
	for i := range page.Items {
		responses = append(responses, *ToQualityMetricResponse(&page.Items[i]))
	}
	return &QualityMetricListResponse{
		Metrics:    responses,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

// RecalculationFailure records one group a recalculation run could not
// recompute
type RecalculationFailure struct {
	RecommendationType string     `json:"recommendation_type"`
	ClientID           *uuid.UUID `json:"client_id,omitempty"`
	Error              string     `json:"error"`
}

// RecalculationReport summarizes one scheduled quality recalculation run
type RecalculationReport struct {
	TenantID             uuid.UUID              `json:"tenant_id"`
	Period               string                 `json:"period"`
	Skipped              bool                   `json:"skipped"`
	GroupsRecalculated   int                    `json:"groups_recalculated"`
	BreachesDetected     int                    `json:"breaches_detected"`
	SignalsEmitted       int                    `json:"signals_emitted"`
	DuplicatesSuppressed int                    `json:"duplicates_suppressed"`
	Failures             []RecalculationFailure `json:"failures,omitempty"`
}
