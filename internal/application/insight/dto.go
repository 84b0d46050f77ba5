package insight

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregationReport summarizes one aggregation batch run
type AggregationReport struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	Skipped          bool      `json:"skipped"`
	SignalsScanned   int       `json:"signals_scanned"`
	GroupsFormed     int       `json:"groups_formed"`
	InsightsCreated  int       `json:"insights_created"`
	SignalsAttached  int       `json:"signals_attached"`
	SignalsDiscarded int       `json:"signals_discarded"`
}

// InsightResponse represents an insight in API responses
type InsightResponse struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	ClientID        *uuid.UUID     `json:"client_id,omitempty"`
	Category        string         `json:"category"`
	Type            string         `json:"type"`
	CorrelationKey  string         `json:"correlation_key,omitempty"`
	Severity        string         `json:"severity"`
	Confidence      float64        `json:"confidence"`
	Title           string         `json:"title"`
	Summary         string         `json:"summary"`
	SuggestedAction string         `json:"suggested_action"`
	SourceSignalIDs []uuid.UUID    `json:"source_signal_ids"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Status          string         `json:"status"`
	DismissReason   string         `json:"dismiss_reason,omitempty"`
	PrioritizedAt   *time.Time     `json:"prioritized_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ToInsightResponse converts a domain Insight to an InsightResponse
func ToInsightResponse(ins *insight.Insight) *InsightResponse {
	if ins == nil {
		return nil
	}
	return &InsightResponse{
		ID:              ins.ID,
		TenantID:        ins.TenantID,
		ClientID:        ins.ClientID,
		Category:        ins.Category,
		Type:            ins.Type,
		CorrelationKey:  ins.CorrelationKey,
		Severity:        string(ins.Severity),
		Confidence:      ins.Confidence,
		Title:           ins.Title,
		Summary:         ins.Summary,
		SuggestedAction: ins.SuggestedAction,
		SourceSignalIDs: ins.SourceSignalIDs,
		Metadata:        ins.Metadata,
		Status:          string(ins.Status),
		DismissReason:   ins.DismissReason,
		PrioritizedAt:   ins.PrioritizedAt,
		CreatedAt:       ins.CreatedAt,
		UpdatedAt:       ins.UpdatedAt,
	}
}

// InsightListFilter represents filter options for listing insights
type InsightListFilter struct {
	Page     int     `form:"page,default=1" binding:"min=1"`
	PageSize int     `form:"page_size,default=20" binding:"min=1,max=100"`
	Status   *string `form:"status,omitempty"`
	Category *string `form:"category,omitempty"`
}

// InsightListResponse represents a paginated list of insights
type InsightListResponse struct {
	Insights   []InsightResponse `json:"insights"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ToInsightListResponse converts a paginated domain result to a list response
func ToInsightListResponse(page *shared.Paginated[insight.Insight]) *InsightListResponse {
	responses := make([]InsightResponse, len(page.Items))
	for i := range page.Items {
		responses[i] = *ToInsightResponse(&page.Items[i])
	}
	return &InsightListResponse{
		Insights:   responses,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

// SettingsResponse represents a tenant's aggregation tuning
type SettingsResponse struct {
	MinConfidence float64 `json:"min_confidence"`
	BatchSize     int     `json:"batch_size"`
}

// UpdateSettingsRequest tunes the aggregator for a tenant. Nil fields keep
// the current value.
type UpdateSettingsRequest struct {
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	BatchSize     *int     `json:"batch_size,omitempty"`
}
