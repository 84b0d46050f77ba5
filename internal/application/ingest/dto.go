package ingest

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
)

// IngestRequest carries one raw source event into the pipeline
type IngestRequest struct {
	Source  string         `json:"source" binding:"required"`
	Payload map[string]any `json:"payload" binding:"required"`
}

// IngestResult reports what happened to an ingested event
type IngestResult struct {
	Signal             *SignalResponse `json:"signal"`
	IsDuplicate        bool            `json:"is_duplicate"`
	MatchingRouteIDs   []uuid.UUID     `json:"matching_route_ids,omitempty"`
	TriggeredWorkflows []uuid.UUID     `json:"triggered_workflows,omitempty"`
}

// SignalResponse represents a signal in API responses
type SignalResponse struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	Source         string         `json:"source"`
	Type           string         `json:"type"`
	Urgency        string         `json:"urgency"`
	Payload        map[string]any `json:"payload,omitempty"`
	ClientID       *uuid.UUID     `json:"client_id,omitempty"`
	CorrelationKey string         `json:"correlation_key,omitempty"`
	Status         string         `json:"status"`
	StatusReason   string         `json:"status_reason,omitempty"`
	InsightID      *uuid.UUID     `json:"insight_id,omitempty"`
	RetryCount     int            `json:"retry_count"`
	ReceivedAt     time.Time      `json:"received_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

// ToSignalResponse converts a domain Signal to a SignalResponse
func ToSignalResponse(s *signal.Signal) *SignalResponse {
	if s == nil {
		return nil
	}
	return &SignalResponse{
		ID:             s.ID,
		TenantID:       s.TenantID,
		Source:         string(s.Source),
		Type:           s.Type,
		Urgency:        string(s.Urgency),
		Payload:        s.Payload,
		ClientID:       s.ClientID,
		CorrelationKey: s.CorrelationKey,
		Status:         string(s.Status),
		StatusReason:   s.StatusReason,
		InsightID:      s.InsightID,
		RetryCount:     s.RetryCount,
		ReceivedAt:     s.ReceivedAt,
		ProcessedAt:    s.ProcessedAt,
	}
}

// SignalListFilter represents filter options for listing signals
type SignalListFilter struct {
	Page     int     `form:"page,default=1" binding:"min=1"`
	PageSize int     `form:"page_size,default=20" binding:"min=1,max=100"`
	Status   *string `form:"status,omitempty"`
	Source   *string `form:"source,omitempty"`
}

// SignalListResponse represents a paginated list of signals
type SignalListResponse struct {
	Signals  []SignalResponse `json:"signals"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ToSignalListResponse converts domain signals to a list response
func ToSignalListResponse(signals []signal.Signal, page, pageSize int) *SignalListResponse {
	responses := make([]SignalResponse, len(signals))
	for i := range signals {
		responses[i] = *ToSignalResponse(&signals[i])
	}
	return &SignalListResponse{
		Signals:  responses,
		Page:     page,
		PageSize: pageSize,
	}
}
