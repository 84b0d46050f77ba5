package models

import (
	"encoding/json"
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// InsightModel is the persistence model for the Insight aggregate root.
type InsightModel struct {
	TenantAggregateModel
	ClientID            *uuid.UUID        `gorm:"type:uuid;index"`
	Category            string            `gorm:"type:varchar(30);not null;index"`
	Type                string            `gorm:"type:varchar(100);not null"`
	CorrelationKey      string            `gorm:"type:varchar(200)"`
	Severity            string            `gorm:"type:varchar(20);not null"`
	Confidence          float64           `gorm:"not null"`
	Title               string            `gorm:"type:varchar(300);not null"`
	Summary             string            `gorm:"type:text"`
	SuggestedAction     string            `gorm:"type:text"`
	SourceSignalIDsJSON string            `gorm:"column:source_signal_ids;type:jsonb;default:'[]'"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb"`
	Status              string            `gorm:"type:varchar(20);not null;index"`
	DismissReason       string            `gorm:"type:text"`
	PrioritizedAt       *time.Time
}

// TableName returns the table name for GORM
func (InsightModel) TableName() string {
	return "insights"
}

// ToDomain converts the persistence model to a domain Insight aggregate.
func (m *InsightModel) ToDomain() *insight.Insight {
	ins := &insight.Insight{
		ClientID:        m.ClientID,
		Category:        m.Category,
		Type:            m.Type,
		CorrelationKey:  m.CorrelationKey,
		Severity:        insight.Severity(m.Severity),
		Confidence:      m.Confidence,
		Title:           m.Title,
		Summary:         m.Summary,
		SuggestedAction: m.SuggestedAction,
		SourceSignalIDs: make([]uuid.UUID, 0),
		Metadata:        map[string]any(m.Metadata),
		Status:          insight.Status(m.Status),
		DismissReason:   m.DismissReason,
		PrioritizedAt:   m.PrioritizedAt,
	}
	m.PopulateTenantAggregateRoot(&ins.TenantAggregateRoot)

	if m.SourceSignalIDsJSON != "" && m.SourceSignalIDsJSON != "[]" {
		var ids []uuid.UUID
		if err := json.Unmarshal([]byte(m.SourceSignalIDsJSON), &ids); err != nil {
			modelLogger.Warn("failed to parse insight source signal IDs JSON",
				zap.String("insight_id", m.ID.String()),
				zap.String("raw_json", m.SourceSignalIDsJSON),
				zap.Error(err))
		} else {
			ins.SourceSignalIDs = ids
		}
	}

	return ins
}

// FromDomain populates the persistence model from a domain Insight aggregate.
func (m *InsightModel) FromDomain(i *insight.Insight) {
	m.FromDomainTenantAggregateRoot(i.TenantAggregateRoot)
	m.ClientID = i.ClientID
	m.Category = i.Category
	m.Type = i.Type
	m.CorrelationKey = i.CorrelationKey
	m.Severity = string(i.Severity)
	m.Confidence = i.Confidence
	m.Title = i.Title
	m.Summary = i.Summary
	m.SuggestedAction = i.SuggestedAction
	m.Metadata = datatypes.JSONMap(i.Metadata)
	m.Status = string(i.Status)
	m.DismissReason = i.DismissReason
	m.PrioritizedAt = i.PrioritizedAt

	if len(i.SourceSignalIDs) > 0 {
		if jsonBytes, err := json.Marshal(i.SourceSignalIDs); err == nil {
			m.SourceSignalIDsJSON = string(jsonBytes)
		} else {
			m.SourceSignalIDsJSON = "[]"
		}
	} else {
		m.SourceSignalIDsJSON = "[]"
	}
}

// InsightModelFromDomain creates a new persistence model from a domain Insight aggregate.
func InsightModelFromDomain(i *insight.Insight) *InsightModel {
	m := &InsightModel{}
	m.FromDomain(i)
	return m
}

// AggregationSettingsModel stores the per-tenant aggregator tuning record.
// At most one row exists per tenant.
type AggregationSettingsModel struct {
	BaseModel
	TenantID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	MinConfidence float64   `gorm:"not null"`
	BatchSize     int       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AggregationSettingsModel) TableName() string {
	return "aggregation_settings"
}

// ToDomain converts the persistence model to domain AggregationSettings.
func (m *AggregationSettingsModel) ToDomain() insight.AggregationSettings {
	return insight.AggregationSettings{
		MinConfidence: m.MinConfidence,
		BatchSize:     m.BatchSize,
	}
}
