package models

import (
	"encoding/json"
	"time"

	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OutcomeModel is the persistence model for the Outcome aggregate root.
type OutcomeModel struct {
	TenantAggregateModel
	RecommendationType  string           `gorm:"type:varchar(100);not null;index"`
	ClientID            *uuid.UUID       `gorm:"type:uuid;index"`
	InsightID           *uuid.UUID       `gorm:"type:uuid;index"`
	PredictedImpactJSON string           `gorm:"column:predicted_impact;type:jsonb;not null"`
	ActualImpactJSON    string           `gorm:"column:actual_impact;type:jsonb"`
	VarianceScore       *decimal.Decimal `gorm:"type:decimal(12,6)"`
	VarianceDirection   string           `gorm:"type:varchar(20)"`
	Status              string           `gorm:"type:varchar(20);not null;index"`
	AcceptedAt          *time.Time
	RejectedAt          *time.Time
	CompletedAt         *time.Time
	MeasuredAt          *time.Time
}

// TableName returns the table name for GORM
func (OutcomeModel) TableName() string {
	return "outcomes"
}

// ToDomain converts the persistence model to a domain Outcome aggregate.
func (m *OutcomeModel) ToDomain() *outcome.Outcome {
	o := &outcome.Outcome{
		RecommendationType: m.RecommendationType,
		ClientID:           m.ClientID,
		InsightID:          m.InsightID,
		PredictedImpact:    outcome.ImpactMap{},
		VarianceScore:      m.VarianceScore,
		VarianceDirection:  outcome.Direction(m.VarianceDirection),
		Status:             outcome.Status(m.Status),
		AcceptedAt:         m.AcceptedAt,
		RejectedAt:         m.RejectedAt,
		CompletedAt:        m.CompletedAt,
		MeasuredAt:         m.MeasuredAt,
	}
	m.PopulateTenantAggregateRoot(&o.TenantAggregateRoot)

	if m.PredictedImpactJSON != "" {
		var predicted outcome.ImpactMap
		if err := json.Unmarshal([]byte(m.PredictedImpactJSON), &predicted); err != nil {
			modelLogger.Warn("failed to parse outcome predicted impact JSON",
				zap.String("outcome_id", m.ID.String()),
				zap.String("raw_json", m.PredictedImpactJSON),
				zap.Error(err))
		} else {
			o.PredictedImpact = predicted
		}
	}

	if m.ActualImpactJSON != "" && m.ActualImpactJSON != "{}" {
		var actual outcome.ImpactMap
		if err := json.Unmarshal([]byte(m.ActualImpactJSON), &actual); err != nil {
			modelLogger.Warn("failed to parse outcome actual impact JSON",
				zap.String("outcome_id", m.ID.String()),
				zap.String("raw_json", m.ActualImpactJSON),
				zap.Error(err))
		} else {
			o.ActualImpact = actual
		}
	}

	return o
}

// FromDomain populates the persistence model from a domain Outcome aggregate.
func (m *OutcomeModel) FromDomain(o *outcome.Outcome) {
	m.FromDomainTenantAggregateRoot(o.TenantAggregateRoot)
	m.RecommendationType = o.RecommendationType
	m.ClientID = o.ClientID
	m.InsightID = o.InsightID
	m.VarianceScore = o.VarianceScore
	m.VarianceDirection = string(o.VarianceDirection)
	m.Status = string(o.Status)
	m.AcceptedAt = o.AcceptedAt
	m.RejectedAt = o.RejectedAt
	m.CompletedAt = o.CompletedAt
	m.MeasuredAt = o.MeasuredAt

	if jsonBytes, err := json.Marshal(o.PredictedImpact); err == nil {
		m.PredictedImpactJSON = string(jsonBytes)
	} else {
		m.PredictedImpactJSON = "{}"
	}

	if len(o.ActualImpact) > 0 {
		if jsonBytes, err := json.Marshal(o.ActualImpact); err == nil {
			m.ActualImpactJSON = string(jsonBytes)
		} else {
			m.ActualImpactJSON = "{}"
		}
	} else {
		m.ActualImpactJSON = "{}"
	}
}

// OutcomeModelFromDomain creates a new persistence model from a domain Outcome aggregate.
func OutcomeModelFromDomain(o *outcome.Outcome) *OutcomeModel {
	m := &OutcomeModel{}
	m.FromDomain(o)
	return m
}

// QualityMetricModel is the persistence model for period quality aggregates.
// One row exists per (tenant, recommendation type, client, period); a null
// client_id marks the tenant-wide scope.
type QualityMetricModel struct {
	TenantAggregateModel
	RecommendationType  string          `gorm:"type:varchar(100);not null;index"`
	ClientID            *uuid.UUID      `gorm:"type:uuid;index"`
	Period              string          `gorm:"type:varchar(7);not null;index"`
	SampleSize          int             `gorm:"not null"`
	AcceptedCount       int             `gorm:"not null"`
	RejectedCount       int             `gorm:"not null"`
	MeasuredCount       int             `gorm:"not null"`
	AcceptanceRate      float64         `gorm:"not null"`
	SuccessRate         float64         `gorm:"not null"`
	CompletionRate      float64         `gorm:"not null"`
	MeasuredSuccessRate float64         `gorm:"not null"`
	AvgVariance         decimal.Decimal `gorm:"type:decimal(12,6);not null"`
	QualityScore        float64         `gorm:"not null"`
	ConfidenceLevel     string          `gorm:"type:varchar(10);not null"`
}

// TableName returns the table name for GORM
func (QualityMetricModel) TableName() string {
	return "quality_metrics"
}

// ToDomain converts the persistence model to a domain QualityMetric.
func (m *QualityMetricModel) ToDomain() *outcome.QualityMetric {
	q := &outcome.QualityMetric{
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
		ConfidenceLevel:     outcome.ConfidenceLevel(m.ConfidenceLevel),
	}
	m.PopulateTenantAggregateRoot(&q.TenantAggregateRoot)
	return q
}

// FromDomain populates the persistence model from a domain QualityMetric.
func (m *QualityMetricModel) FromDomain(q *outcome.QualityMetric) {
	m.FromDomainTenantAggregateRoot(q.TenantAggregateRoot)
	m.RecommendationType = q.RecommendationType
	m.ClientID = q.ClientID
	m.Period = q.Period
	m.SampleSize = q.SampleSize
	m.AcceptedCount = q.AcceptedCount
	m.RejectedCount = q.RejectedCount
	m.MeasuredCount = q.MeasuredCount
	m.AcceptanceRate = q.AcceptanceRate
	m.SuccessRate = q.SuccessRate
	m.CompletionRate = q.CompletionRate
	m.MeasuredSuccessRate = q.MeasuredSuccessRate
	m.AvgVariance = q.AvgVariance
	m.QualityScore = q.QualityScore
	m.ConfidenceLevel = string(q.ConfidenceLevel)
}

// QualityMetricModelFromDomain creates a new persistence model from a domain QualityMetric.
func QualityMetricModelFromDomain(q *outcome.QualityMetric) *QualityMetricModel {
	m := &QualityMetricModel{}
	m.FromDomain(q)
	return m
}
