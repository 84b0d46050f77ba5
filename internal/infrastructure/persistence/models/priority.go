package models

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/priority"
	"github.com/google/uuid"
)

// PriorityModel is the persistence model for the Priority aggregate root.
// The unique index on insight_id is the fence that keeps scoring one-to-one
// with insights across concurrent workers.
type PriorityModel struct {
	TenantAggregateModel
	InsightID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	CompositeScore   float64   `gorm:"not null;index"`
	ImpactScore      float64   `gorm:"not null"`
	UrgencyScore     float64   `gorm:"not null"`
	ConfidenceScore  float64   `gorm:"not null"`
	ResourceScore    float64   `gorm:"not null"`
	Bucket           string    `gorm:"type:varchar(20);not null;index"`
	Status           string    `gorm:"type:varchar(20);not null;index"`
	RecommendedDueAt time.Time `gorm:"not null;index"`
	ActedAt          *time.Time
}

// TableName returns the table name for GORM
func (PriorityModel) TableName() string {
	return "priorities"
}

// ToDomain converts the persistence model to a domain Priority aggregate.
func (m *PriorityModel) ToDomain() *priority.Priority {
	p := &priority.Priority{
		InsightID:        m.InsightID,
		CompositeScore:   m.CompositeScore,
		ImpactScore:      m.ImpactScore,
		UrgencyScore:     m.UrgencyScore,
		ConfidenceScore:  m.ConfidenceScore,
		ResourceScore:    m.ResourceScore,
		Bucket:           priority.Bucket(m.Bucket),
		Status:           priority.Status(m.Status),
		RecommendedDueAt: m.RecommendedDueAt,
		ActedAt:          m.ActedAt,
	}
	m.PopulateTenantAggregateRoot(&p.TenantAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain Priority aggregate.
func (m *PriorityModel) FromDomain(p *priority.Priority) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.InsightID = p.InsightID
	m.CompositeScore = p.CompositeScore
	m.ImpactScore = p.ImpactScore
	m.UrgencyScore = p.UrgencyScore
	m.ConfidenceScore = p.ConfidenceScore
	m.ResourceScore = p.ResourceScore
	m.Bucket = string(p.Bucket)
	m.Status = string(p.Status)
	m.RecommendedDueAt = p.RecommendedDueAt
	m.ActedAt = p.ActedAt
}

// PriorityModelFromDomain creates a new persistence model from a domain Priority aggregate.
func PriorityModelFromDomain(p *priority.Priority) *PriorityModel {
	m := &PriorityModel{}
	m.FromDomain(p)
	return m
}

// WeightConfigModel stores the per-tenant scoring weight record.
// At most one row exists per tenant.
type WeightConfigModel struct {
	BaseModel
	TenantID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Impact     float64   `gorm:"not null"`
	Urgency    float64   `gorm:"not null"`
	Confidence float64   `gorm:"not null"`
	Resource   float64   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WeightConfigModel) TableName() string {
	return "weight_configs"
}

// ToDomain converts the persistence model to domain WeightConfig.
func (m *WeightConfigModel) ToDomain() priority.WeightConfig {
	return priority.WeightConfig{
		Impact:     m.Impact,
		Urgency:    m.Urgency,
		Confidence: m.Confidence,
		Resource:   m.Resource,
	}
}
