package models

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/anomaly"
	"github.com/google/uuid"
)

// MetricPointModel is the persistence model for daily metric observations.
// One row exists per (tenant, client, metric, day); the schema migration
// backs that with a unique index and re-syncs upsert against it.
type MetricPointModel struct {
	BaseModel
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	ClientID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Metric     string    `gorm:"type:varchar(30);not null"`
	Value      float64   `gorm:"not null"`
	ObservedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (MetricPointModel) TableName() string {
	return "metric_points"
}

// ToDomain converts the persistence model to a domain MetricPoint.
func (m *MetricPointModel) ToDomain() *anomaly.MetricPoint {
	return &anomaly.MetricPoint{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		ClientID:   m.ClientID,
		Metric:     anomaly.MetricType(m.Metric),
		Value:      m.Value,
		ObservedAt: m.ObservedAt,
	}
}

// FromDomain populates the persistence model from a domain MetricPoint.
func (m *MetricPointModel) FromDomain(p *anomaly.MetricPoint) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.TenantID = p.TenantID
	m.ClientID = p.ClientID
	m.Metric = string(p.Metric)
	m.Value = p.Value
	m.ObservedAt = p.ObservedAt
}

// MetricPointModelFromDomain creates a new persistence model from a domain MetricPoint.
func MetricPointModelFromDomain(p *anomaly.MetricPoint) *MetricPointModel {
	m := &MetricPointModel{}
	m.FromDomain(p)
	return m
}

// AnomalyModel is the persistence model for graded detections. Rows are
// written once per detection run and only touched again to record emission.
type AnomalyModel struct {
	BaseModel
	TenantID            uuid.UUID  `gorm:"type:uuid;not null;index"`
	ClientID            uuid.UUID  `gorm:"type:uuid;not null;index"`
	Metric              string     `gorm:"type:varchar(30);not null"`
	Type                string     `gorm:"type:varchar(50);not null"`
	ObservedValue       float64    `gorm:"not null"`
	ExpectedValue       float64    `gorm:"not null"`
	StdDev              float64    `gorm:"not null"`
	ZScore              float64    `gorm:"not null"`
	PercentChange       float64    `gorm:"not null"`
	Confidence          float64    `gorm:"not null"`
	Severity            string     `gorm:"type:varchar(20);not null;index"`
	IsFalsePositive     bool       `gorm:"not null;default:false"`
	FalsePositiveReason string     `gorm:"type:varchar(100)"`
	IQRLower            float64    `gorm:"column:iqr_lower;not null"`
	IQRUpper            float64    `gorm:"column:iqr_upper;not null"`
	IQROutlier          bool       `gorm:"column:iqr_outlier;not null;default:false"`
	SampleSize          int        `gorm:"not null"`
	ObservedAt          time.Time  `gorm:"not null;index"`
	SignalID            *uuid.UUID `gorm:"type:uuid;index"`
	Emitted             bool       `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (AnomalyModel) TableName() string {
	return "anomalies"
}

// ToDomain converts the persistence model to a domain Anomaly.
func (m *AnomalyModel) ToDomain() *anomaly.Anomaly {
	return &anomaly.Anomaly{
		BaseEntity:          m.BaseModel.ToDomain(),
		TenantID:            m.TenantID,
		ClientID:            m.ClientID,
		Metric:              anomaly.MetricType(m.Metric),
		Type:                m.Type,
		ObservedValue:       m.ObservedValue,
		ExpectedValue:       m.ExpectedValue,
		StdDev:              m.StdDev,
		ZScore:              m.ZScore,
		PercentChange:       m.PercentChange,
		Confidence:          m.Confidence,
		Severity:            anomaly.Severity(m.Severity),
		IsFalsePositive:     m.IsFalsePositive,
		FalsePositiveReason: m.FalsePositiveReason,
		IQRLower:            m.IQRLower,
		IQRUpper:            m.IQRUpper,
		IQROutlier:          m.IQROutlier,
		SampleSize:          m.SampleSize,
		ObservedAt:          m.ObservedAt,
		SignalID:            m.SignalID,
		Emitted:             m.Emitted,
	}
}

// FromDomain populates the persistence model from a domain Anomaly.
func (m *AnomalyModel) FromDomain(a *anomaly.Anomaly) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.TenantID = a.TenantID
	m.ClientID = a.ClientID
	m.Metric = string(a.Metric)
	m.Type = a.Type
	m.ObservedValue = a.ObservedValue
	m.ExpectedValue = a.ExpectedValue
	m.StdDev = a.StdDev
	m.ZScore = a.ZScore
	m.PercentChange = a.PercentChange
	m.Confidence = a.Confidence
	m.Severity = string(a.Severity)
	m.IsFalsePositive = a.IsFalsePositive
	m.FalsePositiveReason = a.FalsePositiveReason
	m.IQRLower = a.IQRLower
	m.IQRUpper = a.IQRUpper
	m.IQROutlier = a.IQROutlier
	m.SampleSize = a.SampleSize
	m.ObservedAt = a.ObservedAt
	m.SignalID = a.SignalID
	m.Emitted = a.Emitted
}

// AnomalyModelFromDomain creates a new persistence model from a domain Anomaly.
func AnomalyModelFromDomain(a *anomaly.Anomaly) *AnomalyModel {
	m := &AnomalyModel{}
	m.FromDomain(a)
	return m
}

// ThresholdOverrideModel is the persistence model for threshold tuning
// records. A null client_id marks a tenant-wide override.
type ThresholdOverrideModel struct {
	TenantAggregateModel
	ClientID      *uuid.UUID `gorm:"type:uuid;index"`
	Metric        string     `gorm:"type:varchar(30);not null"`
	ZScore        *float64
	PercentChange *float64
	MinDataPoints *int
	Enabled       *bool
}

// TableName returns the table name for GORM
func (ThresholdOverrideModel) TableName() string {
	return "threshold_overrides"
}

// ToDomain converts the persistence model to a domain ThresholdOverride.
func (m *ThresholdOverrideModel) ToDomain() *anomaly.ThresholdOverride {
	o := &anomaly.ThresholdOverride{
		ClientID:      m.ClientID,
		Metric:        anomaly.MetricType(m.Metric),
		ZScore:        m.ZScore,
		PercentChange: m.PercentChange,
		MinDataPoints: m.MinDataPoints,
		Enabled:       m.Enabled,
	}
	m.PopulateTenantAggregateRoot(&o.TenantAggregateRoot)
	return o
}

// FromDomain populates the persistence model from a domain ThresholdOverride.
func (m *ThresholdOverrideModel) FromDomain(o *anomaly.ThresholdOverride) {
	m.FromDomainTenantAggregateRoot(o.TenantAggregateRoot)
	m.ClientID = o.ClientID
	m.Metric = string(o.Metric)
	m.ZScore = o.ZScore
	m.PercentChange = o.PercentChange
	m.MinDataPoints = o.MinDataPoints
	m.Enabled = o.Enabled
}

// ThresholdOverrideModelFromDomain creates a new persistence model from a domain ThresholdOverride.
func ThresholdOverrideModelFromDomain(o *anomaly.ThresholdOverride) *ThresholdOverrideModel {
	m := &ThresholdOverrideModel{}
	m.FromDomain(o)
	return m
}
