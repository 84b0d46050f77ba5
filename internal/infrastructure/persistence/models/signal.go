package models

import (
	"encoding/json"
	"time"

	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("persistence.models")

// SignalModel is the persistence model for the Signal aggregate root.
// Deduplication rests on the unique (tenant_id, dedup_hash) index created
// by the schema migration; inserts target it with ON CONFLICT DO NOTHING.
type SignalModel struct {
	TenantAggregateModel
	Source         string            `gorm:"type:varchar(20);not null;index"`
	Type           string            `gorm:"type:varchar(100);not null;index"`
	Urgency        string            `gorm:"type:varchar(20);not null"`
	Payload        datatypes.JSONMap `gorm:"type:jsonb"`
	ClientID       *uuid.UUID        `gorm:"type:uuid;index"`
	CorrelationKey string            `gorm:"type:varchar(200)"`
	DedupHash      string            `gorm:"type:varchar(64);not null;index"`
	Status         string            `gorm:"type:varchar(30);not null;index"`
	StatusReason   string            `gorm:"type:text"`
	InsightID      *uuid.UUID        `gorm:"type:uuid;index"`
	RetryCount     int               `gorm:"not null;default:0"`
	ReceivedAt     time.Time         `gorm:"not null;index"`
	ProcessedAt    *time.Time
}

// TableName returns the table name for GORM
func (SignalModel) TableName() string {
	return "signals"
}

// ToDomain converts the persistence model to a domain Signal aggregate.
func (m *SignalModel) ToDomain() *signal.Signal {
	s := &signal.Signal{
		Source:         signal.Source(m.Source),
		Type:           m.Type,
		Urgency:        signal.Urgency(m.Urgency),
		Payload:        signal.Payload(m.Payload),
		ClientID:       m.ClientID,
		CorrelationKey: m.CorrelationKey,
		DedupHash:      m.DedupHash,
		Status:         signal.Status(m.Status),
		StatusReason:   m.StatusReason,
		InsightID:      m.InsightID,
		RetryCount:     m.RetryCount,
		ReceivedAt:     m.ReceivedAt,
		ProcessedAt:    m.ProcessedAt,
	}
	m.PopulateTenantAggregateRoot(&s.TenantAggregateRoot)
	return s
}

// FromDomain populates the persistence model from a domain Signal aggregate.
func (m *SignalModel) FromDomain(s *signal.Signal) {
	m.FromDomainTenantAggregateRoot(s.TenantAggregateRoot)
	m.Source = string(s.Source)
	m.Type = s.Type
	m.Urgency = string(s.Urgency)
	m.Payload = datatypes.JSONMap(s.Payload)
	m.ClientID = s.ClientID
	m.CorrelationKey = s.CorrelationKey
	m.DedupHash = s.DedupHash
	m.Status = string(s.Status)
	m.StatusReason = s.StatusReason
	m.InsightID = s.InsightID
	m.RetryCount = s.RetryCount
	m.ReceivedAt = s.ReceivedAt
	m.ProcessedAt = s.ProcessedAt
}

// SignalModelFromDomain creates a new persistence model from a domain Signal aggregate.
func SignalModelFromDomain(s *signal.Signal) *SignalModel {
	m := &SignalModel{}
	m.FromDomain(s)
	return m
}

// RoutingRuleModel is the persistence model for the RoutingRule aggregate root.
type RoutingRuleModel struct {
	TenantAggregateModel
	Name          string    `gorm:"type:varchar(200);not null"`
	Source        string    `gorm:"type:varchar(20);index"`
	SignalType    string    `gorm:"type:varchar(100);index"`
	UrgenciesJSON string    `gorm:"column:urgencies;type:jsonb;default:'[]'"`
	FiltersJSON   string    `gorm:"column:filters;type:jsonb;default:'[]'"`
	WorkflowID    uuid.UUID `gorm:"type:uuid;not null"`
	Priority      int       `gorm:"not null;default:0"`
	Enabled       bool      `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (RoutingRuleModel) TableName() string {
	return "routing_rules"
}

// ToDomain converts the persistence model to a domain RoutingRule aggregate.
func (m *RoutingRuleModel) ToDomain() *signal.RoutingRule {
	rule := &signal.RoutingRule{
		Name:       m.Name,
		Source:     signal.Source(m.Source),
		SignalType: m.SignalType,
		WorkflowID: m.WorkflowID,
		Priority:   m.Priority,
		Enabled:    m.Enabled,
	}
	m.PopulateTenantAggregateRoot(&rule.TenantAggregateRoot)

	if m.UrgenciesJSON != "" && m.UrgenciesJSON != "[]" {
		var urgencies []signal.Urgency
		if err := json.Unmarshal([]byte(m.UrgenciesJSON), &urgencies); err != nil {
			modelLogger.Warn("failed to parse routing rule urgencies JSON",
				zap.String("rule_id", m.ID.String()),
				zap.String("raw_json", m.UrgenciesJSON),
				zap.Error(err))
		} else {
			rule.Urgencies = urgencies
		}
	}

	if m.FiltersJSON != "" && m.FiltersJSON != "[]" {
		var filters []signal.PayloadFilter
		if err := json.Unmarshal([]byte(m.FiltersJSON), &filters); err != nil {
			modelLogger.Warn("failed to parse routing rule filters JSON",
				zap.String("rule_id", m.ID.String()),
				zap.String("raw_json", m.FiltersJSON),
				zap.Error(err))
		} else {
			rule.Filters = filters
		}
	}

	return rule
}

// FromDomain populates the persistence model from a domain RoutingRule aggregate.
func (m *RoutingRuleModel) FromDomain(r *signal.RoutingRule) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.Name = r.Name
	m.Source = string(r.Source)
	m.SignalType = r.SignalType
	m.WorkflowID = r.WorkflowID
	m.Priority = r.Priority
	m.Enabled = r.Enabled

	if len(r.Urgencies) > 0 {
		if jsonBytes, err := json.Marshal(r.Urgencies); err == nil {
			m.UrgenciesJSON = string(jsonBytes)
		} else {
			m.UrgenciesJSON = "[]"
		}
	} else {
		m.UrgenciesJSON = "[]"
	}

	if len(r.Filters) > 0 {
		if jsonBytes, err := json.Marshal(r.Filters); err == nil {
			m.FiltersJSON = string(jsonBytes)
		} else {
			m.FiltersJSON = "[]"
		}
	} else {
		m.FiltersJSON = "[]"
	}
}

// RoutingRuleModelFromDomain creates a new persistence model from a domain RoutingRule aggregate.
func RoutingRuleModelFromDomain(r *signal.RoutingRule) *RoutingRuleModel {
	m := &RoutingRuleModel{}
	m.FromDomain(r)
	return m
}
