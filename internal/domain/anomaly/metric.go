package anomaly

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// MetricType identifies one of the tracked client performance series.
type MetricType string

const (
	MetricSessions           MetricType = "sessions"
	MetricConversions        MetricType = "conversions"
	MetricClicks             MetricType = "clicks"
	MetricImpressions        MetricType = "impressions"
	MetricOrganicClicks      MetricType = "organic_clicks"
	MetricOrganicImpressions MetricType = "organic_impressions"
	MetricAvgPosition        MetricType = "avg_position"
	MetricSpend              MetricType = "spend"
)

// AllMetricTypes returns the detection scan order.
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricSessions,
		MetricConversions,
		MetricClicks,
		MetricImpressions,
		MetricOrganicClicks,
		MetricOrganicImpressions,
		MetricAvgPosition,
		MetricSpend,
	}
}

func (m MetricType) IsValid() bool {
	switch m {
	case MetricSessions, MetricConversions, MetricClicks, MetricImpressions,
		MetricOrganicClicks, MetricOrganicImpressions, MetricAvgPosition, MetricSpend:
		return true
	}
	return false
}

// LowerIsBetter reports whether a rising value is a regression. Average
// search position is a rank: position 2 outperforms position 8.
func (m MetricType) LowerIsBetter() bool {
	return m == MetricAvgPosition
}

// IsTraffic reports whether the metric counts visitor volume. Traffic
// series sag on weekends, which the false-positive pass accounts for.
func (m MetricType) IsTraffic() bool {
	switch m {
	case MetricSessions, MetricClicks, MetricImpressions, MetricOrganicClicks, MetricOrganicImpressions:
		return true
	}
	return false
}

// MetricPoint is one daily observation of a client metric, written by the
// external sync jobs and read back by the detection engine.
type MetricPoint struct {
	shared.BaseEntity
	TenantID   uuid.UUID  `json:"tenant_id"`
	ClientID   uuid.UUID  `json:"client_id"`
	Metric     MetricType `json:"metric"`
	Value      float64    `json:"value"`
	ObservedAt time.Time  `json:"observed_at"`
}

// NewMetricPoint validates and builds a single observation.
func NewMetricPoint(tenantID, clientID uuid.UUID, metric MetricType, value float64, observedAt time.Time) (*MetricPoint, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("CLIENT_REQUIRED", "Client ID is required")
	}
	if !metric.IsValid() {
		return nil, shared.NewDomainError("UNSUPPORTED_METRIC", "Unsupported metric type: "+string(metric))
	}
	if observedAt.IsZero() {
		return nil, shared.NewDomainError("OBSERVATION_DATE_REQUIRED", "Observation date is required")
	}

	return &MetricPoint{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		ClientID:   clientID,
		Metric:     metric,
		Value:      value,
		ObservedAt: observedAt.Truncate(24 * time.Hour),
	}, nil
}
