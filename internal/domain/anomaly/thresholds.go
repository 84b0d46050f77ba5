package anomaly

import (
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultMinDataPoints is the smallest historical window the detector will
// score against.
const DefaultMinDataPoints = 14

// Threshold holds the detection cutoffs for one metric.
type Threshold struct {
	ZScore        float64 `json:"z_score"`
	PercentChange float64 `json:"percent_change"`
	MinDataPoints int     `json:"min_data_points"`
	Enabled       bool    `json:"enabled"`
}

// DefaultThresholds returns the stock per-metric cutoffs. Volatile volume
// metrics carry looser percent bounds than the steadier conversion and
// spend series; average position moves in a narrow band so even a 15%
// shift is notable.
func DefaultThresholds() map[MetricType]Threshold {
	return map[MetricType]Threshold{
		MetricSessions:           {ZScore: 2.5, PercentChange: 30, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricConversions:        {ZScore: 2.0, PercentChange: 25, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricClicks:             {ZScore: 2.5, PercentChange: 30, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricImpressions:        {ZScore: 2.5, PercentChange: 35, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricOrganicClicks:      {ZScore: 2.5, PercentChange: 30, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricOrganicImpressions: {ZScore: 2.5, PercentChange: 35, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricAvgPosition:        {ZScore: 2.0, PercentChange: 15, MinDataPoints: DefaultMinDataPoints, Enabled: true},
		MetricSpend:              {ZScore: 2.0, PercentChange: 25, MinDataPoints: DefaultMinDataPoints, Enabled: true},
	}
}

// AggregateTypeThresholdOverride names the override aggregate for events
// and persistence.
const AggregateTypeThresholdOverride = "ThresholdOverride"

// ThresholdOverride is a stored per tenant, optionally per client, tuning
// record for one metric. Nil fields inherit the default (or the tenant-wide
// override when a client-level record sits on top of one).
type ThresholdOverride struct {
	shared.TenantAggregateRoot
	ClientID      *uuid.UUID `json:"client_id,omitempty"`
	Metric        MetricType `json:"metric"`
	ZScore        *float64   `json:"z_score,omitempty"`
	PercentChange *float64   `json:"percent_change,omitempty"`
	MinDataPoints *int       `json:"min_data_points,omitempty"`
	Enabled       *bool      `json:"enabled,omitempty"`
}

// NewThresholdOverride builds an empty override for one metric. Callers
// set the fields they want to pin; everything else keeps inheriting.
func NewThresholdOverride(tenantID uuid.UUID, clientID *uuid.UUID, metric MetricType) (*ThresholdOverride, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if !metric.IsValid() {
		return nil, shared.NewDomainError("UNSUPPORTED_METRIC", "Unsupported metric type: "+string(metric))
	}

	return &ThresholdOverride{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ClientID:            clientID,
		Metric:              metric,
	}, nil
}

// AppliesToClient reports whether the override binds for the given client:
// tenant-wide records bind everywhere, client records only to their client.
func (o *ThresholdOverride) AppliesToClient(clientID uuid.UUID) bool {
	return o.ClientID == nil || *o.ClientID == clientID
}

// Apply layers the pinned fields over base.
func (o *ThresholdOverride) Apply(base Threshold) Threshold {
	out := base
	if o.ZScore != nil {
		out.ZScore = *o.ZScore
	}
	if o.PercentChange != nil {
		out.PercentChange = *o.PercentChange
	}
	if o.MinDataPoints != nil {
		out.MinDataPoints = *o.MinDataPoints
	}
	if o.Enabled != nil {
		out.Enabled = *o.Enabled
	}
	return out
}

// ResolveThresholds folds overrides into the base table for one client.
// Tenant-wide overrides apply first so a client-level record wins any
// field both pin.
func ResolveThresholds(base map[MetricType]Threshold, overrides []*ThresholdOverride, clientID uuid.UUID) map[MetricType]Threshold {
	resolved := make(map[MetricType]Threshold, len(base))
	for metric, t := range base {
		resolved[metric] = t
	}

	for _, o := range overrides {
		if o.ClientID == nil {
			resolved[o.Metric] = o.Apply(resolved[o.Metric])
		}
	}
	for _, o := range overrides {
		if o.ClientID != nil && *o.ClientID == clientID {
			resolved[o.Metric] = o.Apply(resolved[o.Metric])
		}
	}
	return resolved
}
