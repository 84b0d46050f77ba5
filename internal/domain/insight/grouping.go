package insight

import (
	"math"
	"sort"
	"strings"

	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
)

// DiscardReasonLowConfidence is stamped on every signal of a group that
// fell under the confidence floor.
const DiscardReasonLowConfidence = "low_confidence_group"

// SignalGroup is one candidate insight: the pending signals sharing a
// grouping key.
type SignalGroup struct {
	Key            string
	Category       string
	Type           string
	CorrelationKey string
	ClientID       *uuid.UUID
	Signals        []*signal.Signal
}

// GroupSignals partitions a tenant's pending batch on
// category/type/correlation-key/client. Signals sharing all four always
// land together; changing any one splits them. Groups come back in stable
// key order.
func GroupSignals(signals []*signal.Signal) []*SignalGroup {
	byKey := make(map[string]*SignalGroup)

	for _, s := range signals {
		key := groupKey(s)
		group, ok := byKey[key]
		if !ok {
			group = &SignalGroup{
				Key:            key,
				Category:       s.Category(),
				Type:           s.Type,
				CorrelationKey: s.CorrelationKey,
				ClientID:       s.ClientID,
			}
			byKey[key] = group
		}
		group.Signals = append(group.Signals, s)
	}

	groups := make([]*SignalGroup, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

func groupKey(s *signal.Signal) string {
	corr := s.CorrelationKey
	if corr == "" {
		corr = "none"
	}
	client := "none"
	if s.ClientID != nil {
		client = s.ClientID.String()
	}
	return strings.Join([]string{s.TenantID.String(), s.Category(), s.Type, corr, client}, "::")
}

// MaxSeverity is the worst severity among the group's signals.
func (g *SignalGroup) MaxSeverity() Severity {
	max := SeverityLow
	for _, s := range g.Signals {
		if sev := ParseSeverity(s.Severity()); sev.Rank() > max.Rank() {
			max = sev
		}
	}
	return max
}

// Confidence scores the group in [0,1]: signal count saturating at five,
// the worst severity, whether a real correlation key tied the group
// together, plus a flat base.
func (g *SignalGroup) Confidence() float64 {
	count := math.Min(float64(len(g.Signals))/5.0, 1.0) * 0.3
	severity := severityFactor(g.MaxSeverity()) * 0.3

	correlation := 0.1
	if g.CorrelationKey != "" {
		correlation = 0.2
	}

	return count + severity + correlation + 0.1
}

func severityFactor(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.8
	case SeverityMedium:
		return 0.6
	default:
		return 0.4
	}
}

// SignalIDs lists the constituent signal ids in batch order.
func (g *SignalGroup) SignalIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(g.Signals))
	for i, s := range g.Signals {
		ids[i] = s.ID
	}
	return ids
}

// MaxPercentChange is the largest absolute percent_change any constituent
// reported, zero when none did.
func (g *SignalGroup) MaxPercentChange() float64 {
	var max float64
	for _, s := range g.Signals {
		if pct, ok := s.Payload.Float64At("percent_change"); ok {
			if abs := math.Abs(pct); abs > max {
				max = abs
			}
		}
	}
	return max
}

// SignalTypes lists the distinct constituent types in first-seen order.
func (g *SignalGroup) SignalTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, s := range g.Signals {
		if !seen[s.Type] {
			seen[s.Type] = true
			types = append(types, s.Type)
		}
	}
	return types
}

// Metadata is the supporting detail stored on the produced insight.
func (g *SignalGroup) Metadata() map[string]any {
	meta := map[string]any{
		"signal_count": len(g.Signals),
		"signal_types": g.SignalTypes(),
	}
	if pct := g.MaxPercentChange(); pct > 0 {
		meta["max_percent_change"] = pct
	}
	return meta
}

// AggregationSettings is the per-tenant tuning for the aggregator.
type AggregationSettings struct {
	MinConfidence float64 `json:"min_confidence"`
	BatchSize     int     `json:"batch_size"`
}

// DefaultAggregationSettings returns the stock floor and batch bound.
func DefaultAggregationSettings() AggregationSettings {
	return AggregationSettings{MinConfidence: 0.3, BatchSize: 100}
}

// Normalized replaces out-of-range values with the defaults.
func (s AggregationSettings) Normalized() AggregationSettings {
	defaults := DefaultAggregationSettings()
	if s.MinConfidence <= 0 || s.MinConfidence > 1 {
		s.MinConfidence = defaults.MinConfidence
	}
	if s.BatchSize <= 0 {
		s.BatchSize = defaults.BatchSize
	}
	return s
}
