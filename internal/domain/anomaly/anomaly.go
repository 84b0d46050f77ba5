// Package anomaly flags statistical outliers in client metric series and
// grades them by severity and confidence. Detections are persisted for
// inspection; the ones that clear the emission bar are converted into
// analytics signals and re-enter the pipeline through the router.
package anomaly

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const AggregateTypeAnomaly = "Anomaly"

// MinEmitConfidence gates conversion to a signal. Detections under the bar
// stay recorded but never leave the engine unless the IQR fence also
// flagged them.
const MinEmitConfidence = 0.4

// Severity grades how far outside normal a detection landed.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities for comparison, low first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Anomaly is one graded detection. It is computed fresh on every run and
// never mutated afterwards except to record its emission or suppression.
type Anomaly struct {
	shared.BaseEntity
	TenantID            uuid.UUID  `json:"tenant_id"`
	ClientID            uuid.UUID  `json:"client_id"`
	Metric              MetricType `json:"metric"`
	Type                string     `json:"type"`
	ObservedValue       float64    `json:"observed_value"`
	ExpectedValue       float64    `json:"expected_value"`
	StdDev              float64    `json:"std_dev"`
	ZScore              float64    `json:"z_score"`
	PercentChange       float64    `json:"percent_change"`
	Confidence          float64    `json:"confidence"`
	Severity            Severity   `json:"severity"`
	IsFalsePositive     bool       `json:"is_false_positive"`
	FalsePositiveReason string     `json:"false_positive_reason,omitempty"`
	IQRLower            float64    `json:"iqr_lower"`
	IQRUpper            float64    `json:"iqr_upper"`
	IQROutlier          bool       `json:"iqr_outlier"`
	SampleSize          int        `json:"sample_size"`
	ObservedAt          time.Time  `json:"observed_at"`
	SignalID            *uuid.UUID `json:"signal_id,omitempty"`
	Emitted             bool       `json:"emitted"`
}

// TypeForMetric derives the anomaly type from the metric and the movement
// direction. Average position is a rank, so a rising number is a drop in
// standing, not a spike.
func TypeForMetric(metric MetricType, observed, expected float64) string {
	up := observed > expected
	if metric.LowerIsBetter() {
		if up {
			return "position_drop"
		}
		return "position_improvement"
	}

	var base string
	switch metric {
	case MetricSessions:
		base = "traffic"
	case MetricConversions:
		base = "conversion"
	case MetricClicks:
		base = "click"
	case MetricImpressions:
		base = "impression"
	case MetricOrganicClicks:
		base = "organic_click"
	case MetricOrganicImpressions:
		base = "organic_impression"
	case MetricSpend:
		base = "spend"
	default:
		base = string(metric)
	}

	if up {
		return base + "_spike"
	}
	return base + "_drop"
}

// ShouldEmit reports whether the detection clears the bar for conversion
// into a signal.
func (a *Anomaly) ShouldEmit() bool {
	if a.IsFalsePositive {
		return false
	}
	return a.Confidence >= MinEmitConfidence || a.IQROutlier
}

// MarkEmitted links the detection to the signal it produced.
func (a *Anomaly) MarkEmitted(signalID uuid.UUID) {
	a.Emitted = true
	a.SignalID = &signalID
	a.Touch()
}

// SignalPayload is the raw payload handed to the router when the detection
// is emitted. The analytics adapter keys dedup on the metric, date and
// client fields, so re-running detection for the same day resolves to the
// signal already ingested.
func (a *Anomaly) SignalPayload() map[string]any {
	return map[string]any{
		"type":           a.Type,
		"metric":         string(a.Metric),
		"date":           a.ObservedAt.Format("2006-01-02"),
		"client_id":      a.ClientID.String(),
		"current_value":  a.ObservedValue,
		"expected_value": a.ExpectedValue,
		"z_score":        a.ZScore,
		"percent_change": a.PercentChange,
		"confidence":     a.Confidence,
		"severity":       string(a.Severity),
	}
}
