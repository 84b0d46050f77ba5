package outcome

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Calibration watches the quality metrics for systematic drift and raises
// breaches that re-enter the pipeline as internal signals. The correlation
// key pins repeated breaches of the same rule to one insight group, so an
// evolving period updates the picture instead of spamming new insights.

// MinSampleSize is the smallest period sample calibration will judge.
const MinSampleSize = 5

const (
	RuleHighRejection = "high_rejection"
	RuleLowSuccess    = "low_success"
	RuleHighVariance  = "high_variance"
)

const (
	highRejectionThreshold = 0.6
	lowSuccessThreshold    = 0.5
	minMeasuredForSuccess  = 5
)

var highVarianceThreshold = decimal.NewFromFloat(0.3)

// CalibrationBreach is one tripped rule with the value that tripped it.
type CalibrationBreach struct {
	Rule      string
	Value     float64
	Threshold float64
}

// EvaluateCalibration checks the three drift rules against a freshly
// recomputed metric. Metrics under the minimum sample stay unjudged.
func EvaluateCalibration(m *QualityMetric) []CalibrationBreach {
	if m == nil || m.SampleSize < MinSampleSize {
		return nil
	}

	var breaches []CalibrationBreach

	if m.AcceptanceRate < highRejectionThreshold {
		breaches = append(breaches, CalibrationBreach{
			Rule:      RuleHighRejection,
			Value:     m.AcceptanceRate,
			Threshold: highRejectionThreshold,
		})
	}

	if m.MeasuredCount >= minMeasuredForSuccess && m.MeasuredSuccessRate < lowSuccessThreshold {
		breaches = append(breaches, CalibrationBreach{
			Rule:      RuleLowSuccess,
			Value:     m.MeasuredSuccessRate,
			Threshold: lowSuccessThreshold,
		})
	}

	if m.AvgVariance.Abs().GreaterThan(highVarianceThreshold) {
		breaches = append(breaches, CalibrationBreach{
			Rule:      RuleHighVariance,
			Value:     m.AvgVariance.InexactFloat64(),
			Threshold: highVarianceThreshold.InexactFloat64(),
		})
	}

	return breaches
}

// SignalType is the signal type the breach emits, e.g.
// "calibration:high_rejection".
func (b CalibrationBreach) SignalType() string {
	return "calibration:" + b.Rule
}

// CorrelationKey groups repeated breaches of the same rule and scope:
// "calibration:{rule}:{client-or-global}".
func (b CalibrationBreach) CorrelationKey(m *QualityMetric) string {
	scope := "global"
	if m.ClientID != nil {
		scope = m.ClientID.String()
	}
	return fmt.Sprintf("calibration:%s:%s", b.Rule, scope)
}

// SignalPayload is the raw payload handed to the router for this breach.
// Identical re-runs over unchanged data hash identically and dedup away.
func (b CalibrationBreach) SignalPayload(m *QualityMetric) map[string]any {
	payload := map[string]any{
		"type":                b.SignalType(),
		"rule":                b.Rule,
		"recommendation_type": m.RecommendationType,
		"period":              m.Period,
		"value":               b.Value,
		"threshold":           b.Threshold,
		"sample_size":         m.SampleSize,
		"correlation_key":     b.CorrelationKey(m),
	}
	if m.ClientID != nil {
		payload["client_id"] = m.ClientID.String()
	}
	if severity := b.severity(); severity != "" {
		payload["severity"] = severity
	}
	return payload
}

// severity biases rejection and success drift above variance drift:
// clients ignoring or failing recommendations hurts more than noisy
// predictions.
func (b CalibrationBreach) severity() string {
	switch b.Rule {
	case RuleHighRejection, RuleLowSuccess:
		return "high"
	default:
		return ""
	}
}
