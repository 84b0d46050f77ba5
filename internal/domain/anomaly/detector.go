package anomaly

import (
	"math"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// HistoryWindowDays is how far back detection pulls metric history.
const HistoryWindowDays = 45

// Detector scores client metric series against their thresholds. It is
// pure computation over data the caller already loaded, so one instance
// serves every tenant concurrently.
type Detector struct {
	thresholds map[MetricType]Threshold
}

// NewDetector builds a detector over the given base threshold table. A nil
// table falls back to the stock defaults.
func NewDetector(thresholds map[MetricType]Threshold) *Detector {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Detector{thresholds: thresholds}
}

// DetectClient scores every metric series supplied for one client, with
// stored overrides layered over the base table. Metrics with no series
// are skipped.
func (d *Detector) DetectClient(tenantID, clientID uuid.UUID, series map[MetricType][]MetricPoint, overrides []*ThresholdOverride) []*Anomaly {
	resolved := ResolveThresholds(d.thresholds, overrides, clientID)

	var detections []*Anomaly
	for _, metric := range AllMetricTypes() {
		points, ok := series[metric]
		if !ok {
			continue
		}
		if a := d.DetectMetric(tenantID, clientID, metric, points, resolved[metric]); a != nil {
			detections = append(detections, a)
		}
	}
	return detections
}

// DetectMetric tests the newest point of one series against the rest of
// the window. Points must be ordered oldest first. Returns nil when the
// metric is disabled, the window is too short, or nothing tripped a
// threshold; flagged detections come back graded and screened, including
// the ones the false-positive pass suppressed.
func (d *Detector) DetectMetric(tenantID, clientID uuid.UUID, metric MetricType, points []MetricPoint, t Threshold) *Anomaly {
	if !t.Enabled {
		return nil
	}

	minPoints := t.MinDataPoints
	if minPoints <= 0 {
		minPoints = DefaultMinDataPoints
	}
	if len(points) < minPoints+1 {
		return nil
	}

	latest := points[len(points)-1]
	window := make([]float64, 0, len(points)-1)
	for _, p := range points[:len(points)-1] {
		window = append(window, p.Value)
	}

	stats := computeStats(window)
	z := zScore(latest.Value, stats.Mean, stats.StdDev)
	pct := percentChange(latest.Value, stats.Mean)

	if math.Abs(z) < t.ZScore && math.Abs(pct) < t.PercentChange {
		return nil
	}

	iqrOutlier := latest.Value < stats.IQRLower || latest.Value > stats.IQRUpper

	a := &Anomaly{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		ClientID:      clientID,
		Metric:        metric,
		Type:          TypeForMetric(metric, latest.Value, stats.Mean),
		ObservedValue: latest.Value,
		ExpectedValue: stats.Mean,
		StdDev:        stats.StdDev,
		ZScore:        z,
		PercentChange: pct,
		Confidence:    confidenceFor(stats.Size, math.Abs(z), iqrOutlier),
		Severity:      severityFor(math.Abs(z), math.Abs(pct)),
		IQRLower:      stats.IQRLower,
		IQRUpper:      stats.IQRUpper,
		IQROutlier:    iqrOutlier,
		SampleSize:    stats.Size,
		ObservedAt:    latest.ObservedAt,
	}

	if fp, reason := screenFalsePositive(metric, window, latest.Value, latest.ObservedAt, z); fp {
		a.IsFalsePositive = true
		a.FalsePositiveReason = reason
	}

	return a
}

// severityFor buckets a detection on whichever of deviation or swing is
// more alarming.
func severityFor(absZ, absPct float64) Severity {
	switch {
	case absZ >= 4 || absPct >= 75:
		return SeverityCritical
	case absZ >= 3 || absPct >= 50:
		return SeverityHigh
	case absZ >= 2.5 || absPct >= 30:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// confidenceFor sums three independent contributions: how much history
// backs the window, how extreme the deviation is, and whether the IQR
// fence agrees. Capped at 1.
func confidenceFor(sampleSize int, absZ float64, iqrOutlier bool) float64 {
	var c float64

	switch {
	case sampleSize >= 45:
		c += 0.4
	case sampleSize >= 30:
		c += 0.3
	case sampleSize >= 14:
		c += 0.2
	default:
		c += 0.1
	}

	switch {
	case absZ >= 4:
		c += 0.4
	case absZ >= 3:
		c += 0.3
	case absZ >= 2.5:
		c += 0.25
	case absZ >= 2:
		c += 0.2
	default:
		c += 0.1
	}

	if iqrOutlier {
		c += 0.2
	}

	if c > 1 {
		c = 1
	}
	return c
}
