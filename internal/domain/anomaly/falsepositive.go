package anomaly

import (
	"math"
	"time"
)

// False-positive screening. A detection that trips one of these checks is
// kept for inspection but never converted into a signal.

const (
	ReasonWeekendDip       = "weekend_dip"
	ReasonRecurringValue   = "recurring_value"
	ReasonLowAbsoluteValue = "low_absolute_value"
)

// screenFalsePositive runs the suppression heuristics over a flagged
// detection and returns the first matching reason.
//
// Weekend dip: traffic series routinely sag on Saturday and Sunday; a
// moderate negative z-score on those days is expected seasonality, not an
// incident. Recurring value: when the window already held the latest value
// (within 10%) at least twice, the "outlier" is a level the series visits
// regularly. Low absolute value: single-digit counts swing wildly in
// percentage terms without meaning anything; average position is exempt
// because it legitimately lives below 5.
func screenFalsePositive(metric MetricType, window []float64, latest float64, observedAt time.Time, z float64) (bool, string) {
	if metric.IsTraffic() && isWeekend(observedAt) && z > -3 && z < 0 {
		return true, ReasonWeekendDip
	}

	if recurrences(window, latest) >= 2 {
		return true, ReasonRecurringValue
	}

	if math.Abs(latest) < 5 && metric != MetricAvgPosition {
		return true, ReasonLowAbsoluteValue
	}

	return false, ""
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// recurrences counts window values within 10% of latest.
func recurrences(window []float64, latest float64) int {
	tolerance := math.Abs(latest) * 0.10
	count := 0
	for _, v := range window {
		if math.Abs(v-latest) <= tolerance {
			count++
		}
	}
	return count
}
