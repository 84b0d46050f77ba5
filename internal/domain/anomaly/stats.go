package anomaly

import (
	"math"
	"sort"
)

// seriesStats summarizes the historical window a latest value is tested
// against.
type seriesStats struct {
	Mean     float64
	StdDev   float64
	Size     int
	IQRLower float64
	IQRUpper float64
}

func computeStats(window []float64) seriesStats {
	s := seriesStats{Size: len(window)}
	if s.Size == 0 {
		s.IQRLower = math.Inf(-1)
		s.IQRUpper = math.Inf(1)
		return s
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	s.Mean = sum / float64(s.Size)

	var sq float64
	for _, v := range window {
		d := v - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(s.Size))

	s.IQRLower, s.IQRUpper = iqrBounds(window)
	return s
}

// zScore measures how many standard deviations value sits from the window
// mean. A flat window has no spread to score against, so it contributes
// nothing; percent change still carries the movement.
func zScore(value, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (value - mean) / stdDev
}

// percentChange is the relative movement of value against the window mean.
// A zero mean with a nonzero value is reported as a full swing in the
// direction of the value.
func percentChange(value, mean float64) float64 {
	if mean == 0 {
		if value == 0 {
			return 0
		}
		if value > 0 {
			return 100
		}
		return -100
	}
	return (value - mean) / mean * 100
}

// iqrBounds returns the Tukey fences Q1-1.5*IQR and Q3+1.5*IQR. Windows
// with fewer than 4 points cannot support quartiles and get open bounds.
func iqrBounds(window []float64) (float64, float64) {
	if len(window) < 4 {
		return math.Inf(-1), math.Inf(1)
	}

	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)

	q1 := sorted[int(math.Floor(float64(len(sorted))*0.25))]
	q3 := sorted[int(math.Floor(float64(len(sorted))*0.75))]
	iqr := q3 - q1

	return q1 - 1.5*iqr, q3 + 1.5*iqr
}
