package outcome

import "github.com/shopspring/decimal"

// Direction classifies how reality compared to the prediction.
type Direction string

const (
	DirectionOverperformed  Direction = "overperformed"
	DirectionUnderperformed Direction = "underperformed"
	DirectionOnTarget       Direction = "on_target"
)

// directionBand is the tolerance around zero variance that still counts
// as on target.
var directionBand = decimal.NewFromFloat(0.1)

// ComputeVariance averages the per-field relative error
// (actual-predicted)/predicted over the fields present in both maps.
// Fields predicted at zero are skipped. The second return is false when
// no field was comparable.
func ComputeVariance(predicted, actual ImpactMap) (decimal.Decimal, bool) {
	var sum decimal.Decimal
	fields := 0

	for name, predictedValue := range predicted {
		actualValue, ok := actual[name]
		if !ok {
			continue
		}
		if predictedValue.IsZero() {
			continue
		}
		sum = sum.Add(actualValue.Sub(predictedValue).Div(predictedValue))
		fields++
	}

	if fields == 0 {
		return decimal.Zero, false
	}
	return sum.Div(decimal.NewFromInt(int64(fields))), true
}

// DirectionFor maps a variance score onto its direction: more than +0.1
// overperformed, less than -0.1 underperformed, anything between on
// target.
func DirectionFor(variance decimal.Decimal) Direction {
	switch {
	case variance.GreaterThan(directionBand):
		return DirectionOverperformed
	case variance.LessThan(directionBand.Neg()):
		return DirectionUnderperformed
	default:
		return DirectionOnTarget
	}
}
