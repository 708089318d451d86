package forecast

import (
	"math"

	"aidflow/internal/types"
)

// Confidence interval shaping. The half-width grows as model accuracy drops:
// width = |predicted| * (baseConfidenceWidth + accuracyWidthScale * (100-accuracy)/100).
const (
	baseConfidenceWidth = 0.10
	accuracyWidthScale  = 0.25

	// fallbackWidth is the relative half-width used on the trend-only paths.
	fallbackWidth = 0.20
)

// Flat-prediction correction. A first-step prediction within flatThreshold
// of the last observation is nudged along the recent trend, scaled down by
// flatCorrectionRate, so charts never show a dead-flat first year.
const (
	flatThreshold      = 1.0
	flatCorrectionRate = 0.75
	recentTrendWindow  = 3
)

// driftRate controls how strongly the long-run average annual change is
// blended into multi-step predictions: step i gains driftRate * avgChange * i.
const driftRate = 0.5

// fallbackGrowthFactor is the per-year geometric growth applied on the
// trend-only path when the last observation is zero.
const fallbackGrowthFactor = 1.05

// predict produces the forecast points for the given horizon. Each step uses
// the fitted regressor when one is available, with the flat-prediction
// correction on step one and trend drift on later steps; otherwise the
// geometric trend fallback. Bounds are clamped so 0 <= lower <= predicted <=
// upper always holds.
func (tm *trainedModel) predict(series types.ObservationSeries, horizon int) []types.PredictionPoint {
	amounts := series.Amounts()
	lastYear := series.LastYear()
	base := amounts[len(amounts)-1]
	avgChange := series.AvgAnnualChange()

	points := make([]types.PredictionPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		var predicted, variability float64

		if tm.useML {
			predicted = tm.reg.Predict(tm.frame.futureRow(i))

			if isFinite(predicted) {
				if i == 1 && math.Abs(predicted-base) < flatThreshold {
					predicted = base + recentTrend(amounts, avgChange)*flatCorrectionRate
				}
				if i > 1 {
					predicted += avgChange * driftRate * float64(i)
				}
				widthFactor := baseConfidenceWidth + accuracyWidthScale*(100-tm.accuracy)/100
				variability = math.Abs(predicted) * widthFactor
			} else {
				// Degenerate model output: fall back to a linear projection
				// for this step only.
				predicted = base + avgChange*float64(i)
				variability = math.Abs(predicted) * fallbackWidth
			}
		} else {
			growthFactor := fallbackGrowthFactor
			if base > 0 {
				growthFactor = 1 + avgChange/base*driftRate
			}
			predicted = base * math.Pow(growthFactor, float64(i))
			variability = math.Abs(predicted) * fallbackWidth
		}

		lower := predicted - variability
		upper := predicted + variability

		predicted = math.Max(0, predicted)
		lower = math.Max(0, math.Min(lower, predicted))
		upper = math.Max(upper, predicted)

		points = append(points, types.PredictionPoint{
			Year:      lastYear + i,
			Predicted: round2(predicted),
			Lower:     round2(lower),
			Upper:     round2(upper),
		})
	}

	return points
}

// recentTrend averages the year-over-year deltas across the trailing window,
// falling back to the long-run average change for very short series.
func recentTrend(amounts []float64, avgChange float64) float64 {
	if len(amounts) < recentTrendWindow {
		return avgChange
	}
	tail := amounts[len(amounts)-recentTrendWindow:]
	sum := 0.0
	for i := 1; i < len(tail); i++ {
		sum += tail[i] - tail[i-1]
	}
	return sum / float64(len(tail)-1)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
