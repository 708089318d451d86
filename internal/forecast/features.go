// Package forecast implements the aid-flow forecasting engine: feature
// engineering over yearly observation series, deterministic tree-ensemble
// regressors, multi-step forecasting with confidence intervals, and the
// insight and explanation generators that accompany each forecast.
package forecast

import (
	"math"

	"aidflow/internal/types"
)

// Feature column indices. The order is fixed; the regressors and the
// future-row builder both rely on it.
const (
	featYearIdx = iota
	featLag1
	featLag2
	featTrend
	featRollingMean3
	featVolatility3
	featGrowthRate
	featYearSin
	featYearCos

	numFeatures
)

// cycleFloor is the minimum divisor for the economic-cycle sine/cosine
// features, so short series still get a plausible cycle period.
const cycleFloor = 8

// featureFrame holds the engineered feature matrix for one observation
// series. Rows align with the series points; Targets are the observed
// amounts.
type featureFrame struct {
	Rows    [][]float64
	Targets []float64
}

// buildFeatures engineers the model features from a yearly series:
// positional index, one- and two-year lags, first difference, 3-year rolling
// mean, 3-year rolling standard deviation, year-over-year growth rate, and a
// sine/cosine economic-cycle pair. Missing leading values (lags, diffs) are
// backfilled then forward-filled column-wise.
func buildFeatures(series types.ObservationSeries) *featureFrame {
	n := len(series)
	amounts := series.Amounts()

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, numFeatures)
		for j := range rows[i] {
			rows[i][j] = math.NaN()
		}
	}

	for i := 0; i < n; i++ {
		rows[i][featYearIdx] = float64(i)

		if i >= 1 {
			rows[i][featLag1] = amounts[i-1]
			rows[i][featTrend] = amounts[i] - amounts[i-1]
			if amounts[i-1] != 0 {
				rows[i][featGrowthRate] = (amounts[i] - amounts[i-1]) / amounts[i-1]
			} else {
				rows[i][featGrowthRate] = 0
			}
		} else {
			// pct_change of the first row is defined as 0.
			rows[i][featGrowthRate] = 0
		}
		if i >= 2 {
			rows[i][featLag2] = amounts[i-2]
		}

		rows[i][featRollingMean3] = rollingMean(amounts, i, 3)
		rows[i][featVolatility3] = rollingStd(amounts, i, 3)

		sin, cos := cycleFeatures(float64(i), n)
		rows[i][featYearSin] = sin
		rows[i][featYearCos] = cos
	}

	fillMissing(rows)

	return &featureFrame{Rows: rows, Targets: amounts}
}

// futureRow builds the feature vector for a forecast step. It copies the last
// observed row and advances the positional index and cycle features; lags and
// rolling statistics keep their last observed values.
func (f *featureFrame) futureRow(step int) []float64 {
	n := len(f.Rows)
	row := make([]float64, numFeatures)
	copy(row, f.Rows[n-1])

	idx := float64(n + step - 1)
	row[featYearIdx] = idx
	row[featYearSin], row[featYearCos] = cycleFeatures(idx, n)
	return row
}

// cycleFeatures computes the economic-cycle pair for a positional index,
// using the series length (floored at cycleFloor) as the period.
func cycleFeatures(idx float64, n int) (sin, cos float64) {
	period := float64(n)
	if period < cycleFloor {
		period = cycleFloor
	}
	angle := 2 * math.Pi * idx / period
	return math.Sin(angle), math.Cos(angle)
}

// rollingMean computes the mean of the window ending at index i (inclusive),
// with a minimum window of one observation.
func rollingMean(vals []float64, i, window int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range vals[start : i+1] {
		sum += v
	}
	return sum / float64(i+1-start)
}

// rollingStd computes the sample standard deviation of the window ending at
// index i. Windows of one observation yield 0, matching a filled-NaN source.
func rollingStd(vals []float64, i, window int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	w := vals[start : i+1]
	if len(w) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range w {
		mean += v
	}
	mean /= float64(len(w))
	sum := 0.0
	for _, v := range w {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(w)-1))
}

// fillMissing replaces NaNs column-wise with a backward fill followed by a
// forward fill, mirroring how leading lag gaps are patched before training.
func fillMissing(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	for col := 0; col < numFeatures; col++ {
		// Backward fill: take the next valid value below.
		for i := len(rows) - 2; i >= 0; i-- {
			if math.IsNaN(rows[i][col]) && !math.IsNaN(rows[i+1][col]) {
				rows[i][col] = rows[i+1][col]
			}
		}
		// Forward fill whatever remains.
		for i := 1; i < len(rows); i++ {
			if math.IsNaN(rows[i][col]) && !math.IsNaN(rows[i-1][col]) {
				rows[i][col] = rows[i-1][col]
			}
		}
		// A column with no valid value at all becomes zero.
		for i := range rows {
			if math.IsNaN(rows[i][col]) {
				rows[i][col] = 0
			}
		}
	}
}
