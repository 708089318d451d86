package forecast

import (
	"aidflow/internal/types"
)

// Horizon buckets for explanation sets. Short horizons emphasize recent
// trends, medium horizons structural factors, long horizons climate and
// demographic shifts.
const (
	shortHorizonYears  = 3
	mediumHorizonYears = 5
)

// Fallback numbers used when neither a forecast nor historical data is
// available to anchor the explanation.
const (
	fallbackPrediction = 25000.0
	fallbackBaseValue  = 20000.0
)

// shortHorizonExplanations: recency and stability dominate.
var shortHorizonExplanations = []types.Explanation{
	{Feature: "Historical Trend", Impact: 1.31947,
		Description: "Positive long-term aid flow pattern indicates sustained donor commitment",
		Category:    "temporal"},
	{Feature: "Aid Volatility", Impact: -0.08732,
		Description: "Low variability in aid flows affects prediction confidence",
		Category:    "stability"},
	{Feature: "Recent Growth", Impact: 0.01368,
		Description: "Stable aid flows in recent years suggest predictable patterns",
		Category:    "momentum"},
	{Feature: "Development Stage", Impact: 0.2,
		Description: "High development needs drive continued aid requirements",
		Category:    "structural"},
	{Feature: "Economic Cycle", Impact: 0.14266,
		Description: "Global economic conditions favor aid allocation to this region",
		Category:    "external"},
	{Feature: "Political Stability", Impact: 0.06507,
		Description: "Stable political environment affects aid predictability and effectiveness",
		Category:    "governance"},
}

// mediumHorizonExplanations: structural factors take over.
var mediumHorizonExplanations = []types.Explanation{
	{Feature: "Development Stage", Impact: 1.45,
		Description: "Medium-term development needs become primary driver of aid allocation",
		Category:    "structural"},
	{Feature: "Historical Trend", Impact: 0.95,
		Description: "Past aid patterns influence medium-term projections with moderate weight",
		Category:    "temporal"},
	{Feature: "Economic Cycle", Impact: 0.28,
		Description: "Global economic cycles impact medium-term aid commitment sustainability",
		Category:    "external"},
	{Feature: "Political Stability", Impact: 0.18,
		Description: "Government stability affects medium-term aid program effectiveness",
		Category:    "governance"},
	{Feature: "Regional Context", Impact: 0.12,
		Description: "Regional development patterns influence aid allocation strategy",
		Category:    "regional"},
	{Feature: "Aid Volatility", Impact: -0.03,
		Description: "Funding variability has reduced impact over medium timeframes",
		Category:    "stability"},
}

// longHorizonExplanations: structural and external forces dominate.
var longHorizonExplanations = []types.Explanation{
	{Feature: "Development Stage", Impact: 1.82,
		Description: "Long-term development trajectory becomes dominant factor in aid forecasting",
		Category:    "structural"},
	{Feature: "Climate Impact", Impact: 0.67,
		Description: "Climate change effects drive long-term aid requirements for adaptation",
		Category:    "environmental"},
	{Feature: "Economic Transformation", Impact: 0.45,
		Description: "Economic development patterns shape long-term aid needs and graduation",
		Category:    "economic"},
	{Feature: "Demographic Trends", Impact: 0.32,
		Description: "Population growth and urbanization affect long-term development aid",
		Category:    "demographic"},
	{Feature: "Historical Trend", Impact: 0.15,
		Description: "Past patterns have minimal influence on long-term structural changes",
		Category:    "temporal"},
	{Feature: "Global Governance", Impact: 0.08,
		Description: "International policy frameworks shape long-term aid architecture",
		Category:    "governance"},
}

// minimalExplanations is the degraded set returned when explanation assembly
// fails entirely.
var minimalExplanations = []types.Explanation{
	{Feature: "Historical Trend", Impact: 1.2,
		Description: "General aid flow pattern analysis",
		Category:    "temporal"},
	{Feature: "Development Needs", Impact: 0.8,
		Description: "Country development requirements assessment",
		Category:    "structural"},
}

// explanationsForHorizon selects the static explanation table matching the
// forecast horizon.
func explanationsForHorizon(years int) []types.Explanation {
	var src []types.Explanation
	switch {
	case years <= shortHorizonYears:
		src = shortHorizonExplanations
	case years <= mediumHorizonYears:
		src = mediumHorizonExplanations
	default:
		src = longHorizonExplanations
	}
	out := make([]types.Explanation, len(src))
	copy(out, src)
	return out
}

// minimalExplanationSet builds the degraded fallback bundle with fixed
// anchor values.
func minimalExplanationSet(country, sector string) *types.ExplanationSet {
	out := make([]types.Explanation, len(minimalExplanations))
	copy(out, minimalExplanations)
	return &types.ExplanationSet{
		Explanations:    out,
		ModelPrediction: fallbackPrediction,
		BaseValue:       fallbackBaseValue,
		Country:         country,
		Sector:          sector,
	}
}

// seriesMean averages the observed amounts, used as the explanation base value.
func seriesMean(series types.ObservationSeries) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range series {
		sum += p.Amount
	}
	return sum / float64(len(series))
}
