package forecast

import (
	"fmt"
	"regexp"
	"strings"

	"aidflow/internal/types"
)

// Trend significance threshold in thousands of USD per year. Changes smaller
// than this are reported as stable.
const trendThreshold = 100.0

// billionCutover is the thousands-USD/year magnitude at which trend figures
// switch from the M suffix to the B suffix.
const billionCutover = 1000.0

// Sector names carry OECD CRS outline prefixes ("III.1.a. Education") that
// are stripped before display.
var (
	romanPrefixRe  = regexp.MustCompile(`(?i)^[IVX]+(\.\d+[a-z]*)?\.?\s*`)
	letterPrefixRe = regexp.MustCompile(`(?i)^[a-z]\.?\s*`)
)

// cleanSectorName strips the outline prefix from a sector name for display.
func cleanSectorName(sector string) string {
	s := romanPrefixRe.ReplaceAllString(sector, "")
	s = letterPrefixRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// fixedFeatureImportance is the illustrative importance ranking returned with
// every forecast. The values are display constants, not model outputs.
var fixedFeatureImportance = []types.FeatureImportance{
	{Feature: "Historical Trend", Importance: 0.35},
	{Feature: "GDP Growth", Importance: 0.25},
	{Feature: "Political Stability", Importance: 0.20},
	{Feature: "Natural Disasters", Importance: 0.12},
	{Feature: "Regional Conflicts", Importance: 0.08},
}

// featureImportance returns a copy of the fixed importance ranking so callers
// cannot mutate the shared table.
func featureImportance() []types.FeatureImportance {
	out := make([]types.FeatureImportance, len(fixedFeatureImportance))
	copy(out, fixedFeatureImportance)
	return out
}

// buildInsights renders the narrative insight lines for a forecast: trend
// direction and magnitude, model confidence, the base amount, and an optional
// sector note.
func buildInsights(country, sector string, series types.ObservationSeries, accuracy float64) []string {
	amounts := series.Amounts()
	base := amounts[len(amounts)-1]
	avgChange := series.AvgAnnualChange()

	var insights []string

	switch {
	case avgChange > trendThreshold:
		if avgChange >= billionCutover {
			insights = append(insights, fmt.Sprintf(
				"Aid flows to %s show strong growth trend (+$%.1fB USD/year)", country, avgChange/1000))
		} else {
			insights = append(insights, fmt.Sprintf(
				"Aid flows to %s show positive growth trend (+$%.1fM USD/year)", country, avgChange))
		}
		insights = append(insights, "Continued investment likely reflects development priorities")
	case avgChange < -trendThreshold:
		if -avgChange >= billionCutover {
			insights = append(insights, fmt.Sprintf(
				"Aid flows to %s show declining trend ($%.1fB USD/year)", country, avgChange/1000))
		} else {
			insights = append(insights, fmt.Sprintf(
				"Aid flows to %s show declining trend ($%.1fM USD/year)", country, avgChange))
		}
		insights = append(insights, "May indicate graduation from aid dependency or shifting priorities")
	default:
		insights = append(insights, fmt.Sprintf("Aid flows to %s remain relatively stable", country))
	}

	confidence := int(accuracy)
	insights = append(insights, fmt.Sprintf(
		"Model confidence: %d%% (±%d%% uncertainty)", confidence, 100-confidence))

	insights = append(insights, fmt.Sprintf(
		"Base amount: $%.1fK USD (last recorded year: %d)", base, series.LastYear()))

	if sector != "" && !strings.EqualFold(sector, "all") {
		insights = append(insights, fmt.Sprintf(
			"%s sector represents significant aid allocation", cleanSectorName(sector)))
	}

	return insights
}
