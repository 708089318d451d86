// Package types defines the shared domain model for the aid-flow statistics
// platform: historical observation series, forecast outputs, reference
// entities (countries, donors, sectors), and the application error type.
package types

import "time"

// ObservationPoint is a single yearly aid observation. Amount is the summed
// disbursement for that year, expressed in thousands of USD (store units).
type ObservationPoint struct {
	Year   int     `json:"year"`
	Amount float64 `json:"amount"`
}

// ObservationSeries is an ordered sequence of yearly observations for one
// country (and optionally one sector). Years ascend strictly; the series is
// not necessarily contiguous.
type ObservationSeries []ObservationPoint

// Years returns the observation years in order.
func (s ObservationSeries) Years() []int {
	out := make([]int, len(s))
	for i, p := range s {
		out[i] = p.Year
	}
	return out
}

// Amounts returns the observation amounts in order.
func (s ObservationSeries) Amounts() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Amount
	}
	return out
}

// LastYear returns the most recent observed year. The series must be non-empty.
func (s ObservationSeries) LastYear() int {
	return s[len(s)-1].Year
}

// AvgAnnualChange computes the average yearly delta between the first and
// last observation. Returns 0 for series with fewer than 2 points.
func (s ObservationSeries) AvgAnnualChange() float64 {
	if len(s) < 2 {
		return 0
	}
	return (s[len(s)-1].Amount - s[0].Amount) / float64(len(s)-1)
}

// ModelID identifies one of the supported forecast model configurations.
// The identifiers are kept compatible with the dashboard frontend; they
// select among in-repo stand-in regressors, not the libraries they are
// named after.
type ModelID string

const (
	ModelProphet ModelID = "prophet"
	ModelXGBoost ModelID = "xgboost"
	ModelHybrid  ModelID = "hybrid"
)

// Valid reports whether the identifier is one of the supported models.
func (m ModelID) Valid() bool {
	switch m {
	case ModelProphet, ModelXGBoost, ModelHybrid:
		return true
	}
	return false
}

// PredictionPoint is a single forecast-year output with its confidence
// interval. Invariant: 0 <= Lower <= Predicted <= Upper.
type PredictionPoint struct {
	Year      int     `json:"year"`
	Predicted float64 `json:"predicted"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// FeatureImportance is one entry of the fixed feature-importance ranking
// returned alongside forecasts. Weights are illustrative display values,
// not derived from the fitted model.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// AccuracyReport carries the per-model heuristic accuracy figures shown to
// the dashboard. The selected model's slot holds the fitted accuracy; the
// other two hold fixed expected-ceiling comparison values. Method names the
// regressor actually used ("Trend Analysis" on the fallback path).
type AccuracyReport struct {
	Prophet    float64 `json:"prophet"`
	XGBoost    float64 `json:"xgboost"`
	Hybrid     float64 `json:"hybrid"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// ForecastResult is the immutable output bundle of a forecast request.
type ForecastResult struct {
	Country           string              `json:"country"`
	Sector            string              `json:"sector,omitempty"`
	Predictions       []PredictionPoint   `json:"predictions"`
	Accuracy          AccuracyReport      `json:"accuracy"`
	FeatureImportance []FeatureImportance `json:"featureImportance"`
	Insights          []string            `json:"insights"`
}

// Explanation is a single SHAP-style feature attribution record.
type Explanation struct {
	Feature     string  `json:"feature"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

// ExplanationSet is the SHAP-style explanation bundle for a forecast.
// ModelPrediction mirrors the forecaster's final-year predicted value and
// BaseValue the mean of the historical series, keeping the explanation
// output consistent with the chart-facing forecast.
type ExplanationSet struct {
	Explanations    []Explanation `json:"explanations"`
	ModelPrediction float64       `json:"model_prediction"`
	BaseValue       float64       `json:"base_value"`
	Country         string        `json:"country"`
	Sector          string        `json:"sector,omitempty"`
}

// Country is a recipient-country reference record.
type Country struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ISO    string `json:"iso_code"`
	Region string `json:"region"`
}

// Donor is an aid-donor reference record.
type Donor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DonorType string `json:"donor_type"`
	Country   string `json:"country"`
}

// Sector is an aid-sector reference record. Names carry OECD CRS outline
// prefixes such as "III.1.a." that are stripped for display.
type Sector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// AidRecord is a single aid transaction row as stored in aid_records.
type AidRecord struct {
	ID           string    `json:"id"`
	CountryID    string    `json:"country_id"`
	DonorID      string    `json:"donor_id"`
	SectorID     string    `json:"sector_id"`
	Year         int       `json:"year"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	ProjectTitle string    `json:"project_title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RankedAmount is one row of a leaderboard-style dashboard listing. Amount is
// pre-rendered ("$1.23B") from thousands-USD store units to match the
// frontend's display conventions. Region is set for recipient rows, Type for
// donor rows.
type RankedAmount struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
	Type   string `json:"type,omitempty"`
	Amount string `json:"amount"`
}

// YearAmount is a (year, summed amount) pair for trend charts. Amounts stay
// in thousands-USD store units.
type YearAmount struct {
	Year   int     `json:"year"`
	Amount float64 `json:"amount"`
}

// SectorShare is one slice of the sector-distribution chart.
type SectorShare struct {
	Sector     string  `json:"sector"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// RegionShare is one row of the regional aid distribution.
type RegionShare struct {
	Region     string  `json:"region"`
	Amount     string  `json:"amount"`
	Percentage float64 `json:"percentage"`
	Countries  int     `json:"countries"`
}

// DashboardStats is the aggregate summary served to the dashboard.
type DashboardStats struct {
	TotalAid      string         `json:"total_aid"`
	CountryCount  int            `json:"countries_count"`
	DonorCount    int            `json:"active_donors"`
	TopRecipients []RankedAmount `json:"top_recipients"`
	AidTrends     []YearAmount   `json:"aid_trends"`
	SectorShares  []SectorShare  `json:"sector_distribution"`
	TopDonors     []RankedAmount `json:"top_donors"`
	Regions       []RegionShare  `json:"regional_distribution"`
}
