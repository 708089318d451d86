package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"aidflow/internal/forecast"
	"aidflow/internal/types"
)

// Keyword triggers deciding which data sections get pulled into the
// model's context for a given question.
var (
	forecastQueryRe  = regexp.MustCompile(`(?i)\b(forecast|predict|future|projection|20(2[4-9]|3\d))\b`)
	recipientQueryRe = regexp.MustCompile(`(?i)\b(recipient|receive|receiving|countries)\b`)
	donorQueryRe     = regexp.MustCompile(`(?i)\b(donor|give|giving)\b`)
	sectorQueryRe    = regexp.MustCompile(`(?i)\b(sector|health|education|infrastructure|economic|social)\b`)
	trendQueryRe     = regexp.MustCompile(`(?i)\b(trend|recent|latest|current|20(1[5-9]|2[0-3]))\b`)
	regionQueryRe    = regexp.MustCompile(`(?i)\b(region|regional|africa|asia|europe)\b`)

	knownCountryRe = regexp.MustCompile(`(?i)\b(india|china|bangladesh|pakistan|afghanistan|kenya|tanzania|uganda|ethiopia|nigeria|brazil|indonesia|philippines)\b`)
)

const contextForecastHorizon = 3

// StatsProvider supplies the dashboard aggregates the context builder
// draws from.
type StatsProvider interface {
	DashboardStats(ctx context.Context) (*types.DashboardStats, error)
}

// Forecaster produces model predictions for forecast-flavored questions.
type Forecaster interface {
	Forecast(ctx context.Context, req forecast.Request) (*types.ForecastResult, error)
}

// ContextBuilder assembles the data grounding for a user question by
// matching keywords against the live aggregates and, for forecast
// questions, the prediction engine.
type ContextBuilder struct {
	stats      StatsProvider
	forecaster Forecaster
	logger     *slog.Logger
}

func NewContextBuilder(stats StatsProvider, forecaster Forecaster, logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{stats: stats, forecaster: forecaster, logger: logger}
}

// Build returns a plain-text data context for the question. It degrades
// section by section: a failed lookup is logged and skipped rather than
// failing the whole answer.
func (b *ContextBuilder) Build(ctx context.Context, question string) string {
	stats, err := b.stats.DashboardStats(ctx)
	if err != nil {
		b.logger.Warn("data context unavailable", "error", err.Error())
		return "No data context available."
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Total aid disbursed: %s across %d recipient countries from %d donors.",
		stats.TotalAid, stats.CountryCount, stats.DonorCount))

	if recipientQueryRe.MatchString(question) && len(stats.TopRecipients) > 0 {
		parts = append(parts, "", "Top aid recipients by total disbursement:")
		for _, r := range topN(stats.TopRecipients, 5) {
			parts = append(parts, fmt.Sprintf("- %s (%s): %s", r.Name, r.Region, r.Amount))
		}
	}

	if donorQueryRe.MatchString(question) && len(stats.TopDonors) > 0 {
		parts = append(parts, "", "Top donors by total disbursement:")
		for _, d := range topN(stats.TopDonors, 5) {
			parts = append(parts, fmt.Sprintf("- %s (%s): %s", d.Name, d.Type, d.Amount))
		}
	}

	if sectorQueryRe.MatchString(question) && len(stats.SectorShares) > 0 {
		parts = append(parts, "", "Sector distribution:")
		for _, s := range topN(stats.SectorShares, 5) {
			parts = append(parts, fmt.Sprintf("- %s: %.1f%% of total aid", s.Sector, s.Percentage))
		}
	}

	if regionQueryRe.MatchString(question) && len(stats.Regions) > 0 {
		parts = append(parts, "", "Regional distribution:")
		for _, r := range stats.Regions {
			parts = append(parts, fmt.Sprintf("- %s: %s across %d countries (%.1f%%)",
				r.Region, r.Amount, r.Countries, r.Percentage))
		}
	}

	if trendQueryRe.MatchString(question) && len(stats.AidTrends) > 0 {
		parts = append(parts, "", "Aid disbursements by year (thousands USD):")
		for _, y := range stats.AidTrends {
			parts = append(parts, fmt.Sprintf("- %d: %.0f", y.Year, y.Amount))
		}
	}

	if forecastQueryRe.MatchString(question) {
		for _, country := range mentionedCountries(question) {
			parts = append(parts, b.forecastSection(ctx, country)...)
		}
	}

	return strings.Join(parts, "\n")
}

// forecastSection runs the prediction engine for one country. A failed
// forecast becomes a note so the model does not invent its own numbers.
func (b *ContextBuilder) forecastSection(ctx context.Context, country string) []string {
	result, err := b.forecaster.Forecast(ctx, forecast.Request{
		Country: country,
		Sector:  "all",
		Model:   string(types.ModelHybrid),
		Years:   contextForecastHorizon,
	})
	if err != nil {
		b.logger.Warn("context forecast failed", "country", country, "error", err.Error())
		return []string{"", fmt.Sprintf("Note: no forecast available for %s; answer from historical data only.", country)}
	}

	out := []string{"", fmt.Sprintf("%s model forecast (thousands USD):", country)}
	for _, p := range result.Predictions {
		out = append(out, fmt.Sprintf("- %d: %.2f (range %.2f to %.2f)",
			p.Year, p.Predicted, p.Lower, p.Upper))
	}
	out = append(out, fmt.Sprintf("Model: %s at %.1f%% accuracy.",
		result.Accuracy.Method, result.Accuracy.Hybrid))
	return out
}

// mentionedCountries extracts known country names in question order,
// de-duplicated and title-cased.
func mentionedCountries(question string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range knownCountryRe.FindAllString(question, -1) {
		name := strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func topN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
