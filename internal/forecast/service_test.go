package forecast

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"aidflow/internal/config"
	"aidflow/internal/db"
	"aidflow/internal/types"
)

// --- Mocks ---

type mockSeriesLoader struct {
	series  types.ObservationSeries
	err     error
	lastQ   db.SeriesQuery
	calls   int
	byQuery func(q db.SeriesQuery) (types.ObservationSeries, error)
}

func (m *mockSeriesLoader) FetchSeries(ctx context.Context, q db.SeriesQuery) (types.ObservationSeries, error) {
	m.lastQ = q
	m.calls++
	if m.byQuery != nil {
		return m.byQuery(q)
	}
	return m.series, m.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{MaxHorizonYears: 15, ReferenceCountry: "India"}
}

func newTestService(loader SeriesLoader) *Service {
	clock := fixedClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	return NewService(loader, testLogger(), clock, testForecastConfig())
}

func notFoundErr() error {
	return types.NewAppError(types.ErrCodeNotFoundSeries, "no historical data found for Atlantis", nil)
}

// --- Forecast ---

func TestService_Forecast_Success(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2020, 100, 120, 150, 200)}
	svc := newTestService(loader)

	result, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Years: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Country != "Kenya" {
		t.Errorf("expected country Kenya, got %s", result.Country)
	}
	if len(result.Predictions) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(result.Predictions))
	}
	if result.Predictions[0].Year != 2024 || result.Predictions[1].Year != 2025 {
		t.Errorf("unexpected prediction years: %+v", result.Predictions)
	}
	for _, p := range result.Predictions {
		if p.Lower < 0 || p.Lower > p.Predicted || p.Predicted > p.Upper {
			t.Errorf("bound invariant violated: %+v", p)
		}
	}
	if result.Accuracy.Confidence < fallbackAccuracy {
		t.Errorf("confidence below floor: %v", result.Accuracy.Confidence)
	}
	if len(result.FeatureImportance) != 5 {
		t.Errorf("expected 5 importance entries, got %d", len(result.FeatureImportance))
	}
	if len(result.Insights) == 0 {
		t.Error("expected insights")
	}
}

func TestService_Forecast_DefaultsApplied(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2018, 100, 120, 150, 200, 230, 260)}
	svc := newTestService(loader)

	result, err := svc.Forecast(context.Background(), Request{Country: "Kenya"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Predictions) != defaultHorizonYears {
		t.Errorf("expected default horizon %d, got %d", defaultHorizonYears, len(result.Predictions))
	}
	// Default model is hybrid; with 6 observations the hybrid method reports.
	if result.Accuracy.Method != methodHybrid {
		t.Errorf("expected method %q, got %q", methodHybrid, result.Accuracy.Method)
	}
}

func TestService_Forecast_MissingCountry(t *testing.T) {
	svc := newTestService(&mockSeriesLoader{})

	_, err := svc.Forecast(context.Background(), Request{})
	assertAppErrorCode(t, err, types.ErrCodeValidationMissingField)
}

func TestService_Forecast_InvalidModel(t *testing.T) {
	svc := newTestService(&mockSeriesLoader{})

	_, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Model: "arima"})
	assertAppErrorCode(t, err, types.ErrCodeValidationInvalidModel)
}

func TestService_Forecast_InvalidHorizon(t *testing.T) {
	svc := newTestService(&mockSeriesLoader{})

	_, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Years: 16})
	assertAppErrorCode(t, err, types.ErrCodeValidationInvalidHorizon)

	_, err = svc.Forecast(context.Background(), Request{Country: "Kenya", Years: -1})
	assertAppErrorCode(t, err, types.ErrCodeValidationInvalidHorizon)
}

func TestService_Forecast_NotFoundPropagates(t *testing.T) {
	loader := &mockSeriesLoader{err: notFoundErr()}
	svc := newTestService(loader)

	_, err := svc.Forecast(context.Background(), Request{Country: "Atlantis"})
	assertAppErrorCode(t, err, types.ErrCodeNotFoundSeries)
}

func TestService_Forecast_SinglePointInsufficient(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2023, 100)}
	svc := newTestService(loader)

	_, err := svc.Forecast(context.Background(), Request{Country: "Kenya"})
	assertAppErrorCode(t, err, types.ErrCodeValidationInsufficientData)
}

func TestService_Forecast_TwoPointsUsesTrendFallback(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2022, 100, 150)}
	svc := newTestService(loader)

	result, err := svc.Forecast(context.Background(), Request{Country: "Kenya"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accuracy.Method != methodFallback {
		t.Errorf("expected method %q, got %q", methodFallback, result.Accuracy.Method)
	}
	if result.Accuracy.Confidence != fallbackAccuracy {
		t.Errorf("expected confidence %v, got %v", fallbackAccuracy, result.Accuracy.Confidence)
	}
}

func TestService_Forecast_SectorPassedToLoader(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2020, 100, 120, 150, 200)}
	svc := newTestService(loader)

	_, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Sector: "Health"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.lastQ.Sector != "Health" {
		t.Errorf("expected sector Health in query, got %q", loader.lastQ.Sector)
	}
}

func TestService_Forecast_Deterministic(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2015, 100, 130, 125, 160, 180, 210, 205, 240)}
	svc := newTestService(loader)

	a, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Years: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Years: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a.Predictions {
		if a.Predictions[i] != b.Predictions[i] {
			t.Errorf("prediction %d differs across identical requests", i)
		}
	}
	if a.Accuracy != b.Accuracy {
		t.Errorf("accuracy differs across identical requests")
	}
}

// --- Explain ---

func TestService_Explain_ShortHorizon(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2020, 100, 120, 150, 200)}
	svc := newTestService(loader)

	set, err := svc.Explain(context.Background(), Request{Country: "Kenya", Years: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Explanations[0].Feature != "Historical Trend" {
		t.Errorf("expected short-horizon table, got head %q", set.Explanations[0].Feature)
	}
	if set.Country != "Kenya" {
		t.Errorf("expected country Kenya, got %s", set.Country)
	}
}

func TestService_Explain_AnchorsMatchForecast(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2020, 100, 120, 150, 200)}
	svc := newTestService(loader)

	forecast, err := svc.Forecast(context.Background(), Request{Country: "Kenya", Years: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, err := svc.Explain(context.Background(), Request{Country: "Kenya", Years: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := forecast.Predictions[len(forecast.Predictions)-1].Predicted
	if set.ModelPrediction != final {
		t.Errorf("expected model prediction %v, got %v", final, set.ModelPrediction)
	}
	wantBase := (100.0 + 120 + 150 + 200) / 4
	if set.BaseValue != wantBase {
		t.Errorf("expected base value %v, got %v", wantBase, set.BaseValue)
	}
}

func TestService_Explain_HorizonBuckets(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2016, 100, 120, 150, 200, 230, 260)}
	svc := newTestService(loader)

	medium, err := svc.Explain(context.Background(), Request{Country: "Kenya", Years: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if medium.Explanations[0].Impact != 1.45 {
		t.Errorf("expected medium-horizon table for years=4, got %+v", medium.Explanations[0])
	}

	long, err := svc.Explain(context.Background(), Request{Country: "Kenya", Years: 11})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if long.Explanations[0].Impact != 1.82 {
		t.Errorf("expected long-horizon table for years=11, got %+v", long.Explanations[0])
	}
}

func TestService_Explain_NotFoundPropagates(t *testing.T) {
	loader := &mockSeriesLoader{err: notFoundErr()}
	svc := newTestService(loader)

	_, err := svc.Explain(context.Background(), Request{Country: "Atlantis"})
	assertAppErrorCode(t, err, types.ErrCodeNotFoundSeries)
}

func TestService_Explain_TransientErrorServesMinimalSet(t *testing.T) {
	loader := &mockSeriesLoader{err: types.NewAppError(types.ErrCodeInternalDB, "query failed", errors.New("timeout"))}
	svc := newTestService(loader)

	set, err := svc.Explain(context.Background(), Request{Country: "Kenya"})
	if err != nil {
		t.Fatalf("expected degraded response, got error: %v", err)
	}
	if len(set.Explanations) != 2 {
		t.Errorf("expected minimal 2-entry set, got %d", len(set.Explanations))
	}
	if set.ModelPrediction != fallbackPrediction {
		t.Errorf("expected fallback prediction %v, got %v", fallbackPrediction, set.ModelPrediction)
	}
}

// --- Accuracy ---

func TestService_Accuracy_UsesReferenceCountry(t *testing.T) {
	loader := &mockSeriesLoader{series: seriesOf(2014, 100, 130, 125, 160, 180, 210, 205, 240, 260, 300)}
	svc := newTestService(loader)

	summary, err := svc.Accuracy(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loader.lastQ.Country != "India" {
		t.Errorf("expected reference country India, got %q", loader.lastQ.Country)
	}
	if loader.lastQ.Limit != referenceSeriesLimit {
		t.Errorf("expected limit %d, got %d", referenceSeriesLimit, loader.lastQ.Limit)
	}
	if summary.LastUpdated != "2026-08-30" {
		t.Errorf("unexpected last_updated: %q", summary.LastUpdated)
	}

	for name, acc := range map[string]float64{
		"prophet": summary.Prophet,
		"xgboost": summary.XGBoost,
		"hybrid":  summary.Hybrid,
	} {
		if acc < fallbackAccuracy || acc > hybridCeiling {
			t.Errorf("%s accuracy %v outside plausible range", name, acc)
		}
	}
}

func TestService_Accuracy_LoadFailureServesFixedFigures(t *testing.T) {
	loader := &mockSeriesLoader{err: notFoundErr()}
	svc := newTestService(loader)

	summary, err := svc.Accuracy(context.Background())
	if err != nil {
		t.Fatalf("expected degraded response, got error: %v", err)
	}
	if summary.Prophet != accuracyFallbackProphet ||
		summary.XGBoost != accuracyFallbackXGBoost ||
		summary.Hybrid != accuracyFallbackHybrid {
		t.Errorf("expected fixed fallback figures, got %+v", summary)
	}
}

// --- Helpers ---

func assertAppErrorCode(t *testing.T, err error, want types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != want {
		t.Errorf("expected code %s, got %s", want, appErr.Code)
	}
}
