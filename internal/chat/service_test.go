package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"aidflow/internal/config"
	"aidflow/internal/external"
	"aidflow/internal/forecast"
	"aidflow/internal/types"
)

type stubStats struct {
	stats *types.DashboardStats
	err   error
}

func (s *stubStats) DashboardStats(ctx context.Context) (*types.DashboardStats, error) {
	return s.stats, s.err
}

type stubForecaster struct {
	result *types.ForecastResult
	err    error
	lastReq forecast.Request
}

func (s *stubForecaster) Forecast(ctx context.Context, req forecast.Request) (*types.ForecastResult, error) {
	s.lastReq = req
	return s.result, s.err
}

type stubLLM struct {
	reply    string
	err      error
	lastMsgs []external.ChatMessage
	calls    int
}

func (s *stubLLM) Complete(ctx context.Context, messages []external.ChatMessage) (string, error) {
	s.calls++
	s.lastMsgs = messages
	return s.reply, s.err
}

func testStats() *types.DashboardStats {
	return &types.DashboardStats{
		TotalAid:     "$1.25B",
		CountryCount: 24,
		DonorCount:   12,
		TopRecipients: []types.RankedAmount{
			{Name: "India", Region: "South Asia", Amount: "$410.00M"},
			{Name: "Kenya", Region: "Africa", Amount: "$120.00M"},
		},
		TopDonors: []types.RankedAmount{
			{Name: "World Bank", Type: "Multilateral", Amount: "$300.00M"},
		},
		SectorShares: []types.SectorShare{
			{Sector: "Health", Amount: 400000, Percentage: 32.0},
		},
		AidTrends: []types.YearAmount{
			{Year: 2022, Amount: 500000},
			{Year: 2023, Amount: 620000},
		},
		Regions: []types.RegionShare{
			{Region: "South Asia", Amount: "$500.00M", Percentage: 40.0, Countries: 6},
		},
	}
}

func newTestBuilder(stats *stubStats, fc *stubForecaster) *ContextBuilder {
	return NewContextBuilder(stats, fc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestService(llm external.ChatClient, builder *ContextBuilder, apiKey string) (*Service, *MemorySessionStore) {
	store := NewMemorySessionStore(time.Hour, 100)
	cfg := config.ChatConfig{
		APIKey:   apiKey,
		Model:    "gpt-4o-mini",
		MaxTurns: 20,
	}
	svc := NewService(cfg, store, builder, llm, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func TestBuildContextRecipients(t *testing.T) {
	builder := newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{})

	got := builder.Build(context.Background(), "Which countries receive the most aid?")

	if !strings.Contains(got, "Top aid recipients") {
		t.Errorf("expected recipients section, got:\n%s", got)
	}
	if !strings.Contains(got, "India (South Asia): $410.00M") {
		t.Errorf("expected recipient line, got:\n%s", got)
	}
	if strings.Contains(got, "Top donors") {
		t.Errorf("donors section should not trigger for recipient query:\n%s", got)
	}
}

func TestBuildContextForecast(t *testing.T) {
	fc := &stubForecaster{result: &types.ForecastResult{
		Country: "India",
		Predictions: []types.PredictionPoint{
			{Year: 2024, Predicted: 240.5, Lower: 210.0, Upper: 270.0},
		},
		Accuracy: types.AccuracyReport{Hybrid: 90.2, Method: "Advanced Gradient Boosting (Hybrid Mode)"},
	}}
	builder := newTestBuilder(&stubStats{stats: testStats()}, fc)

	got := builder.Build(context.Background(), "What is the forecast for India in 2025?")

	if !strings.Contains(got, "India model forecast") {
		t.Errorf("expected forecast section, got:\n%s", got)
	}
	if !strings.Contains(got, "2024: 240.50 (range 210.00 to 270.00)") {
		t.Errorf("expected prediction line, got:\n%s", got)
	}
	if fc.lastReq.Country != "India" || fc.lastReq.Years != contextForecastHorizon {
		t.Errorf("unexpected forecast request: %+v", fc.lastReq)
	}
}

func TestBuildContextForecastFailureBecomesNote(t *testing.T) {
	fc := &stubForecaster{err: types.NewAppError(types.ErrCodeNotFoundSeries, "no data", nil)}
	builder := newTestBuilder(&stubStats{stats: testStats()}, fc)

	got := builder.Build(context.Background(), "Predict aid to Kenya")

	if !strings.Contains(got, "no forecast available for Kenya") {
		t.Errorf("expected degraded note, got:\n%s", got)
	}
}

func TestBuildContextStatsFailure(t *testing.T) {
	builder := newTestBuilder(&stubStats{err: errors.New("connection refused")}, &stubForecaster{})

	got := builder.Build(context.Background(), "anything")

	if got != "No data context available." {
		t.Errorf("expected fallback context, got %q", got)
	}
}

func TestMentionedCountries(t *testing.T) {
	got := mentionedCountries("compare INDIA and kenya, then india again")
	if len(got) != 2 || got[0] != "India" || got[1] != "Kenya" {
		t.Errorf("expected [India Kenya], got %v", got)
	}
}

func TestSendCallsModelWithHistory(t *testing.T) {
	llm := &stubLLM{reply: "Aid to India totaled $410.00M."}
	svc, _ := newTestService(llm, newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{}), "key")

	reply, err := svc.Send(context.Background(), "s1", "How much aid does India receive?")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if reply.Response != "Aid to India totaled $410.00M." {
		t.Errorf("unexpected reply: %q", reply.Response)
	}
	if reply.SessionID != "s1" {
		t.Errorf("expected session echoed, got %q", reply.SessionID)
	}
	if reply.Metadata["model"] != "gpt-4o-mini" {
		t.Errorf("expected model metadata, got %v", reply.Metadata)
	}

	if len(llm.lastMsgs) != 2 {
		t.Fatalf("expected system + user message, got %d", len(llm.lastMsgs))
	}
	if llm.lastMsgs[0].Role != "system" || !strings.Contains(llm.lastMsgs[0].Content, "Total aid disbursed: $1.25B") {
		t.Errorf("system prompt missing data context: %q", llm.lastMsgs[0].Content)
	}
	if llm.lastMsgs[1].Role != "user" {
		t.Errorf("expected trailing user message, got %q", llm.lastMsgs[1].Role)
	}

	history := svc.History("s1")
	if len(history) != 2 {
		t.Fatalf("expected user + assistant in history, got %d", len(history))
	}
	if history[1].Role != "assistant" {
		t.Errorf("expected assistant turn recorded, got %q", history[1].Role)
	}
}

func TestSendDegradedWithoutAPIKey(t *testing.T) {
	llm := &stubLLM{reply: "should not be called"}
	svc, _ := newTestService(llm, newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{}), "")

	reply, err := svc.Send(context.Background(), "s1", "How much aid overall?")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if llm.calls != 0 {
		t.Error("model should not be called without an API key")
	}
	if !strings.Contains(reply.Response, "Total aid disbursed: $1.25B") {
		t.Errorf("expected data-only answer, got %q", reply.Response)
	}
	if reply.Metadata["degraded"] != true {
		t.Errorf("expected degraded metadata, got %v", reply.Metadata)
	}
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService(&stubLLM{}, newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{}), "key")

	for _, tc := range []struct{ session, message string }{
		{"", "hello"},
		{"s1", ""},
	} {
		_, err := svc.Send(context.Background(), tc.session, tc.message)
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationMissingField {
			t.Errorf("session=%q message=%q: expected missing-field error, got %v", tc.session, tc.message, err)
		}
	}
}

func TestSendModelFailurePropagates(t *testing.T) {
	llm := &stubLLM{err: types.NewAppError(types.ErrCodeUpstreamLLM, "model down", nil)}
	svc, _ := newTestService(llm, newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{}), "key")

	_, err := svc.Send(context.Background(), "s1", "hello")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamLLM {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestSendCapsHistoryAtMaxTurns(t *testing.T) {
	llm := &stubLLM{reply: "ok"}
	builder := newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{})
	store := NewMemorySessionStore(time.Hour, 100)
	cfg := config.ChatConfig{APIKey: "key", Model: "gpt-4o-mini", MaxTurns: 4}
	svc := NewService(cfg, store, builder, llm, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 5; i++ {
		if _, err := svc.Send(context.Background(), "s1", "question"); err != nil {
			t.Fatalf("Send %d returned error: %v", i, err)
		}
	}

	// System prompt plus at most MaxTurns history messages.
	if got := len(llm.lastMsgs); got != 5 {
		t.Errorf("expected 5 messages (1 system + 4 history), got %d", got)
	}
}

func TestClearHistory(t *testing.T) {
	svc, _ := newTestService(&stubLLM{reply: "ok"}, newTestBuilder(&stubStats{stats: testStats()}, &stubForecaster{}), "key")

	if _, err := svc.Send(context.Background(), "s1", "hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	svc.ClearHistory("s1")

	if got := svc.History("s1"); len(got) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(got))
	}
}
