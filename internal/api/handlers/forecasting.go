// Package handlers contains the HTTP handler implementations for the
// AidFlow API. Each handler owns a thin local interface over its service
// so tests can inject stubs without importing service internals.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidflow/internal/core"
	"aidflow/internal/forecast"
	"aidflow/internal/types"
)

// ForecastServiceInterface is the service contract for the forecasting
// handler.
type ForecastServiceInterface interface {
	Forecast(ctx context.Context, req forecast.Request) (*types.ForecastResult, error)
	Explain(ctx context.Context, req forecast.Request) (*types.ExplanationSet, error)
	Accuracy(ctx context.Context) (*forecast.AccuracySummary, error)
}

// ForecastHandler maps HTTP requests to the forecast engine.
type ForecastHandler struct {
	service   ForecastServiceInterface
	validator *core.Validator
	logger    *slog.Logger
}

func NewForecastHandler(svc ForecastServiceInterface, val *core.Validator, logger *slog.Logger) *ForecastHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the forecasting endpoints onto the mux.
func (h *ForecastHandler) RegisterRoutes(r chi.Router) {
	r.Post("/forecast", h.HandleForecast)
	r.Post("/shap-explanations", h.HandleExplain)
	r.Get("/accuracy", h.HandleAccuracy)
}

// HandleForecast handles POST /v1/forecasting/forecast.
func (h *ForecastHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecast.Request
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.Forecast(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result)
}

// HandleExplain handles POST /v1/forecasting/shap-explanations.
func (h *ForecastHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var req forecast.Request
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.Explain(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result)
}

// HandleAccuracy handles GET /v1/forecasting/accuracy.
func (h *ForecastHandler) HandleAccuracy(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Accuracy(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, summary)
}
