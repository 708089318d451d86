package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"aidflow/internal/core"
	"aidflow/internal/db"
	"aidflow/internal/forecast"
	"aidflow/internal/types"
)

// ExportServiceInterface is the artifact-rendering contract for the
// export handler.
type ExportServiceInterface interface {
	WriteCSV(ctx context.Context, w io.Writer, filter db.ExportFilter, compress bool) (int, error)
	CSVFilename(filter db.ExportFilter, compress bool) string
	WriteForecastChart(w io.Writer, series types.ObservationSeries, result *types.ForecastResult) error
	ChartFilename(country string) string
}

// ChartSeriesSource supplies the historical series rendered under a
// forecast chart.
type ChartSeriesSource interface {
	FetchSeries(ctx context.Context, q db.SeriesQuery) (types.ObservationSeries, error)
}

// ChartForecaster produces the predictions rendered on a forecast chart.
type ChartForecaster interface {
	Forecast(ctx context.Context, req forecast.Request) (*types.ForecastResult, error)
}

// ExportHandler serves CSV downloads and forecast chart PNGs.
type ExportHandler struct {
	exports    ExportServiceInterface
	series     ChartSeriesSource
	forecaster ChartForecaster
	logger     *slog.Logger
}

func NewExportHandler(exports ExportServiceInterface, series ChartSeriesSource, forecaster ChartForecaster, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{
		exports:    exports,
		series:     series,
		forecaster: forecaster,
		logger:     logger,
	}
}

// RegisterRoutes mounts the export endpoints onto the mux.
func (h *ExportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/csv", h.HandleCSV)
	r.Get("/chart", h.HandleChart)
}

// HandleCSV handles GET /v1/export/csv. Filters arrive as query params;
// compress=true gzips the payload.
func (h *ExportHandler) HandleCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseExportFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	compress := strings.EqualFold(r.URL.Query().Get("compress"), "true")

	filename := h.exports.CSVFilename(filter, compress)
	w.Header().Set("Content-Type", "text/csv")
	if compress {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.Header().Set("Content-Disposition", `attachment; filename=`+filename)

	// Rows are fetched before any body bytes go out, so repo errors can
	// still produce a proper JSON error response.
	var probe countingResponseWriter
	probe.ResponseWriter = w
	if _, err := h.exports.WriteCSV(r.Context(), &probe, filter, compress); err != nil {
		if probe.wrote {
			h.logger.Error("csv export failed mid-stream", "error", err.Error())
			return
		}
		clearDownloadHeaders(w)
		core.Error(w, r, err)
		return
	}
}

// HandleChart handles GET /v1/export/chart. It runs the forecast for the
// requested country and renders history plus predictions as a PNG.
func (h *ExportHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	country := q.Get("country")
	if country == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"country query parameter is required", nil))
		return
	}

	years := 0
	if yearsStr := q.Get("years"); yearsStr != "" {
		parsed, err := strconv.Atoi(yearsStr)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidHorizon,
				"years must be a valid integer", nil))
			return
		}
		years = parsed
	}

	req := forecast.Request{
		Country: country,
		Sector:  q.Get("sector"),
		Model:   q.Get("model"),
		Years:   years,
	}

	result, err := h.forecaster.Forecast(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	series, err := h.series.FetchSeries(r.Context(), db.SeriesQuery{
		Country: country,
		Sector:  req.Sector,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename=`+h.exports.ChartFilename(country))

	if err := h.exports.WriteForecastChart(w, series, result); err != nil {
		h.logger.Error("chart export failed", "country", country, "error", err.Error())
	}
}

// parseExportFilter reads the CSV filter params, validating year fields.
func parseExportFilter(r *http.Request) (db.ExportFilter, error) {
	q := r.URL.Query()
	filter := db.ExportFilter{
		Country: q.Get("country"),
		Donor:   q.Get("donor"),
		Sector:  q.Get("sector"),
	}

	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"year", &filter.Year},
		{"start_year", &filter.StartYear},
		{"end_year", &filter.EndYear},
		{"limit", &filter.Limit},
	} {
		raw := q.Get(field.name)
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return db.ExportFilter{}, types.NewAppError(types.ErrCodeValidationInvalidYear,
				field.name+" must be a non-negative integer", nil)
		}
		*field.dst = parsed
	}

	return filter, nil
}

// countingResponseWriter tracks whether any body bytes were written, to
// distinguish pre-stream failures from mid-stream ones.
type countingResponseWriter struct {
	http.ResponseWriter
	wrote bool
}

func (c *countingResponseWriter) Write(p []byte) (int, error) {
	c.wrote = true
	return c.ResponseWriter.Write(p)
}

func clearDownloadHeaders(w http.ResponseWriter) {
	w.Header().Del("Content-Type")
	w.Header().Del("Content-Encoding")
	w.Header().Del("Content-Disposition")
}
