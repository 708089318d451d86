package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidflow/internal/core"
	"aidflow/internal/types"
)

// DashboardServiceInterface is the aggregate and reference-data contract
// for the dashboard handler.
type DashboardServiceInterface interface {
	DashboardStats(ctx context.Context) (*types.DashboardStats, error)
	ListCountries(ctx context.Context) ([]types.Country, error)
	ListDonors(ctx context.Context) ([]types.Donor, error)
	ListSectors(ctx context.Context) ([]types.Sector, error)
}

// DashboardHandler serves the dashboard aggregates and the reference
// entity listings backing the frontend pickers.
type DashboardHandler struct {
	service DashboardServiceInterface
	logger  *slog.Logger
}

func NewDashboardHandler(svc DashboardServiceInterface, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the dashboard endpoints onto the mux.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard/stats", h.HandleStats)
	r.Get("/countries", h.HandleListCountries)
	r.Get("/donors", h.HandleListDonors)
	r.Get("/sectors", h.HandleListSectors)
}

// HandleStats handles GET /v1/dashboard/stats.
func (h *DashboardHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, stats)
}

// HandleListCountries handles GET /v1/countries.
func (h *DashboardHandler) HandleListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.service.ListCountries(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, countries)
}

// HandleListDonors handles GET /v1/donors.
func (h *DashboardHandler) HandleListDonors(w http.ResponseWriter, r *http.Request) {
	donors, err := h.service.ListDonors(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, donors)
}

// HandleListSectors handles GET /v1/sectors.
func (h *DashboardHandler) HandleListSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := h.service.ListSectors(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, sectors)
}
