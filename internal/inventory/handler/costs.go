package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// CostHandler handles storage snapshot and calculated cost endpoints
type CostHandler struct {
	calculator *service.Calculator
	logger     *logger.Logger
}

// NewCostHandler creates a new cost handler
func NewCostHandler(calculator *service.Calculator, log *logger.Logger) *CostHandler {
	return &CostHandler{
		calculator: calculator,
		logger:     log,
	}
}

// Routes mounts the cost endpoints
func (h *CostHandler) Routes(r chi.Router) {
	r.Route("/costs", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/snapshots", h.Snapshots)
		r.Post("/recompute", h.Recompute)
		r.Post("/{id}/adjust", h.Adjust)
	})
}

// Snapshots computes weekly storage snapshots without saving them
func (h *CostHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	start, err := requiredDate(r, "start")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	end, err := requiredDate(r, "end")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	snapshots, err := h.calculator.ComputeWeeklySnapshots(r.Context(), start, end, r.URL.Query().Get("warehouse_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, snapshots, &httputil.Meta{Count: len(snapshots)})
}

type recomputeRequest struct {
	Start       string `json:"start" validate:"required,datetime=2006-01-02"`
	End         string `json:"end" validate:"required,datetime=2006-01-02"`
	WarehouseID string `json:"warehouse_id,omitempty"`
}

// Recompute computes the snapshots of a range and replaces the stored
// storage costs of those weeks. Manual adjustments survive.
func (h *CostHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if !decode(w, r, &req) {
		return
	}
	start, _ := time.Parse(httputil.DateLayout, req.Start)
	end, _ := time.Parse(httputil.DateLayout, req.End)

	snapshots, err := h.calculator.Recompute(r.Context(), start, end, req.WarehouseID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, snapshots, &httputil.Meta{Count: len(snapshots)})
}

// List lists calculated costs
func (h *CostHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.CostFilter{
		WarehouseID: q.Get("warehouse_id"),
		SKUID:       q.Get("sku_id"),
		Batch:       q.Get("batch_lot"),
		Category:    domain.CostCategory(q.Get("cost_category")),
		CostName:    q.Get("cost_name"),
	}

	var err error
	if f.WeekFrom, err = httputil.QueryDate(r, "week_from"); err != nil {
		httputil.Error(w, err)
		return
	}
	if f.WeekTo, err = httputil.QueryDate(r, "week_to"); err != nil {
		httputil.Error(w, err)
		return
	}
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		httputil.Error(w, err)
		return
	}

	costs, err := h.calculator.ListCalculatedCosts(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, costs, &httputil.Meta{Limit: f.Limit, Offset: f.Offset, Count: len(costs)})
}

// Adjust sets the manual adjustment of a calculated cost
func (h *CostHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var in service.AdjustCostInput
	if !decode(w, r, &in) {
		return
	}

	cost, err := h.calculator.AdjustCost(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cost)
}
