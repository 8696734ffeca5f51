package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// CatalogHandler handles warehouse, SKU, packaging and rate endpoints
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *service.CatalogService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  log,
	}
}

// Routes mounts the catalog endpoints
func (h *CatalogHandler) Routes(r chi.Router) {
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.ListWarehouses)
		r.Post("/", h.CreateWarehouse)
		r.Get("/{id}", h.GetWarehouse)
	})
	r.Route("/skus", func(r chi.Router) {
		r.Get("/", h.ListSKUs)
		r.Post("/", h.CreateSKU)
		r.Get("/{id}", h.GetSKU)
		r.Patch("/{id}", h.UpdateSKU)
	})
	r.Route("/packaging", func(r chi.Router) {
		r.Get("/", h.ListPackaging)
		r.Post("/", h.CreatePackaging)
		r.Get("/effective", h.EffectivePackaging)
	})
	r.Route("/rates", func(r chi.Router) {
		r.Get("/", h.ListRates)
		r.Post("/", h.CreateRate)
		r.Get("/effective", h.EffectiveRate)
	})
}

// CreateWarehouse creates a warehouse
func (h *CatalogHandler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var in service.CreateWarehouseInput
	if !decode(w, r, &in) {
		return
	}

	wh, err := h.catalog.CreateWarehouse(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, wh)
}

// ListWarehouses lists all warehouses
func (h *CatalogHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.catalog.ListWarehouses(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, warehouses, &httputil.Meta{Count: len(warehouses)})
}

// GetWarehouse gets a warehouse by ID
func (h *CatalogHandler) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.catalog.GetWarehouse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, wh)
}

// CreateSKU creates a SKU
func (h *CatalogHandler) CreateSKU(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSKUInput
	if !decode(w, r, &in) {
		return
	}

	sku, err := h.catalog.CreateSKU(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sku)
}

// ListSKUs lists all SKUs
func (h *CatalogHandler) ListSKUs(w http.ResponseWriter, r *http.Request) {
	skus, err := h.catalog.ListSKUs(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, skus, &httputil.Meta{Count: len(skus)})
}

// GetSKU gets a SKU by ID
func (h *CatalogHandler) GetSKU(w http.ResponseWriter, r *http.Request) {
	sku, err := h.catalog.GetSKU(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sku)
}

// UpdateSKU changes the description, units per carton or active flag
func (h *CatalogHandler) UpdateSKU(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateSKUInput
	if !decode(w, r, &in) {
		return
	}

	sku, err := h.catalog.UpdateSKU(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sku)
}

// CreatePackaging creates a packaging configuration
func (h *CatalogHandler) CreatePackaging(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePackagingInput
	if !decode(w, r, &in) {
		return
	}

	cfg, err := h.catalog.CreatePackaging(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, cfg)
}

// ListPackaging lists the packaging configurations of a warehouse
func (h *CatalogHandler) ListPackaging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouseID := q.Get("warehouse_id")
	if warehouseID == "" {
		httputil.Error(w, errors.Invalid("warehouse_id", "this field is required"))
		return
	}

	configs, err := h.catalog.ListPackaging(r.Context(), warehouseID, q.Get("sku_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, configs, &httputil.Meta{Count: len(configs)})
}

// EffectivePackaging returns the configuration active on a day
func (h *CatalogHandler) EffectivePackaging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	on, err := requiredDate(r, "on")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	cfg, err := h.catalog.EffectivePackaging(r.Context(), q.Get("warehouse_id"), q.Get("sku_id"), on)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cfg)
}

// CreateRate creates a cost rate
func (h *CatalogHandler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRateInput
	if !decode(w, r, &in) {
		return
	}

	rate, err := h.catalog.CreateRate(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, rate)
}

// ListRates lists cost rates, optionally by warehouse, category and name
func (h *CatalogHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.RateFilter{
		WarehouseID: q.Get("warehouse_id"),
		Category:    domain.CostCategory(q.Get("cost_category")),
		Name:        q.Get("cost_name"),
	}
	if f.Category != "" && !f.Category.Valid() {
		httputil.Error(w, errors.Invalid("cost_category", "unknown cost category "+string(f.Category)))
		return
	}

	rates, err := h.catalog.ListRates(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rates, &httputil.Meta{Count: len(rates)})
}

// EffectiveRate returns the rate of a category active on a day
func (h *CatalogHandler) EffectiveRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	on, err := requiredDate(r, "on")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	category := domain.CostCategory(q.Get("cost_category"))
	if category == "" {
		category = domain.CostStorage
	}

	rate, err := h.catalog.EffectiveRate(r.Context(), q.Get("warehouse_id"), category, on)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rate)
}
