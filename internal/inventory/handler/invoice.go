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

// InvoiceHandler handles invoice and reconciliation endpoints
type InvoiceHandler struct {
	reconciler *service.ReconciliationService
	logger     *logger.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(reconciler *service.ReconciliationService, log *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		reconciler: reconciler,
		logger:     log,
	}
}

// Routes mounts the invoice endpoints
func (h *InvoiceHandler) Routes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/reconcile", h.Reconcile)
	})
}

// Create records an invoice and reconciles it
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInvoiceInput
	if !decode(w, r, &in) {
		return
	}

	inv, err := h.reconciler.CreateInvoice(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, inv)
}

// List lists invoices, optionally by warehouse and status
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.InvoiceFilter{
		WarehouseID: q.Get("warehouse_id"),
		Status:      domain.InvoiceStatus(q.Get("status")),
	}
	switch f.Status {
	case "", domain.InvoicePending, domain.InvoiceReconciled, domain.InvoiceDisputed:
	default:
		httputil.Error(w, errors.Invalid("status", "must be one of: pending reconciled disputed"))
		return
	}

	var err error
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		httputil.Error(w, err)
		return
	}

	invoices, err := h.reconciler.ListInvoices(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, invoices, &httputil.Meta{Limit: f.Limit, Offset: f.Offset, Count: len(invoices)})
}

// Get returns an invoice with its lines and reconciliation rows
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.reconciler.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inv)
}

// Reconcile compares an invoice again against the current calculated costs
func (h *InvoiceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	inv, err := h.reconciler.ReconcileInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inv)
}
