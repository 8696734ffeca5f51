package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// LedgerHandler handles transaction and balance endpoints
type LedgerHandler struct {
	ledger    *service.LedgerService
	projector *service.Projector
	logger    *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledger *service.LedgerService, projector *service.Projector, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		projector: projector,
		logger:    log,
	}
}

// Routes mounts the transaction and balance endpoints
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Append)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.UpdateMetadata)
	})
	r.Route("/balances", func(r chi.Router) {
		r.Get("/", h.ListBalances)
		r.Get("/lookup", h.GetBalance)
		r.Post("/rebuild", h.Rebuild)
	})
}

// Append records a transaction and moves its balance
func (h *LedgerHandler) Append(w http.ResponseWriter, r *http.Request) {
	var in service.AppendInput
	if !decode(w, r, &in) {
		return
	}

	res, err := h.ledger.Append(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, res)
}

// List lists transactions. from and to are inclusive calendar days.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.TransactionFilter{
		WarehouseID: q.Get("warehouse_id"),
		SKUID:       q.Get("sku_id"),
		Batch:       strings.TrimSpace(q.Get("batch_lot")),
		Type:        domain.TransactionType(q.Get("transaction_type")),
	}

	switch q.Get("sort") {
	case "", "asc":
	case "desc":
		f.Descending = true
	default:
		httputil.Error(w, errors.Invalid("sort", "must be one of: asc desc"))
		return
	}

	var err error
	if f.From, err = httputil.QueryDate(r, "from"); err != nil {
		httputil.Error(w, err)
		return
	}
	to, err := httputil.QueryDate(r, "to")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if to != nil {
		end := to.AddDate(0, 0, 1)
		f.To = &end
	}
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		httputil.Error(w, err)
		return
	}

	txs, err := h.ledger.List(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, txs, &httputil.Meta{Limit: f.Limit, Offset: f.Offset, Count: len(txs)})
}

// Get gets a transaction by ID
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// UpdateMetadata changes reference, tracking, attachments, notes or the
// reconciled flag. Unknown fields such as quantities are rejected.
func (h *LedgerHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var m domain.TransactionMetadata
	if !decode(w, r, &m) {
		return
	}

	t, err := h.ledger.UpdateMetadata(r.Context(), chi.URLParam(r, "id"), m)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// ListBalances lists balances. Empty balances are left out unless
// include_empty=true.
func (h *LedgerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.BalanceFilter{
		WarehouseID: q.Get("warehouse_id"),
		SKUID:       q.Get("sku_id"),
		Batch:       strings.TrimSpace(q.Get("batch_lot")),
	}

	var err error
	if f.IncludeEmpty, err = queryBool(r, "include_empty"); err != nil {
		httputil.Error(w, err)
		return
	}
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		httputil.Error(w, err)
		return
	}

	balances, err := h.projector.ListBalances(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, balances, &httputil.Meta{Limit: f.Limit, Offset: f.Offset, Count: len(balances)})
}

// GetBalance gets the balance of one warehouse, SKU and batch
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	key, err := balanceKey(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	b, err := h.projector.GetBalance(r.Context(), key)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, b)
}

type rebuildRequest struct {
	WarehouseID string `json:"warehouse_id" validate:"required"`
	SKUID       string `json:"sku_id" validate:"required"`
	Batch       string `json:"batch_lot" validate:"required"`
}

// Rebuild recomputes a balance from its full ledger history
func (h *LedgerHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if !decode(w, r, &req) {
		return
	}

	key := domain.BalanceKey{
		WarehouseID: req.WarehouseID,
		SKUID:       req.SKUID,
		Batch:       strings.TrimSpace(req.Batch),
	}
	if key.Batch == "" {
		httputil.Error(w, errors.Invalid("batch_lot", "this field is required"))
		return
	}

	res, err := h.projector.Rebuild(r.Context(), key)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, res)
}

func balanceKey(r *http.Request) (domain.BalanceKey, error) {
	q := r.URL.Query()
	key := domain.BalanceKey{
		WarehouseID: q.Get("warehouse_id"),
		SKUID:       q.Get("sku_id"),
		Batch:       strings.TrimSpace(q.Get("batch_lot")),
	}
	details := make(map[string]string)
	if key.WarehouseID == "" {
		details["warehouse_id"] = "this field is required"
	}
	if key.SKUID == "" {
		details["sku_id"] = "this field is required"
	}
	if key.Batch == "" {
		details["batch_lot"] = "this field is required"
	}
	if len(details) > 0 {
		return key, errors.Validation(details)
	}
	return key, nil
}
