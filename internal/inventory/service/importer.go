package service

import (
	"context"
	"sort"
	"strings"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// DefaultImportErrorLimit is how many row errors a summary keeps
const DefaultImportErrorLimit = 20

// Importer appends bulk rows to the ledger one by one. A failing row never
// stops the rows after it.
type Importer struct {
	store      store.Store
	ledger     *LedgerService
	errorLimit int
	logger     *logger.Logger
}

// NewImporter creates a bulk importer
func NewImporter(st store.Store, ledger *LedgerService, errorLimit int, log *logger.Logger) *Importer {
	if errorLimit <= 0 {
		errorLimit = DefaultImportErrorLimit
	}
	return &Importer{store: st, ledger: ledger, errorLimit: errorLimit, logger: log.WithComponent("importer")}
}

// references resolves warehouse and SKU ids or codes, case-insensitively
type references struct {
	warehouses map[string]string
	skus       map[string]string
}

func (r references) warehouse(v string) (string, bool) {
	id, ok := r.warehouses[strings.ToLower(strings.TrimSpace(v))]
	return id, ok
}

func (r references) sku(v string) (string, bool) {
	id, ok := r.skus[strings.ToLower(strings.TrimSpace(v))]
	return id, ok
}

// Import appends each row as its own transaction and reports the outcome.
// Rows that already failed to parse are counted as failures first.
func (im *Importer) Import(ctx context.Context, rows []domain.ImportRow, rejected ...domain.RowError) (*domain.ImportSummary, error) {
	summary := domain.NewImportSummary(im.errorLimit)
	summary.Total = len(rows) + len(rejected)
	for _, r := range rejected {
		summary.Fail(r)
	}

	refs, err := im.loadReferences(ctx)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if row.Line == 0 {
			row.Line = i + 1
		}

		in, rowErr := refs.toAppendInput(row)
		if rowErr != nil {
			summary.Fail(*rowErr)
			continue
		}

		res, err := im.ledger.Append(ctx, in)
		if err != nil {
			summary.Fail(domain.RowError{Line: row.Line, Message: rowMessage(err)})
			continue
		}
		summary.Succeed(res.Transaction.ID)
		for _, w := range res.Warnings {
			summary.Warn(row.Line, w)
		}
	}

	im.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("import finished")
	return summary, nil
}

func (im *Importer) loadReferences(ctx context.Context) (references, error) {
	refs := references{warehouses: make(map[string]string), skus: make(map[string]string)}
	err := im.store.View(ctx, func(tx store.Tx) error {
		warehouses, err := tx.ListWarehouses(ctx)
		if err != nil {
			return err
		}
		for _, w := range warehouses {
			refs.warehouses[strings.ToLower(w.ID)] = w.ID
			refs.warehouses[strings.ToLower(w.Code)] = w.ID
		}

		skus, err := tx.ListSKUs(ctx)
		if err != nil {
			return err
		}
		for _, s := range skus {
			refs.skus[strings.ToLower(s.ID)] = s.ID
			refs.skus[strings.ToLower(s.Code)] = s.ID
		}
		return nil
	})
	return refs, err
}

// toAppendInput maps a typed row onto an append request. Zero pallet
// counts are left for the ledger to derive.
func (r references) toAppendInput(row domain.ImportRow) (AppendInput, *domain.RowError) {
	fail := func(msg string) (AppendInput, *domain.RowError) {
		return AppendInput{}, &domain.RowError{Line: row.Line, Message: msg}
	}

	if strings.TrimSpace(row.Warehouse) == "" {
		return fail("warehouse is required")
	}
	if strings.TrimSpace(row.SKU) == "" {
		return fail("sku is required")
	}
	warehouseID, ok := r.warehouse(row.Warehouse)
	if !ok {
		return fail("unknown warehouse " + row.Warehouse)
	}
	skuID, ok := r.sku(row.SKU)
	if !ok {
		return fail("unknown sku " + row.SKU)
	}

	in := AppendInput{
		WarehouseID:              warehouseID,
		SKUID:                    skuID,
		Batch:                    row.Batch,
		Type:                     row.Type,
		CartonsIn:                row.CartonsIn,
		CartonsOut:               row.CartonsOut,
		StorageCartonsPerPallet:  row.StorageCartonsPerPallet,
		ShippingCartonsPerPallet: row.ShippingCartonsPerPallet,
		TransactionDate:          row.TransactionDate,
		ReferenceID:              optional(row.ReferenceID),
		TrackingNumber:           optional(row.TrackingNumber),
		Notes:                    optional(row.Notes),
	}
	if row.StoragePalletsIn > 0 {
		v := row.StoragePalletsIn
		in.StoragePalletsIn = &v
	}
	if row.ShippingPalletsOut > 0 {
		v := row.ShippingPalletsOut
		in.ShippingPalletsOut = &v
	}
	return in, nil
}

// rowMessage flattens an append failure into one line
func rowMessage(err error) string {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	if len(appErr.Details) == 0 {
		return appErr.Message
	}
	parts := make([]string, 0, len(appErr.Details))
	for field, problem := range appErr.Details {
		parts = append(parts, field+": "+problem)
	}
	sort.Strings(parts)
	return appErr.Message + " (" + strings.Join(parts, "; ") + ")"
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
