package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

func TestImporter_PartialFailure(t *testing.T) {
	e := newEnv(t)

	rows := []domain.ImportRow{
		{Warehouse: "w1", SKU: "cs-007", Batch: "B1", Type: domain.TxReceive, CartonsIn: 40, TransactionDate: day(1), TrackingNumber: "TRK-1"},
		{Warehouse: "NOPE", SKU: "CS-007", Batch: "B1", Type: domain.TxReceive, CartonsIn: 5, TransactionDate: day(1)},
		{Warehouse: e.warehouseID, SKU: e.skuID, Batch: "B1", Type: domain.TxShip, CartonsOut: 50, TransactionDate: day(2)},
		{Warehouse: "W1", SKU: "CS-007", Batch: "B1", Type: domain.TxShip, CartonsOut: 15, TransactionDate: day(3)},
		{Line: 42, Warehouse: "W1", SKU: "CS-007", Batch: "", Type: domain.TxReceive, CartonsIn: 1, TransactionDate: day(3)},
	}

	summary, err := e.importer.Import(e.ctx, rows)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	assert.Len(t, summary.TransactionIDs, 2)
	require.Len(t, summary.Errors, 3)
	assert.Contains(t, summary.Errors[0], "row 2: unknown warehouse NOPE")
	assert.Contains(t, summary.Errors[1], "row 3: insufficient stock")
	assert.Contains(t, summary.Errors[2], "row 42:")
	assert.Contains(t, summary.Errors[2], "batch_lot")

	// rows without packaging fall back to one carton per pallet
	assert.NotEmpty(t, summary.Warnings)

	b, err := e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(25), b.CurrentCartons)

	first, err := e.ledger.Get(e.ctx, summary.TransactionIDs[0])
	require.NoError(t, err)
	require.NotNil(t, first.TrackingNumber)
	assert.Equal(t, "TRK-1", *first.TrackingNumber)
}

func TestImporter_KeepsOnlyFirstErrors(t *testing.T) {
	e := newEnv(t)
	im := service.NewImporter(e.store, e.ledger, 2, logger.Nop())

	rows := make([]domain.ImportRow, 5)
	for i := range rows {
		rows[i] = domain.ImportRow{Warehouse: "W1", SKU: "missing", Batch: "B1", Type: domain.TxReceive, CartonsIn: 1, TransactionDate: day(1)}
	}

	summary, err := im.Import(e.ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Failed)
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, []string{"row 1: unknown sku missing", "row 2: unknown sku missing"}, summary.Errors)
}
