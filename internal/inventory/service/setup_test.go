package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store/memory"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
	"github.com/progami/wms-ecomos-sub005/pkg/testutil"
)

// day returns midnight UTC of the given day in January 2024.
// 2024-01-01 is a Monday.
func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

type env struct {
	ctx         context.Context
	store       *memory.Store
	sent        *testutil.MockPublisher
	catalog     *service.CatalogService
	projector   *service.Projector
	ledger      *service.LedgerService
	calculator  *service.Calculator
	reconciler  *service.ReconciliationService
	importer    *service.Importer
	warehouseID string
	skuID       string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.Nop()
	st := memory.New()
	sent := testutil.NewMockPublisher()
	pub := events.NewPublisher(sent, log)
	lock := service.LockPolicy{Timeout: 5 * time.Second}

	e := &env{
		ctx:        context.Background(),
		store:      st,
		sent:       sent,
		catalog:    service.NewCatalogService(st, lock, log),
		calculator: service.NewCalculator(st, pub, log),
		reconciler: service.NewReconciliationService(st, "", pub, log),
	}
	e.projector = service.NewProjector(st, lock, nil, pub, log)
	e.ledger = service.NewLedgerService(st, e.projector, nil, pub, log)
	e.importer = service.NewImporter(st, e.ledger, 20, log)

	wh, err := e.catalog.CreateWarehouse(e.ctx, service.CreateWarehouseInput{Code: "w1", Name: "Warehouse One"})
	require.NoError(t, err)
	sku, err := e.catalog.CreateSKU(e.ctx, service.CreateSKUInput{Code: "CS-007", Description: "Case pack", UnitsPerCarton: 12})
	require.NoError(t, err)
	e.warehouseID, e.skuID = wh.ID, sku.ID
	return e
}

func (e *env) key(batch string) domain.BalanceKey {
	return domain.BalanceKey{WarehouseID: e.warehouseID, SKUID: e.skuID, Batch: batch}
}

func (e *env) packaging(t *testing.T, skuID string, storage, shipping int64, from time.Time) {
	t.Helper()
	_, err := e.catalog.CreatePackaging(e.ctx, service.CreatePackagingInput{
		WarehouseID:              e.warehouseID,
		SKUID:                    skuID,
		EffectiveFrom:            from,
		StorageCartonsPerPallet:  storage,
		ShippingCartonsPerPallet: shipping,
	})
	require.NoError(t, err)
}

func (e *env) storageRate(t *testing.T, perPallet string, from time.Time) {
	t.Helper()
	_, err := e.catalog.CreateRate(e.ctx, service.CreateRateInput{
		WarehouseID:   e.warehouseID,
		Category:      domain.CostStorage,
		Name:          domain.DefaultStorageCostName,
		Rate:          decimal.RequireFromString(perPallet),
		UnitOfMeasure: "pallet/week",
		EffectiveFrom: from,
	})
	require.NoError(t, err)
}

func (e *env) receive(skuID, batch string, cartons int64, at time.Time) service.AppendInput {
	return service.AppendInput{
		WarehouseID:     e.warehouseID,
		SKUID:           skuID,
		Batch:           batch,
		Type:            domain.TxReceive,
		CartonsIn:       cartons,
		TransactionDate: at,
	}
}

func (e *env) ship(skuID, batch string, cartons int64, at time.Time) service.AppendInput {
	return service.AppendInput{
		WarehouseID:     e.warehouseID,
		SKUID:           skuID,
		Batch:           batch,
		Type:            domain.TxShip,
		CartonsOut:      cartons,
		TransactionDate: at,
	}
}

func (e *env) mustAppend(t *testing.T, in service.AppendInput) *service.AppendResult {
	t.Helper()
	res, err := e.ledger.Append(e.ctx, in)
	require.NoError(t, err)
	return res
}
