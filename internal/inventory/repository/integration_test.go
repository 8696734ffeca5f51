package repository_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/repository"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
	"github.com/progami/wms-ecomos-sub005/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable, integration tests skipped: %v\n", err)
		suite = nil
	}

	code := m.Run()
	if suite != nil {
		suite.Cleanup(ctx)
		testutil.TerminateContainer(ctx)
	}
	os.Exit(code)
}

type pgEnv struct {
	ctx        context.Context
	store      *repository.Store
	catalog    *service.CatalogService
	projector  *service.Projector
	ledger     *service.LedgerService
	calculator *service.Calculator
	warehouse  *domain.Warehouse
	sku        *domain.SKU
}

func newPGEnv(t *testing.T, name string) *pgEnv {
	t.Helper()
	testutil.SkipIfShort(t)
	if suite == nil {
		t.Skip("postgres container unavailable")
	}

	ctx := testutil.DefaultTestContext(t)
	db := suite.SetupSchema(t, ctx, name, repository.Migrations)
	log := logger.Nop()
	st := repository.NewStore(db)
	pub := events.NewPublisher(testutil.NewMockPublisher(), log)
	lock := service.LockPolicy{Timeout: 10 * time.Second}

	e := &pgEnv{
		ctx:        ctx,
		store:      st,
		catalog:    service.NewCatalogService(st, lock, log),
		calculator: service.NewCalculator(st, pub, log),
	}
	e.projector = service.NewProjector(st, lock, nil, pub, log)
	e.ledger = service.NewLedgerService(st, e.projector, nil, pub, log)

	var err error
	e.warehouse, err = e.catalog.CreateWarehouse(ctx, service.CreateWarehouseInput{Code: "fmc", Name: "FMC"})
	require.NoError(t, err)
	e.sku, err = e.catalog.CreateSKU(ctx, service.CreateSKUInput{Code: "CS-007", Description: "Case pack", UnitsPerCarton: 12})
	require.NoError(t, err)
	_, err = e.catalog.CreatePackaging(ctx, service.CreatePackagingInput{
		WarehouseID:              e.warehouse.ID,
		SKUID:                    e.sku.ID,
		EffectiveFrom:            jan(1),
		StorageCartonsPerPallet:  10,
		ShippingCartonsPerPallet: 10,
	})
	require.NoError(t, err)
	return e
}

func jan(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func (e *pgEnv) move(typ domain.TransactionType, cartons int64, at time.Time) service.AppendInput {
	in := service.AppendInput{
		WarehouseID:     e.warehouse.ID,
		SKUID:           e.sku.ID,
		Batch:           "B1",
		Type:            typ,
		TransactionDate: at,
	}
	if typ == domain.TxShip {
		in.CartonsOut = cartons
	} else {
		in.CartonsIn = cartons
	}
	return in
}

func (e *pgEnv) key() domain.BalanceKey {
	return domain.BalanceKey{WarehouseID: e.warehouse.ID, SKUID: e.sku.ID, Batch: "B1"}
}

func TestPostgres_LedgerRoundTrip(t *testing.T) {
	e := newPGEnv(t, "ledger-round-trip")

	res, err := e.ledger.Append(e.ctx, e.move(domain.TxReceive, 100, jan(2)))
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Transaction.StoragePalletsIn)
	assert.Equal(t, int64(1), res.Balance.Version)

	_, err = e.ledger.Append(e.ctx, e.move(domain.TxShip, 30, jan(3)))
	require.NoError(t, err)

	_, err = e.ledger.Append(e.ctx, e.move(domain.TxShip, 71, jan(4)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	b, err := e.projector.GetBalance(e.ctx, e.key())
	require.NoError(t, err)
	assert.Equal(t, int64(70), b.CurrentCartons)
	assert.Equal(t, int64(840), b.CurrentUnits)
	assert.Equal(t, int64(2), b.Version)

	txs, err := e.ledger.List(e.ctx, domain.TransactionFilter{WarehouseID: e.warehouse.ID})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TxReceive, txs[0].Type)

	rebuilt, err := e.projector.Rebuild(e.ctx, e.key())
	require.NoError(t, err)
	assert.False(t, rebuilt.Changed)
	assert.Equal(t, int64(70), rebuilt.Balance.CurrentCartons)
}

func TestPostgres_ConcurrentShipmentsNeverOversell(t *testing.T) {
	e := newPGEnv(t, "concurrent-ship")
	_, err := e.ledger.Append(e.ctx, e.move(domain.TxReceive, 100, jan(2)))
	require.NoError(t, err)

	const (
		workers = 20
		size    = 7
	)
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
		other     atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Append(e.ctx, e.move(domain.TxShip, size, jan(3)))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errors.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Logf("unexpected error: %v", err)
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100/size), succeeded.Load())
	assert.Equal(t, int64(workers-100/size), rejected.Load())
	assert.Zero(t, other.Load())

	b, err := e.projector.GetBalance(e.ctx, e.key())
	require.NoError(t, err)
	assert.Equal(t, int64(100%size), b.CurrentCartons)
	assert.Equal(t, 1+succeeded.Load(), b.Version)

	txs, err := e.ledger.List(e.ctx, domain.TransactionFilter{SKUID: e.sku.ID, Type: domain.TxShip})
	require.NoError(t, err)
	assert.Len(t, txs, int(succeeded.Load()))
}

func TestPostgres_StorageCostsPersistAdjustments(t *testing.T) {
	e := newPGEnv(t, "storage-costs")
	_, err := e.catalog.CreateRate(e.ctx, service.CreateRateInput{
		WarehouseID:   e.warehouse.ID,
		Category:      domain.CostStorage,
		Name:          domain.DefaultStorageCostName,
		Rate:          decimal.RequireFromString("10.00"),
		UnitOfMeasure: "pallet/week",
		EffectiveFrom: jan(1),
	})
	require.NoError(t, err)

	_, err = e.ledger.Append(e.ctx, e.move(domain.TxReceive, 100, jan(2)))
	require.NoError(t, err)

	snaps, err := e.calculator.Recompute(e.ctx, jan(8), jan(8), e.warehouse.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(10), snaps[0].TotalPallets)

	costs, err := e.calculator.ListCalculatedCosts(e.ctx, domain.CostFilter{WarehouseID: e.warehouse.ID})
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.True(t, decimal.RequireFromString("100.00").Equal(costs[0].FinalCost))

	reason := "damaged pallet credit"
	_, err = e.calculator.AdjustCost(e.ctx, costs[0].ID, service.AdjustCostInput{
		Amount: decimal.RequireFromString("-5.00"),
		Reason: reason,
	})
	require.NoError(t, err)

	_, err = e.calculator.Recompute(e.ctx, jan(8), jan(8), e.warehouse.ID)
	require.NoError(t, err)

	costs, err = e.calculator.ListCalculatedCosts(e.ctx, domain.CostFilter{WarehouseID: e.warehouse.ID})
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.True(t, decimal.RequireFromString("-5.00").Equal(costs[0].ManualAdjustment))
	assert.True(t, decimal.RequireFromString("95.00").Equal(costs[0].FinalCost))
}

func TestPostgres_ViewIsReadOnly(t *testing.T) {
	e := newPGEnv(t, "view-read-only")

	err := e.store.View(e.ctx, func(tx store.Tx) error {
		return tx.CreateWarehouse(e.ctx, &domain.Warehouse{ID: e.warehouse.ID, Code: "X", Name: "X", IsActive: true})
	})
	require.Error(t, err)
}

func TestPostgres_StoreRoundTrip(t *testing.T) {
	testutil.SkipIfShort(t)
	if suite == nil {
		t.Skip("postgres container unavailable")
	}
	ctx := testutil.DefaultTestContext(t)
	st := repository.NewStore(suite.SetupSchema(t, ctx, "store-round-trip", repository.Migrations))
	f := suite.Fixtures

	wh := f.Warehouse()
	sku := f.SKU(testutil.WithUnitsPerCarton(24))
	k := domain.BalanceKey{WarehouseID: wh.ID, SKUID: sku.ID, Batch: "LOT-1"}
	in := f.Receive(k, 40, jan(2))

	err := st.Update(ctx, func(tx store.Tx) error {
		if err := tx.CreateWarehouse(ctx, wh); err != nil {
			return err
		}
		if err := tx.CreateSKU(ctx, sku); err != nil {
			return err
		}
		if err := tx.CreatePackaging(ctx, f.Packaging(wh.ID, sku.ID, 20, 20, jan(1))); err != nil {
			return err
		}
		if err := tx.CreateRate(ctx, f.StorageRate(wh.ID, "12.50", jan(1))); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, in)
	})
	require.NoError(t, err)

	err = st.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetWarehouseByCode(ctx, strings.ToLower(wh.Code))
		require.NoError(t, err)
		assert.Equal(t, wh.ID, got.ID)

		cfgs, err := tx.ListPackaging(ctx, wh.ID, sku.ID)
		require.NoError(t, err)
		require.Len(t, cfgs, 1)
		assert.Equal(t, int64(20), cfgs[0].StorageCartonsPerPallet)

		rates, err := tx.ListRates(ctx, domain.RateFilter{WarehouseID: wh.ID, Category: domain.CostStorage})
		require.NoError(t, err)
		require.Len(t, rates, 1)
		assert.True(t, decimal.RequireFromString("12.50").Equal(rates[0].Rate))

		stored, err := tx.GetTransaction(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(40), stored.CartonsIn)
		assert.Equal(t, "LOT-1", stored.Batch)
		assert.Empty(t, stored.Attachments)
		return nil
	})
	require.NoError(t, err)

	err = st.Update(ctx, func(tx store.Tx) error {
		return tx.CreateWarehouse(ctx, f.Warehouse(func(w *domain.Warehouse) { w.Code = strings.ToLower(wh.Code) }))
	})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}
