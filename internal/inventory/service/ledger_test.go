package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store/memory"
	"github.com/progami/wms-ecomos-sub005/pkg/actor"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
	"github.com/progami/wms-ecomos-sub005/pkg/messaging"
)

func TestLedger_ReceiveShipScenario(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 10, 10, day(1))

	res := e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))
	assert.Equal(t, int64(10), res.Transaction.StoragePalletsIn)
	assert.Equal(t, int64(100), res.Balance.CurrentCartons)
	assert.Equal(t, int64(10), res.Balance.CurrentPallets)

	res = e.mustAppend(t, e.ship(e.skuID, "B1", 30, day(5)))
	assert.Equal(t, int64(3), res.Transaction.ShippingPalletsOut)
	assert.Equal(t, int64(70), res.Balance.CurrentCartons)
	assert.Equal(t, int64(7), res.Balance.CurrentPallets)
	assert.Equal(t, int64(2), res.Balance.Version)

	_, err := e.ledger.Append(e.ctx, e.ship(e.skuID, "B1", 80, day(6)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	b, err := e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(70), b.CurrentCartons)
	assert.Equal(t, int64(7), b.CurrentPallets)
	assert.Equal(t, int64(2), b.Version)

	txs, err := e.ledger.List(e.ctx, domain.TransactionFilter{WarehouseID: e.warehouseID})
	require.NoError(t, err)
	assert.Len(t, txs, 2, "a rejected shipment must not reach the ledger")

	e.sent.AssertEventPublished(t, messaging.EventTransactionAppended)
}

func TestLedger_ConcurrentShipmentsNeverOversell(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 10, 10, day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))

	const (
		workers = 30
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
			_, err := e.ledger.Append(e.ctx, e.ship(e.skuID, "B1", size, day(2)))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errors.ErrInsufficientStock):
				rejected.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100/size), succeeded.Load())
	assert.Equal(t, int64(workers-100/size), rejected.Load())
	assert.Zero(t, other.Load())

	b, err := e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(100-size*(100/size)), b.CurrentCartons)
	assert.Equal(t, 1+succeeded.Load(), b.Version)
}

func TestLedger_VersionGrowsByOnePerTransaction(t *testing.T) {
	e := newEnv(t)

	for i := 1; i <= 5; i++ {
		res := e.mustAppend(t, e.receive(e.skuID, "B1", 3, day(i)))
		assert.Equal(t, int64(i), res.Balance.Version)
	}
}

func TestLedger_UnitsPerCartonIsSnapshotted(t *testing.T) {
	e := newEnv(t)

	first := e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(1)))
	assert.Equal(t, int64(12), first.Transaction.UnitsPerCarton)
	assert.Equal(t, int64(120), first.Balance.CurrentUnits)

	upc := int64(24)
	_, err := e.catalog.UpdateSKU(e.ctx, e.skuID, service.UpdateSKUInput{UnitsPerCarton: &upc})
	require.NoError(t, err)

	stored, err := e.ledger.Get(e.ctx, first.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stored.UnitsPerCarton)

	b, err := e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(120), b.CurrentUnits)

	second := e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(2)))
	assert.Equal(t, int64(24), second.Transaction.UnitsPerCarton)
	assert.Equal(t, int64(360), second.Balance.CurrentUnits)
}

func TestLedger_DerivesPallets(t *testing.T) {
	e := newEnv(t)

	t.Run("factor on the input", func(t *testing.T) {
		in := e.receive(e.skuID, "B1", 25, day(1))
		cpp := int64(24)
		in.StorageCartonsPerPallet = &cpp

		res := e.mustAppend(t, in)
		assert.Equal(t, int64(2), res.Transaction.StoragePalletsIn)
		assert.Empty(t, res.Warnings)
	})

	t.Run("balance override when nothing else is set", func(t *testing.T) {
		res := e.mustAppend(t, e.receive(e.skuID, "B1", 30, day(2)))
		assert.Equal(t, int64(2), res.Transaction.StoragePalletsIn)
		require.NotNil(t, res.Transaction.StorageCartonsPerPallet)
		assert.Equal(t, int64(24), *res.Transaction.StorageCartonsPerPallet)
	})

	t.Run("defaults to one with a warning", func(t *testing.T) {
		res := e.mustAppend(t, e.receive(e.skuID, "B2", 5, day(1)))
		assert.Equal(t, int64(5), res.Transaction.StoragePalletsIn)
		assert.Len(t, res.Warnings, 1)
	})

	t.Run("explicit pallets win", func(t *testing.T) {
		in := e.receive(e.skuID, "B3", 50, day(1))
		pallets := int64(1)
		in.StoragePalletsIn = &pallets

		res := e.mustAppend(t, in)
		assert.Equal(t, int64(1), res.Transaction.StoragePalletsIn)
	})
}

func TestLedger_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		mutate func(*service.AppendInput)
		target error
	}{
		{"unknown warehouse", func(in *service.AppendInput) { in.WarehouseID = "nope" }, errors.ErrReference},
		{"unknown sku", func(in *service.AppendInput) { in.SKUID = "nope" }, errors.ErrReference},
		{"missing batch", func(in *service.AppendInput) { in.Batch = " " }, errors.ErrValidation},
		{"unknown type", func(in *service.AppendInput) { in.Type = "MOVE" }, errors.ErrValidation},
		{"receive with cartons out", func(in *service.AppendInput) { in.CartonsOut = 1 }, errors.ErrValidation},
		{"future date", func(in *service.AppendInput) { in.TransactionDate = time.Now().Add(48 * time.Hour) }, errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := e.receive(e.skuID, "B1", 10, day(1))
			tt.mutate(&in)
			_, err := e.ledger.Append(e.ctx, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	txs, err := e.ledger.List(e.ctx, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
	e.sent.AssertNoEventsPublished(t)
}

func TestLedger_LowercaseTypeIsAccepted(t *testing.T) {
	e := newEnv(t)
	in := e.receive(e.skuID, "B1", 10, day(1))
	in.Type = "receive"

	res := e.mustAppend(t, in)
	assert.Equal(t, domain.TxReceive, res.Transaction.Type)
}

func TestLedger_InactiveSKUIsRejected(t *testing.T) {
	e := newEnv(t)
	inactive := false
	_, err := e.catalog.UpdateSKU(e.ctx, e.skuID, service.UpdateSKUInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = e.ledger.Append(e.ctx, e.receive(e.skuID, "B1", 10, day(1)))
	assert.True(t, errors.Is(err, errors.ErrReference))
}

func TestLedger_RecordsActor(t *testing.T) {
	e := newEnv(t)
	ctx := actor.WithActor(e.ctx, &actor.Actor{ID: "u-7", FirstName: "Kim", LastName: "Osei"})

	res, err := e.ledger.Append(ctx, e.receive(e.skuID, "B1", 10, day(1)))
	require.NoError(t, err)
	assert.Equal(t, "u-7", res.Transaction.CreatedByID)
	assert.Equal(t, "Kim Osei", res.Transaction.CreatedByName)

	res = e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(2)))
	assert.Equal(t, actor.SystemID, res.Transaction.CreatedByID)
}

func TestLedger_UpdateMetadata(t *testing.T) {
	e := newEnv(t)
	res := e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(1)))

	_, err := e.ledger.UpdateMetadata(e.ctx, res.Transaction.ID, domain.TransactionMetadata{})
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	tracking := "1Z999"
	updated, err := e.ledger.UpdateMetadata(e.ctx, res.Transaction.ID, domain.TransactionMetadata{TrackingNumber: &tracking})
	require.NoError(t, err)
	require.NotNil(t, updated.TrackingNumber)
	assert.Equal(t, tracking, *updated.TrackingNumber)
	assert.Equal(t, int64(10), updated.CartonsIn)
}

func TestLedger_ListRejectsBadRange(t *testing.T) {
	e := newEnv(t)
	from, to := day(5), day(1)

	_, err := e.ledger.List(e.ctx, domain.TransactionFilter{From: &from, To: &to})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

// tracingStore records the lock and balance reads made inside units of work
type tracingStore struct {
	store.Store
	mu    sync.Mutex
	calls []string
}

func (s *tracingStore) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Update(ctx, func(tx store.Tx) error {
		return fn(&tracingTx{Tx: tx, s: s})
	})
}

func (s *tracingStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *tracingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

type tracingTx struct {
	store.Tx
	s *tracingStore
}

func (tx *tracingTx) LockKey(ctx context.Context, token int64, wait time.Duration) error {
	tx.s.record("lock")
	return tx.Tx.LockKey(ctx, token, wait)
}

func (tx *tracingTx) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	tx.s.record("balance")
	return tx.Tx.GetBalance(ctx, key)
}

func TestLedger_PalletFactorIsReadUnderKeyLock(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()
	st := &tracingStore{Store: memory.New()}
	lock := service.LockPolicy{Timeout: time.Second}
	catalog := service.NewCatalogService(st, lock, log)
	projector := service.NewProjector(st, lock, nil, nil, log)
	ledger := service.NewLedgerService(st, projector, nil, nil, log)

	wh, err := catalog.CreateWarehouse(ctx, service.CreateWarehouseInput{Code: "w1", Name: "Warehouse One"})
	require.NoError(t, err)
	sku, err := catalog.CreateSKU(ctx, service.CreateSKUInput{Code: "CS-007", Description: "Case pack", UnitsPerCarton: 12})
	require.NoError(t, err)

	cpp := int64(8)
	_, err = ledger.Append(ctx, service.AppendInput{
		WarehouseID: wh.ID, SKUID: sku.ID, Batch: "B1", Type: domain.TxReceive,
		CartonsIn: 40, ShippingCartonsPerPallet: &cpp, TransactionDate: day(1),
	})
	require.NoError(t, err)

	st.reset()
	res, err := ledger.Append(ctx, service.AppendInput{
		WarehouseID: wh.ID, SKUID: sku.ID, Batch: "B1", Type: domain.TxShip,
		CartonsOut: 16, TransactionDate: day(2),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Transaction.ShippingPalletsOut, "factor comes from the balance override")

	require.NotEmpty(t, st.calls)
	assert.Equal(t, "lock", st.calls[0])
	assert.Contains(t, st.calls, "balance")
}

func TestProjector_RebuildMatchesApply(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 10, 10, day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))
	e.mustAppend(t, e.ship(e.skuID, "B1", 30, day(5)))
	last := e.mustAppend(t, e.receive(e.skuID, "B1", 15, day(8)))

	res, err := e.projector.Rebuild(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.True(t, last.Balance.SameState(res.Balance))
	assert.Equal(t, int64(85), res.Balance.CurrentCartons)
	assert.Equal(t, int64(3), res.Balance.Version)

	e.sent.AssertEventPublished(t, messaging.EventBalanceRebuilt)
}

func TestLedger_BackdatedShipmentBeforeStockIsRejected(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 10, 10, day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(5)))

	_, err := e.ledger.Append(e.ctx, e.ship(e.skuID, "B1", 30, day(2)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	res, err := e.projector.Rebuild(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(100), res.Balance.CurrentCartons)
	assert.Equal(t, int64(10), res.Balance.CurrentPallets)
}

func TestProjector_RebuildMatchesBackdatedApply(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 10, 1, day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(1)))
	e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(5)))

	// one storage pallet is on hand on day 3, ten shipping pallets leave
	last := e.mustAppend(t, e.ship(e.skuID, "B1", 10, day(3)))
	assert.Equal(t, int64(10), last.Transaction.ShippingPalletsOut)
	assert.Equal(t, int64(10), last.Balance.CurrentCartons)
	assert.Equal(t, int64(1), last.Balance.CurrentPallets)
	assert.Equal(t, int64(3), last.Balance.Version)

	res, err := e.projector.Rebuild(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, last.Balance.CurrentPallets, res.Balance.CurrentPallets)
	assert.True(t, last.Balance.SameState(res.Balance))
}

func TestProjector_RebuildOfUnknownKeyWritesNothing(t *testing.T) {
	e := newEnv(t)

	res, err := e.projector.Rebuild(e.ctx, e.key("none"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, res.Balance.Version)

	_, err = e.projector.GetBalance(e.ctx, e.key("none"))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLockPolicy(t *testing.T) {
	p := service.LockPolicy{Timeout: time.Second}
	assert.Equal(t, time.Second, p.Wait())

	p.FailFast = true
	assert.Zero(t, p.Wait())
}
