package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store/memory"
	"github.com/progami/wms-ecomos-sub005/pkg/cache"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// interleavedStore runs afterView once, right after the next read-only unit
// of work has loaded its data and before the caller continues.
type interleavedStore struct {
	store.Store
	afterView func()
}

func (s *interleavedStore) View(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.Store.View(ctx, fn)
	if hook := s.afterView; hook != nil {
		s.afterView = nil
		hook()
	}
	return err
}

type cachedEnv struct {
	*env
	redis *miniredis.Miniredis
	st    *interleavedStore
}

func newCachedEnv(t *testing.T) *cachedEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.Nop()
	st := &interleavedStore{Store: memory.New()}
	lock := service.LockPolicy{Timeout: time.Second}
	c := cache.New(rdb, "wms", time.Minute, log)

	e := &env{
		ctx:     context.Background(),
		catalog: service.NewCatalogService(st, lock, log),
	}
	e.projector = service.NewProjector(st, lock, c, nil, log)
	e.ledger = service.NewLedgerService(st, e.projector, nil, nil, log)

	wh, err := e.catalog.CreateWarehouse(e.ctx, service.CreateWarehouseInput{Code: "w1", Name: "Warehouse One"})
	require.NoError(t, err)
	sku, err := e.catalog.CreateSKU(e.ctx, service.CreateSKUInput{Code: "CS-007", Description: "Case pack", UnitsPerCarton: 12})
	require.NoError(t, err)
	e.warehouseID, e.skuID = wh.ID, sku.ID
	return &cachedEnv{env: e, redis: mr, st: st}
}

func TestProjector_BalanceIsCachedUnderPrefix(t *testing.T) {
	e := newCachedEnv(t)
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))

	b, err := e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.CurrentCartons)
	assert.True(t, e.redis.Exists("wms:balance:"+e.key("B1").String()))

	e.mustAppend(t, e.ship(e.skuID, "B1", 30, day(2)))
	assert.False(t, e.redis.Exists("wms:balance:"+e.key("B1").String()))

	b, err = e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(70), b.CurrentCartons)
}

func TestProjector_ReadOverlappingAppendIsNotCached(t *testing.T) {
	e := newCachedEnv(t)
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))
	cached := "wms:balance:" + e.key("B1").String()

	// the shipment commits after the read loaded version 1 but before the
	// reader stores it
	e.st.afterView = func() {
		e.mustAppend(t, e.ship(e.skuID, "B1", 30, day(2)))
	}

	b, err := e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version)
	assert.False(t, e.redis.Exists(cached), "a balance loaded before an invalidation must not be cached")

	b, err = e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(70), b.CurrentCartons)
	assert.Equal(t, int64(2), b.Version)
	assert.True(t, e.redis.Exists(cached))

	b, err = e.projector.GetBalance(e.ctx, e.key("B1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Version)
}
