package memory

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

var testKey = domain.BalanceKey{WarehouseID: "wh-1", SKUID: "sku-1", Batch: "B1"}

func seedBalance(t *testing.T, s *Store, cartons int64) {
	t.Helper()
	err := s.Update(context.Background(), func(tx store.Tx) error {
		rcv := movement(domain.TxReceive, cartons)
		if err := tx.InsertTransaction(context.Background(), rcv); err != nil {
			return err
		}
		return tx.SaveBalance(context.Background(), domain.Fold(testKey, []domain.Transaction{*rcv}), 0)
	})
	require.NoError(t, err)
}

func movement(typ domain.TransactionType, cartons int64) *domain.Transaction {
	t := &domain.Transaction{
		ID:              uuid.NewString(),
		WarehouseID:     testKey.WarehouseID,
		SKUID:           testKey.SKUID,
		Batch:           testKey.Batch,
		Type:            typ,
		TransactionDate: time.Now().UTC(),
	}
	if typ == domain.TxShip {
		t.CartonsOut = cartons
	} else {
		t.CartonsIn = cartons
	}
	return t
}

// withdraw takes the key lock, re-reads the key's history and ships n cartons.
func withdraw(ctx context.Context, s *Store, n int64, wait time.Duration) error {
	return s.Update(ctx, func(tx store.Tx) error {
		if err := tx.LockKey(ctx, testKey.LockToken(), wait); err != nil {
			return err
		}
		current, err := tx.GetBalance(ctx, testKey)
		if err != nil {
			return err
		}
		history, err := tx.ListTransactions(ctx, domain.TransactionFilter{Batch: testKey.Batch})
		if err != nil {
			return err
		}

		t := movement(domain.TxShip, n)
		b, err := domain.Replay(history, t)
		if err != nil {
			return err
		}
		b.ID = current.ID
		b.Version = current.Version + 1
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return tx.SaveBalance(ctx, b, current.Version)
	})
}

func TestConcurrentWithdrawalsNeverOversell(t *testing.T) {
	s := New()
	seedBalance(t, s, 100)

	const workers = 25
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := withdraw(context.Background(), s, 7, 5*time.Second)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errors.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100/7), succeeded.Load())
	assert.Equal(t, int64(workers-100/7), rejected.Load())

	err := s.View(context.Background(), func(tx store.Tx) error {
		b, err := tx.GetBalance(context.Background(), testKey)
		require.NoError(t, err)
		assert.Equal(t, int64(100%7), b.CurrentCartons)
		assert.Equal(t, 1+succeeded.Load(), b.Version)

		txs, err := tx.ListTransactions(context.Background(), domain.TransactionFilter{Type: domain.TxShip})
		require.NoError(t, err)
		assert.Len(t, txs, int(succeeded.Load()))
		return nil
	})
	require.NoError(t, err)
}

func TestLockKey_FailFast(t *testing.T) {
	s := New()
	seedBalance(t, s, 10)

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Update(context.Background(), func(tx store.Tx) error {
			assert.NoError(t, tx.LockKey(context.Background(), testKey.LockToken(), time.Second))
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	err := withdraw(context.Background(), s, 1, 0)
	assert.True(t, errors.Is(err, errors.ErrLockContention))
	assert.True(t, errors.IsRetryable(err))

	err = withdraw(context.Background(), s, 1, 20*time.Millisecond)
	assert.True(t, errors.Is(err, errors.ErrLockContention))

	close(done)
	assert.Eventually(t, func() bool {
		return withdraw(context.Background(), s, 1, 0) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestLockKey_Reentrant(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), func(tx store.Tx) error {
		require.NoError(t, tx.LockKey(context.Background(), 42, 0))
		return tx.LockKey(context.Background(), 42, 0)
	})
	assert.NoError(t, err)
}

func TestUpdate_RollbackLeavesNoPartialEffects(t *testing.T) {
	s := New()
	seedBalance(t, s, 10)
	boom := stderrors.New("boom")

	err := s.Update(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		b, err := tx.GetBalance(ctx, testKey)
		require.NoError(t, err)
		prev := b.Version
		b.CurrentCartons = 3
		b.Version++
		require.NoError(t, tx.SaveBalance(ctx, b, prev))
		require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{ID: "t-1", WarehouseID: "wh-1"}))

		staged, err := tx.GetBalance(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, int64(3), staged.CurrentCartons)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(context.Background(), func(tx store.Tx) error {
		b, err := tx.GetBalance(context.Background(), testKey)
		require.NoError(t, err)
		assert.Equal(t, int64(10), b.CurrentCartons)
		assert.Equal(t, int64(1), b.Version)

		_, err = tx.GetTransaction(context.Background(), "t-1")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
		return nil
	})
	require.NoError(t, err)
}

func TestSaveBalance_StaleVersion(t *testing.T) {
	s := New()
	seedBalance(t, s, 10)

	err := s.Update(context.Background(), func(tx store.Tx) error {
		b := domain.NewBalance(testKey)
		b.Version = 5
		return tx.SaveBalance(context.Background(), b, 4)
	})
	assert.True(t, errors.Is(err, errors.ErrLockContention))

	err = s.Update(context.Background(), func(tx store.Tx) error {
		return tx.SaveBalance(context.Background(), domain.NewBalance(testKey), 0)
	})
	assert.True(t, errors.Is(err, errors.ErrLockContention))
}

func TestView_IsReadOnlySnapshot(t *testing.T) {
	s := New()
	seedBalance(t, s, 10)

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	var seen int64
	go func() {
		defer close(finished)
		_ = s.View(context.Background(), func(tx store.Tx) error {
			close(entered)
			<-release
			b, err := tx.GetBalance(context.Background(), testKey)
			if err == nil {
				seen = b.CurrentCartons
			}
			return nil
		})
	}()
	<-entered

	require.NoError(t, withdraw(context.Background(), s, 4, time.Second))
	close(release)
	<-finished
	assert.Equal(t, int64(10), seen)

	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.InsertTransaction(context.Background(), &domain.Transaction{ID: "x"})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestCatalog_UniqueCodes(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateWarehouse(ctx, &domain.Warehouse{ID: "wh-1", Code: "LAX", Name: "Los Angeles"})
	}))

	err := s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateWarehouse(ctx, &domain.Warehouse{ID: "wh-2", Code: "lax", Name: "Duplicate"})
	})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	err = s.View(ctx, func(tx store.Tx) error {
		w, err := tx.GetWarehouseByCode(ctx, "LAX")
		require.NoError(t, err)
		assert.Equal(t, "wh-1", w.ID)
		assert.False(t, w.CreatedAt.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestReplaceCalculatedCosts_KeepsManualAdjustment(t *testing.T) {
	s := New()
	ctx := context.Background()
	week := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	row := func(sku string, cost int64) domain.CalculatedCost {
		return domain.CalculatedCost{
			WarehouseID:  "wh-1",
			SKUID:        sku,
			Batch:        "B1",
			BillingWeek:  week,
			Category:     domain.CostStorage,
			CostName:     "Storage",
			ComputedCost: decimal.NewFromInt(cost),
		}
	}

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.ReplaceCalculatedCosts(ctx, "wh-1", week, domain.CostStorage,
			[]domain.CalculatedCost{row("sku-1", 10), row("sku-2", 20)})
	}))

	var adjustedID string
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		costs, err := tx.ListCalculatedCosts(ctx, domain.CostFilter{SKUID: "sku-1"})
		require.NoError(t, err)
		require.Len(t, costs, 1)
		c := costs[0]
		adjustedID = c.ID
		c.ManualAdjustment = decimal.NewFromInt(-2)
		c.Refinalize()
		return tx.SaveCalculatedCost(ctx, &c)
	}))

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.ReplaceCalculatedCosts(ctx, "wh-1", week, domain.CostStorage,
			[]domain.CalculatedCost{row("sku-1", 15)})
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		costs, err := tx.ListCalculatedCosts(ctx, domain.CostFilter{WarehouseID: "wh-1"})
		require.NoError(t, err)
		require.Len(t, costs, 1)
		assert.Equal(t, adjustedID, costs[0].ID)
		assert.True(t, decimal.NewFromInt(13).Equal(costs[0].FinalCost))
		return nil
	}))
}

func TestListTransactions_OrderAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		for i, id := range []string{"c", "a", "b"} {
			err := tx.InsertTransaction(ctx, &domain.Transaction{
				ID:              id,
				WarehouseID:     "wh-1",
				TransactionDate: base.AddDate(0, 0, 2-i),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		asc, err := tx.ListTransactions(ctx, domain.TransactionFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "c"}, ids(asc))

		desc, err := tx.ListTransactions(ctx, domain.TransactionFilter{Descending: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, ids(desc))

		to := base.AddDate(0, 0, 2)
		window, err := tx.ListTransactions(ctx, domain.TransactionFilter{From: &base, To: &to})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids(window))
		return nil
	}))
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}
