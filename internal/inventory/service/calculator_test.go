package service_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/messaging"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculator_WeeklySnapshot(t *testing.T) {
	e := newEnv(t)
	other, err := e.catalog.CreateSKU(e.ctx, service.CreateSKUInput{Code: "CS-008", Description: "Loose", UnitsPerCarton: 6})
	require.NoError(t, err)

	e.packaging(t, e.skuID, 24, 24, day(1))
	e.packaging(t, other.ID, 10, 10, day(1))
	e.storageRate(t, "10.00", day(1))

	e.mustAppend(t, e.receive(e.skuID, "B1", 25, day(2)))
	e.mustAppend(t, e.receive(other.ID, "B9", 10, day(3)))
	e.mustAppend(t, e.receive(e.skuID, "B2", 5, day(9)))

	snaps, err := e.calculator.ComputeWeeklySnapshots(e.ctx, day(1), day(14), "")
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	t.Run("stock received after the Monday is not billed that week", func(t *testing.T) {
		first := snaps[0]
		assert.True(t, first.WeekStart.Equal(day(1)))
		assert.Empty(t, first.Items)
		assert.Zero(t, first.TotalPallets)
		assert.True(t, first.WeeklyCost.IsZero())
	})

	t.Run("pallets are rounded up and cost is allocated by share", func(t *testing.T) {
		second := snaps[1]
		assert.True(t, second.WeekStart.Equal(day(8)))
		require.Len(t, second.Items, 2)
		assert.Equal(t, int64(3), second.TotalPallets)
		assert.True(t, dec("30.00").Equal(second.WeeklyCost))

		byBatch := map[string]domain.SnapshotItem{}
		for _, it := range second.Items {
			byBatch[it.Batch] = it
		}
		assert.Equal(t, int64(2), byBatch["B1"].Pallets)
		assert.Equal(t, domain.SourcePackaging, byBatch["B1"].Source)
		assert.True(t, dec("20.00").Equal(byBatch["B1"].Cost))
		assert.True(t, dec("10.00").Equal(byBatch["B9"].Cost))
		assert.True(t, second.AllocatedTotal().Equal(second.WeeklyCost))
	})
}

func TestCalculator_AllocationSumsExactly(t *testing.T) {
	e := newEnv(t)
	e.storageRate(t, "3.33", day(1))

	cpp := int64(1)
	for _, batch := range []string{"B1", "B2", "B3"} {
		in := e.receive(e.skuID, batch, 1, day(1))
		in.StorageCartonsPerPallet = &cpp
		e.mustAppend(t, in)
	}
	in := e.receive(e.skuID, "B4", 4, day(1))
	in.StorageCartonsPerPallet = &cpp
	e.mustAppend(t, in)

	snaps, err := e.calculator.ComputeWeeklySnapshots(e.ctx, day(8), day(8), e.warehouseID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	s := snaps[0]
	assert.Equal(t, int64(7), s.TotalPallets)
	assert.True(t, dec("23.31").Equal(s.WeeklyCost))
	assert.True(t, s.AllocatedTotal().Equal(s.WeeklyCost), "allocated %s of %s", s.AllocatedTotal(), s.WeeklyCost)
	for _, it := range s.Items {
		assert.Equal(t, domain.SourceOverride, it.Source)
		assert.True(t, it.Cost.Equal(it.Cost.Truncate(domain.CostScale)))
		assert.False(t, it.Cost.IsNegative())
	}
}

func TestCalculator_IsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 24, 24, day(1))
	e.storageRate(t, "7.25", day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))
	e.mustAppend(t, e.ship(e.skuID, "B1", 33, day(10)))

	first, err := e.calculator.ComputeWeeklySnapshots(e.ctx, day(1), day(31), e.warehouseID)
	require.NoError(t, err)
	second, err := e.calculator.ComputeWeeklySnapshots(e.ctx, day(1), day(31), e.warehouseID)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCalculator_MissingRateBillsZero(t *testing.T) {
	e := newEnv(t)
	e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(1)))

	snaps, err := e.calculator.ComputeWeeklySnapshots(e.ctx, day(8), day(8), "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(10), snaps[0].TotalPallets)
	assert.True(t, snaps[0].WeeklyCost.IsZero())
	assert.Nil(t, snaps[0].RateID)
}

func TestCalculator_RejectsBadInput(t *testing.T) {
	e := newEnv(t)

	_, err := e.calculator.ComputeWeeklySnapshots(e.ctx, day(14), day(1), "")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = e.calculator.ComputeWeeklySnapshots(e.ctx, day(1), day(14), "missing")
	assert.True(t, errors.Is(err, errors.ErrReference))
}

func TestCalculator_PersistKeepsAdjustments(t *testing.T) {
	e := newEnv(t)
	e.packaging(t, e.skuID, 10, 10, day(1))
	e.storageRate(t, "5.00", day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 100, day(1)))

	_, err := e.calculator.Recompute(e.ctx, day(8), day(8), e.warehouseID)
	require.NoError(t, err)
	e.sent.AssertEventPublished(t, messaging.EventSnapshotComputed)

	costs, err := e.calculator.ListCalculatedCosts(e.ctx, domain.CostFilter{WarehouseID: e.warehouseID})
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.True(t, dec("50.00").Equal(costs[0].FinalCost))

	_, err = e.calculator.AdjustCost(e.ctx, costs[0].ID, service.AdjustCostInput{Amount: dec("-5.00")})
	assert.True(t, errors.Is(err, errors.ErrValidation), "reason is required")

	_, err = e.calculator.AdjustCost(e.ctx, costs[0].ID, service.AdjustCostInput{Amount: dec("-60.00"), Reason: "credit"})
	assert.True(t, errors.Is(err, errors.ErrValidation), "final cost may not go negative")

	adjusted, err := e.calculator.AdjustCost(e.ctx, costs[0].ID, service.AdjustCostInput{Amount: dec("-5.00"), Reason: "damaged pallet"})
	require.NoError(t, err)
	assert.True(t, dec("45.00").Equal(adjusted.FinalCost))

	_, err = e.calculator.Recompute(e.ctx, day(8), day(8), e.warehouseID)
	require.NoError(t, err)

	again, err := e.calculator.ListCalculatedCosts(e.ctx, domain.CostFilter{WarehouseID: e.warehouseID})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, costs[0].ID, again[0].ID)
	assert.True(t, dec("-5.00").Equal(again[0].ManualAdjustment))
	assert.True(t, dec("45.00").Equal(again[0].FinalCost))
}

func TestCalculator_RecomputeDropsEmptiedRows(t *testing.T) {
	e := newEnv(t)
	e.storageRate(t, "5.00", day(1))
	e.mustAppend(t, e.receive(e.skuID, "B1", 10, day(1)))
	e.mustAppend(t, e.receive(e.skuID, "B2", 10, day(1)))

	_, err := e.calculator.Recompute(e.ctx, day(15), day(15), e.warehouseID)
	require.NoError(t, err)

	e.mustAppend(t, e.ship(e.skuID, "B2", 10, day(14)))
	_, err = e.calculator.Recompute(e.ctx, day(15), day(15), e.warehouseID)
	require.NoError(t, err)

	costs, err := e.calculator.ListCalculatedCosts(e.ctx, domain.CostFilter{WarehouseID: e.warehouseID})
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Equal(t, "B1", costs[0].Batch)
}
