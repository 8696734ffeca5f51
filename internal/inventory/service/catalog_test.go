package service_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

func TestCatalog_WarehouseCodesAreUppercased(t *testing.T) {
	e := newEnv(t)

	wh, err := e.catalog.GetWarehouse(e.ctx, e.warehouseID)
	require.NoError(t, err)
	assert.Equal(t, "W1", wh.Code)

	_, err = e.catalog.CreateWarehouse(e.ctx, service.CreateWarehouseInput{Code: " ", Name: "x"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCatalog_PackagingRangesMustNotOverlap(t *testing.T) {
	e := newEnv(t)
	end := day(31)

	first, err := e.catalog.CreatePackaging(e.ctx, service.CreatePackagingInput{
		WarehouseID:              e.warehouseID,
		SKUID:                    e.skuID,
		EffectiveFrom:            day(1),
		EffectiveTo:              &end,
		StorageCartonsPerPallet:  24,
		ShippingCartonsPerPallet: 20,
	})
	require.NoError(t, err)

	_, err = e.catalog.CreatePackaging(e.ctx, service.CreatePackagingInput{
		WarehouseID:              e.warehouseID,
		SKUID:                    e.skuID,
		EffectiveFrom:            day(15),
		StorageCartonsPerPallet:  30,
		ShippingCartonsPerPallet: 30,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOverlap))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, first.ID, appErr.Details["existing_id"])

	feb := day(31).AddDate(0, 0, 1)
	_, err = e.catalog.CreatePackaging(e.ctx, service.CreatePackagingInput{
		WarehouseID:              e.warehouseID,
		SKUID:                    e.skuID,
		EffectiveFrom:            feb,
		StorageCartonsPerPallet:  30,
		ShippingCartonsPerPallet: 30,
	})
	require.NoError(t, err)

	cfg, err := e.catalog.EffectivePackaging(e.ctx, e.warehouseID, e.skuID, day(20))
	require.NoError(t, err)
	assert.Equal(t, int64(24), cfg.StorageCartonsPerPallet)

	cfg, err = e.catalog.EffectivePackaging(e.ctx, e.warehouseID, e.skuID, feb.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(30), cfg.StorageCartonsPerPallet)
}

func TestCatalog_PackagingNeedsKnownReferences(t *testing.T) {
	e := newEnv(t)

	_, err := e.catalog.CreatePackaging(e.ctx, service.CreatePackagingInput{
		WarehouseID:              e.warehouseID,
		SKUID:                    "missing",
		EffectiveFrom:            day(1),
		StorageCartonsPerPallet:  24,
		ShippingCartonsPerPallet: 24,
	})
	assert.True(t, errors.Is(err, errors.ErrReference))
}

func TestCatalog_RateRules(t *testing.T) {
	e := newEnv(t)
	e.storageRate(t, "12.50", day(1))

	tests := []struct {
		name   string
		in     service.CreateRateInput
		target error
	}{
		{
			name: "overlapping storage rate",
			in: service.CreateRateInput{
				WarehouseID: e.warehouseID, Category: domain.CostStorage, Name: domain.DefaultStorageCostName,
				Rate: decimal.NewFromInt(14), UnitOfMeasure: "pallet/week", EffectiveFrom: day(8),
			},
			target: errors.ErrOverlap,
		},
		{
			name: "negative rate",
			in: service.CreateRateInput{
				WarehouseID: e.warehouseID, Category: domain.CostCarton, Name: "Pick",
				Rate: decimal.NewFromInt(-1), UnitOfMeasure: "carton", EffectiveFrom: day(1),
			},
			target: errors.ErrValidation,
		},
		{
			name: "unknown category",
			in: service.CreateRateInput{
				WarehouseID: e.warehouseID, Category: "Storage Plus", Name: "x",
				Rate: decimal.NewFromInt(1), UnitOfMeasure: "carton", EffectiveFrom: day(1),
			},
			target: errors.ErrValidation,
		},
		{
			name: "unknown warehouse",
			in: service.CreateRateInput{
				WarehouseID: "missing", Category: domain.CostCarton, Name: "Pick",
				Rate: decimal.NewFromInt(1), UnitOfMeasure: "carton", EffectiveFrom: day(1),
			},
			target: errors.ErrReference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.catalog.CreateRate(e.ctx, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	// a different name in the same category is a different logical rate
	_, err := e.catalog.CreateRate(e.ctx, service.CreateRateInput{
		WarehouseID: e.warehouseID, Category: domain.CostStorage, Name: "Oversize storage",
		Rate: decimal.NewFromInt(20), UnitOfMeasure: "pallet/week", EffectiveFrom: day(1),
	})
	require.NoError(t, err)

	rate, err := e.catalog.EffectiveRate(e.ctx, e.warehouseID, domain.CostStorage, day(10))
	require.NoError(t, err)
	assert.True(t, rate.Rate.IsPositive())
}
