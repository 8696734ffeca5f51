package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
)

// FixtureFactory creates domain fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Warehouse creates a warehouse fixture
func (f *FixtureFactory) Warehouse(opts ...func(*domain.Warehouse)) *domain.Warehouse {
	seq := f.nextSeq()
	w := &domain.Warehouse{
		ID:       uuid.New().String(),
		Code:     fmt.Sprintf("WH%03d", seq),
		Name:     fmt.Sprintf("Warehouse %d", seq),
		IsActive: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SKU creates a SKU fixture with 12 units per carton
func (f *FixtureFactory) SKU(opts ...func(*domain.SKU)) *domain.SKU {
	seq := f.nextSeq()
	s := &domain.SKU{
		ID:             uuid.New().String(),
		Code:           fmt.Sprintf("SKU-%04d", seq),
		Description:    fmt.Sprintf("Test product %d", seq),
		UnitsPerCarton: 12,
		IsActive:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithUnitsPerCarton sets the SKU's units per carton
func WithUnitsPerCarton(n int64) func(*domain.SKU) {
	return func(s *domain.SKU) {
		s.UnitsPerCarton = n
	}
}

// Receive creates a RECEIVE transaction fixture for the key
func (f *FixtureFactory) Receive(key domain.BalanceKey, cartons int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:              uuid.New().String(),
		WarehouseID:     key.WarehouseID,
		SKUID:           key.SKUID,
		Batch:           key.Batch,
		Type:            domain.TxReceive,
		CartonsIn:       cartons,
		UnitsPerCarton:  12,
		TransactionDate: at,
		CreatedByID:     "test-user",
		CreatedByName:   "Test User",
	}
}

// StorageRate creates a weekly storage rate effective from the given day
func (f *FixtureFactory) StorageRate(warehouseID string, perPallet string, from time.Time) *domain.CostRate {
	return &domain.CostRate{
		ID:            uuid.New().String(),
		WarehouseID:   warehouseID,
		Category:      domain.CostStorage,
		Name:          domain.DefaultStorageCostName,
		Rate:          decimal.RequireFromString(perPallet),
		UnitOfMeasure: "pallet/week",
		EffectiveFrom: domain.DateOnly(from),
	}
}

// Packaging creates a packaging configuration fixture
func (f *FixtureFactory) Packaging(warehouseID, skuID string, storage, shipping int64, from time.Time) *domain.PackagingConfig {
	return &domain.PackagingConfig{
		ID:                       uuid.New().String(),
		WarehouseID:              warehouseID,
		SKUID:                    skuID,
		EffectiveFrom:            domain.DateOnly(from),
		StorageCartonsPerPallet:  storage,
		ShippingCartonsPerPallet: shipping,
	}
}
