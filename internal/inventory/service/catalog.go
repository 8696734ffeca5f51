package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// CatalogService manages warehouses, SKUs, packaging configurations and
// cost rates. Effective-dated writes for one logical key are serialized so
// two overlapping ranges can never both commit.
type CatalogService struct {
	store  store.Store
	lock   LockPolicy
	logger *logger.Logger
}

// NewCatalogService creates a catalog service
func NewCatalogService(st store.Store, lock LockPolicy, log *logger.Logger) *CatalogService {
	return &CatalogService{store: st, lock: lock, logger: log.WithComponent("catalog")}
}

// CreateWarehouseInput is a request to register a warehouse
type CreateWarehouseInput struct {
	Code    string  `json:"code" validate:"required,max=20"`
	Name    string  `json:"name" validate:"required,max=200"`
	Address *string `json:"address,omitempty"`
}

// CreateSKUInput is a request to register a SKU
type CreateSKUInput struct {
	Code           string `json:"code" validate:"required,max=50"`
	Description    string `json:"description" validate:"required"`
	UnitsPerCarton int64  `json:"units_per_carton" validate:"gt=0"`
}

// UpdateSKUInput changes the SKU master data. Transactions already recorded
// keep the units-per-carton they were created with.
type UpdateSKUInput struct {
	Description    *string `json:"description,omitempty"`
	UnitsPerCarton *int64  `json:"units_per_carton,omitempty" validate:"omitempty,gt=0"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

// CreatePackagingInput is a request to add a packaging configuration
type CreatePackagingInput struct {
	WarehouseID              string     `json:"warehouse_id" validate:"required"`
	SKUID                    string     `json:"sku_id" validate:"required"`
	EffectiveFrom            time.Time  `json:"effective_from" validate:"required"`
	EffectiveTo              *time.Time `json:"effective_to,omitempty"`
	StorageCartonsPerPallet  int64      `json:"storage_cartons_per_pallet" validate:"gt=0"`
	ShippingCartonsPerPallet int64      `json:"shipping_cartons_per_pallet" validate:"gt=0"`
	MaxStackHeight           *int64     `json:"max_stack_height,omitempty" validate:"omitempty,gt=0"`
}

// CreateRateInput is a request to add a cost rate
type CreateRateInput struct {
	WarehouseID   string              `json:"warehouse_id" validate:"required"`
	Category      domain.CostCategory `json:"cost_category" validate:"required"`
	Name          string              `json:"cost_name" validate:"required,max=100"`
	Rate          decimal.Decimal     `json:"cost_value"`
	UnitOfMeasure string              `json:"unit_of_measure" validate:"required"`
	EffectiveFrom time.Time           `json:"effective_from" validate:"required"`
	EffectiveTo   *time.Time          `json:"effective_to,omitempty"`
}

// Warehouses

// CreateWarehouse registers a warehouse. Codes are unique ignoring case.
func (s *CatalogService) CreateWarehouse(ctx context.Context, in CreateWarehouseInput) (*domain.Warehouse, error) {
	w := &domain.Warehouse{
		ID:       uuid.New().String(),
		Code:     strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:     strings.TrimSpace(in.Name),
		Address:  in.Address,
		IsActive: true,
	}
	if w.Code == "" {
		return nil, errors.Invalid("code", "is required")
	}
	if w.Name == "" {
		return nil, errors.Invalid("name", "is required")
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		return tx.CreateWarehouse(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("warehouse_id", w.ID).Str("code", w.Code).Msg("warehouse created")
	return w, nil
}

// GetWarehouse returns one warehouse
func (s *CatalogService) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var w *domain.Warehouse
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		w, err = tx.GetWarehouse(ctx, id)
		return err
	})
	return w, err
}

// ListWarehouses lists all warehouses by code
func (s *CatalogService) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	var out []domain.Warehouse
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListWarehouses(ctx)
		return err
	})
	return out, err
}

// SKUs

// CreateSKU registers a SKU. Codes are unique ignoring case.
func (s *CatalogService) CreateSKU(ctx context.Context, in CreateSKUInput) (*domain.SKU, error) {
	sku := &domain.SKU{
		ID:             uuid.New().String(),
		Code:           strings.TrimSpace(in.Code),
		Description:    strings.TrimSpace(in.Description),
		UnitsPerCarton: in.UnitsPerCarton,
		IsActive:       true,
	}
	if sku.Code == "" {
		return nil, errors.Invalid("code", "is required")
	}
	if sku.UnitsPerCarton <= 0 {
		return nil, errors.Invalid("units_per_carton", "must be positive")
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		return tx.CreateSKU(ctx, sku)
	})
	if err != nil {
		return nil, err
	}
	return sku, nil
}

// UpdateSKU applies in to the SKU
func (s *CatalogService) UpdateSKU(ctx context.Context, id string, in UpdateSKUInput) (*domain.SKU, error) {
	if in.UnitsPerCarton != nil && *in.UnitsPerCarton <= 0 {
		return nil, errors.Invalid("units_per_carton", "must be positive")
	}

	var sku *domain.SKU
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		sku, err = tx.GetSKU(ctx, id)
		if err != nil {
			return err
		}
		if in.Description != nil {
			sku.Description = strings.TrimSpace(*in.Description)
		}
		if in.UnitsPerCarton != nil {
			sku.UnitsPerCarton = *in.UnitsPerCarton
		}
		if in.IsActive != nil {
			sku.IsActive = *in.IsActive
		}
		return tx.UpdateSKU(ctx, sku)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("sku_id", id).Int64("units_per_carton", sku.UnitsPerCarton).Bool("is_active", sku.IsActive).Msg("sku updated")
	return sku, nil
}

// GetSKU returns one SKU
func (s *CatalogService) GetSKU(ctx context.Context, id string) (*domain.SKU, error) {
	var sku *domain.SKU
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		sku, err = tx.GetSKU(ctx, id)
		return err
	})
	return sku, err
}

// ListSKUs lists all SKUs by code
func (s *CatalogService) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	var out []domain.SKU
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListSKUs(ctx)
		return err
	})
	return out, err
}

// Packaging

// CreatePackaging adds a packaging configuration. Its range must not
// overlap another configuration of the same warehouse and SKU.
func (s *CatalogService) CreatePackaging(ctx context.Context, in CreatePackagingInput) (*domain.PackagingConfig, error) {
	p := &domain.PackagingConfig{
		ID:                       uuid.New().String(),
		WarehouseID:              in.WarehouseID,
		SKUID:                    in.SKUID,
		EffectiveFrom:            domain.DateOnly(in.EffectiveFrom),
		EffectiveTo:              dateOnlyPtr(in.EffectiveTo),
		StorageCartonsPerPallet:  in.StorageCartonsPerPallet,
		ShippingCartonsPerPallet: in.ShippingCartonsPerPallet,
		MaxStackHeight:           in.MaxStackHeight,
	}
	if err := validateRange(p.EffectiveRange()); err != nil {
		return nil, err
	}
	if p.StorageCartonsPerPallet <= 0 || p.ShippingCartonsPerPallet <= 0 {
		return nil, errors.Invalid("cartons_per_pallet", "storage and shipping factors must be positive")
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := checkReferences(ctx, tx, p.WarehouseID, p.SKUID); err != nil {
			return err
		}
		if err := tx.LockKey(ctx, lockToken("packaging", p.WarehouseID, p.SKUID), s.lock.Wait()); err != nil {
			return err
		}

		existing, err := tx.ListPackaging(ctx, p.WarehouseID, p.SKUID)
		if err != nil {
			return err
		}
		if clash, ok := domain.FindOverlap(existing, p.EffectiveRange()); ok {
			return errors.Overlap("packaging configuration", clash.ID)
		}
		return tx.CreatePackaging(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPackaging lists the configurations of a warehouse, optionally for one SKU
func (s *CatalogService) ListPackaging(ctx context.Context, warehouseID, skuID string) ([]domain.PackagingConfig, error) {
	var out []domain.PackagingConfig
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListPackaging(ctx, warehouseID, skuID)
		return err
	})
	return out, err
}

// EffectivePackaging returns the configuration active on day on. A
// configuration starting after on does not apply.
func (s *CatalogService) EffectivePackaging(ctx context.Context, warehouseID, skuID string, on time.Time) (*domain.PackagingConfig, error) {
	configs, err := s.ListPackaging(ctx, warehouseID, skuID)
	if err != nil {
		return nil, err
	}
	cfg, ok := domain.EffectivePackaging(configs, warehouseID, skuID, on)
	if !ok {
		return nil, errors.NotFound("packaging configuration")
	}
	return &cfg, nil
}

// Rates

// CreateRate adds a cost rate. Its range must not overlap another rate of
// the same warehouse, category and cost name.
func (s *CatalogService) CreateRate(ctx context.Context, in CreateRateInput) (*domain.CostRate, error) {
	r := &domain.CostRate{
		ID:            uuid.New().String(),
		WarehouseID:   in.WarehouseID,
		Category:      in.Category,
		Name:          strings.TrimSpace(in.Name),
		Rate:          in.Rate,
		UnitOfMeasure: strings.TrimSpace(in.UnitOfMeasure),
		EffectiveFrom: domain.DateOnly(in.EffectiveFrom),
		EffectiveTo:   dateOnlyPtr(in.EffectiveTo),
	}
	if !r.Category.Valid() {
		return nil, errors.Invalid("cost_category", "unknown cost category "+string(r.Category))
	}
	if r.Name == "" {
		return nil, errors.Invalid("cost_name", "is required")
	}
	if r.Rate.IsNegative() {
		return nil, errors.Invalid("cost_value", "must not be negative")
	}
	if err := validateRange(r.EffectiveRange()); err != nil {
		return nil, err
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.GetWarehouse(ctx, r.WarehouseID)
		if errors.Is(err, errors.ErrNotFound) {
			return errors.Reference("warehouse", r.WarehouseID)
		}
		if err != nil {
			return err
		}

		if err := tx.LockKey(ctx, lockToken("rate", r.WarehouseID, string(r.Category), r.Name), s.lock.Wait()); err != nil {
			return err
		}

		existing, err := tx.ListRates(ctx, domain.RateFilter{WarehouseID: r.WarehouseID, Category: r.Category, Name: r.Name})
		if err != nil {
			return err
		}
		if clash, ok := domain.FindOverlap(existing, r.EffectiveRange()); ok {
			return errors.Overlap("cost rate", clash.ID)
		}
		return tx.CreateRate(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("rate_id", r.ID).
		Str("cost_category", string(r.Category)).
		Str("cost_name", r.Name).
		Str("cost_value", r.Rate.String()).
		Msg("cost rate created")
	return r, nil
}

// ListRates lists rates matching the filter
func (s *CatalogService) ListRates(ctx context.Context, f domain.RateFilter) ([]domain.CostRate, error) {
	var out []domain.CostRate
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListRates(ctx, f)
		return err
	})
	return out, err
}

// EffectiveRate returns the rate of the category active on day on. With
// several cost names the first by name wins.
func (s *CatalogService) EffectiveRate(ctx context.Context, warehouseID string, category domain.CostCategory, on time.Time) (*domain.CostRate, error) {
	rates, err := s.ListRates(ctx, domain.RateFilter{WarehouseID: warehouseID, Category: category})
	if err != nil {
		return nil, err
	}
	r, ok := domain.EffectiveRate(rates, warehouseID, category, on)
	if !ok {
		return nil, errors.NotFound("cost rate")
	}
	return &r, nil
}

func validateRange(r domain.DateRange) error {
	if r.From.IsZero() {
		return errors.Invalid("effective_from", "is required")
	}
	if !r.Valid() {
		return errors.Invalid("effective_to", "must not be before effective_from")
	}
	return nil
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.DateOnly(*t)
	return &d
}
