package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

const warehouseColumns = `id, code, name, address, is_active, created_at, updated_at`

// CreateWarehouse inserts a warehouse
func (t *pgTx) CreateWarehouse(ctx context.Context, w *domain.Warehouse) error {
	query := `
		INSERT INTO warehouses (id, code, name, address, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return t.tx.QueryRowxContext(ctx, query, w.ID, w.Code, w.Name, w.Address, w.IsActive).
		Scan(&w.CreatedAt, &w.UpdatedAt)
}

// GetWarehouse gets a warehouse by ID
func (t *pgTx) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := t.tx.GetContext(ctx, &w, `SELECT `+warehouseColumns+` FROM warehouses WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("warehouse")
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWarehouseByCode gets a warehouse by its case-insensitive code
func (t *pgTx) GetWarehouseByCode(ctx context.Context, code string) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := t.tx.GetContext(ctx, &w, `SELECT `+warehouseColumns+` FROM warehouses WHERE LOWER(code) = LOWER($1)`, code)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("warehouse")
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWarehouses lists all warehouses by code
func (t *pgTx) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	var out []domain.Warehouse
	err := t.tx.SelectContext(ctx, &out, `SELECT `+warehouseColumns+` FROM warehouses ORDER BY code`)
	return out, err
}

const skuColumns = `id, code, description, units_per_carton, is_active, created_at, updated_at`

// CreateSKU inserts a SKU
func (t *pgTx) CreateSKU(ctx context.Context, s *domain.SKU) error {
	query := `
		INSERT INTO skus (id, code, description, units_per_carton, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return t.tx.QueryRowxContext(ctx, query, s.ID, s.Code, s.Description, s.UnitsPerCarton, s.IsActive).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

// UpdateSKU updates the mutable SKU master fields
func (t *pgTx) UpdateSKU(ctx context.Context, s *domain.SKU) error {
	query := `
		UPDATE skus
		SET description = $2, units_per_carton = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := t.tx.QueryRowxContext(ctx, query, s.ID, s.Description, s.UnitsPerCarton, s.IsActive).Scan(&s.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("sku")
	}
	return err
}

// GetSKU gets a SKU by ID
func (t *pgTx) GetSKU(ctx context.Context, id string) (*domain.SKU, error) {
	var s domain.SKU
	err := t.tx.GetContext(ctx, &s, `SELECT `+skuColumns+` FROM skus WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("sku")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSKUByCode gets a SKU by its case-insensitive code
func (t *pgTx) GetSKUByCode(ctx context.Context, code string) (*domain.SKU, error) {
	var s domain.SKU
	err := t.tx.GetContext(ctx, &s, `SELECT `+skuColumns+` FROM skus WHERE LOWER(code) = LOWER($1)`, code)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("sku")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSKUs lists all SKUs by code
func (t *pgTx) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	var out []domain.SKU
	err := t.tx.SelectContext(ctx, &out, `SELECT `+skuColumns+` FROM skus ORDER BY code`)
	return out, err
}

// CreatePackaging inserts a packaging configuration
func (t *pgTx) CreatePackaging(ctx context.Context, p *domain.PackagingConfig) error {
	query := `
		INSERT INTO packaging_configs (
			id, warehouse_id, sku_id, effective_from, effective_to,
			storage_cartons_per_pallet, shipping_cartons_per_pallet, max_stack_height
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return t.tx.QueryRowxContext(ctx, query,
		p.ID, p.WarehouseID, p.SKUID, p.EffectiveFrom, p.EffectiveTo,
		p.StorageCartonsPerPallet, p.ShippingCartonsPerPallet, p.MaxStackHeight,
	).Scan(&p.CreatedAt)
}

// ListPackaging lists configurations of a warehouse, optionally for one SKU
func (t *pgTx) ListPackaging(ctx context.Context, warehouseID, skuID string) ([]domain.PackagingConfig, error) {
	var f filter
	f.add("warehouse_id = ?", warehouseID)
	if skuID != "" {
		f.add("sku_id = ?", skuID)
	}

	query := `
		SELECT id, warehouse_id, sku_id, effective_from, effective_to,
			storage_cartons_per_pallet, shipping_cartons_per_pallet, max_stack_height, created_at
		FROM packaging_configs` + f.where() + `
		ORDER BY sku_id, effective_from`

	var out []domain.PackagingConfig
	err := t.tx.SelectContext(ctx, &out, query, f.args...)
	return out, err
}

// CreateRate inserts a cost rate
func (t *pgTx) CreateRate(ctx context.Context, r *domain.CostRate) error {
	query := `
		INSERT INTO cost_rates (
			id, warehouse_id, cost_category, cost_name, cost_value, unit_of_measure, effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return t.tx.QueryRowxContext(ctx, query,
		r.ID, r.WarehouseID, r.Category, r.Name, r.Rate, r.UnitOfMeasure, r.EffectiveFrom, r.EffectiveTo,
	).Scan(&r.CreatedAt)
}

// ListRates lists cost rates matching the filter
func (t *pgTx) ListRates(ctx context.Context, rf domain.RateFilter) ([]domain.CostRate, error) {
	var f filter
	if rf.WarehouseID != "" {
		f.add("warehouse_id = ?", rf.WarehouseID)
	}
	if rf.Category != "" {
		f.add("cost_category = ?", rf.Category)
	}
	if rf.Name != "" {
		f.add("cost_name = ?", rf.Name)
	}

	query := `
		SELECT id, warehouse_id, cost_category, cost_name, cost_value, unit_of_measure,
			effective_from, effective_to, created_at
		FROM cost_rates` + f.where() + `
		ORDER BY warehouse_id, cost_category, cost_name, effective_from`

	var out []domain.CostRate
	err := t.tx.SelectContext(ctx, &out, query, f.args...)
	return out, err
}
