package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

const balanceColumns = `
	id, warehouse_id, sku_id, batch_lot, current_cartons, current_pallets, current_units,
	storage_cartons_per_pallet, shipping_cartons_per_pallet,
	first_received_at, last_transaction_date, version, updated_at`

// GetBalance gets the balance row for a key
func (t *pgTx) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	var b domain.Balance
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE warehouse_id = $1 AND sku_id = $2 AND batch_lot = $3`
	err := t.tx.GetContext(ctx, &b, query, key.WarehouseID, key.SKUID, key.Batch)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("balance")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBalance inserts or compare-and-swaps the balance row
func (t *pgTx) SaveBalance(ctx context.Context, b *domain.Balance, prevVersion int64) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	var res sql.Result
	var err error
	if prevVersion == 0 {
		query := `
			INSERT INTO balances (
				id, warehouse_id, sku_id, batch_lot, current_cartons, current_pallets, current_units,
				storage_cartons_per_pallet, shipping_cartons_per_pallet,
				first_received_at, last_transaction_date, version, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (warehouse_id, sku_id, batch_lot) DO NOTHING
		`
		res, err = t.tx.ExecContext(ctx, query,
			b.ID, b.WarehouseID, b.SKUID, b.Batch, b.CurrentCartons, b.CurrentPallets, b.CurrentUnits,
			b.StorageCartonsPerPallet, b.ShippingCartonsPerPallet,
			b.FirstReceivedAt, b.LastTransactionDate, b.Version,
		)
	} else {
		query := `
			UPDATE balances
			SET current_cartons = $4, current_pallets = $5, current_units = $6,
				storage_cartons_per_pallet = $7, shipping_cartons_per_pallet = $8,
				first_received_at = $9, last_transaction_date = $10, version = $11, updated_at = NOW()
			WHERE warehouse_id = $1 AND sku_id = $2 AND batch_lot = $3 AND version = $12
		`
		res, err = t.tx.ExecContext(ctx, query,
			b.WarehouseID, b.SKUID, b.Batch, b.CurrentCartons, b.CurrentPallets, b.CurrentUnits,
			b.StorageCartonsPerPallet, b.ShippingCartonsPerPallet,
			b.FirstReceivedAt, b.LastTransactionDate, b.Version, prevVersion,
		)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.LockContention(b.Key().String())
	}
	return nil
}

// ListBalances lists balance rows matching the filter
func (t *pgTx) ListBalances(ctx context.Context, bf domain.BalanceFilter) ([]domain.Balance, error) {
	var f filter
	if bf.WarehouseID != "" {
		f.add("warehouse_id = ?", bf.WarehouseID)
	}
	if bf.SKUID != "" {
		f.add("sku_id = ?", bf.SKUID)
	}
	if bf.Batch != "" {
		f.add("batch_lot = ?", bf.Batch)
	}
	if !bf.IncludeEmpty {
		f.add("current_cartons > ?", 0)
	}

	query := `SELECT ` + balanceColumns + ` FROM balances` + f.where() + ` ORDER BY warehouse_id, sku_id, batch_lot`
	query += f.page(bf.Limit, bf.Offset)

	var out []domain.Balance
	err := t.tx.SelectContext(ctx, &out, query, f.args...)
	return out, err
}
