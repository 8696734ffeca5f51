package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

const transactionColumns = `
	id, warehouse_id, sku_id, batch_lot, transaction_type,
	cartons_in, cartons_out, storage_pallets_in, shipping_pallets_out, units_per_carton,
	storage_cartons_per_pallet, shipping_cartons_per_pallet, transaction_date,
	reference_id, tracking_number, attachments, notes,
	created_by_id, created_by_name, is_reconciled, created_at`

// InsertTransaction appends an entry to the ledger
func (t *pgTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, warehouse_id, sku_id, batch_lot, transaction_type,
			cartons_in, cartons_out, storage_pallets_in, shipping_pallets_out, units_per_carton,
			storage_cartons_per_pallet, shipping_cartons_per_pallet, transaction_date,
			reference_id, tracking_number, attachments, notes,
			created_by_id, created_by_name, is_reconciled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at
	`
	return t.tx.QueryRowxContext(ctx, query,
		tr.ID, tr.WarehouseID, tr.SKUID, tr.Batch, tr.Type,
		tr.CartonsIn, tr.CartonsOut, tr.StoragePalletsIn, tr.ShippingPalletsOut, tr.UnitsPerCarton,
		tr.StorageCartonsPerPallet, tr.ShippingCartonsPerPallet, tr.TransactionDate,
		tr.ReferenceID, tr.TrackingNumber, tr.Attachments, tr.Notes,
		tr.CreatedByID, tr.CreatedByName, tr.IsReconciled,
	).Scan(&tr.CreatedAt)
}

// GetTransaction gets a ledger entry by ID
func (t *pgTx) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var tr domain.Transaction
	err := t.tx.GetContext(ctx, &tr, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("transaction")
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// ListTransactions lists ledger entries in chronological order
func (t *pgTx) ListTransactions(ctx context.Context, tf domain.TransactionFilter) ([]domain.Transaction, error) {
	var f filter
	if tf.WarehouseID != "" {
		f.add("warehouse_id = ?", tf.WarehouseID)
	}
	if tf.SKUID != "" {
		f.add("sku_id = ?", tf.SKUID)
	}
	if tf.Batch != "" {
		f.add("batch_lot = ?", tf.Batch)
	}
	if tf.Type != "" {
		f.add("transaction_type = ?", tf.Type)
	}
	if tf.From != nil {
		f.add("transaction_date >= ?", *tf.From)
	}
	if tf.To != nil {
		f.add("transaction_date < ?", *tf.To)
	}

	order := ` ORDER BY transaction_date, created_at, id`
	if tf.Descending {
		order = ` ORDER BY transaction_date DESC, created_at DESC, id DESC`
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + f.where() + order
	query += f.page(tf.Limit, tf.Offset)

	var out []domain.Transaction
	err := t.tx.SelectContext(ctx, &out, query, f.args...)
	return out, err
}

// UpdateTransactionMetadata changes the non-quantity fields of an entry
func (t *pgTx) UpdateTransactionMetadata(ctx context.Context, id string, m domain.TransactionMetadata) (*domain.Transaction, error) {
	var tr domain.Transaction
	err := t.tx.GetContext(ctx, &tr, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("transaction")
	}
	if err != nil {
		return nil, err
	}

	m.ApplyTo(&tr)

	query := `
		UPDATE transactions
		SET reference_id = $2, tracking_number = $3, attachments = $4, notes = $5, is_reconciled = $6
		WHERE id = $1
	`
	if _, err := t.tx.ExecContext(ctx, query,
		id, tr.ReferenceID, tr.TrackingNumber, tr.Attachments, tr.Notes, tr.IsReconciled,
	); err != nil {
		return nil, err
	}
	return &tr, nil
}
