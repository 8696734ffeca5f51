package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

const invoiceColumns = `
	id, invoice_number, warehouse_id, billing_period_start, billing_period_end, invoice_date,
	currency, total_amount, status, created_by_id, created_at`

// CreateInvoice inserts the invoice header and its lines
func (t *pgTx) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, invoice_number, warehouse_id, billing_period_start, billing_period_end, invoice_date,
			currency, total_amount, status, created_by_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.WarehouseID, inv.BillingPeriodStart, inv.BillingPeriodEnd, inv.InvoiceDate,
		inv.Currency, inv.TotalAmount, inv.Status, inv.CreatedByID,
	).Scan(&inv.CreatedAt)
	if err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO invoice_lines (id, invoice_id, line_no, cost_category, cost_name, quantity, unit_rate, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range inv.Lines {
		l := &inv.Lines[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.InvoiceID = inv.ID
		if _, err := t.tx.ExecContext(ctx, lineQuery,
			l.ID, l.InvoiceID, l.LineNo, l.Category, l.CostName, l.Quantity, l.UnitRate, l.Amount,
		); err != nil {
			return err
		}
	}
	return nil
}

// SaveReconciliations replaces the reconciliation results and sets the status
func (t *pgTx) SaveReconciliations(ctx context.Context, invoiceID string, recs []domain.Reconciliation, status domain.InvoiceStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE invoices SET status = $2 WHERE id = $1`, invoiceID, status)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errors.NotFound("invoice")
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM invoice_reconciliations WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}

	query := `
		INSERT INTO invoice_reconciliations (
			id, invoice_id, line_id, cost_category, cost_name,
			expected_amount, invoiced_amount, difference, status, has_basis, reconciled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.InvoiceID = invoiceID
		if _, err := t.tx.ExecContext(ctx, query,
			r.ID, r.InvoiceID, r.LineID, r.Category, r.CostName,
			r.ExpectedAmount, r.InvoicedAmount, r.Difference, r.Status, r.HasBasis, r.ReconciledAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetInvoice gets an invoice with its lines and reconciliation results
func (t *pgTx) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := t.tx.GetContext(ctx, &inv, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("invoice")
	}
	if err != nil {
		return nil, err
	}

	if err := t.tx.SelectContext(ctx, &inv.Lines, `
		SELECT id, invoice_id, line_no, cost_category, cost_name, quantity, unit_rate, amount
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_no
	`, id); err != nil {
		return nil, err
	}

	if err := t.tx.SelectContext(ctx, &inv.Reconciliations, `
		SELECT r.id, r.invoice_id, r.line_id, r.cost_category, r.cost_name, r.expected_amount,
			r.invoiced_amount, r.difference, r.status, r.has_basis, r.reconciled_at
		FROM invoice_reconciliations r
		JOIN invoice_lines l ON l.id = r.line_id
		WHERE r.invoice_id = $1
		ORDER BY l.line_no
	`, id); err != nil {
		return nil, err
	}

	return &inv, nil
}

// ListInvoices lists invoice headers, newest first
func (t *pgTx) ListInvoices(ctx context.Context, inf domain.InvoiceFilter) ([]domain.Invoice, error) {
	var f filter
	if inf.WarehouseID != "" {
		f.add("warehouse_id = ?", inf.WarehouseID)
	}
	if inf.Status != "" {
		f.add("status = ?", inf.Status)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices` + f.where() + ` ORDER BY invoice_date DESC, invoice_number`
	query += f.page(inf.Limit, inf.Offset)

	var out []domain.Invoice
	err := t.tx.SelectContext(ctx, &out, query, f.args...)
	return out, err
}
