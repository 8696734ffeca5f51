package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

const costColumns = `
	id, warehouse_id, sku_id, batch_lot, billing_week, cost_category, cost_name, rate_id,
	quantity_charged, applicable_rate, computed_cost, manual_adjustment, adjustment_reason,
	final_cost, calculated_at`

// ReplaceCalculatedCosts upserts costs on their natural key and removes the
// rows of the week and category that are no longer produced. Manual
// adjustments survive and the final cost is recomputed in SQL.
func (t *pgTx) ReplaceCalculatedCosts(ctx context.Context, warehouseID string, week time.Time, category domain.CostCategory, costs []domain.CalculatedCost) error {
	week = domain.DateOnly(week)

	upsert := `
		INSERT INTO calculated_costs (
			id, warehouse_id, sku_id, batch_lot, billing_week, cost_category, cost_name, rate_id,
			quantity_charged, applicable_rate, computed_cost, manual_adjustment, final_cost, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $11, $12)
		ON CONFLICT (warehouse_id, sku_id, batch_lot, billing_week, cost_category) DO UPDATE SET
			cost_name = EXCLUDED.cost_name,
			rate_id = EXCLUDED.rate_id,
			quantity_charged = EXCLUDED.quantity_charged,
			applicable_rate = EXCLUDED.applicable_rate,
			computed_cost = EXCLUDED.computed_cost,
			final_cost = EXCLUDED.computed_cost + calculated_costs.manual_adjustment,
			calculated_at = EXCLUDED.calculated_at
		RETURNING id
	`

	keep := make([]string, 0, len(costs))
	for i := range costs {
		c := &costs[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		var id string
		err := t.tx.QueryRowxContext(ctx, upsert,
			c.ID, warehouseID, c.SKUID, c.Batch, week, category, c.CostName, c.RateID,
			c.QuantityCharged, c.Rate, c.ComputedCost, c.CalculatedAt,
		).Scan(&id)
		if err != nil {
			return err
		}
		c.ID = id
		keep = append(keep, id)
	}

	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM calculated_costs
		WHERE warehouse_id = $1 AND billing_week = $2 AND cost_category = $3 AND NOT (id::text = ANY($4))
	`, warehouseID, week, category, pq.Array(keep))
	return err
}

// GetCalculatedCost gets a calculated cost by ID
func (t *pgTx) GetCalculatedCost(ctx context.Context, id string) (*domain.CalculatedCost, error) {
	var c domain.CalculatedCost
	err := t.tx.GetContext(ctx, &c, `SELECT `+costColumns+` FROM calculated_costs WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("calculated cost")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCalculatedCosts lists calculated costs matching the filter
func (t *pgTx) ListCalculatedCosts(ctx context.Context, cf domain.CostFilter) ([]domain.CalculatedCost, error) {
	var f filter
	if cf.WarehouseID != "" {
		f.add("warehouse_id = ?", cf.WarehouseID)
	}
	if cf.SKUID != "" {
		f.add("sku_id = ?", cf.SKUID)
	}
	if cf.Batch != "" {
		f.add("batch_lot = ?", cf.Batch)
	}
	if cf.Category != "" {
		f.add("cost_category = ?", cf.Category)
	}
	if cf.CostName != "" {
		f.add("cost_name = ?", cf.CostName)
	}
	if cf.WeekFrom != nil {
		f.add("billing_week >= ?", domain.DateOnly(*cf.WeekFrom))
	}
	if cf.WeekTo != nil {
		f.add("billing_week <= ?", domain.DateOnly(*cf.WeekTo))
	}

	query := `SELECT ` + costColumns + ` FROM calculated_costs` + f.where() +
		` ORDER BY billing_week, warehouse_id, sku_id, batch_lot, cost_category`
	query += f.page(cf.Limit, cf.Offset)

	var out []domain.CalculatedCost
	err := t.tx.SelectContext(ctx, &out, query, f.args...)
	return out, err
}

// SaveCalculatedCost writes back the adjustment fields of a cost
func (t *pgTx) SaveCalculatedCost(ctx context.Context, c *domain.CalculatedCost) error {
	query := `
		UPDATE calculated_costs
		SET manual_adjustment = $2, adjustment_reason = $3, final_cost = $4
		WHERE id = $1
	`
	res, err := t.tx.ExecContext(ctx, query, c.ID, c.ManualAdjustment, c.AdjustmentReason, c.FinalCost)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound("calculated cost")
	}
	return nil
}
