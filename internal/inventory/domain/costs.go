package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculatedCost is one derived charge for a warehouse, SKU, batch, billing
// week and category. Recomputation rewrites everything except the manual
// adjustment.
type CalculatedCost struct {
	ID               string          `json:"id" db:"id"`
	WarehouseID      string          `json:"warehouse_id" db:"warehouse_id"`
	SKUID            string          `json:"sku_id" db:"sku_id"`
	Batch            string          `json:"batch_lot" db:"batch_lot"`
	BillingWeek      time.Time       `json:"billing_week" db:"billing_week"`
	Category         CostCategory    `json:"cost_category" db:"cost_category"`
	CostName         string          `json:"cost_name" db:"cost_name"`
	RateID           *string         `json:"rate_id,omitempty" db:"rate_id"`
	QuantityCharged  decimal.Decimal `json:"quantity_charged" db:"quantity_charged"`
	Rate             decimal.Decimal `json:"applicable_rate" db:"applicable_rate"`
	ComputedCost     decimal.Decimal `json:"computed_cost" db:"computed_cost"`
	ManualAdjustment decimal.Decimal `json:"manual_adjustment" db:"manual_adjustment"`
	AdjustmentReason *string         `json:"adjustment_reason,omitempty" db:"adjustment_reason"`
	FinalCost        decimal.Decimal `json:"final_cost" db:"final_cost"`
	CalculatedAt     time.Time       `json:"calculated_at" db:"calculated_at"`
}

// Key identifies the row a recomputation overwrites
func (c *CalculatedCost) Key() CostKey {
	return CostKey{
		WarehouseID: c.WarehouseID,
		SKUID:       c.SKUID,
		Batch:       c.Batch,
		BillingWeek: DateOnly(c.BillingWeek),
		Category:    c.Category,
	}
}

// Refinalize recomputes the final cost from computed cost and adjustment
func (c *CalculatedCost) Refinalize() {
	c.FinalCost = c.ComputedCost.Add(c.ManualAdjustment)
}

// CostKey is the natural key of a calculated cost
type CostKey struct {
	WarehouseID string
	SKUID       string
	Batch       string
	BillingWeek time.Time
	Category    CostCategory
}

// StorageCosts turns a weekly snapshot into calculated cost rows
func StorageCosts(s *WeeklySnapshot, calculatedAt time.Time) []CalculatedCost {
	out := make([]CalculatedCost, 0, len(s.Items))
	for _, it := range s.Items {
		c := CalculatedCost{
			WarehouseID:      s.WarehouseID,
			SKUID:            it.SKUID,
			Batch:            it.Batch,
			BillingWeek:      s.WeekStart,
			Category:         CostStorage,
			CostName:         s.CostName,
			RateID:           s.RateID,
			QuantityCharged:  decimal.NewFromInt(it.Pallets),
			Rate:             s.Rate,
			ComputedCost:     it.Cost,
			ManualAdjustment: decimal.Zero,
			CalculatedAt:     calculatedAt,
		}
		c.Refinalize()
		out = append(out, c)
	}
	return out
}

// CostFilter selects calculated costs. Weeks are inclusive.
type CostFilter struct {
	WarehouseID string
	SKUID       string
	Batch       string
	Category    CostCategory
	CostName    string
	WeekFrom    *time.Time
	WeekTo      *time.Time
	Limit       int
	Offset      int
}

// Matches reports whether c passes the filter
func (f CostFilter) Matches(c *CalculatedCost) bool {
	if f.WarehouseID != "" && c.WarehouseID != f.WarehouseID {
		return false
	}
	if f.SKUID != "" && c.SKUID != f.SKUID {
		return false
	}
	if f.Batch != "" && c.Batch != f.Batch {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.CostName != "" && c.CostName != f.CostName {
		return false
	}
	week := DateOnly(c.BillingWeek)
	if f.WeekFrom != nil && week.Before(DateOnly(*f.WeekFrom)) {
		return false
	}
	if f.WeekTo != nil && week.After(DateOnly(*f.WeekTo)) {
		return false
	}
	return true
}
