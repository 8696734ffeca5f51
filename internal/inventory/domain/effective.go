package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateOnly truncates t to midnight UTC
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive day range. A nil To is open ended.
type DateRange struct {
	From time.Time
	To   *time.Time
}

// Contains reports whether day d falls inside the range
func (r DateRange) Contains(d time.Time) bool {
	d = DateOnly(d)
	if d.Before(DateOnly(r.From)) {
		return false
	}
	return r.To == nil || !d.After(DateOnly(*r.To))
}

// Overlaps reports whether the two ranges share at least one day
func (r DateRange) Overlaps(o DateRange) bool {
	if r.To != nil && DateOnly(*r.To).Before(DateOnly(o.From)) {
		return false
	}
	if o.To != nil && DateOnly(*o.To).Before(DateOnly(r.From)) {
		return false
	}
	return true
}

// Valid reports whether To, when set, is not before From
func (r DateRange) Valid() bool {
	return r.To == nil || !DateOnly(*r.To).Before(DateOnly(r.From))
}

// Effective is an effective-dated record
type Effective interface {
	EffectiveRange() DateRange
}

// FindOverlap returns the first existing record whose range overlaps candidate.
func FindOverlap[T Effective](existing []T, candidate DateRange) (T, bool) {
	for _, e := range existing {
		if e.EffectiveRange().Overlaps(candidate) {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// PackagingConfig holds the carton and pallet conversion factors for a
// warehouse and SKU over an effective range.
type PackagingConfig struct {
	ID                       string     `json:"id" db:"id"`
	WarehouseID              string     `json:"warehouse_id" db:"warehouse_id"`
	SKUID                    string     `json:"sku_id" db:"sku_id"`
	EffectiveFrom            time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo              *time.Time `json:"effective_to,omitempty" db:"effective_to"`
	StorageCartonsPerPallet  int64      `json:"storage_cartons_per_pallet" db:"storage_cartons_per_pallet"`
	ShippingCartonsPerPallet int64      `json:"shipping_cartons_per_pallet" db:"shipping_cartons_per_pallet"`
	MaxStackHeight           *int64     `json:"max_stack_height,omitempty" db:"max_stack_height"`
	CreatedAt                time.Time  `json:"created_at" db:"created_at"`
}

// EffectiveRange implements Effective
func (p PackagingConfig) EffectiveRange() DateRange {
	return DateRange{From: p.EffectiveFrom, To: p.EffectiveTo}
}

// EffectivePackaging picks the configuration active on day d
func EffectivePackaging(configs []PackagingConfig, warehouseID, skuID string, d time.Time) (PackagingConfig, bool) {
	for _, c := range configs {
		if c.WarehouseID == warehouseID && c.SKUID == skuID && c.EffectiveRange().Contains(d) {
			return c, true
		}
	}
	return PackagingConfig{}, false
}

// CostRate is a price for one warehouse, category and cost name over an effective range
type CostRate struct {
	ID            string          `json:"id" db:"id"`
	WarehouseID   string          `json:"warehouse_id" db:"warehouse_id"`
	Category      CostCategory    `json:"cost_category" db:"cost_category"`
	Name          string          `json:"cost_name" db:"cost_name"`
	Rate          decimal.Decimal `json:"cost_value" db:"cost_value"`
	UnitOfMeasure string          `json:"unit_of_measure" db:"unit_of_measure"`
	EffectiveFrom time.Time       `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty" db:"effective_to"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// EffectiveRange implements Effective
func (r CostRate) EffectiveRange() DateRange {
	return DateRange{From: r.EffectiveFrom, To: r.EffectiveTo}
}

// EffectiveRate picks the rate for warehouse and category active on day d.
// With several cost names in the category the first by name wins.
func EffectiveRate(rates []CostRate, warehouseID string, category CostCategory, d time.Time) (CostRate, bool) {
	var active []CostRate
	for _, r := range rates {
		if r.WarehouseID == warehouseID && r.Category == category && r.EffectiveRange().Contains(d) {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return CostRate{}, false
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Name != active[j].Name {
			return active[i].Name < active[j].Name
		}
		return active[i].EffectiveFrom.After(active[j].EffectiveFrom)
	})
	return active[0], true
}

// RateFilter selects cost rates
type RateFilter struct {
	WarehouseID string
	Category    CostCategory
	Name        string
}

// Matches reports whether r passes the filter
func (f RateFilter) Matches(r *CostRate) bool {
	return (f.WarehouseID == "" || r.WarehouseID == f.WarehouseID) &&
		(f.Category == "" || r.Category == f.Category) &&
		(f.Name == "" || r.Name == f.Name)
}
