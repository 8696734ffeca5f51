package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CostScale is the number of decimal places carried by billed amounts
const CostScale = 2

// PalletSource records where a cartons-per-pallet factor came from
type PalletSource string

const (
	SourcePackaging PalletSource = "packaging"
	SourceOverride  PalletSource = "override"
	SourceDefault   PalletSource = "default"
)

// DefaultStorageCostName labels storage costs when no rate exists for the week
const DefaultStorageCostName = "Storage"

// SnapshotItem is one SKU and batch inside a weekly snapshot
type SnapshotItem struct {
	SKUID            string          `json:"sku_id"`
	Batch            string          `json:"batch_lot"`
	Cartons          int64           `json:"cartons"`
	CartonsPerPallet int64           `json:"cartons_per_pallet"`
	Source           PalletSource    `json:"cartons_per_pallet_source"`
	Pallets          int64           `json:"pallets"`
	Share            decimal.Decimal `json:"share"`
	Cost             decimal.Decimal `json:"cost"`
}

// WeeklySnapshot is the storage charge of one warehouse for the week
// anchored on WeekStart (a Monday).
type WeeklySnapshot struct {
	WarehouseID  string          `json:"warehouse_id"`
	WeekStart    time.Time       `json:"week_start"`
	TotalPallets int64           `json:"total_pallets"`
	RateID       *string         `json:"rate_id,omitempty"`
	CostName     string          `json:"cost_name"`
	Rate         decimal.Decimal `json:"rate"`
	WeeklyCost   decimal.Decimal `json:"weekly_cost"`
	Items        []SnapshotItem  `json:"items"`
}

// AllocatedTotal sums the per-item costs
func (s *WeeklySnapshot) AllocatedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.Items {
		sum = sum.Add(it.Cost)
	}
	return sum
}

// Mondays lists every Monday between start and end, both inclusive
func Mondays(start, end time.Time) []time.Time {
	start, end = DateOnly(start), DateOnly(end)
	offset := (int(time.Monday) - int(start.Weekday()) + 7) % 7
	var out []time.Time
	for d := start.AddDate(0, 0, offset); !d.After(end); d = d.AddDate(0, 0, 7) {
		out = append(out, d)
	}
	return out
}

// MondayOf returns the Monday on or before d
func MondayOf(d time.Time) time.Time {
	d = DateOnly(d)
	back := (int(d.Weekday()) - int(time.Monday) + 7) % 7
	return d.AddDate(0, 0, -back)
}

// CartonsAsOf folds the carton movements dated up to the end of day asOf,
// per key, in chronological order.
func CartonsAsOf(txs []Transaction, asOf time.Time) map[BalanceKey]int64 {
	cutoff := DateOnly(asOf).AddDate(0, 0, 1)

	sorted := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.TransactionDate.Before(cutoff) {
			sorted = append(sorted, t)
		}
	}
	SortChronologically(sorted)

	out := make(map[BalanceKey]int64)
	for i := range sorted {
		out[sorted[i].Key()] += sorted[i].NetCartons()
	}
	return out
}

// ResolveCartonsPerPallet applies the lookup order packaging config,
// then balance override, then 1.
func ResolveCartonsPerPallet(packaging []PackagingConfig, overrides map[BalanceKey]int64, key BalanceKey, on time.Time) (int64, PalletSource) {
	if cfg, ok := EffectivePackaging(packaging, key.WarehouseID, key.SKUID, on); ok && cfg.StorageCartonsPerPallet > 0 {
		return cfg.StorageCartonsPerPallet, SourcePackaging
	}
	if v, ok := overrides[key]; ok && v > 0 {
		return v, SourceOverride
	}
	return 1, SourceDefault
}

// SnapshotInput is everything needed to price one warehouse for one week
type SnapshotInput struct {
	WarehouseID  string
	Monday       time.Time
	Transactions []Transaction
	Packaging    []PackagingConfig
	Overrides    map[BalanceKey]int64
	Rates        []CostRate
}

// BuildWeeklySnapshot computes the storage snapshot for one warehouse and
// Monday. Warnings list soft gaps (missing rate, defaulted pallet factor).
func BuildWeeklySnapshot(in SnapshotInput) (WeeklySnapshot, []string) {
	monday := DateOnly(in.Monday)
	snap := WeeklySnapshot{
		WarehouseID: in.WarehouseID,
		WeekStart:   monday,
		CostName:    DefaultStorageCostName,
		Rate:        decimal.Zero,
		WeeklyCost:  decimal.Zero,
		Items:       []SnapshotItem{},
	}
	var warnings []string

	for key, cartons := range CartonsAsOf(in.Transactions, monday) {
		if key.WarehouseID != in.WarehouseID || cartons <= 0 {
			continue
		}
		cpp, source := ResolveCartonsPerPallet(in.Packaging, in.Overrides, key, monday)
		if source == SourceDefault {
			warnings = append(warnings, fmt.Sprintf("no cartons-per-pallet for sku %s batch %s, using 1", key.SKUID, key.Batch))
		}
		snap.Items = append(snap.Items, SnapshotItem{
			SKUID:            key.SKUID,
			Batch:            key.Batch,
			Cartons:          cartons,
			CartonsPerPallet: cpp,
			Source:           source,
			Pallets:          CeilDiv(cartons, cpp),
		})
	}

	sort.Slice(snap.Items, func(i, j int) bool {
		if snap.Items[i].SKUID != snap.Items[j].SKUID {
			return snap.Items[i].SKUID < snap.Items[j].SKUID
		}
		return snap.Items[i].Batch < snap.Items[j].Batch
	})

	weights := make([]int64, len(snap.Items))
	for i, it := range snap.Items {
		snap.TotalPallets += it.Pallets
		weights[i] = it.Pallets
	}

	if rate, ok := EffectiveRate(in.Rates, in.WarehouseID, CostStorage, monday); ok {
		id := rate.ID
		snap.RateID = &id
		snap.CostName = rate.Name
		snap.Rate = rate.Rate
	} else {
		warnings = append(warnings, fmt.Sprintf("no storage rate for warehouse %s on %s", in.WarehouseID, monday.Format("2006-01-02")))
	}

	snap.WeeklyCost = decimal.NewFromInt(snap.TotalPallets).Mul(snap.Rate).Round(CostScale)

	costs := Allocate(snap.WeeklyCost, weights)
	for i := range snap.Items {
		snap.Items[i].Cost = costs[i]
		snap.Items[i].Share = Share(weights[i], snap.TotalPallets)
	}

	return snap, warnings
}

// Share returns part/total rounded to 6 places, zero when total is zero
func Share(part, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Div(decimal.NewFromInt(total)).Round(6)
}

// Allocate splits total across weights proportionally using the largest
// remainder method at CostScale places: every part is truncated, then the
// leftover cents go one by one to the parts with the largest remainders
// (earlier index first on ties). Parts never go negative and always sum to
// total exactly.
func Allocate(total decimal.Decimal, weights []int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	for i := range out {
		out[i] = decimal.Zero
	}

	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 || total.IsZero() {
		return out
	}
	if total.IsNegative() {
		parts := Allocate(total.Neg(), weights)
		for i := range parts {
			parts[i] = parts[i].Neg()
		}
		return parts
	}

	denom := decimal.NewFromInt(sum)
	remainders := make([]decimal.Decimal, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		if w <= 0 {
			remainders[i] = decimal.Zero
			continue
		}
		quota := total.Mul(decimal.NewFromInt(w)).Div(denom)
		out[i] = quota.Truncate(CostScale)
		remainders[i] = quota.Sub(out[i])
		allocated = allocated.Add(out[i])
	}

	order := make([]int, 0, len(weights))
	for i, w := range weights {
		if w > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	unit := decimal.New(1, -CostScale)
	residue := total.Sub(allocated)
	for k := 0; residue.GreaterThanOrEqual(unit); k = (k + 1) % len(order) {
		out[order[k]] = out[order[k]].Add(unit)
		residue = residue.Sub(unit)
	}
	if residue.IsPositive() {
		// total carried more than CostScale places
		out[order[0]] = out[order[0]].Add(residue)
	}
	return out
}
