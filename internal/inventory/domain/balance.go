package domain

import (
	"hash/fnv"
	"time"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// BalanceKey identifies one balance row
type BalanceKey struct {
	WarehouseID string `json:"warehouse_id"`
	SKUID       string `json:"sku_id"`
	Batch       string `json:"batch_lot"`
}

// String renders the key as warehouse|sku|batch
func (k BalanceKey) String() string {
	return k.WarehouseID + "|" + k.SKUID + "|" + k.Batch
}

// LockToken derives the advisory lock id for the key: the full 64-bit
// FNV-1a hash of String(), reinterpreted as a signed integer.
func (k BalanceKey) LockToken() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.String()))
	return int64(h.Sum64())
}

// Balance is the current stock projection for one key. It is only ever
// written by applying or folding ledger transactions.
type Balance struct {
	ID                       string     `json:"id" db:"id"`
	WarehouseID              string     `json:"warehouse_id" db:"warehouse_id"`
	SKUID                    string     `json:"sku_id" db:"sku_id"`
	Batch                    string     `json:"batch_lot" db:"batch_lot"`
	CurrentCartons           int64      `json:"current_cartons" db:"current_cartons"`
	CurrentPallets           int64      `json:"current_pallets" db:"current_pallets"`
	CurrentUnits             int64      `json:"current_units" db:"current_units"`
	StorageCartonsPerPallet  *int64     `json:"storage_cartons_per_pallet,omitempty" db:"storage_cartons_per_pallet"`
	ShippingCartonsPerPallet *int64     `json:"shipping_cartons_per_pallet,omitempty" db:"shipping_cartons_per_pallet"`
	FirstReceivedAt          *time.Time `json:"first_received_at,omitempty" db:"first_received_at"`
	LastTransactionDate      *time.Time `json:"last_transaction_date,omitempty" db:"last_transaction_date"`
	Version                  int64      `json:"version" db:"version"`
	UpdatedAt                time.Time  `json:"updated_at" db:"updated_at"`
}

// NewBalance returns an empty balance for key
func NewBalance(key BalanceKey) *Balance {
	return &Balance{WarehouseID: key.WarehouseID, SKUID: key.SKUID, Batch: key.Batch}
}

// Key returns the balance key
func (b *Balance) Key() BalanceKey {
	return BalanceKey{WarehouseID: b.WarehouseID, SKUID: b.SKUID, Batch: b.Batch}
}

// add moves the balance by t and bumps the version. Pallets are floored
// at zero: pallet counts derived with different storage and shipping
// factors need not cancel out exactly.
func (b *Balance) add(t *Transaction) {
	b.CurrentCartons += t.NetCartons()
	b.CurrentPallets = floorZero(b.CurrentPallets + t.NetPallets())
	b.CurrentUnits += t.NetUnits()
	b.Version++
	b.track(t)
}

// track records dates and, when none is set yet, the pallet configuration
// carried by t.
func (b *Balance) track(t *Transaction) {
	d := t.TransactionDate
	if b.LastTransactionDate == nil || d.After(*b.LastTransactionDate) {
		b.LastTransactionDate = &d
	}
	if t.IsInbound() && (b.FirstReceivedAt == nil || d.Before(*b.FirstReceivedAt)) {
		b.FirstReceivedAt = &d
	}
	if b.StorageCartonsPerPallet == nil && t.StorageCartonsPerPallet != nil {
		v := *t.StorageCartonsPerPallet
		b.StorageCartonsPerPallet = &v
	}
	if b.ShippingCartonsPerPallet == nil && t.ShippingCartonsPerPallet != nil {
		v := *t.ShippingCartonsPerPallet
		b.ShippingCartonsPerPallet = &v
	}
}

// Fold rebuilds a balance for key from its full transaction history in
// chronological order. Historical entries are facts and are not re-checked
// for sufficiency.
func Fold(key BalanceKey, txs []Transaction) *Balance {
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	SortChronologically(sorted)

	b := NewBalance(key)
	for i := range sorted {
		if sorted[i].Key() == key {
			b.add(&sorted[i])
		}
	}
	return b
}

// Replay folds history plus t into the balance of t's key, exactly as Fold
// would once t is recorded. t may be backdated, so its sufficiency is
// judged at its own date and every later point of the history: when the
// cartons on hand would drop below zero anywhere from t onwards, Replay
// fails with InsufficientStock and reports the most t could take out.
func Replay(history []Transaction, t *Transaction) (*Balance, error) {
	key := t.Key()
	all := make([]Transaction, 0, len(history)+1)
	for i := range history {
		if history[i].ID != t.ID && history[i].Key() == key {
			all = append(all, history[i])
		}
	}
	all = append(all, *t)
	SortChronologically(all)

	b := NewBalance(key)
	var (
		reached bool
		low     int64
	)
	for i := range all {
		b.add(&all[i])
		if all[i].ID == t.ID {
			reached = true
			low = b.CurrentCartons
		}
		if reached && b.CurrentCartons < low {
			low = b.CurrentCartons
		}
	}

	if low < 0 && t.NetCartons() < 0 {
		return nil, errors.InsufficientStock(floorZero(t.CartonsOut+low), t.CartonsOut)
	}
	return b, nil
}

// SameState reports whether two balances hold identical projected values.
// IDs, timestamps of the row itself and overrides are ignored.
func (b *Balance) SameState(o *Balance) bool {
	return b.Key() == o.Key() &&
		b.CurrentCartons == o.CurrentCartons &&
		b.CurrentPallets == o.CurrentPallets &&
		b.CurrentUnits == o.CurrentUnits &&
		b.Version == o.Version &&
		equalTime(b.LastTransactionDate, o.LastTransactionDate) &&
		equalTime(b.FirstReceivedAt, o.FirstReceivedAt)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// BalanceFilter selects balance rows
type BalanceFilter struct {
	WarehouseID  string
	SKUID        string
	Batch        string
	IncludeEmpty bool
	Limit        int
	Offset       int
}

// Matches reports whether b passes the filter
func (f BalanceFilter) Matches(b *Balance) bool {
	if f.WarehouseID != "" && b.WarehouseID != f.WarehouseID {
		return false
	}
	if f.SKUID != "" && b.SKUID != f.SKUID {
		return false
	}
	if f.Batch != "" && b.Batch != f.Batch {
		return false
	}
	if !f.IncludeEmpty && b.CurrentCartons == 0 {
		return false
	}
	return true
}

func floorZero(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// CeilDiv returns ceil(n / d) for n >= 0 and d > 0
func CeilDiv(n, d int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
