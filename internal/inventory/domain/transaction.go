package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// TransactionType is the kind of physical movement
type TransactionType string

const (
	TxReceive   TransactionType = "RECEIVE"
	TxShip      TransactionType = "SHIP"
	TxAdjustIn  TransactionType = "ADJUST_IN"
	TxAdjustOut TransactionType = "ADJUST_OUT"
	TxTransfer  TransactionType = "TRANSFER"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TxReceive, TxShip, TxAdjustIn, TxAdjustOut, TxTransfer:
		return true
	}
	return false
}

// Attachments is a list of document references stored as JSON
type Attachments []string

// Value implements driver.Valuer
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

// Scan implements sql.Scanner
func (a *Attachments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(a))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(a))
	default:
		return fmt.Errorf("attachments: unsupported type %T", src)
	}
}

// Transaction is one immutable ledger entry. Only the metadata fields
// (reference, tracking, attachments, notes, reconciled) change after insert.
type Transaction struct {
	ID                       string          `json:"id" db:"id"`
	WarehouseID              string          `json:"warehouse_id" db:"warehouse_id"`
	SKUID                    string          `json:"sku_id" db:"sku_id"`
	Batch                    string          `json:"batch_lot" db:"batch_lot"`
	Type                     TransactionType `json:"transaction_type" db:"transaction_type"`
	CartonsIn                int64           `json:"cartons_in" db:"cartons_in"`
	CartonsOut               int64           `json:"cartons_out" db:"cartons_out"`
	StoragePalletsIn         int64           `json:"storage_pallets_in" db:"storage_pallets_in"`
	ShippingPalletsOut       int64           `json:"shipping_pallets_out" db:"shipping_pallets_out"`
	UnitsPerCarton           int64           `json:"units_per_carton" db:"units_per_carton"`
	StorageCartonsPerPallet  *int64          `json:"storage_cartons_per_pallet,omitempty" db:"storage_cartons_per_pallet"`
	ShippingCartonsPerPallet *int64          `json:"shipping_cartons_per_pallet,omitempty" db:"shipping_cartons_per_pallet"`
	TransactionDate          time.Time       `json:"transaction_date" db:"transaction_date"`
	ReferenceID              *string         `json:"reference_id,omitempty" db:"reference_id"`
	TrackingNumber           *string         `json:"tracking_number,omitempty" db:"tracking_number"`
	Attachments              Attachments     `json:"attachments" db:"attachments"`
	Notes                    *string         `json:"notes,omitempty" db:"notes"`
	CreatedByID              string          `json:"created_by_id" db:"created_by_id"`
	CreatedByName            string          `json:"created_by_name" db:"created_by_name"`
	IsReconciled             bool            `json:"is_reconciled" db:"is_reconciled"`
	CreatedAt                time.Time       `json:"created_at" db:"created_at"`
}

// Key returns the balance key the transaction moves
func (t *Transaction) Key() BalanceKey {
	return BalanceKey{WarehouseID: t.WarehouseID, SKUID: t.SKUID, Batch: t.Batch}
}

// NetCartons is cartons in minus cartons out
func (t *Transaction) NetCartons() int64 {
	return t.CartonsIn - t.CartonsOut
}

// NetPallets is storage pallets in minus shipping pallets out
func (t *Transaction) NetPallets() int64 {
	return t.StoragePalletsIn - t.ShippingPalletsOut
}

// NetUnits converts the net carton movement with the units-per-carton snapshot
func (t *Transaction) NetUnits() int64 {
	return t.NetCartons() * t.UnitsPerCarton
}

// IsInbound reports whether the transaction adds stock
func (t *Transaction) IsInbound() bool {
	return t.CartonsIn > 0
}

// Validate checks the quantity, type and date rules against now.
func (t *Transaction) Validate(now time.Time) error {
	details := make(map[string]string)

	if !t.Type.Valid() {
		details["transaction_type"] = fmt.Sprintf("unknown transaction type %q", t.Type)
	}
	if t.WarehouseID == "" {
		details["warehouse_id"] = "is required"
	}
	if t.SKUID == "" {
		details["sku_id"] = "is required"
	}
	if strings.TrimSpace(t.Batch) == "" {
		details["batch_lot"] = "is required"
	}
	if t.CartonsIn < 0 {
		details["cartons_in"] = "must not be negative"
	}
	if t.CartonsOut < 0 {
		details["cartons_out"] = "must not be negative"
	}
	if t.StoragePalletsIn < 0 {
		details["storage_pallets_in"] = "must not be negative"
	}
	if t.ShippingPalletsOut < 0 {
		details["shipping_pallets_out"] = "must not be negative"
	}
	if t.StorageCartonsPerPallet != nil && *t.StorageCartonsPerPallet <= 0 {
		details["storage_cartons_per_pallet"] = "must be positive"
	}
	if t.ShippingCartonsPerPallet != nil && *t.ShippingCartonsPerPallet <= 0 {
		details["shipping_cartons_per_pallet"] = "must be positive"
	}
	if t.TransactionDate.IsZero() {
		details["transaction_date"] = "is required"
	} else if t.TransactionDate.After(now) {
		details["transaction_date"] = "must not be in the future"
	}

	inflow := t.CartonsIn > 0 || t.StoragePalletsIn > 0
	outflow := t.CartonsOut > 0 || t.ShippingPalletsOut > 0

	switch t.Type {
	case TxReceive, TxAdjustIn:
		if outflow {
			details["cartons_out"] = fmt.Sprintf("must be zero for %s", t.Type)
		}
		if t.CartonsIn == 0 {
			details["cartons_in"] = fmt.Sprintf("must be positive for %s", t.Type)
		}
	case TxShip, TxAdjustOut:
		if inflow {
			details["cartons_in"] = fmt.Sprintf("must be zero for %s", t.Type)
		}
		if t.CartonsOut == 0 {
			details["cartons_out"] = fmt.Sprintf("must be positive for %s", t.Type)
		}
	case TxTransfer:
		if inflow && outflow {
			details["cartons_in"] = "a transfer moves stock in one direction only"
		}
		if t.CartonsIn == 0 && t.CartonsOut == 0 {
			details["cartons_in"] = "a transfer must move cartons"
		}
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// TransactionMetadata holds the fields that may change after insert.
// Nil pointers leave the stored value unchanged.
type TransactionMetadata struct {
	ReferenceID    *string      `json:"reference_id,omitempty"`
	TrackingNumber *string      `json:"tracking_number,omitempty"`
	Attachments    *Attachments `json:"attachments,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
	IsReconciled   *bool        `json:"is_reconciled,omitempty"`
}

// IsEmpty reports whether no field is set
func (m TransactionMetadata) IsEmpty() bool {
	return m.ReferenceID == nil && m.TrackingNumber == nil && m.Attachments == nil &&
		m.Notes == nil && m.IsReconciled == nil
}

// ApplyTo copies the set fields onto t
func (m TransactionMetadata) ApplyTo(t *Transaction) {
	if m.ReferenceID != nil {
		t.ReferenceID = m.ReferenceID
	}
	if m.TrackingNumber != nil {
		t.TrackingNumber = m.TrackingNumber
	}
	if m.Attachments != nil {
		t.Attachments = *m.Attachments
	}
	if m.Notes != nil {
		t.Notes = m.Notes
	}
	if m.IsReconciled != nil {
		t.IsReconciled = *m.IsReconciled
	}
}

// TransactionFilter selects ledger entries. Zero values mean no filter;
// From is inclusive and To is exclusive.
type TransactionFilter struct {
	WarehouseID string
	SKUID       string
	Batch       string
	Type        TransactionType
	From        *time.Time
	To          *time.Time
	Descending  bool
	Limit       int
	Offset      int
}

// Matches reports whether t passes the filter
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.WarehouseID != "" && t.WarehouseID != f.WarehouseID {
		return false
	}
	if f.SKUID != "" && t.SKUID != f.SKUID {
		return false
	}
	if f.Batch != "" && t.Batch != f.Batch {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.From != nil && t.TransactionDate.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.TransactionDate.Before(*f.To) {
		return false
	}
	return true
}

// SortChronologically orders transactions by date, then creation time, then id.
func SortChronologically(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return chronoLess(&txs[i], &txs[j])
	})
}

func chronoLess(a, b *Transaction) bool {
	if !a.TransactionDate.Equal(b.TransactionDate) {
		return a.TransactionDate.Before(b.TransactionDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
