package domain

import (
	"time"
)

// Warehouse is a physical storage site
type Warehouse struct {
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Address   *string   `json:"address,omitempty" db:"address"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SKU is a stock keeping unit. UnitsPerCarton is the current master value;
// transactions keep their own copy taken at creation time.
type SKU struct {
	ID             string    `json:"id" db:"id"`
	Code           string    `json:"code" db:"code"`
	Description    string    `json:"description" db:"description"`
	UnitsPerCarton int64     `json:"units_per_carton" db:"units_per_carton"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CostCategory groups cost rates and calculated costs
type CostCategory string

const (
	CostStorage     CostCategory = "Storage"
	CostContainer   CostCategory = "Container"
	CostPallet      CostCategory = "Pallet"
	CostCarton      CostCategory = "Carton"
	CostUnit        CostCategory = "Unit"
	CostShipment    CostCategory = "Shipment"
	CostAccessorial CostCategory = "Accessorial"
)

// Valid reports whether c is a known category
func (c CostCategory) Valid() bool {
	switch c {
	case CostStorage, CostContainer, CostPallet, CostCarton, CostUnit, CostShipment, CostAccessorial:
		return true
	}
	return false
}
