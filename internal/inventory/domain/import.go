package domain

import (
	"fmt"
	"time"
)

// ImportRow is one typed row of a bulk transaction import. Warehouse and
// SKU may hold either the id or the code.
type ImportRow struct {
	Line                     int             `json:"line"`
	Warehouse                string          `json:"warehouse" validate:"required"`
	SKU                      string          `json:"sku" validate:"required"`
	Batch                    string          `json:"batch_lot" validate:"required"`
	Type                     TransactionType `json:"transaction_type" validate:"required"`
	CartonsIn                int64           `json:"cartons_in"`
	CartonsOut               int64           `json:"cartons_out"`
	StoragePalletsIn         int64           `json:"storage_pallets_in"`
	ShippingPalletsOut       int64           `json:"shipping_pallets_out"`
	StorageCartonsPerPallet  *int64          `json:"storage_cartons_per_pallet,omitempty"`
	ShippingCartonsPerPallet *int64          `json:"shipping_cartons_per_pallet,omitempty"`
	TransactionDate          time.Time       `json:"transaction_date" validate:"required"`
	ReferenceID              string          `json:"reference_id,omitempty"`
	TrackingNumber           string          `json:"tracking_number,omitempty"`
	Notes                    string          `json:"notes,omitempty"`
}

// RowError is a failure tied to one import row
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Message)
}

// ImportSummary reports the outcome of a bulk import. Errors keeps only the
// first ErrorLimit messages; Failed counts all of them.
type ImportSummary struct {
	Total          int      `json:"total"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
	TransactionIDs []string `json:"transaction_ids"`
	ErrorLimit     int      `json:"-"`
}

// NewImportSummary returns an empty summary keeping up to limit errors
func NewImportSummary(limit int) *ImportSummary {
	return &ImportSummary{
		Errors:         []string{},
		Warnings:       []string{},
		TransactionIDs: []string{},
		ErrorLimit:     limit,
	}
}

// Fail records a failed row
func (s *ImportSummary) Fail(e RowError) {
	s.Failed++
	if len(s.Errors) < s.ErrorLimit {
		s.Errors = append(s.Errors, e.Error())
	}
}

// Succeed records an appended row
func (s *ImportSummary) Succeed(transactionID string) {
	s.Succeeded++
	s.TransactionIDs = append(s.TransactionIDs, transactionID)
}

// Warn records a non-fatal note
func (s *ImportSummary) Warn(line int, msg string) {
	if len(s.Warnings) < s.ErrorLimit {
		s.Warnings = append(s.Warnings, fmt.Sprintf("row %d: %s", line, msg))
	}
}
