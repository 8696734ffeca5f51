package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// ReconciliationStatus classifies one invoice line
type ReconciliationStatus string

const (
	StatusMatch       ReconciliationStatus = "match"
	StatusOverbilled  ReconciliationStatus = "overbilled"
	StatusUnderbilled ReconciliationStatus = "underbilled"
)

// InvoiceStatus summarizes all lines of an invoice
type InvoiceStatus string

const (
	InvoicePending    InvoiceStatus = "pending"
	InvoiceReconciled InvoiceStatus = "reconciled"
	InvoiceDisputed   InvoiceStatus = "disputed"
)

// DefaultTolerance is the absolute amount under which differences match
var DefaultTolerance = decimal.New(1, -2)

// Invoice is a third-party bill for one warehouse and billing period
type Invoice struct {
	ID                 string           `json:"id" db:"id"`
	InvoiceNumber      string           `json:"invoice_number" db:"invoice_number"`
	WarehouseID        string           `json:"warehouse_id" db:"warehouse_id"`
	BillingPeriodStart time.Time        `json:"billing_period_start" db:"billing_period_start"`
	BillingPeriodEnd   time.Time        `json:"billing_period_end" db:"billing_period_end"`
	InvoiceDate        time.Time        `json:"invoice_date" db:"invoice_date"`
	Currency           string           `json:"currency" db:"currency"`
	TotalAmount        decimal.Decimal  `json:"total_amount" db:"total_amount"`
	Status             InvoiceStatus    `json:"status" db:"status"`
	CreatedByID        string           `json:"created_by_id" db:"created_by_id"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	Lines              []InvoiceLine    `json:"lines" db:"-"`
	Reconciliations    []Reconciliation `json:"reconciliations" db:"-"`
}

// InvoiceLine is one charge on an invoice
type InvoiceLine struct {
	ID        string           `json:"id" db:"id"`
	InvoiceID string           `json:"invoice_id" db:"invoice_id"`
	LineNo    int              `json:"line_no" db:"line_no"`
	Category  CostCategory     `json:"cost_category" db:"cost_category"`
	CostName  string           `json:"cost_name" db:"cost_name"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty" db:"quantity"`
	UnitRate  *decimal.Decimal `json:"unit_rate,omitempty" db:"unit_rate"`
	Amount    decimal.Decimal  `json:"amount" db:"amount"`
}

// Reconciliation is the comparison of one line with calculated costs
type Reconciliation struct {
	ID             string               `json:"id" db:"id"`
	InvoiceID      string               `json:"invoice_id" db:"invoice_id"`
	LineID         string               `json:"line_id" db:"line_id"`
	Category       CostCategory         `json:"cost_category" db:"cost_category"`
	CostName       string               `json:"cost_name" db:"cost_name"`
	ExpectedAmount decimal.Decimal      `json:"expected_amount" db:"expected_amount"`
	InvoicedAmount decimal.Decimal      `json:"invoiced_amount" db:"invoiced_amount"`
	Difference     decimal.Decimal      `json:"difference" db:"difference"`
	Status         ReconciliationStatus `json:"status" db:"status"`
	HasBasis       bool                 `json:"has_basis" db:"has_basis"`
	ReconciledAt   time.Time            `json:"reconciled_at" db:"reconciled_at"`
}

// Validate checks the invoice header and lines
func (inv *Invoice) Validate() error {
	details := make(map[string]string)

	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		details["invoice_number"] = "is required"
	}
	if inv.WarehouseID == "" {
		details["warehouse_id"] = "is required"
	}
	if inv.BillingPeriodStart.IsZero() || inv.BillingPeriodEnd.IsZero() {
		details["billing_period"] = "start and end are required"
	} else if DateOnly(inv.BillingPeriodEnd).Before(DateOnly(inv.BillingPeriodStart)) {
		details["billing_period_end"] = "must not be before billing_period_start"
	}
	if len(inv.Lines) == 0 {
		details["lines"] = "at least one line is required"
	}
	for i, l := range inv.Lines {
		if !l.Category.Valid() {
			details[fmt.Sprintf("lines[%d].cost_category", i)] = fmt.Sprintf("unknown cost category %q", l.Category)
		}
		if strings.TrimSpace(l.CostName) == "" {
			details[fmt.Sprintf("lines[%d].cost_name", i)] = "is required"
		}
		if l.Amount.IsNegative() {
			details[fmt.Sprintf("lines[%d].amount", i)] = "must not be negative"
		}
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// LinesTotal sums the line amounts
func (inv *Invoice) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(l.Amount)
	}
	return sum
}

// Classify compares invoiced with expected. Without a calculated basis the
// line is overbilled against an expected amount of zero.
func Classify(expected, invoiced, tolerance decimal.Decimal, hasBasis bool) (ReconciliationStatus, decimal.Decimal, decimal.Decimal) {
	if !hasBasis {
		expected = decimal.Zero
		return StatusOverbilled, expected, invoiced.Sub(expected)
	}

	diff := invoiced.Sub(expected)
	switch {
	case diff.Abs().LessThanOrEqual(tolerance):
		return StatusMatch, expected, diff
	case diff.IsPositive():
		return StatusOverbilled, expected, diff
	default:
		return StatusUnderbilled, expected, diff
	}
}

// SummaryStatus is reconciled when every line matches, disputed otherwise
func SummaryStatus(recs []Reconciliation) InvoiceStatus {
	if len(recs) == 0 {
		return InvoicePending
	}
	for _, r := range recs {
		if r.Status != StatusMatch {
			return InvoiceDisputed
		}
	}
	return InvoiceReconciled
}

// InvoiceFilter selects invoices
type InvoiceFilter struct {
	WarehouseID string
	Status      InvoiceStatus
	Limit       int
	Offset      int
}
