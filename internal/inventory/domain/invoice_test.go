package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

func TestClassify(t *testing.T) {
	d := decimal.RequireFromString
	tol := domain.DefaultTolerance

	tests := []struct {
		name     string
		expected string
		invoiced string
		hasBasis bool
		status   domain.ReconciliationStatus
		wantExp  string
		wantDiff string
	}{
		{"exact match", "100.00", "100.00", true, domain.StatusMatch, "100", "0"},
		{"within tolerance", "100.00", "100.01", true, domain.StatusMatch, "100", "0.01"},
		{"overbilled", "100.00", "105.00", true, domain.StatusOverbilled, "100", "5"},
		{"underbilled", "100.00", "95.00", true, domain.StatusUnderbilled, "100", "-5"},
		{"no basis", "0", "50.00", false, domain.StatusOverbilled, "0", "50"},
		{"no basis ignores stale expected", "80.00", "50.00", false, domain.StatusOverbilled, "0", "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, expected, diff := domain.Classify(d(tt.expected), d(tt.invoiced), tol, tt.hasBasis)
			assert.Equal(t, tt.status, status)
			assert.True(t, expected.Equal(d(tt.wantExp)), "expected %s", expected)
			assert.True(t, diff.Equal(d(tt.wantDiff)), "diff %s", diff)
		})
	}
}

func TestSummaryStatus(t *testing.T) {
	assert.Equal(t, domain.InvoicePending, domain.SummaryStatus(nil))
	assert.Equal(t, domain.InvoiceReconciled, domain.SummaryStatus([]domain.Reconciliation{{Status: domain.StatusMatch}}))
	assert.Equal(t, domain.InvoiceDisputed, domain.SummaryStatus([]domain.Reconciliation{
		{Status: domain.StatusMatch}, {Status: domain.StatusUnderbilled},
	}))
}

func TestInvoice_Validate(t *testing.T) {
	inv := &domain.Invoice{
		InvoiceNumber:      "INV-1",
		WarehouseID:        "wh",
		BillingPeriodStart: date(2024, 1, 1),
		BillingPeriodEnd:   date(2024, 1, 31),
		Lines: []domain.InvoiceLine{
			{Category: domain.CostStorage, CostName: "Pallet storage", Amount: decimal.RequireFromString("10")},
		},
	}
	assert.NoError(t, inv.Validate())

	inv.BillingPeriodEnd = date(2023, 12, 1)
	inv.Lines[0].Category = "Parking"
	err := inv.Validate()
	var appErr *errors.AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details, "billing_period_end")
	assert.Contains(t, appErr.Details, "lines[0].cost_category")
}
