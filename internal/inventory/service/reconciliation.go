package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/actor"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// DefaultCurrency is used when an invoice does not name one
const DefaultCurrency = "USD"

// CreateInvoiceInput is an uploaded invoice
type CreateInvoiceInput struct {
	InvoiceNumber      string             `json:"invoice_number" validate:"required,max=100"`
	WarehouseID        string             `json:"warehouse_id" validate:"required"`
	BillingPeriodStart time.Time          `json:"billing_period_start" validate:"required"`
	BillingPeriodEnd   time.Time          `json:"billing_period_end" validate:"required"`
	InvoiceDate        time.Time          `json:"invoice_date" validate:"required"`
	Currency           string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	TotalAmount        *decimal.Decimal   `json:"total_amount,omitempty"`
	Lines              []InvoiceLineInput `json:"lines" validate:"required,min=1,dive"`
}

// InvoiceLineInput is one charge on an uploaded invoice
type InvoiceLineInput struct {
	Category domain.CostCategory `json:"cost_category" validate:"required"`
	CostName string              `json:"cost_name" validate:"required"`
	Quantity *decimal.Decimal    `json:"quantity,omitempty"`
	UnitRate *decimal.Decimal    `json:"unit_rate,omitempty"`
	Amount   decimal.Decimal     `json:"amount"`
}

// ReconciliationService records invoices and compares them with the
// calculated costs of their billing period
type ReconciliationService struct {
	store     store.Store
	tolerance decimal.Decimal
	publisher *events.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewReconciliationService creates a reconciliation service. A tolerance
// that is empty or unparsable falls back to domain.DefaultTolerance.
func NewReconciliationService(st store.Store, tolerance string, publisher *events.Publisher, log *logger.Logger) *ReconciliationService {
	s := &ReconciliationService{
		store:     st,
		tolerance: domain.DefaultTolerance,
		publisher: publisher,
		logger:    log.WithComponent("reconciliation"),
		now:       time.Now,
	}
	if tolerance != "" {
		tol, err := decimal.NewFromString(tolerance)
		if err != nil || tol.IsNegative() {
			s.logger.Warn().Str("tolerance", tolerance).Msg("invalid reconciliation tolerance, using default")
		} else {
			s.tolerance = tol
		}
	}
	return s
}

// Tolerance returns the absolute tolerance in use
func (s *ReconciliationService) Tolerance() decimal.Decimal {
	return s.tolerance
}

// CreateInvoice stores the invoice with its lines and reconciles it in the
// same unit of work
func (s *ReconciliationService) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*domain.Invoice, error) {
	inv := newInvoice(in)
	inv.CreatedByID = actor.FromContextOrSystem(ctx).ID
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetWarehouse(ctx, inv.WarehouseID); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.Reference("warehouse", inv.WarehouseID)
			}
			return err
		}
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		return s.reconcile(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, inv)
	return inv, nil
}

// ReconcileInvoice compares a stored invoice again, typically after costs
// of its period were recomputed or adjusted
func (s *ReconciliationService) ReconcileInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv *domain.Invoice
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		inv, err = tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		return s.reconcile(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, inv)
	return inv, nil
}

// reconcile classifies every line of inv against the final costs with the
// same warehouse, category and name billed on a Monday inside the period
func (s *ReconciliationService) reconcile(ctx context.Context, tx store.Tx, inv *domain.Invoice) error {
	from := domain.DateOnly(inv.BillingPeriodStart)
	to := domain.DateOnly(inv.BillingPeriodEnd)
	costs, err := tx.ListCalculatedCosts(ctx, domain.CostFilter{
		WarehouseID: inv.WarehouseID,
		WeekFrom:    &from,
		WeekTo:      &to,
	})
	if err != nil {
		return err
	}

	type basis struct {
		category domain.CostCategory
		name     string
	}
	expected := make(map[basis]decimal.Decimal)
	for _, c := range costs {
		k := basis{c.Category, c.CostName}
		if sum, ok := expected[k]; ok {
			expected[k] = sum.Add(c.FinalCost)
		} else {
			expected[k] = c.FinalCost
		}
	}

	at := s.now().UTC()
	recs := make([]domain.Reconciliation, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		sum, hasBasis := expected[basis{l.Category, l.CostName}]
		status, exp, diff := domain.Classify(sum, l.Amount, s.tolerance, hasBasis)
		recs = append(recs, domain.Reconciliation{
			ID:             uuid.New().String(),
			InvoiceID:      inv.ID,
			LineID:         l.ID,
			Category:       l.Category,
			CostName:       l.CostName,
			ExpectedAmount: exp,
			InvoicedAmount: l.Amount,
			Difference:     diff,
			Status:         status,
			HasBasis:       hasBasis,
			ReconciledAt:   at,
		})
	}

	inv.Status = domain.SummaryStatus(recs)
	inv.Reconciliations = recs
	return tx.SaveReconciliations(ctx, inv.ID, recs, inv.Status)
}

func (s *ReconciliationService) announce(ctx context.Context, inv *domain.Invoice) {
	s.publisher.InvoiceReconciled(ctx, inv)
	s.logger.Info().
		Str("invoice_id", inv.ID).
		Str("invoice_number", inv.InvoiceNumber).
		Str("status", string(inv.Status)).
		Int("lines", len(inv.Lines)).
		Msg("invoice reconciled")
}

// GetInvoice returns an invoice with its lines and reconciliation rows
func (s *ReconciliationService) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv *domain.Invoice
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		inv, err = tx.GetInvoice(ctx, id)
		return err
	})
	return inv, err
}

// ListInvoices lists invoices, newest invoice date first
func (s *ReconciliationService) ListInvoices(ctx context.Context, f domain.InvoiceFilter) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListInvoices(ctx, f)
		return err
	})
	return out, err
}

func newInvoice(in CreateInvoiceInput) *domain.Invoice {
	inv := &domain.Invoice{
		ID:                 uuid.New().String(),
		InvoiceNumber:      strings.TrimSpace(in.InvoiceNumber),
		WarehouseID:        in.WarehouseID,
		BillingPeriodStart: domain.DateOnly(in.BillingPeriodStart),
		BillingPeriodEnd:   domain.DateOnly(in.BillingPeriodEnd),
		InvoiceDate:        domain.DateOnly(in.InvoiceDate),
		Currency:           strings.ToUpper(strings.TrimSpace(in.Currency)),
		Status:             domain.InvoicePending,
		Lines:              make([]domain.InvoiceLine, len(in.Lines)),
	}
	if inv.Currency == "" {
		inv.Currency = DefaultCurrency
	}
	for i, l := range in.Lines {
		inv.Lines[i] = domain.InvoiceLine{
			ID:        uuid.New().String(),
			InvoiceID: inv.ID,
			LineNo:    i + 1,
			Category:  l.Category,
			CostName:  strings.TrimSpace(l.CostName),
			Quantity:  l.Quantity,
			UnitRate:  l.UnitRate,
			Amount:    l.Amount,
		}
	}
	if in.TotalAmount != nil {
		inv.TotalAmount = *in.TotalAmount
	} else {
		inv.TotalAmount = inv.LinesTotal()
	}
	return inv
}
