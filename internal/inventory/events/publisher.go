package events

import (
	"context"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
	"github.com/progami/wms-ecomos-sub005/pkg/messaging"
)

// Sender publishes one event. *messaging.Publisher implements it.
type Sender interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Publisher publishes ledger and billing events after their unit of work
// committed. A nil *Publisher is valid and publishes nothing. Publish
// failures are logged; they never fail the write that produced them.
type Publisher struct {
	sender Sender
	logger *logger.Logger
}

// NewPublisher wraps sender
func NewPublisher(sender Sender, log *logger.Logger) *Publisher {
	return &Publisher{sender: sender, logger: log}
}

// NewRabbitPublisher declares the wms.events exchange and returns a
// publisher bound to it
func NewRabbitPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	p, err := messaging.NewPublisher(rmq, messaging.ExchangeWMSEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}
	return NewPublisher(p, log), nil
}

// TransactionAppended publishes a ledger append with the resulting balance
func (p *Publisher) TransactionAppended(ctx context.Context, t *domain.Transaction, b *domain.Balance) {
	if p == nil {
		return
	}
	data := messaging.TransactionAppendedEvent{
		TransactionID:   t.ID,
		WarehouseID:     t.WarehouseID,
		SKUID:           t.SKUID,
		Batch:           t.Batch,
		TransactionType: string(t.Type),
		NetCartons:      t.NetCartons(),
		BalanceCartons:  b.CurrentCartons,
		BalancePallets:  b.CurrentPallets,
		BalanceVersion:  b.Version,
		TransactionDate: t.TransactionDate,
		CreatedBy:       t.CreatedByID,
	}
	p.send(ctx, messaging.EventTransactionAppended, data, "transaction_id", t.ID)
}

// BalanceRebuilt publishes the outcome of a rebuild
func (p *Publisher) BalanceRebuilt(ctx context.Context, b *domain.Balance, changed bool) {
	if p == nil {
		return
	}
	data := messaging.BalanceRebuiltEvent{
		WarehouseID: b.WarehouseID,
		SKUID:       b.SKUID,
		Batch:       b.Batch,
		Cartons:     b.CurrentCartons,
		Version:     b.Version,
		Changed:     changed,
	}
	p.send(ctx, messaging.EventBalanceRebuilt, data, "balance_key", b.Key().String())
}

// SnapshotComputed publishes a persisted weekly snapshot
func (p *Publisher) SnapshotComputed(ctx context.Context, s *domain.WeeklySnapshot) {
	if p == nil {
		return
	}
	data := messaging.SnapshotComputedEvent{
		WarehouseID:  s.WarehouseID,
		WeekStart:    s.WeekStart,
		Items:        len(s.Items),
		TotalPallets: s.TotalPallets,
		TotalCost:    s.WeeklyCost.StringFixed(domain.CostScale),
	}
	p.send(ctx, messaging.EventSnapshotComputed, data, "warehouse_id", s.WarehouseID)
}

// InvoiceReconciled publishes the reconciliation summary of an invoice
func (p *Publisher) InvoiceReconciled(ctx context.Context, inv *domain.Invoice) {
	if p == nil {
		return
	}
	data := messaging.InvoiceReconciledEvent{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		WarehouseID:   inv.WarehouseID,
		Status:        string(inv.Status),
	}
	for _, r := range inv.Reconciliations {
		switch r.Status {
		case domain.StatusMatch:
			data.Matched++
		case domain.StatusOverbilled:
			data.Overbilled++
		case domain.StatusUnderbilled:
			data.Underbilled++
		}
	}
	p.send(ctx, messaging.EventInvoiceReconciled, data, "invoice_id", inv.ID)
}

func (p *Publisher) send(ctx context.Context, eventType string, data interface{}, idKey, id string) {
	if p.sender == nil {
		return
	}
	if err := p.sender.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str(idKey, id).Str("event_type", eventType).Msg("failed to publish event")
	}
}
