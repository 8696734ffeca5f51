// Package store defines the unit-of-work boundary the inventory services
// run against. The Postgres repository and the in-memory store both
// implement it.
package store

import (
	"context"
	"time"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
)

// Store opens units of work.
type Store interface {
	// Update runs fn in a read-write unit of work. Everything fn writes
	// commits together or not at all. Key locks taken inside fn are held
	// until the unit of work ends.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent, read-only point-in-time view.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	Locker
	Catalog
	Ledger
	Balances
	Costs
	Invoices
}

// Locker serializes writers per key for the lifetime of the unit of work.
type Locker interface {
	// LockKey takes an exclusive lock on token. A positive wait blocks up to
	// that long; zero fails immediately. Unavailable locks return
	// errors.LockContention.
	LockKey(ctx context.Context, token int64, wait time.Duration) error
}

// Catalog holds reference data and effective-dated configuration.
type Catalog interface {
	CreateWarehouse(ctx context.Context, w *domain.Warehouse) error
	GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error)
	GetWarehouseByCode(ctx context.Context, code string) (*domain.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]domain.Warehouse, error)

	CreateSKU(ctx context.Context, s *domain.SKU) error
	UpdateSKU(ctx context.Context, s *domain.SKU) error
	GetSKU(ctx context.Context, id string) (*domain.SKU, error)
	GetSKUByCode(ctx context.Context, code string) (*domain.SKU, error)
	ListSKUs(ctx context.Context) ([]domain.SKU, error)

	CreatePackaging(ctx context.Context, p *domain.PackagingConfig) error
	// ListPackaging returns configurations of a warehouse, optionally
	// narrowed to one SKU when skuID is not empty.
	ListPackaging(ctx context.Context, warehouseID, skuID string) ([]domain.PackagingConfig, error)

	CreateRate(ctx context.Context, r *domain.CostRate) error
	ListRates(ctx context.Context, f domain.RateFilter) ([]domain.CostRate, error)
}

// Ledger is the append-only transaction log.
type Ledger interface {
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	UpdateTransactionMetadata(ctx context.Context, id string, m domain.TransactionMetadata) (*domain.Transaction, error)
}

// Balances is the projection table.
type Balances interface {
	// GetBalance returns errors.NotFound when the key has no row yet.
	GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error)
	// SaveBalance inserts b when prevVersion is zero, otherwise updates it
	// only if the stored version still equals prevVersion. A lost race
	// returns errors.LockContention.
	SaveBalance(ctx context.Context, b *domain.Balance, prevVersion int64) error
	ListBalances(ctx context.Context, f domain.BalanceFilter) ([]domain.Balance, error)
}

// Costs holds calculated costs.
type Costs interface {
	// ReplaceCalculatedCosts makes costs the full set of rows for the
	// warehouse, week and category. Existing rows keep their manual
	// adjustment; rows absent from costs are removed.
	ReplaceCalculatedCosts(ctx context.Context, warehouseID string, week time.Time, category domain.CostCategory, costs []domain.CalculatedCost) error
	GetCalculatedCost(ctx context.Context, id string) (*domain.CalculatedCost, error)
	ListCalculatedCosts(ctx context.Context, f domain.CostFilter) ([]domain.CalculatedCost, error)
	SaveCalculatedCost(ctx context.Context, c *domain.CalculatedCost) error
}

// Invoices holds invoices, their lines and reconciliation results.
type Invoices interface {
	// CreateInvoice inserts the invoice and its lines.
	CreateInvoice(ctx context.Context, inv *domain.Invoice) error
	SaveReconciliations(ctx context.Context, invoiceID string, recs []domain.Reconciliation, status domain.InvoiceStatus) error
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, f domain.InvoiceFilter) ([]domain.Invoice, error)
}
