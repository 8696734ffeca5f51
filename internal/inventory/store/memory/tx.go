package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

type memTx struct {
	s *Store
	// snapshot is set for View; Update reads the live state under RLock.
	snapshot *state

	warehouses   changes[string, domain.Warehouse]
	skus         changes[string, domain.SKU]
	packaging    changes[string, domain.PackagingConfig]
	rates        changes[string, domain.CostRate]
	transactions changes[string, domain.Transaction]
	balances     changes[domain.BalanceKey, domain.Balance]
	costs        changes[string, domain.CalculatedCost]
	invoices     changes[string, domain.Invoice]

	// prevVersions holds the committed version each saved balance was read at.
	prevVersions map[domain.BalanceKey]int64
	held         map[int64]struct{}
}

var _ store.Tx = (*memTx)(nil)

func newTx(s *Store, snapshot *state) *memTx {
	return &memTx{
		s:            s,
		snapshot:     snapshot,
		warehouses:   make(changes[string, domain.Warehouse]),
		skus:         make(changes[string, domain.SKU]),
		packaging:    make(changes[string, domain.PackagingConfig]),
		rates:        make(changes[string, domain.CostRate]),
		transactions: make(changes[string, domain.Transaction]),
		balances:     make(changes[domain.BalanceKey, domain.Balance]),
		costs:        make(changes[string, domain.CalculatedCost]),
		invoices:     make(changes[string, domain.Invoice]),
		prevVersions: make(map[domain.BalanceKey]int64),
		held:         make(map[int64]struct{}),
	}
}

// read runs fn against the base state the unit of work sees.
func (tx *memTx) read(fn func(st *state)) {
	if tx.snapshot != nil {
		fn(tx.snapshot)
		return
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	fn(tx.s.data)
}

func (tx *memTx) writable() error {
	if tx.snapshot != nil {
		return errReadOnly
	}
	return nil
}

func (tx *memTx) now() time.Time {
	return tx.s.now()
}

func (tx *memTx) releaseLocks() {
	for token := range tx.held {
		tx.s.locks.release(token)
	}
	tx.held = nil
}

// checkUnique enforces the unique codes and invoice numbers against the
// committed state. Called with the store write lock held.
func (tx *memTx) checkUnique(st *state) error {
	for id, w := range tx.warehouses {
		if w == nil {
			continue
		}
		for otherID, other := range st.warehouses {
			if otherID != id && strings.EqualFold(other.Code, w.Code) {
				return errors.Conflict("warehouse code already exists")
			}
		}
	}
	for id, s := range tx.skus {
		if s == nil {
			continue
		}
		for otherID, other := range st.skus {
			if otherID != id && strings.EqualFold(other.Code, s.Code) {
				return errors.Conflict("sku code already exists")
			}
		}
	}
	for id, inv := range tx.invoices {
		if inv == nil {
			continue
		}
		for otherID, other := range st.invoices {
			if otherID != id && other.WarehouseID == inv.WarehouseID && other.InvoiceNumber == inv.InvoiceNumber {
				return errors.Conflict("invoice number already exists for this warehouse")
			}
		}
	}
	return nil
}

// LockKey implements store.Locker. Locks are re-entrant within one unit of work.
func (tx *memTx) LockKey(ctx context.Context, token int64, wait time.Duration) error {
	if _, ok := tx.held[token]; ok {
		return nil
	}
	if err := tx.s.locks.acquire(ctx, token, wait); err != nil {
		return err
	}
	tx.held[token] = struct{}{}
	return nil
}

// Warehouses

func (tx *memTx) CreateWarehouse(ctx context.Context, w *domain.Warehouse) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if existing, err := tx.GetWarehouseByCode(ctx, w.Code); err == nil && existing.ID != w.ID {
		return errors.Conflict("warehouse code already exists")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = tx.now()
	}
	w.UpdatedAt = w.CreatedAt
	put(tx.warehouses, w.ID, *w)
	return nil
}

func (tx *memTx) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var (
		w  domain.Warehouse
		ok bool
	)
	tx.read(func(st *state) { w, ok = lookup(st.warehouses, tx.warehouses, id) })
	if !ok {
		return nil, errors.NotFound("warehouse")
	}
	return &w, nil
}

func (tx *memTx) GetWarehouseByCode(ctx context.Context, code string) (*domain.Warehouse, error) {
	all, _ := tx.ListWarehouses(ctx)
	for i := range all {
		if strings.EqualFold(all[i].Code, code) {
			return &all[i], nil
		}
	}
	return nil, errors.NotFound("warehouse")
}

func (tx *memTx) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	var out []domain.Warehouse
	tx.read(func(st *state) { out = merged(st.warehouses, tx.warehouses) })
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// SKUs

func (tx *memTx) CreateSKU(ctx context.Context, s *domain.SKU) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if existing, err := tx.GetSKUByCode(ctx, s.Code); err == nil && existing.ID != s.ID {
		return errors.Conflict("sku code already exists")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = tx.now()
	}
	s.UpdatedAt = s.CreatedAt
	put(tx.skus, s.ID, *s)
	return nil
}

func (tx *memTx) UpdateSKU(ctx context.Context, s *domain.SKU) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.GetSKU(ctx, s.ID); err != nil {
		return err
	}
	s.UpdatedAt = tx.now()
	put(tx.skus, s.ID, *s)
	return nil
}

func (tx *memTx) GetSKU(ctx context.Context, id string) (*domain.SKU, error) {
	var (
		s  domain.SKU
		ok bool
	)
	tx.read(func(st *state) { s, ok = lookup(st.skus, tx.skus, id) })
	if !ok {
		return nil, errors.NotFound("sku")
	}
	return &s, nil
}

func (tx *memTx) GetSKUByCode(ctx context.Context, code string) (*domain.SKU, error) {
	all, _ := tx.ListSKUs(ctx)
	for i := range all {
		if strings.EqualFold(all[i].Code, code) {
			return &all[i], nil
		}
	}
	return nil, errors.NotFound("sku")
}

func (tx *memTx) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	var out []domain.SKU
	tx.read(func(st *state) { out = merged(st.skus, tx.skus) })
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Packaging and rates

func (tx *memTx) CreatePackaging(ctx context.Context, p *domain.PackagingConfig) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now()
	}
	put(tx.packaging, p.ID, *p)
	return nil
}

func (tx *memTx) ListPackaging(ctx context.Context, warehouseID, skuID string) ([]domain.PackagingConfig, error) {
	var all []domain.PackagingConfig
	tx.read(func(st *state) { all = merged(st.packaging, tx.packaging) })

	out := all[:0]
	for _, p := range all {
		if p.WarehouseID == warehouseID && (skuID == "" || p.SKUID == skuID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKUID != out[j].SKUID {
			return out[i].SKUID < out[j].SKUID
		}
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out, nil
}

func (tx *memTx) CreateRate(ctx context.Context, r *domain.CostRate) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now()
	}
	put(tx.rates, r.ID, *r)
	return nil
}

func (tx *memTx) ListRates(ctx context.Context, f domain.RateFilter) ([]domain.CostRate, error) {
	var all []domain.CostRate
	tx.read(func(st *state) { all = merged(st.rates, tx.rates) })

	out := all[:0]
	for i := range all {
		if f.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.WarehouseID != b.WarehouseID {
			return a.WarehouseID < b.WarehouseID
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.EffectiveFrom.Before(b.EffectiveFrom)
	})
	return out, nil
}

// Ledger

func (tx *memTx) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.GetTransaction(ctx, t.ID); err == nil {
		return errors.Conflict("transaction already exists")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tx.now()
	}
	put(tx.transactions, t.ID, *t)
	return nil
}

func (tx *memTx) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		t  domain.Transaction
		ok bool
	)
	tx.read(func(st *state) { t, ok = lookup(st.transactions, tx.transactions, id) })
	if !ok {
		return nil, errors.NotFound("transaction")
	}
	return &t, nil
}

func (tx *memTx) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	var all []domain.Transaction
	tx.read(func(st *state) { all = merged(st.transactions, tx.transactions) })

	out := all[:0]
	for i := range all {
		if f.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	domain.SortChronologically(out)
	if f.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return page(out, f.Limit, f.Offset), nil
}

func (tx *memTx) UpdateTransactionMetadata(ctx context.Context, id string, m domain.TransactionMetadata) (*domain.Transaction, error) {
	if err := tx.writable(); err != nil {
		return nil, err
	}
	t, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	m.ApplyTo(t)
	put(tx.transactions, id, *t)
	return t, nil
}

// Balances

func (tx *memTx) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	var (
		b  domain.Balance
		ok bool
	)
	tx.read(func(st *state) { b, ok = lookup(st.balances, tx.balances, key) })
	if !ok {
		return nil, errors.NotFound("balance")
	}
	return &b, nil
}

func (tx *memTx) SaveBalance(ctx context.Context, b *domain.Balance, prevVersion int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	key := b.Key()
	current, err := tx.GetBalance(ctx, key)
	switch {
	case err != nil && prevVersion != 0:
		return errors.LockContention(key.String())
	case err == nil && current.Version != prevVersion:
		return errors.LockContention(key.String())
	}

	if _, staged := tx.balances[key]; !staged {
		tx.prevVersions[key] = prevVersion
	}
	if b.ID == "" && current != nil {
		b.ID = current.ID
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.UpdatedAt = tx.now()
	put(tx.balances, key, *b)
	return nil
}

func (tx *memTx) ListBalances(ctx context.Context, f domain.BalanceFilter) ([]domain.Balance, error) {
	var all []domain.Balance
	tx.read(func(st *state) { all = merged(st.balances, tx.balances) })

	out := all[:0]
	for i := range all {
		if f.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.WarehouseID != b.WarehouseID {
			return a.WarehouseID < b.WarehouseID
		}
		if a.SKUID != b.SKUID {
			return a.SKUID < b.SKUID
		}
		return a.Batch < b.Batch
	})
	return page(out, f.Limit, f.Offset), nil
}

// Costs

func (tx *memTx) ReplaceCalculatedCosts(ctx context.Context, warehouseID string, week time.Time, category domain.CostCategory, costs []domain.CalculatedCost) error {
	if err := tx.writable(); err != nil {
		return err
	}
	week = domain.DateOnly(week)

	var all []domain.CalculatedCost
	tx.read(func(st *state) { all = merged(st.costs, tx.costs) })

	existing := make(map[domain.CostKey]domain.CalculatedCost)
	for _, c := range all {
		if c.WarehouseID == warehouseID && c.Category == category && domain.DateOnly(c.BillingWeek).Equal(week) {
			existing[c.Key()] = c
		}
	}

	for _, c := range costs {
		c.BillingWeek = week
		if prev, ok := existing[c.Key()]; ok {
			c.ID = prev.ID
			c.ManualAdjustment = prev.ManualAdjustment
			c.AdjustmentReason = prev.AdjustmentReason
			delete(existing, c.Key())
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.Refinalize()
		put(tx.costs, c.ID, c)
	}
	for _, stale := range existing {
		tx.costs[stale.ID] = nil
	}
	return nil
}

func (tx *memTx) GetCalculatedCost(ctx context.Context, id string) (*domain.CalculatedCost, error) {
	var (
		c  domain.CalculatedCost
		ok bool
	)
	tx.read(func(st *state) { c, ok = lookup(st.costs, tx.costs, id) })
	if !ok {
		return nil, errors.NotFound("calculated cost")
	}
	return &c, nil
}

func (tx *memTx) ListCalculatedCosts(ctx context.Context, f domain.CostFilter) ([]domain.CalculatedCost, error) {
	var all []domain.CalculatedCost
	tx.read(func(st *state) { all = merged(st.costs, tx.costs) })

	out := all[:0]
	for i := range all {
		if f.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.BillingWeek.Equal(b.BillingWeek) {
			return a.BillingWeek.Before(b.BillingWeek)
		}
		if a.WarehouseID != b.WarehouseID {
			return a.WarehouseID < b.WarehouseID
		}
		if a.SKUID != b.SKUID {
			return a.SKUID < b.SKUID
		}
		if a.Batch != b.Batch {
			return a.Batch < b.Batch
		}
		return a.Category < b.Category
	})
	return page(out, f.Limit, f.Offset), nil
}

func (tx *memTx) SaveCalculatedCost(ctx context.Context, c *domain.CalculatedCost) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.GetCalculatedCost(ctx, c.ID); err != nil {
		return err
	}
	put(tx.costs, c.ID, *c)
	return nil
}

// Invoices

func (tx *memTx) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	if err := tx.writable(); err != nil {
		return err
	}
	var all []domain.Invoice
	tx.read(func(st *state) { all = merged(st.invoices, tx.invoices) })
	for _, other := range all {
		if other.ID != inv.ID && other.WarehouseID == inv.WarehouseID && other.InvoiceNumber == inv.InvoiceNumber {
			return errors.Conflict("invoice number already exists for this warehouse")
		}
	}

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = tx.now()
	}
	for i := range inv.Lines {
		inv.Lines[i].InvoiceID = inv.ID
		if inv.Lines[i].ID == "" {
			inv.Lines[i].ID = uuid.NewString()
		}
	}
	put(tx.invoices, inv.ID, copyInvoice(*inv))
	return nil
}

func (tx *memTx) SaveReconciliations(ctx context.Context, invoiceID string, recs []domain.Reconciliation, status domain.InvoiceStatus) error {
	if err := tx.writable(); err != nil {
		return err
	}
	inv, err := tx.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	inv.Reconciliations = make([]domain.Reconciliation, len(recs))
	for i, r := range recs {
		r.InvoiceID = invoiceID
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		inv.Reconciliations[i] = r
	}
	inv.Status = status
	put(tx.invoices, invoiceID, *inv)
	return nil
}

func (tx *memTx) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var (
		inv domain.Invoice
		ok  bool
	)
	tx.read(func(st *state) { inv, ok = lookup(st.invoices, tx.invoices, id) })
	if !ok {
		return nil, errors.NotFound("invoice")
	}
	inv = copyInvoice(inv)
	return &inv, nil
}

func (tx *memTx) ListInvoices(ctx context.Context, f domain.InvoiceFilter) ([]domain.Invoice, error) {
	var all []domain.Invoice
	tx.read(func(st *state) { all = merged(st.invoices, tx.invoices) })

	out := all[:0]
	for _, inv := range all {
		if (f.WarehouseID == "" || inv.WarehouseID == f.WarehouseID) && (f.Status == "" || inv.Status == f.Status) {
			out = append(out, copyInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.After(out[j].InvoiceDate)
		}
		return out[i].InvoiceNumber < out[j].InvoiceNumber
	})
	return page(out, f.Limit, f.Offset), nil
}

func copyInvoice(inv domain.Invoice) domain.Invoice {
	inv.Lines = append([]domain.InvoiceLine(nil), inv.Lines...)
	inv.Reconciliations = append([]domain.Reconciliation(nil), inv.Reconciliations...)
	return inv
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
