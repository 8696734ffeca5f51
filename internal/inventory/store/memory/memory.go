// Package memory is an embedded implementation of store.Store. Writes are
// staged per unit of work and merged on commit; per-key locks come from an
// in-process lock table.
package memory

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

var errReadOnly = stderrors.New("memory store: write in read-only unit of work")

// state is the committed data. Maps are replaced wholesale, never shared
// with a unit of work that writes.
type state struct {
	warehouses   map[string]domain.Warehouse
	skus         map[string]domain.SKU
	packaging    map[string]domain.PackagingConfig
	rates        map[string]domain.CostRate
	transactions map[string]domain.Transaction
	balances     map[domain.BalanceKey]domain.Balance
	costs        map[string]domain.CalculatedCost
	invoices     map[string]domain.Invoice
}

func newState() *state {
	return &state{
		warehouses:   make(map[string]domain.Warehouse),
		skus:         make(map[string]domain.SKU),
		packaging:    make(map[string]domain.PackagingConfig),
		rates:        make(map[string]domain.CostRate),
		transactions: make(map[string]domain.Transaction),
		balances:     make(map[domain.BalanceKey]domain.Balance),
		costs:        make(map[string]domain.CalculatedCost),
		invoices:     make(map[string]domain.Invoice),
	}
}

func (s *state) clone() *state {
	return &state{
		warehouses:   cloneMap(s.warehouses),
		skus:         cloneMap(s.skus),
		packaging:    cloneMap(s.packaging),
		rates:        cloneMap(s.rates),
		transactions: cloneMap(s.transactions),
		balances:     cloneMap(s.balances),
		costs:        cloneMap(s.costs),
		invoices:     cloneMap(s.invoices),
	}
}

// Store is the in-memory store.
type Store struct {
	mu    sync.RWMutex
	data  *state
	locks *lockTable
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		data:  newState(),
		locks: newLockTable(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	tx := newTx(s, nil)
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

// View implements store.Store. fn reads a copy of the committed state taken
// when View starts.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	tx := newTx(s, snapshot)
	defer tx.releaseLocks()
	return fn(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, prev := range tx.prevVersions {
		current, ok := s.data.balances[key]
		if (prev == 0 && ok) || (prev != 0 && (!ok || current.Version != prev)) {
			return errors.LockContention(key.String())
		}
	}
	if err := tx.checkUnique(s.data); err != nil {
		return err
	}

	apply(s.data.warehouses, tx.warehouses)
	apply(s.data.skus, tx.skus)
	apply(s.data.packaging, tx.packaging)
	apply(s.data.rates, tx.rates)
	apply(s.data.transactions, tx.transactions)
	apply(s.data.balances, tx.balances)
	apply(s.data.costs, tx.costs)
	apply(s.data.invoices, tx.invoices)
	return nil
}

// changes stages puts (non-nil) and deletes (nil) over a committed map.
type changes[K comparable, V any] map[K]*V

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func lookup[K comparable, V any](base map[K]V, ch changes[K, V], k K) (V, bool) {
	if v, ok := ch[k]; ok {
		if v == nil {
			var zero V
			return zero, false
		}
		return *v, true
	}
	v, ok := base[k]
	return v, ok
}

func merged[K comparable, V any](base map[K]V, ch changes[K, V]) []V {
	out := make([]V, 0, len(base)+len(ch))
	for k, v := range base {
		if _, staged := ch[k]; !staged {
			out = append(out, v)
		}
	}
	for _, v := range ch {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func apply[K comparable, V any](base map[K]V, ch changes[K, V]) {
	for k, v := range ch {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = *v
	}
}

func put[K comparable, V any](ch changes[K, V], k K, v V) {
	ch[k] = &v
}
