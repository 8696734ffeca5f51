package service

import (
	"context"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/cache"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// Projector maintains exactly one balance row per warehouse, SKU and batch.
// Writers of the same key are serialized by a transaction-scoped lock on
// the key's token; the stored version is compared and swapped on write.
type Projector struct {
	store     store.Store
	lock      LockPolicy
	cache     *cache.Cache
	publisher *events.Publisher
	logger    *logger.Logger
}

// NewProjector creates a balance projector. cache and publisher may be nil.
func NewProjector(st store.Store, lock LockPolicy, c *cache.Cache, publisher *events.Publisher, log *logger.Logger) *Projector {
	return &Projector{
		store:     st,
		lock:      lock,
		cache:     c,
		publisher: publisher,
		logger:    log.WithComponent("projector"),
	}
}

// RebuildResult reports a rebuild
type RebuildResult struct {
	Balance  *domain.Balance `json:"balance"`
	Previous *domain.Balance `json:"previous,omitempty"`
	Changed  bool            `json:"changed"`
}

// Apply moves the balance of t's key by t inside the caller's unit of work.
// The key's history is read only after the key lock is held and t is folded
// into it by date, so a backdated movement leaves the same balance a
// rebuild would. An outbound movement that would leave less than zero
// cartons at its date or later fails with InsufficientStock and writes nothing.
func (p *Projector) Apply(ctx context.Context, tx store.Tx, t *domain.Transaction) (*domain.Balance, error) {
	key := t.Key()
	if err := p.lockKey(ctx, tx, key); err != nil {
		return nil, err
	}

	history, err := tx.ListTransactions(ctx, keyFilter(key))
	if err != nil {
		return nil, err
	}
	existing, prev, err := p.current(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	b, err := domain.Replay(history, t)
	if err != nil {
		return nil, err
	}
	inherit(b, existing)
	b.Version = prev + 1
	if err := tx.SaveBalance(ctx, b, prev); err != nil {
		return nil, err
	}
	return b, nil
}

// lockKey takes the transaction-scoped lock of key. Taking it again in the
// same unit of work is a no-op.
func (p *Projector) lockKey(ctx context.Context, tx store.Tx, key domain.BalanceKey) error {
	return tx.LockKey(ctx, key.LockToken(), p.lock.Wait())
}

func keyFilter(key domain.BalanceKey) domain.TransactionFilter {
	return domain.TransactionFilter{
		WarehouseID: key.WarehouseID,
		SKUID:       key.SKUID,
		Batch:       key.Batch,
	}
}

// inherit keeps the row identity and pallet overrides of the stored balance
func inherit(b, existing *domain.Balance) {
	b.ID = existing.ID
	if existing.StorageCartonsPerPallet != nil {
		b.StorageCartonsPerPallet = existing.StorageCartonsPerPallet
	}
	if existing.ShippingCartonsPerPallet != nil {
		b.ShippingCartonsPerPallet = existing.ShippingCartonsPerPallet
	}
}

// current returns the stored balance and its version, or a fresh one with
// version 0 when the key has no row yet
func (p *Projector) current(ctx context.Context, tx store.Tx, key domain.BalanceKey) (*domain.Balance, int64, error) {
	b, err := tx.GetBalance(ctx, key)
	if errors.Is(err, errors.ErrNotFound) {
		return domain.NewBalance(key), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return b, b.Version, nil
}

// Rebuild recomputes the balance of key from its full ledger history under
// the same key lock as Apply. The version becomes the number of folded
// transactions. A key without history has nothing to project.
func (p *Projector) Rebuild(ctx context.Context, key domain.BalanceKey) (*RebuildResult, error) {
	var res RebuildResult

	err := p.store.Update(ctx, func(tx store.Tx) error {
		if err := p.lockKey(ctx, tx, key); err != nil {
			return err
		}

		txs, err := tx.ListTransactions(ctx, keyFilter(key))
		if err != nil {
			return err
		}

		existing, prev, err := p.current(ctx, tx, key)
		if err != nil {
			return err
		}
		folded := domain.Fold(key, txs)

		if prev == 0 && folded.Version == 0 {
			res.Balance = folded
			return nil
		}
		if prev != 0 {
			res.Previous = existing
			inherit(folded, existing)
			if existing.SameState(folded) {
				res.Balance = existing
				return nil
			}
		}

		res.Changed = true
		res.Balance = folded
		return tx.SaveBalance(ctx, folded, prev)
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		p.logger.Warn().
			Str("balance_key", key.String()).
			Int64("cartons", res.Balance.CurrentCartons).
			Int64("version", res.Balance.Version).
			Msg("balance rebuilt with different state")
		p.invalidate(ctx, key)
	}
	p.publisher.BalanceRebuilt(ctx, res.Balance, res.Changed)
	return &res, nil
}

// GetBalance returns the balance of key, read through the cache
func (p *Projector) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	var cached domain.Balance
	if p.cache.GetJSON(ctx, cacheKey(key), &cached) {
		return &cached, nil
	}
	gen, cacheable := p.cache.Generation(ctx, cacheKey(key))

	var b *domain.Balance
	err := p.store.View(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.GetBalance(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		p.cache.SetJSONIfGeneration(ctx, cacheKey(key), gen, b)
	}
	return b, nil
}

// ListBalances lists balances matching the filter
func (p *Projector) ListBalances(ctx context.Context, f domain.BalanceFilter) ([]domain.Balance, error) {
	var out []domain.Balance
	err := p.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBalances(ctx, f)
		return err
	})
	return out, err
}

// invalidate drops the cached balance of key after its writer committed.
// Reads that loaded the balance before the commit can no longer cache it.
func (p *Projector) invalidate(ctx context.Context, key domain.BalanceKey) {
	p.cache.Invalidate(ctx, cacheKey(key))
}

func cacheKey(key domain.BalanceKey) string {
	return "balance:" + key.String()
}
