package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/actor"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// Calculator reconstructs weekly storage snapshots from the ledger and
// turns them into calculated costs. It never reads the live balances for
// quantities, so past weeks can be recomputed at any time.
type Calculator struct {
	store     store.Store
	publisher *events.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewCalculator creates a snapshot calculator. publisher may be nil.
func NewCalculator(st store.Store, publisher *events.Publisher, log *logger.Logger) *Calculator {
	return &Calculator{
		store:     st,
		publisher: publisher,
		logger:    log.WithComponent("calculator"),
		now:       time.Now,
	}
}

// AdjustCostInput is a manual correction of one calculated cost
type AdjustCostInput struct {
	Amount decimal.Decimal `json:"manual_adjustment"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

// ComputeWeeklySnapshots builds one snapshot per warehouse and Monday
// between start and end, both inclusive. An empty warehouseID covers every
// warehouse. Weeks without stock still produce a zero snapshot.
func (c *Calculator) ComputeWeeklySnapshots(ctx context.Context, start, end time.Time, warehouseID string) ([]domain.WeeklySnapshot, error) {
	if start.IsZero() || end.IsZero() {
		return nil, errors.Invalid("range", "start and end are required")
	}
	if domain.DateOnly(end).Before(domain.DateOnly(start)) {
		return nil, errors.Invalid("end", "must not be before start")
	}

	mondays := domain.Mondays(start, end)
	snapshots := []domain.WeeklySnapshot{}
	if len(mondays) == 0 {
		return snapshots, nil
	}
	cutoff := mondays[len(mondays)-1].AddDate(0, 0, 1)

	err := c.store.View(ctx, func(tx store.Tx) error {
		warehouses, err := c.warehouses(ctx, tx, warehouseID)
		if err != nil {
			return err
		}

		for _, wh := range warehouses {
			in, err := c.loadInput(ctx, tx, wh.ID, cutoff)
			if err != nil {
				return err
			}
			for _, monday := range mondays {
				in.Monday = monday
				snap, warnings := domain.BuildWeeklySnapshot(in)
				for _, w := range warnings {
					c.logger.Warn().
						Str("warehouse_id", wh.ID).
						Str("week_start", monday.Format("2006-01-02")).
						Msg(w)
				}
				snapshots = append(snapshots, snap)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Int("snapshots", len(snapshots)).
		Msg("weekly snapshots computed")
	return snapshots, nil
}

func (c *Calculator) warehouses(ctx context.Context, tx store.Tx, warehouseID string) ([]domain.Warehouse, error) {
	if warehouseID == "" {
		return tx.ListWarehouses(ctx)
	}
	wh, err := tx.GetWarehouse(ctx, warehouseID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Reference("warehouse", warehouseID)
	}
	if err != nil {
		return nil, err
	}
	return []domain.Warehouse{*wh}, nil
}

// loadInput reads everything one warehouse needs up to cutoff (exclusive)
func (c *Calculator) loadInput(ctx context.Context, tx store.Tx, warehouseID string, cutoff time.Time) (domain.SnapshotInput, error) {
	in := domain.SnapshotInput{WarehouseID: warehouseID, Overrides: make(map[domain.BalanceKey]int64)}

	var err error
	in.Transactions, err = tx.ListTransactions(ctx, domain.TransactionFilter{WarehouseID: warehouseID, To: &cutoff})
	if err != nil {
		return in, err
	}
	in.Packaging, err = tx.ListPackaging(ctx, warehouseID, "")
	if err != nil {
		return in, err
	}
	in.Rates, err = tx.ListRates(ctx, domain.RateFilter{WarehouseID: warehouseID, Category: domain.CostStorage})
	if err != nil {
		return in, err
	}

	balances, err := tx.ListBalances(ctx, domain.BalanceFilter{WarehouseID: warehouseID, IncludeEmpty: true})
	if err != nil {
		return in, err
	}
	for _, b := range balances {
		if b.StorageCartonsPerPallet != nil {
			in.Overrides[b.Key()] = *b.StorageCartonsPerPallet
		}
	}
	return in, nil
}

// PersistSnapshots writes the storage costs of snapshots in one unit of
// work. Manual adjustments survive; items that no longer hold stock are
// removed. Running it twice with the same snapshots changes nothing.
func (c *Calculator) PersistSnapshots(ctx context.Context, snapshots []domain.WeeklySnapshot) error {
	at := c.now().UTC()
	err := c.store.Update(ctx, func(tx store.Tx) error {
		for i := range snapshots {
			s := &snapshots[i]
			if err := tx.ReplaceCalculatedCosts(ctx, s.WarehouseID, s.WeekStart, domain.CostStorage, domain.StorageCosts(s, at)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range snapshots {
		c.publisher.SnapshotComputed(ctx, &snapshots[i])
	}
	c.logger.Info().Int("snapshots", len(snapshots)).Msg("storage costs persisted")
	return nil
}

// Recompute computes and persists the snapshots of a range
func (c *Calculator) Recompute(ctx context.Context, start, end time.Time, warehouseID string) ([]domain.WeeklySnapshot, error) {
	snapshots, err := c.ComputeWeeklySnapshots(ctx, start, end, warehouseID)
	if err != nil {
		return nil, err
	}
	if err := c.PersistSnapshots(ctx, snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// AdjustCost sets the manual adjustment of a calculated cost. The final
// cost may not become negative.
func (c *Calculator) AdjustCost(ctx context.Context, id string, in AdjustCostInput) (*domain.CalculatedCost, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, errors.Invalid("reason", "is required")
	}

	var cost *domain.CalculatedCost
	err := c.store.Update(ctx, func(tx store.Tx) error {
		var err error
		cost, err = tx.GetCalculatedCost(ctx, id)
		if err != nil {
			return err
		}
		cost.ManualAdjustment = in.Amount
		cost.AdjustmentReason = &reason
		cost.Refinalize()
		if cost.FinalCost.IsNegative() {
			return errors.Invalid("manual_adjustment", "final cost must not be negative")
		}
		return tx.SaveCalculatedCost(ctx, cost)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("cost_id", id).
		Str("manual_adjustment", in.Amount.StringFixed(domain.CostScale)).
		Str("user_id", actor.FromContextOrSystem(ctx).ID).
		Msg("calculated cost adjusted")
	return cost, nil
}

// ListCalculatedCosts lists calculated costs matching the filter
func (c *Calculator) ListCalculatedCosts(ctx context.Context, f domain.CostFilter) ([]domain.CalculatedCost, error) {
	if f.WeekFrom != nil && f.WeekTo != nil && f.WeekTo.Before(*f.WeekFrom) {
		return nil, errors.Invalid("week_to", "must not be before week_from")
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, errors.Invalid("cost_category", "unknown cost category")
	}

	var out []domain.CalculatedCost
	err := c.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListCalculatedCosts(ctx, f)
		return err
	})
	return out, err
}
