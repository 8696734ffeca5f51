package service

import (
	"context"
	"time"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/actor"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// DefaultLookbackWeeks is how many past weeks each cycle recomputes
const DefaultLookbackWeeks = 4

// SnapshotScheduler periodically recomputes the storage costs of recent
// weeks for every warehouse, so late ledger entries and configuration
// changes reach the calculated costs without a manual run.
type SnapshotScheduler struct {
	calculator *Calculator
	catalog    *CatalogService
	interval   time.Duration
	lookback   int
	logger     *logger.Logger
	now        func() time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSnapshotScheduler creates a new snapshot scheduler
func NewSnapshotScheduler(calculator *Calculator, catalog *CatalogService, interval time.Duration, lookbackWeeks int, log *logger.Logger) *SnapshotScheduler {
	if lookbackWeeks <= 0 {
		lookbackWeeks = DefaultLookbackWeeks
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &SnapshotScheduler{
		calculator: calculator,
		catalog:    catalog,
		interval:   interval,
		lookback:   lookbackWeeks,
		logger:     log.WithComponent("snapshot-scheduler"),
		now:        time.Now,
	}
}

// Start starts the scheduler in a background goroutine.
// The first cycle runs immediately.
func (s *SnapshotScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(actor.WithActor(ctx, actor.SystemActor()))
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Int("lookback_weeks", s.lookback).Msg("snapshot scheduler started")

		s.RunCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("snapshot scheduler stopped")
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for a running cycle to end
func (s *SnapshotScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// RunCycle recomputes the lookback window for each warehouse. A failing
// warehouse is logged and does not stop the others.
func (s *SnapshotScheduler) RunCycle(ctx context.Context) {
	start := time.Now()
	end := s.now().UTC()
	from := domain.MondayOf(end).AddDate(0, 0, -7*(s.lookback-1))

	warehouses, err := s.catalog.ListWarehouses(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list warehouses")
		return
	}

	var computed int
	for _, wh := range warehouses {
		if !wh.IsActive {
			continue
		}
		snapshots, err := s.calculator.Recompute(ctx, from, end, wh.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("warehouse_id", wh.ID).Msg("snapshot recomputation failed for warehouse")
			continue
		}
		computed += len(snapshots)
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("warehouse_count", len(warehouses)).
		Int("snapshots", computed).
		Msg("snapshot cycle completed")
}
