package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/actor"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// UserDirectory resolves user IDs to display names.
// *repository.UserCacheRepository implements it.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// AppendInput is a request to record one stock movement. Omitted pallet
// counts are derived from the cartons.
type AppendInput struct {
	WarehouseID              string                 `json:"warehouse_id" validate:"required"`
	SKUID                    string                 `json:"sku_id" validate:"required"`
	Batch                    string                 `json:"batch_lot" validate:"required,max=100"`
	Type                     domain.TransactionType `json:"transaction_type" validate:"required"`
	CartonsIn                int64                  `json:"cartons_in" validate:"gte=0"`
	CartonsOut               int64                  `json:"cartons_out" validate:"gte=0"`
	StoragePalletsIn         *int64                 `json:"storage_pallets_in,omitempty" validate:"omitempty,gte=0"`
	ShippingPalletsOut       *int64                 `json:"shipping_pallets_out,omitempty" validate:"omitempty,gte=0"`
	StorageCartonsPerPallet  *int64                 `json:"storage_cartons_per_pallet,omitempty" validate:"omitempty,gt=0"`
	ShippingCartonsPerPallet *int64                 `json:"shipping_cartons_per_pallet,omitempty" validate:"omitempty,gt=0"`
	TransactionDate          time.Time              `json:"transaction_date" validate:"required"`
	ReferenceID              *string                `json:"reference_id,omitempty"`
	TrackingNumber           *string                `json:"tracking_number,omitempty"`
	Attachments              []string               `json:"attachments,omitempty"`
	Notes                    *string                `json:"notes,omitempty"`
}

// AppendResult is the stored transaction and the balance after it
type AppendResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Balance     *domain.Balance     `json:"balance"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// LedgerService appends to and reads the transaction ledger
type LedgerService struct {
	store     store.Store
	projector *Projector
	users     UserDirectory
	publisher *events.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewLedgerService creates a ledger service. users and publisher may be nil.
func NewLedgerService(st store.Store, projector *Projector, users UserDirectory, publisher *events.Publisher, log *logger.Logger) *LedgerService {
	return &LedgerService{
		store:     st,
		projector: projector,
		users:     users,
		publisher: publisher,
		logger:    log.WithComponent("ledger"),
		now:       time.Now,
	}
}

// Append validates in, records it for the actor on ctx and moves the
// balance, all in one unit of work. Nothing is written when any step fails.
func (s *LedgerService) Append(ctx context.Context, in AppendInput) (*AppendResult, error) {
	a := actor.FromContextOrSystem(ctx)

	t := newTransaction(in)
	t.CreatedByID = a.ID
	t.CreatedByName = s.creatorName(ctx, a)

	if err := t.Validate(s.now()); err != nil {
		return nil, err
	}

	var (
		balance  *domain.Balance
		warnings []string
	)
	err := s.store.Update(ctx, func(tx store.Tx) error {
		sku, err := checkReferences(ctx, tx, t.WarehouseID, t.SKUID)
		if err != nil {
			return err
		}
		t.UnitsPerCarton = sku.UnitsPerCarton

		// The pallet factor may come from the balance row, so it is read
		// under the same key lock the projector takes.
		if err := s.projector.lockKey(ctx, tx, t.Key()); err != nil {
			return err
		}
		warnings, err = derivePallets(ctx, tx, t, in)
		if err != nil {
			return err
		}

		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		balance, err = s.projector.Apply(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.projector.invalidate(ctx, t.Key())
	s.publisher.TransactionAppended(ctx, t, balance)

	s.logger.Info().
		Str("transaction_id", t.ID).
		Str("transaction_type", string(t.Type)).
		Str("balance_key", t.Key().String()).
		Int64("net_cartons", t.NetCartons()).
		Int64("version", balance.Version).
		Msg("transaction appended")

	return &AppendResult{Transaction: t, Balance: balance, Warnings: warnings}, nil
}

func newTransaction(in AppendInput) *domain.Transaction {
	t := &domain.Transaction{
		ID:                       uuid.New().String(),
		WarehouseID:              in.WarehouseID,
		SKUID:                    in.SKUID,
		Batch:                    strings.TrimSpace(in.Batch),
		Type:                     domain.TransactionType(strings.ToUpper(string(in.Type))),
		CartonsIn:                in.CartonsIn,
		CartonsOut:               in.CartonsOut,
		StorageCartonsPerPallet:  in.StorageCartonsPerPallet,
		ShippingCartonsPerPallet: in.ShippingCartonsPerPallet,
		TransactionDate:          in.TransactionDate,
		ReferenceID:              in.ReferenceID,
		TrackingNumber:           in.TrackingNumber,
		Attachments:              domain.Attachments(in.Attachments),
		Notes:                    in.Notes,
	}
	if in.StoragePalletsIn != nil {
		t.StoragePalletsIn = *in.StoragePalletsIn
	}
	if in.ShippingPalletsOut != nil {
		t.ShippingPalletsOut = *in.ShippingPalletsOut
	}
	if t.Attachments == nil {
		t.Attachments = domain.Attachments{}
	}
	return t
}

// checkReferences requires an active warehouse and an active SKU
func checkReferences(ctx context.Context, tx store.Tx, warehouseID, skuID string) (*domain.SKU, error) {
	wh, err := tx.GetWarehouse(ctx, warehouseID)
	if errors.Is(err, errors.ErrNotFound) || (err == nil && !wh.IsActive) {
		return nil, errors.Reference("warehouse", warehouseID)
	}
	if err != nil {
		return nil, err
	}

	sku, err := tx.GetSKU(ctx, skuID)
	if errors.Is(err, errors.ErrNotFound) || (err == nil && !sku.IsActive) {
		return nil, errors.Reference("sku", skuID)
	}
	if err != nil {
		return nil, err
	}
	return sku, nil
}

// derivePallets fills omitted pallet counts from the cartons. The factor
// comes from the packaging effective on the transaction date, then the
// factor carried on the input, then the balance override, then 1.
func derivePallets(ctx context.Context, tx store.Tx, t *domain.Transaction, in AppendInput) ([]string, error) {
	needIn := in.StoragePalletsIn == nil && t.CartonsIn > 0
	needOut := in.ShippingPalletsOut == nil && t.CartonsOut > 0
	if !needIn && !needOut {
		return nil, nil
	}

	configs, err := tx.ListPackaging(ctx, t.WarehouseID, t.SKUID)
	if err != nil {
		return nil, err
	}
	cfg, hasCfg := domain.EffectivePackaging(configs, t.WarehouseID, t.SKUID, t.TransactionDate)

	var override *domain.Balance
	if b, err := tx.GetBalance(ctx, t.Key()); err == nil {
		override = b
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	var warnings []string
	if needIn {
		var fromBalance *int64
		if override != nil {
			fromBalance = override.StorageCartonsPerPallet
		}
		cpp, ok := pickFactor(hasCfg, cfg.StorageCartonsPerPallet, t.StorageCartonsPerPallet, fromBalance)
		if !ok {
			warnings = append(warnings, "no storage cartons-per-pallet configured, using 1")
		} else if t.StorageCartonsPerPallet == nil {
			t.StorageCartonsPerPallet = &cpp
		}
		t.StoragePalletsIn = domain.CeilDiv(t.CartonsIn, cpp)
	}
	if needOut {
		var fromBalance *int64
		if override != nil {
			fromBalance = override.ShippingCartonsPerPallet
		}
		cpp, ok := pickFactor(hasCfg, cfg.ShippingCartonsPerPallet, t.ShippingCartonsPerPallet, fromBalance)
		if !ok {
			warnings = append(warnings, "no shipping cartons-per-pallet configured, using 1")
		} else if t.ShippingCartonsPerPallet == nil {
			t.ShippingCartonsPerPallet = &cpp
		}
		t.ShippingPalletsOut = domain.CeilDiv(t.CartonsOut, cpp)
	}
	return warnings, nil
}

func pickFactor(hasCfg bool, fromCfg int64, fromInput, fromBalance *int64) (int64, bool) {
	switch {
	case hasCfg && fromCfg > 0:
		return fromCfg, true
	case fromInput != nil && *fromInput > 0:
		return *fromInput, true
	case fromBalance != nil && *fromBalance > 0:
		return *fromBalance, true
	}
	return 1, false
}

// creatorName prefers the name on the token, then the user cache, then the ID
func (s *LedgerService) creatorName(ctx context.Context, a *actor.Actor) string {
	if name := a.FullName(); name != "" {
		return name
	}
	if s.users != nil {
		name, err := s.users.DisplayName(ctx, a.ID)
		if err == nil && name != "" {
			return name
		}
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			s.logger.Warn().Err(err).Str("user_id", a.ID).Msg("user lookup failed")
		}
	}
	return a.ID
}

// Get returns one transaction
func (s *LedgerService) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	var t *domain.Transaction
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, id)
		return err
	})
	return t, err
}

// List returns transactions matching the filter
func (s *LedgerService) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, errors.Invalid("to", "must not be before from")
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, errors.Invalid("transaction_type", fmt.Sprintf("unknown transaction type %q", f.Type))
	}

	var out []domain.Transaction
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, f)
		return err
	})
	return out, err
}

// UpdateMetadata changes the reference, tracking, attachments, notes or
// reconciled flag of a transaction. Quantities are never editable.
func (s *LedgerService) UpdateMetadata(ctx context.Context, id string, m domain.TransactionMetadata) (*domain.Transaction, error) {
	if m.IsEmpty() {
		return nil, errors.BadRequest("no metadata fields to update")
	}

	var t *domain.Transaction
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.UpdateTransactionMetadata(ctx, id, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("transaction_id", id).Str("user_id", actor.FromContextOrSystem(ctx).ID).Msg("transaction metadata updated")
	return t, nil
}
