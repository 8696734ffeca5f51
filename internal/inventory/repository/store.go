// Package repository is the PostgreSQL implementation of store.Store.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/store"
	"github.com/progami/wms-ecomos-sub005/pkg/database"
)

// Store runs units of work as database transactions. Writers run at READ
// COMMITTED and serialize per key through transaction-scoped advisory
// locks; readers get a REPEATABLE READ snapshot.
type Store struct {
	db *database.DB
}

var _ store.Store = (*Store)(nil)

// NewStore creates a new Postgres store
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Update implements store.Store
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// View implements store.Store
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.ReadSnapshot(ctx, func(tx *sqlx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// pgTx implements store.Tx on top of one database transaction.
type pgTx struct {
	tx *sqlx.Tx
}

var _ store.Tx = (*pgTx)(nil)

// LockKey implements store.Locker
func (t *pgTx) LockKey(ctx context.Context, token int64, wait time.Duration) error {
	return database.AdvisoryXactLock(ctx, t.tx, token, wait)
}

// filter accumulates WHERE conditions with positional arguments.
type filter struct {
	conditions []string
	args       []any
}

// add appends a condition; "?" in cond is replaced by the next placeholder.
func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conditions = append(f.conditions, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(f.args)), 1))
}

func (f *filter) where() string {
	if len(f.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conditions, " AND ")
}

// page appends LIMIT/OFFSET when set.
func (f *filter) page(limit, offset int) string {
	var out string
	if limit > 0 {
		f.args = append(f.args, limit)
		out += fmt.Sprintf(" LIMIT $%d", len(f.args))
	}
	if offset > 0 {
		f.args = append(f.args, offset)
		out += fmt.Sprintf(" OFFSET $%d", len(f.args))
	}
	return out
}
