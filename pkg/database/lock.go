package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// AdvisoryXactLock takes a transaction-scoped exclusive advisory lock on
// token, released automatically at commit or rollback.
//
// A positive timeout bounds the wait through lock_timeout; zero means fail
// fast via pg_try_advisory_xact_lock. Either way an unavailable lock comes
// back as errors.LockContention.
func AdvisoryXactLock(ctx context.Context, tx *sqlx.Tx, token int64, timeout time.Duration) error {
	name := fmt.Sprintf("%016x", uint64(token))

	if timeout <= 0 {
		var acquired bool
		if err := tx.QueryRowxContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, token).Scan(&acquired); err != nil {
			return fmt.Errorf("try advisory lock: %w", err)
		}
		if !acquired {
			return errors.LockContention(name)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, token); err != nil {
		if appErr := MapPQError(err); appErr != nil && errors.Is(appErr, errors.ErrLockContention) {
			return errors.LockContention(name)
		}
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
