package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// PostgreSQL error codes the ledger cares about
const (
	codeCheckViolation       = "23514"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeNotNullViolation     = "23502"
	codeExclusionViolation   = "23P01"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or has no mapping.
func MapPQError(err error) *errors.AppError {
	if appErr := (*errors.AppError)(nil); stderrors.As(err, &appErr) {
		return appErr
	}

	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch string(pqErr.Code) {
	case codeCheckViolation:
		return mapCheckConstraint(pqErr)

	case codeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case codeForeignKeyViolation:
		return errors.Reference("record", pqErr.Constraint)

	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Invalid(col, "must not be empty")

	case codeExclusionViolation:
		return errors.Overlap(pqErr.Table, "")

	// Lock waits and serialization conflicts are transient: the caller may
	// retry the whole unit of work.
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		appErr := errors.LockContention(pqErr.Table)
		appErr.Err = stderrors.Join(errors.ErrLockContention, pqErr)
		return appErr

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "cartons_non_negative"):
		return errors.InsufficientStock(0, 0)
	case strings.Contains(constraint, "quantities_non_negative"):
		return errors.Invalid("quantity", "must not be negative")
	case strings.Contains(constraint, "effective_range"):
		return errors.Invalid("effective_to", "must be after effective_from")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "invoice_number"):
		return "an invoice with this number already exists for the warehouse"
	case strings.Contains(constraint, "warehouses_code"):
		return "a warehouse with this code already exists"
	case strings.Contains(constraint, "skus_code"):
		return "a SKU with this code already exists"
	case strings.Contains(constraint, "balances_key"):
		return "balance was created concurrently"
	default:
		return "a record with these values already exists"
	}
}
