package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
)

// mapStoreError turns driver and repository errors into ServiceErrors.
// ServiceErrors pass through untouched.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := asServiceError(err); ok {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, assignment.ErrRecordNotFound) {
		return newServiceError(http.StatusNotFound, CodeRecordNotFound, "assignment not found", err)
	}
	if errors.Is(err, assignment.ErrEntityNotFound) {
		return newServiceError(http.StatusNotFound, CodeEntityNotFound, "entity not found", err)
	}
	if errors.Is(err, assignment.ErrOwnerNotFound) {
		return newServiceError(http.StatusNotFound, CodeOwnerNotFound, "owner not found", err)
	}

	if errors.Is(err, assignment.ErrTimelineConflict) {
		recordWriteConflict("constraint")
		return newServiceError(http.StatusConflict, CodeConflictResolutionFailure, "store rejected the assignment timeline", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return newServiceError(http.StatusInternalServerError, CodeInternal, "assignment store error", err)
	}

	switch pgErr.Code {
	case "23P01": // exclusion_violation
		recordWriteConflict("overlap")
		return newServiceError(http.StatusConflict, CodeConflictResolutionFailure, "assignment intervals overlap", err)
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return newServiceError(http.StatusConflict, CodeConflictResolutionFailure, "more than one current assignment", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		switch pgErr.ConstraintName {
		case "assignment_records_owner_fk":
			return newServiceError(http.StatusNotFound, CodeOwnerNotFound, "owner not found", err)
		default:
			return newServiceError(http.StatusNotFound, CodeEntityNotFound, "entity not found", err)
		}
	case "23514": // check_violation
		recordWriteConflict("check")
		return newServiceError(http.StatusBadRequest, CodeInvalidRange, "start_date must not be after end_date", err)
	default:
		return newServiceError(http.StatusInternalServerError, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
