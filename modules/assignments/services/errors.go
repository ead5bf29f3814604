package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/modules/assignments/domain/assignment"
)

type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindValidation         ErrorKind = "validation"
	KindConflictResolution ErrorKind = "conflict_resolution"
	KindInternal           ErrorKind = "internal"
)

const (
	CodeEntityNotFound            = "ASSIGNMENT_ENTITY_NOT_FOUND"
	CodeOwnerNotFound             = "ASSIGNMENT_OWNER_NOT_FOUND"
	CodeRecordNotFound            = "ASSIGNMENT_NOT_FOUND"
	CodeInvalidBody               = "ASSIGNMENT_INVALID_BODY"
	CodeEndDateRequired           = "ASSIGNMENT_END_DATE_REQUIRED"
	CodeInvalidRange              = "ASSIGNMENT_INVALID_RANGE"
	CodeOverlap                   = "ASSIGNMENT_OVERLAP"
	CodeOverlapsHistory           = "ASSIGNMENT_OVERLAPS_HISTORY"
	CodeConflictResolutionFailure = "ASSIGNMENT_CONFLICT_RESOLUTION_FAILED"
	CodeInternal                  = "ASSIGNMENT_INTERNAL"
)

type ServiceError struct {
	Status  int
	Code    string
	Kind    ErrorKind
	Message string
	// ConflictID is the record that blocked the write, when there is one.
	ConflictID uuid.UUID
	Cause      error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Kind: kindForStatus(status), Message: message, Cause: cause}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindNotFound
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusConflict:
		return KindConflictResolution
	default:
		return KindInternal
	}
}

func errEntityNotFound(id uuid.UUID) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeEntityNotFound, fmt.Sprintf("entity %s not found", id), assignment.ErrEntityNotFound)
}

func errOwnerNotFound(id uuid.UUID) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeOwnerNotFound, fmt.Sprintf("owner %s not found", id), assignment.ErrOwnerNotFound)
}

func errRecordNotFound(id uuid.UUID) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeRecordNotFound, fmt.Sprintf("assignment %s not found", id), assignment.ErrRecordNotFound)
}

func errOverlap(code string, conflict assignment.Record) *ServiceError {
	err := newServiceError(http.StatusBadRequest, code,
		fmt.Sprintf("interval overlaps assignment %s", conflict.ID), nil)
	err.ConflictID = conflict.ID
	return err
}

// errConflictResolution wraps failures that happen after writes began; the
// transaction is always rolled back.
func errConflictResolution(cause error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(cause, &svcErr) && svcErr.Kind == KindConflictResolution {
		return svcErr
	}
	recordWriteConflict("timeline")
	return newServiceError(http.StatusConflict, CodeConflictResolutionFailure, "assignment timeline could not be reconciled", cause)
}

func asServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	svcErr, ok := asServiceError(err)
	return ok && svcErr.Kind == KindNotFound
}

func IsValidation(err error) bool {
	svcErr, ok := asServiceError(err)
	return ok && svcErr.Kind == KindValidation
}

func IsConflictResolution(err error) bool {
	svcErr, ok := asServiceError(err)
	return ok && svcErr.Kind == KindConflictResolution
}

// itemRecoverable reports whether a batch may record err against one item and
// move on. Anything else aborts the whole batch.
func itemRecoverable(err error) bool {
	return IsNotFound(err) || IsValidation(err)
}

func errorCode(err error) string {
	if svcErr, ok := asServiceError(err); ok {
		return svcErr.Code
	}
	return CodeInternal
}
