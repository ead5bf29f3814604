package main

import (
	"errors"

	"github.com/iota-uz/lendops/modules/assignments/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitNotFound   = 3
	exitDB         = 4
	exitConflict   = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case services.IsValidation(err):
		return exitValidation
	case services.IsNotFound(err):
		return exitNotFound
	case services.IsConflictResolution(err):
		return exitConflict
	default:
		return exitFailure
	}
}

var errBatchFailed = errors.New("no entity in the batch was changed")
