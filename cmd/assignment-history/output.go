package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/modules/assignments/services"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return withCode(exitFailure, fmt.Errorf("json encode: %w", err))
	}
	return nil
}

type errorBody struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	ConflictID *uuid.UUID        `json:"conflict_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.fields)
}

func invalidInput(fields map[string]string) error {
	return withCode(exitValidation, &validationError{fields: fields})
}

func writeError(w io.Writer, err error) {
	body := errorBody{Code: "CLI_ERROR", Message: err.Error()}
	var svcErr *services.ServiceError
	var vErr *validationError
	switch {
	case errors.As(err, &svcErr):
		body.Code = svcErr.Code
		body.Message = svcErr.Message
		if svcErr.ConflictID != uuid.Nil {
			id := svcErr.ConflictID
			body.ConflictID = &id
		}
	case errors.As(err, &vErr):
		body.Code = services.CodeInvalidBody
		body.Message = "invalid input"
		body.Fields = vErr.fields
	}
	_ = writeJSON(w, map[string]errorBody{"error": body})
}
