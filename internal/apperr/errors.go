// Package apperr defines the structured errors returned by the production core.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured application error with HTTP status and error code.
type Error struct {
	// Code is a machine-readable error code (e.g. "LOT_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context such as current and required state.
	Params map[string]any `json:"params,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that errors carrying params still match the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithParams returns a copy of e carrying params. Sentinels are never mutated.
func (e *Error) WithParams(params map[string]any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Params = params
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func New(code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Internal wraps an unexpected failure. Already-structured errors pass through.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Wrap(err, CodeInternal, "internal error", http.StatusInternalServerError)
}
