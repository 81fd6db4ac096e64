package store

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrStateConflict     = errors.New("invalid state transition")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Error is a classified failure with a message fit for API clients.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func forbidden(format string, args ...any) error {
	return newError(ErrForbidden, format, args...)
}

func invalid(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func conflict(format string, args ...any) error {
	return newError(ErrStateConflict, format, args...)
}

func insufficient(format string, args ...any) error {
	return newError(ErrInsufficientStock, format, args...)
}

// BulkResult reports the outcome for one element of a bulk operation.
type BulkResult struct {
	ItemID  int64  `json:"item_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// bulkResult converts err into a report line. Unclassified errors are hidden
// behind a generic message.
func bulkResult(id int64, err error) BulkResult {
	if err == nil {
		return BulkResult{ItemID: id, Success: true}
	}
	var se *Error
	if errors.As(err, &se) {
		return BulkResult{ItemID: id, Error: se.Msg}
	}
	return BulkResult{ItemID: id, Error: "internal error"}
}
