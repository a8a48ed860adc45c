// Package apperr defines the error taxonomy shared across cloudshelf.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrFormat    = errors.New("malformed data")
	ErrOperation = errors.New("operation failed")
	ErrPlatform  = errors.New("unsupported platform")
	ErrConflict  = errors.New("conflict")
)

// FormatError reports malformed or unexpected keyed-value structure.
// It matches ErrFormat with errors.Is.
type FormatError struct {
	// Key is the offending key name, if any.
	Key string
	// Expected is the structural type the key should have held.
	Expected string
	// Offset is the byte offset in the source stream, or -1 when unknown.
	Offset int64
	// Msg describes the problem.
	Msg string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	switch {
	case e.Key != "" && e.Expected != "":
		return fmt.Sprintf("format: expected %s to be %s", e.Key, e.Expected)
	case e.Offset >= 0:
		return fmt.Sprintf("format: %s at offset %d", e.Msg, e.Offset)
	default:
		return "format: " + e.Msg
	}
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// NewFormatError returns a FormatError without position information.
func NewFormatError(format string, args ...any) *FormatError {
	return &FormatError{Offset: -1, Msg: fmt.Sprintf(format, args...)}
}

// TypeError returns a FormatError for a key holding the wrong structural type.
func TypeError(key, expected string) *FormatError {
	return &FormatError{Key: key, Expected: expected, Offset: -1}
}

// OperationError reports a failed create or update for a single catalog item.
// It matches ErrOperation with errors.Is and unwraps to the cause.
type OperationError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrOperation.
func (e *OperationError) Is(target error) bool {
	return target == ErrOperation
}
