package store

import (
	"errors"
	"fmt"

	"github.com/roach88/almanac/internal/ir"
)

// ErrNotInitialized is wrapped by every error returned from a Store that was
// never opened or has been closed.
var ErrNotInitialized = errors.New("engine not initialized")

// Error represents a failure reported by the log store.
//
// Errors fall into three categories:
//   - NOT_INITIALIZED: operation attempted before Open completed
//   - INITIALIZATION_FAILED: snapshot bytes are malformed or schema-incompatible
//   - ENGINE_ERROR: any other statement execution failure
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the store operation that failed (e.g., "insert").
	Op string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeNotInitialized indicates the store has not been opened.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// ErrCodeInitialization indicates a snapshot could not be restored.
	ErrCodeInitialization ErrorCode = "INITIALIZATION_FAILED"

	// ErrCodeEngine indicates an underlying statement failure.
	ErrCodeEngine ErrorCode = "ENGINE_ERROR"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Kind maps the code onto the wire error kind.
func (c ErrorCode) Kind() ir.ErrorKind {
	switch c {
	case ErrCodeNotInitialized:
		return ir.KindNotInitialized
	case ErrCodeInitialization:
		return ir.KindInitialization
	default:
		return ir.KindEngine
	}
}

// CodeOf returns the code of a store error.
// Errors that did not originate in the store map to ErrCodeEngine.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, ErrNotInitialized) {
		return ErrCodeNotInitialized
	}
	return ErrCodeEngine
}

// IsNotInitialized returns true if the error is a not-initialized error.
// Uses errors.As to handle wrapped errors.
func IsNotInitialized(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeNotInitialized
}

// IsInitializationError returns true if the error is a snapshot restore failure.
func IsInitializationError(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeInitialization
}

// NewNotInitializedError creates an Error for an operation on an unopened store.
func NewNotInitializedError(op string) *Error {
	return &Error{Code: ErrCodeNotInitialized, Op: op, Err: ErrNotInitialized}
}

func newInitializationError(op string, err error) *Error {
	return &Error{Code: ErrCodeInitialization, Op: op, Err: err}
}

func newEngineError(op string, err error) *Error {
	return &Error{Code: ErrCodeEngine, Op: op, Err: err}
}
