// Package apperr defines the error taxonomy shared by the HTTP layer.
// Validation and state-machine violations are detected before any mutation,
// so an apperr never describes a partial write.
package apperr

import "fmt"

// ValidationError reports missing or malformed input. Maps to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing event or listing. Maps to 404.
type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func NotFound(resource string, id int) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports an invalid state transition. Maps to 409.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func Conflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence failure. Maps to 500; the wrapped error is
// logged but never written to the response body.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func Storage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
