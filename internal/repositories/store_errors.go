package repositories

import (
	"errors"
	"fmt"
)

// StoreErrorCode classifies context store failures.
type StoreErrorCode string

const (
	// StoreErrorNotFound indicates the requested key does not exist.
	StoreErrorNotFound StoreErrorCode = "store_not_found"
	// StoreErrorUnavailable indicates the backend could not be reached.
	StoreErrorUnavailable StoreErrorCode = "store_unavailable"
	// StoreErrorInvalidInput indicates the caller supplied an empty namespace or key.
	StoreErrorInvalidInput StoreErrorCode = "store_invalid_input"
)

// StoreError is the RepositoryError returned by the memory and redis context stores.
type StoreError struct {
	Op   string
	Code StoreErrorCode
	Key  string
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// NewStoreError constructs a typed store error.
func NewStoreError(op string, code StoreErrorCode, key string, err error) *StoreError {
	return &StoreError{Op: op, Code: code, Key: key, Err: err}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Code)
	if e.Key != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the key was absent.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Code == StoreErrorNotFound }

// IsUnavailable reports whether the backend could not be reached.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

// IsNotFound reports whether err is a RepositoryError describing a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err is a RepositoryError describing an unreachable backend.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
