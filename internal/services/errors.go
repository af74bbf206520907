package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

var (
	// ErrDuplicatePendingVersion indicates a new version is already pending in the registry.
	ErrDuplicatePendingVersion = errors.New("version registry: a new version is already pending")
	// ErrVersionExists indicates the registry already holds the version id.
	ErrVersionExists = errors.New("version registry: version already exists")
	// ErrNoPendingVersion indicates there is no pending version to discard or promote.
	ErrNoPendingVersion = errors.New("version lifecycle: no pending version")
	// ErrProductNotBound indicates the session has not loaded a product yet.
	ErrProductNotBound = errors.New("version lifecycle: product not bound")
	// ErrUnknownVersion indicates the requested version is not listed for the product.
	ErrUnknownVersion = errors.New("version lifecycle: unknown version")
	// ErrVersionNotPersisted indicates an operation needs a version the catalog already stores.
	ErrVersionNotPersisted = errors.New("version lifecycle: version not persisted")
	// ErrSwitchSuperseded indicates a newer version switch replaced this one.
	ErrSwitchSuperseded = errors.New("version lifecycle: switch superseded")
	// ErrInvalidDraftDates indicates the expiry date precedes the effective date.
	ErrInvalidDraftDates = errors.New("version lifecycle: expiry date before effective date")
	// ErrStatusTransitionNotAllowed indicates the requested status change is not a legal transition.
	ErrStatusTransitionNotAllowed = errors.New("status transition: not allowed")
	// ErrInvalidVersionID indicates a version id that is not a decimal number.
	ErrInvalidVersionID = domain.ErrInvalidVersionID
)

// LifecycleErrorKind classifies failed lifecycle operations.
type LifecycleErrorKind string

const (
	KindFetchFailure        LifecycleErrorKind = "fetch_failure"
	KindSubmitFailure       LifecycleErrorKind = "submit_failure"
	KindStatusChangeFailure LifecycleErrorKind = "status_change_failure"
	KindMappingCopyFailure  LifecycleErrorKind = "mapping_copy_failure"
)

// LifecycleError wraps a remote failure of a lifecycle operation.
type LifecycleError struct {
	Kind LifecycleErrorKind
	Op   string
	Err  error
}

func (e *LifecycleError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsLifecycleKind reports whether err wraps a LifecycleError of kind.
func IsLifecycleKind(err error, kind LifecycleErrorKind) bool {
	var lifecycleErr *LifecycleError
	return errors.As(err, &lifecycleErr) && lifecycleErr.Kind == kind
}

// RemoteError is a non-success response of a remote studio API. FieldErrors is populated when
// the body carried a per-field error map; Message holds a plain string error otherwise.
type RemoteError struct {
	StatusCode  int
	FieldErrors map[string]string
	Message     string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.FieldErrors) > 0 {
		parts := make([]string, 0, len(e.FieldErrors))
		for _, field := range e.SortedFields() {
			parts = append(parts, field+": "+e.FieldErrors[field])
		}
		return fmt.Sprintf("remote status %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	if e.Message != "" {
		return fmt.Sprintf("remote status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote status %d", e.StatusCode)
}

// SortedFields returns the field error keys in a stable order.
func (e *RemoteError) SortedFields() []string {
	if e == nil {
		return nil
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

const notAllowedForUpdate = "not allowed for update operation"

// isNotAllowedForUpdate reports whether the catalog refused an update it treats as informational.
func isNotAllowedForUpdate(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		if strings.Contains(remote.Message, notAllowedForUpdate) {
			return true
		}
		for _, msg := range remote.FieldErrors {
			if strings.Contains(msg, notAllowedForUpdate) {
				return true
			}
		}
		return false
	}
	return strings.Contains(err.Error(), notAllowedForUpdate)
}

// remoteMessage returns the message the catalog sent, if any.
func remoteMessage(err error) string {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return ""
	}
	if remote.Message != "" {
		return remote.Message
	}
	for _, field := range remote.SortedFields() {
		return remote.FieldErrors[field]
	}
	return ""
}
