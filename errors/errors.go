// Package errors provides the error taxonomy for the sync engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a sync failure.
type ErrorCode string

const (
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeConflictFailure   ErrorCode = "CONFLICT_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeNotConfigured     ErrorCode = "NOT_CONFIGURED"
	ErrCodeUnsupportedEntity ErrorCode = "UNSUPPORTED_ENTITY"
)

// Operation identifies the sync operation that failed.
type Operation string

const (
	OpEnqueue  Operation = "enqueue"
	OpProcess  Operation = "process"
	OpPush     Operation = "push"
	OpPull     Operation = "pull"
	OpFetch    Operation = "fetch"
	OpApply    Operation = "apply"
	OpResolve  Operation = "resolve"
	OpQueue    Operation = "queue"
	OpRealtime Operation = "realtime"
	OpClose    Operation = "close"
)

// SyncError is the error type flowing through the engine. It carries the
// operation, the component that produced it, and whether retrying can help.
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "queue", "remote")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage-related SyncError.
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "queue",
		Err:       cause,
		Retryable: true,
	}
}

// NewNetworkError creates a new network-related SyncError.
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeNetworkFailure,
		Op:        op,
		Component: "remote",
		Err:       cause,
		Retryable: true,
	}
}

// NewConflictError creates a new conflict-related SyncError.
func NewConflictError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeConflictFailure,
		Op:        op,
		Component: "resolver",
		Err:       cause,
		Retryable: false,
	}
}

// NewValidationError creates a new validation-related SyncError.
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// NewNotConfiguredError signals that the remote backend has no credentials.
// Processing refuses to start on this error rather than failing per item.
func NewNotConfiguredError(op Operation) *SyncError {
	return &SyncError{
		Code:      ErrCodeNotConfigured,
		Op:        op,
		Component: "remote",
		Err:       errors.New("remote backend is not configured"),
		Retryable: false,
	}
}

// NewUnsupportedEntityError reports a queue item whose entity type has no
// registered repository. Retrying cannot fix it, but the item still travels
// the normal retry path and eventually lands in FAILED.
func NewUnsupportedEntityError(op Operation, entityType string) *SyncError {
	return &SyncError{
		Code:      ErrCodeUnsupportedEntity,
		Op:        op,
		Component: "dispatch",
		Err:       fmt.Errorf("unsupported entity type: %s", entityType),
		Retryable: false,
	}
}

// New creates a new SyncError.
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information.
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable SyncError.
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsNotConfigured reports whether err carries the NOT_CONFIGURED code.
func IsNotConfigured(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code == ErrCodeNotConfigured
	}
	return false
}

// IsUnsupportedEntity reports whether err carries the UNSUPPORTED_ENTITY code.
func IsUnsupportedEntity(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code == ErrCodeUnsupportedEntity
	}
	return false
}
