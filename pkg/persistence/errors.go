package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrInstanceNotFound indicates a workflow instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrSnapshotNotFound indicates no snapshot exists for the given instance.
	ErrSnapshotNotFound = errors.New("state snapshot not found")

	// ErrVersionConflict indicates a state update lost the optimistic concurrency race.
	ErrVersionConflict = errors.New("instance version conflict")

	// ErrInstanceAlreadyExists indicates an instance with the same identifier already exists.
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists")
)

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "UpdateState")
	InstanceID string // Instance ID if applicable
	Err        error  // Underlying error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// SnapshotError wraps snapshot-related errors with additional context.
type SnapshotError struct {
	Op         string // Operation being performed
	InstanceID string // Instance the snapshot belongs to
	Err        error  // Underlying error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s operation failed for snapshot of instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

func (e *SnapshotError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSnapshotError creates a new snapshot error with context.
func NewSnapshotError(op, instanceID string, err error) *SnapshotError {
	return &SnapshotError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// AuditError wraps audit-trail errors with additional context.
type AuditError struct {
	Op            string // Operation being performed
	CorrelationID string // Correlation the entry belongs to
	Err           error  // Underlying error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("%s operation failed for audit trail %s: %v", e.Op, e.CorrelationID, e.Err)
}

func (e *AuditError) Unwrap() error {
	return e.Err
}

func (e *AuditError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAuditError creates a new audit error with context.
func NewAuditError(op, correlationID string, err error) *AuditError {
	return &AuditError{
		Op:            op,
		CorrelationID: correlationID,
		Err:           err,
	}
}

// IsInstanceNotFound checks if an error indicates a workflow instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsSnapshotNotFound checks if an error indicates a snapshot was not found.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

// IsVersionConflict checks if an error indicates an optimistic concurrency conflict.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
