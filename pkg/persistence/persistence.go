// Package persistence provides the data storage abstraction layer for
// workflow instances, state snapshots and the audit trail.
package persistence

import (
	"context"

	"github.com/medwise/remedion/pkg/models"
)

// Persistence bundles the repositories behind a single backend handle.
// Implementations: file (development, unit tests) and postgresql.
type Persistence interface {
	InstanceRepository() InstanceRepository
	SnapshotRepository() SnapshotRepository
	AuditRepository() AuditRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// InstanceRepository stores workflow instances. GetByID returns (nil, nil)
// when no instance exists; callers translate that into their own not-found
// error.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	List(ctx context.Context) ([]*models.WorkflowInstance, error)

	// UpdateState applies a state change if and only if the stored version
	// still equals expectedVersion. On a version mismatch it returns
	// ErrVersionConflict and leaves the instance untouched. The returned
	// instance reflects the applied change.
	UpdateState(ctx context.Context, id string, expectedVersion int64, newState models.WorkflowState, record models.TransitionRecord) (*models.WorkflowInstance, error)

	// SetContentLock locks or unlocks the content behind an instance.
	// Locking does not bump the version: it guards manual intervention,
	// not the state machine.
	SetContentLock(ctx context.Context, id string, locked bool, reason string) error

	Delete(ctx context.Context, id string) error
}

// SnapshotRepository stores the latest verified snapshot per instance.
// Saving replaces any previous snapshot for the same instance.
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.StateSnapshot) error
	GetByInstanceID(ctx context.Context, instanceID string) (*models.StateSnapshot, error)
	List(ctx context.Context) ([]*models.StateSnapshot, error)
	Delete(ctx context.Context, instanceID string) error
}

// AuditRepository stores the append-only audit trail. Entries are never
// updated or deleted; ListByCorrelationID returns them in sequence order.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditEntry, error)
	ListByInstanceID(ctx context.Context, instanceID string, limit int) ([]*models.AuditEntry, error)
}
