// Package snapshot captures verified point-in-time state of workflow
// instances and restores them during rollback recovery.
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medwise/remedion/pkg/audit"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// Notifier receives rollback outcomes. Implemented by the notification
// package; delivery must not block the caller.
type Notifier interface {
	NotifyRollback(ctx context.Context, correlationID string, result *models.RollbackResult)
}

// Manager captures snapshots before risky operations and restores instances
// from them. Every restore re-verifies the snapshot checksum first: a
// tampered or corrupted snapshot is never applied.
type Manager struct {
	snapshots persistence.SnapshotRepository
	instances persistence.InstanceRepository
	auditor   *audit.Logger
	notifier  Notifier
	logger    *slog.Logger
}

// NewManager wires the snapshot manager. The notifier may be nil; rollback
// outcomes are then only audited and logged.
func NewManager(
	snapshots persistence.SnapshotRepository,
	instances persistence.InstanceRepository,
	auditor *audit.Logger,
	notifier Notifier,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		snapshots: snapshots,
		instances: instances,
		auditor:   auditor,
		notifier:  notifier,
		logger:    logger.With("module", "snapshot"),
	}
}

// Create captures the instance's current state, persists it as the
// instance's snapshot (replacing any previous one) and audits the capture.
// An empty correlationID mints a fresh one so standalone captures stay
// individually traceable.
func (m *Manager) Create(ctx context.Context, correlationID string, instance *models.WorkflowInstance) (*models.StateSnapshot, error) {
	if correlationID == "" {
		correlationID = uuid.Must(uuid.NewV7()).String()
	}

	snapshot, err := models.NewStateSnapshot(instance)
	if err != nil {
		return nil, m.persistenceError(correlationID, instance, "failed to capture snapshot", err)
	}

	if err := m.snapshots.Save(ctx, snapshot); err != nil {
		return nil, m.persistenceError(correlationID, instance, "failed to persist snapshot", err)
	}

	m.auditor.LogStateSnapshot(correlationID, snapshot)

	m.logger.InfoContext(ctx, "state snapshot captured",
		"instance_id", instance.ID,
		"state", instance.CurrentState,
		"version", instance.Version,
		"correlation_id", correlationID)

	return snapshot, nil
}

// Rollback restores an instance to its stored snapshot. The operation is
// idempotent: when the instance already sits at the snapshot state the call
// succeeds as a no-op. Failures are always audited, never silent.
func (m *Manager) Rollback(ctx context.Context, correlationID, instanceID, reason, performedBy string) (*models.RollbackResult, error) {
	if correlationID == "" {
		correlationID = uuid.Must(uuid.NewV7()).String()
	}

	started := time.Now()

	m.auditor.LogRollbackAttempt(correlationID, instanceID, reason, performedBy)

	snapshot, err := m.snapshots.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeSnapshotPersistenceFailed,
			"cannot rollback: snapshot lookup failed", err)
	}

	if snapshot == nil {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeWorkflowRecoveryFailed,
			"cannot rollback: no snapshot recorded for instance "+instanceID,
			persistence.NewSnapshotError("Rollback", instanceID, persistence.ErrSnapshotNotFound))
	}

	valid, err := snapshot.VerifyChecksum()
	if err != nil {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeWorkflowRecoveryFailed,
			"cannot rollback: snapshot checksum could not be computed", err)
	}

	if !valid {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeContentCorrupted,
			"cannot rollback: snapshot checksum mismatch for instance "+instanceID, nil)
	}

	instance, err := m.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeDatabaseConnectionFailed,
			"cannot rollback: instance lookup failed", err)
	}

	if instance == nil {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeWorkflowInstanceNotFound,
			"cannot rollback: workflow instance "+instanceID+" not found", nil)
	}

	result := &models.RollbackResult{
		InstanceID:    instanceID,
		RestoredState: snapshot.State,
		PerformedBy:   performedBy,
		Reason:        reason,
	}

	if instance.CurrentState == snapshot.State {
		result.NoOp = true
		result.Duration = time.Since(started)
		result.CompletedAt = time.Now().UTC()

		m.auditor.LogRollbackSuccess(correlationID, result)

		m.logger.InfoContext(ctx, "rollback is a no-op, instance already at snapshot state",
			"instance_id", instanceID,
			"state", snapshot.State,
			"correlation_id", correlationID)

		return result, nil
	}

	record := models.TransitionRecord{
		FromState:   instance.CurrentState,
		ToState:     snapshot.State,
		Action:      models.ActionRollback,
		PerformedBy: performedBy,
		Timestamp:   time.Now().UTC(),
		Metadata: map[string]any{
			"reason":            reason,
			"snapshot_checksum": snapshot.Checksum,
		},
	}

	if _, err := m.instances.UpdateState(ctx, instanceID, instance.Version, snapshot.State, record); err != nil {
		return nil, m.rollbackFailure(ctx, correlationID, instanceID,
			models.ErrCodeWorkflowRecoveryFailed,
			"rollback state restore failed for instance "+instanceID, err)
	}

	result.RevertedState = instance.CurrentState
	result.Duration = time.Since(started)
	result.CompletedAt = time.Now().UTC()

	m.auditor.LogRollbackSuccess(correlationID, result)

	if m.notifier != nil {
		m.notifier.NotifyRollback(ctx, correlationID, result)
	}

	m.logger.InfoContext(ctx, "instance rolled back to snapshot state",
		"instance_id", instanceID,
		"restored_state", result.RestoredState,
		"reverted_state", result.RevertedState,
		"correlation_id", correlationID)

	return result, nil
}

// VerifyAll re-verifies every stored snapshot and returns the ones whose
// checksum no longer matches. Used by the watchdog integrity sweep.
func (m *Manager) VerifyAll(ctx context.Context) ([]*models.StateSnapshot, error) {
	snapshots, err := m.snapshots.List(ctx)
	if err != nil {
		return nil, err
	}

	var corrupted []*models.StateSnapshot

	for _, snapshot := range snapshots {
		valid, err := snapshot.VerifyChecksum()
		if err != nil {
			m.logger.ErrorContext(ctx, "snapshot checksum computation failed",
				"instance_id", snapshot.InstanceID,
				"error", err)

			corrupted = append(corrupted, snapshot)

			continue
		}

		if !valid {
			m.logger.WarnContext(ctx, "snapshot checksum mismatch",
				"instance_id", snapshot.InstanceID,
				"state", snapshot.State)

			corrupted = append(corrupted, snapshot)
		}
	}

	return corrupted, nil
}

func (m *Manager) persistenceError(correlationID string, instance *models.WorkflowInstance, message string, cause error) *models.WorkflowError {
	ectx := models.NewErrorContext(instance)
	ectx.CorrelationID = correlationID

	return models.NewWorkflowError(models.ErrCodeSnapshotPersistenceFailed, message, ectx).WithCause(cause)
}

// rollbackFailure audits and returns a rollback failure so no failed restore
// leaves the trail silently.
func (m *Manager) rollbackFailure(ctx context.Context, correlationID, instanceID string, code models.ErrorCode, message string, cause error) *models.WorkflowError {
	ectx := models.NewErrorContext(nil)
	ectx.CorrelationID = correlationID
	ectx.WorkflowInstanceID = instanceID

	workflowError := models.NewWorkflowError(code, message, ectx)
	if cause != nil {
		workflowError = workflowError.WithCause(cause)
	}

	m.auditor.LogRollbackFailure(correlationID, instanceID, workflowError)

	m.logger.ErrorContext(ctx, "rollback failed",
		"instance_id", instanceID,
		"code", code,
		"error", workflowError)

	return workflowError
}
