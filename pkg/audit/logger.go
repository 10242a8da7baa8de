// Package audit maintains the ordered, durable audit trail behind every
// error-handling and recovery operation.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// CriticalEscalator receives incidents the audit pipeline cannot record,
// currently audit write failures. Implemented by the notifier.
type CriticalEscalator interface {
	NotifyAdministrators(ctx context.Context, workflowError *models.WorkflowError, severity models.Severity, immediate bool)
}

type envelope struct {
	entry   *models.AuditEntry
	flushed chan struct{}
}

// Logger is a single-writer audit pipeline. Entries are sequenced per
// correlation ID at enqueue time and written by one consumer goroutine, so
// the stored trail always replays in submission order. Enqueue blocks when
// the buffer is full; audit entries are never dropped.
type Logger struct {
	repo      persistence.AuditRepository
	escalator CriticalEscalator
	logger    *slog.Logger

	mu        sync.Mutex
	sequences map[string]int64
	closed    bool

	queue chan envelope
	done  chan struct{}
}

// NewLogger starts the consumer goroutine. Call Close to drain and stop it.
// The escalator may be nil; write failures are then only logged.
func NewLogger(repo persistence.AuditRepository, escalator CriticalEscalator, logger *slog.Logger) *Logger {
	l := &Logger{
		repo:      repo,
		escalator: escalator,
		logger:    logger,
		sequences: make(map[string]int64),
		queue:     make(chan envelope, 256),
		done:      make(chan struct{}),
	}

	go l.consume()

	return l
}

func (l *Logger) consume() {
	defer close(l.done)

	ctx := context.Background()

	for env := range l.queue {
		if env.flushed != nil {
			close(env.flushed)

			continue
		}

		l.write(ctx, env.entry)
	}
}

// write persists one entry. A failed write is itself a critical incident: it
// is logged and escalated, never silently swallowed.
func (l *Logger) write(ctx context.Context, entry *models.AuditEntry) {
	err := l.repo.Append(ctx, entry)
	if err == nil {
		return
	}

	l.logger.ErrorContext(ctx, "audit trail write failed",
		"correlation_id", entry.CorrelationID,
		"sequence", entry.Sequence,
		"kind", entry.Kind,
		"error", err)

	if l.escalator == nil {
		return
	}

	ectx := models.NewErrorContext(nil)
	ectx.CorrelationID = entry.CorrelationID
	ectx.WorkflowInstanceID = entry.InstanceID

	incident := models.NewWorkflowError(
		models.ErrCodeAuditLogWriteFailed,
		"audit trail write failed: "+err.Error(),
		ectx,
	).WithCause(err)

	l.escalator.NotifyAdministrators(ctx, incident, models.SeverityCritical, true)
}

// enqueue stamps sequence and timestamp under the lock and hands the entry to
// the consumer. Holding the lock across the channel send keeps queue order
// identical to sequence order even under producer contention.
func (l *Logger) enqueue(entry *models.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.logger.Error("audit entry submitted after close",
			"correlation_id", entry.CorrelationID,
			"kind", entry.Kind)

		return
	}

	l.sequences[entry.CorrelationID]++
	entry.Sequence = l.sequences[entry.CorrelationID]
	entry.ID = uuid.Must(uuid.NewV7()).String()
	entry.CreatedAt = time.Now().UTC()

	l.queue <- envelope{entry: entry}
}

// QueueDepth reports how many entries are waiting for the writer goroutine.
// The recovery engine samples it for the load snapshot in error contexts.
func (l *Logger) QueueDepth() int {
	return len(l.queue)
}

// Flush blocks until every entry enqueued before the call has been written.
func (l *Logger) Flush() {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()

		return
	}

	flushed := make(chan struct{})
	l.queue <- envelope{flushed: flushed}
	l.mu.Unlock()

	<-flushed
}

// Close drains the queue and stops the consumer. Further Log calls are
// rejected and logged.
func (l *Logger) Close() {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()

		return
	}

	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
}

// LogWorkflowError records the initial error occurrence that opens a trail.
func (l *Logger) LogWorkflowError(workflowError *models.WorkflowError) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          models.AuditErrorRaised,
		Severity:      workflowError.Severity(),
		Code:          workflowError.Code,
		Message:       workflowError.Message,
		Actor:         workflowError.Context.UserID,
		Details: map[string]any{
			"wire_code":     workflowError.Code.WireCode(),
			"category":      string(workflowError.Category()),
			"retryable":     workflowError.Retryable,
			"current_state": string(workflowError.Context.CurrentState),
			"target_state":  string(workflowError.Context.TargetState),
			"action":        string(workflowError.Context.Action),
		},
	})
}

// LogRecoveryAttempt records the plan selected for an error before any step
// executes.
func (l *Logger) LogRecoveryAttempt(workflowError *models.WorkflowError, plan *models.RecoveryPlan) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          models.AuditRecoveryAttempt,
		Severity:      workflowError.Severity(),
		Code:          workflowError.Code,
		Message:       "recovery attempt using strategy " + string(plan.Strategy),
		Details: map[string]any{
			"strategy":          string(plan.Strategy),
			"step_count":        len(plan.Steps),
			"risk_level":        string(plan.RiskLevel),
			"requires_approval": plan.RequiresApproval,
		},
	})
}

// LogRecoverySuccess closes a trail after all steps completed.
func (l *Logger) LogRecoverySuccess(workflowError *models.WorkflowError, result *models.RecoveryResult) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          models.AuditRecoverySuccess,
		Severity:      models.SeverityLow,
		Code:          workflowError.Code,
		Message:       result.Message,
		Details: map[string]any{
			"strategy":       string(result.Strategy),
			"executed_steps": result.ExecutedSteps,
			"duration_ms":    result.Duration.Milliseconds(),
		},
	})
}

// LogRecoveryFailure closes a trail after recovery gave up.
func (l *Logger) LogRecoveryFailure(workflowError *models.WorkflowError, result *models.RecoveryResult) {
	details := map[string]any{
		"strategy":              string(result.Strategy),
		"executed_steps":        result.ExecutedSteps,
		"duration_ms":           result.Duration.Milliseconds(),
		"requires_intervention": result.RequiresIntervention,
	}

	if result.Err != nil {
		details["failure"] = result.Err.Error()
	}

	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          models.AuditRecoveryFailure,
		Severity:      models.SeverityCritical,
		Code:          workflowError.Code,
		Message:       result.Message,
		Details:       details,
	})
}

// LogStep records one executed recovery step, successful or not.
func (l *Logger) LogStep(workflowError *models.WorkflowError, step *models.RecoveryStep, stepErr error) {
	kind := models.AuditStepExecuted
	severity := models.SeverityLow
	message := "step " + step.ID + " completed"

	details := map[string]any{
		"step_id":             step.ID,
		"action":              string(step.Action),
		"timeout_ms":          step.Timeout.Milliseconds(),
		"rollback_on_failure": step.RollbackOnFailure,
	}

	if stepErr != nil {
		kind = models.AuditStepFailed
		severity = models.SeverityHigh
		message = "step " + step.ID + " failed"
		details["error"] = stepErr.Error()
	}

	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          kind,
		Severity:      severity,
		Code:          workflowError.Code,
		Message:       message,
		Details:       details,
	})
}

// LogStateSnapshot records a snapshot capture.
func (l *Logger) LogStateSnapshot(correlationID string, snapshot *models.StateSnapshot) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    snapshot.InstanceID,
		Kind:          models.AuditSnapshotCreated,
		Severity:      models.SeverityLow,
		Message:       "state snapshot captured at " + string(snapshot.State),
		Details: map[string]any{
			"state":    string(snapshot.State),
			"version":  snapshot.Version,
			"checksum": snapshot.Checksum,
		},
	})
}

// LogRollbackAttempt records the intent to roll back, before any mutation.
func (l *Logger) LogRollbackAttempt(correlationID, instanceID, reason, performedBy string) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    instanceID,
		Kind:          models.AuditRollbackAttempt,
		Severity:      models.SeverityMedium,
		Message:       "rollback requested: " + reason,
		Actor:         performedBy,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRollbackSuccess records a completed rollback, including no-op repeats.
func (l *Logger) LogRollbackSuccess(correlationID string, result *models.RollbackResult) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    result.InstanceID,
		Kind:          models.AuditRollbackSuccess,
		Severity:      models.SeverityLow,
		Message:       "state restored to " + string(result.RestoredState),
		Actor:         result.PerformedBy,
		Details: map[string]any{
			"restored_state": string(result.RestoredState),
			"reverted_state": string(result.RevertedState),
			"no_op":          result.NoOp,
			"duration_ms":    result.Duration.Milliseconds(),
		},
	})
}

// LogRollbackFailure records a rollback that could not complete.
func (l *Logger) LogRollbackFailure(correlationID, instanceID string, cause error) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    instanceID,
		Kind:          models.AuditRollbackFailure,
		Severity:      models.SeverityCritical,
		Message:       "rollback failed",
		Details: map[string]any{
			"error": cause.Error(),
		},
	})
}

// LogTimeoutRetry records one scheduled retry of a timed-out operation.
func (l *Logger) LogTimeoutRetry(correlationID, instanceID, operation string, attempt int, delay time.Duration) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    instanceID,
		Kind:          models.AuditTimeoutRetry,
		Severity:      models.ErrCodeWorkflowExecutionTimeout.DefaultSeverity(),
		Code:          models.ErrCodeWorkflowExecutionTimeout,
		Message:       "retrying timed out operation " + operation,
		Details: map[string]any{
			"operation": operation,
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
		},
	})
}

// LogTimeoutEscalated records a timeout that was handed to administrators
// instead of retried.
func (l *Logger) LogTimeoutEscalated(correlationID, instanceID, operation string, timeout time.Duration) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    instanceID,
		Kind:          models.AuditTimeoutEscalated,
		Severity:      models.SeverityHigh,
		Code:          models.ErrCodeWorkflowExecutionTimeout,
		Message:       "operation " + operation + " is not retryable, escalating",
		Details: map[string]any{
			"operation":  operation,
			"timeout_ms": timeout.Milliseconds(),
		},
	})
}

// LogDeadlockDetected records a wait-for cycle the moment it is found.
func (l *Logger) LogDeadlockDetected(correlationID string, deadlock *models.Deadlock) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		Kind:          models.AuditDeadlockDetected,
		Severity:      severityForDeadlock(deadlock.Severity),
		Code:          models.ErrCodeWorkflowDeadlockDetected,
		Message:       deadlock.CycleDescription,
		Details: map[string]any{
			"deadlock_id":         deadlock.ID,
			"involved_instances":  deadlock.InvolvedInstances,
			"severity":            string(deadlock.Severity),
			"resolution_strategy": string(deadlock.ResolutionStrategy),
			"estimated_impact":    deadlock.EstimatedImpact,
		},
	})
}

// LogDeadlockResolution records how a cycle was broken.
func (l *Logger) LogDeadlockResolution(correlationID string, deadlock *models.Deadlock, victimInstanceID string) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		InstanceID:    victimInstanceID,
		Kind:          models.AuditDeadlockResolution,
		Severity:      models.SeverityMedium,
		Code:          models.ErrCodeWorkflowDeadlockDetected,
		Message:       "deadlock resolved via " + string(deadlock.ResolutionStrategy),
		Details: map[string]any{
			"deadlock_id":        deadlock.ID,
			"resolution":         string(deadlock.ResolutionStrategy),
			"victim_instance_id": victimInstanceID,
		},
	})
}

// LogDeadlockFailure records a resolution attempt that did not break the cycle.
func (l *Logger) LogDeadlockFailure(correlationID string, deadlock *models.Deadlock, cause error) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: correlationID,
		Kind:          models.AuditDeadlockFailure,
		Severity:      models.SeverityCritical,
		Code:          models.ErrCodeWorkflowDeadlockDetected,
		Message:       "deadlock resolution failed",
		Details: map[string]any{
			"deadlock_id": deadlock.ID,
			"resolution":  string(deadlock.ResolutionStrategy),
			"error":       cause.Error(),
		},
	})
}

// LogEscalation records that an error was handed to administrators.
func (l *Logger) LogEscalation(workflowError *models.WorkflowError, recoveryErr error) {
	details := map[string]any{
		"wire_code": workflowError.Code.WireCode(),
	}

	if recoveryErr != nil {
		details["recovery_error"] = recoveryErr.Error()
	}

	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          models.AuditEscalation,
		Severity:      models.SeverityCritical,
		Code:          workflowError.Code,
		Message:       "escalated to administrators: " + workflowError.Message,
		Details:       details,
	})
}

// LogIncident records an operational failure that is not itself part of a
// recovery trail, such as a notification that could not be delivered.
func (l *Logger) LogIncident(workflowError *models.WorkflowError) {
	l.enqueue(&models.AuditEntry{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Kind:          models.AuditIncident,
		Severity:      workflowError.Severity(),
		Code:          workflowError.Code,
		Message:       workflowError.Message,
		Details: map[string]any{
			"wire_code": workflowError.Code.WireCode(),
			"category":  string(workflowError.Category()),
		},
	})
}

func severityForDeadlock(severity models.DeadlockSeverity) models.Severity {
	switch severity {
	case models.DeadlockCritical:
		return models.SeverityCritical
	case models.DeadlockMajor:
		return models.SeverityHigh
	case models.DeadlockMinor:
		return models.SeverityMedium
	default:
		return models.SeverityMedium
	}
}
