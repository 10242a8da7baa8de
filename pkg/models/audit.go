package models

import "time"

// AuditEntryKind classifies what an audit entry records.
type AuditEntryKind string

const (
	AuditErrorRaised        AuditEntryKind = "error_raised"
	AuditRecoveryAttempt    AuditEntryKind = "recovery_attempt"
	AuditRecoverySuccess    AuditEntryKind = "recovery_success"
	AuditRecoveryFailure    AuditEntryKind = "recovery_failure"
	AuditStepExecuted       AuditEntryKind = "step_executed"
	AuditStepFailed         AuditEntryKind = "step_failed"
	AuditSnapshotCreated    AuditEntryKind = "snapshot_created"
	AuditRollbackAttempt    AuditEntryKind = "rollback_attempt"
	AuditRollbackSuccess    AuditEntryKind = "rollback_success"
	AuditRollbackFailure    AuditEntryKind = "rollback_failure"
	AuditTimeoutRetry       AuditEntryKind = "timeout_retry"
	AuditTimeoutEscalated   AuditEntryKind = "timeout_escalated"
	AuditDeadlockDetected   AuditEntryKind = "deadlock_detected"
	AuditDeadlockResolution AuditEntryKind = "deadlock_resolution"
	AuditDeadlockFailure    AuditEntryKind = "deadlock_failure"
	AuditEscalation         AuditEntryKind = "escalation"
	AuditIncident           AuditEntryKind = "incident"
)

// AuditEntry is one record in the workflow audit trail. Sequence is assigned
// by the audit logger and is strictly increasing per correlation ID, so the
// trail for one failure replays in submission order regardless of timestamp
// granularity.
type AuditEntry struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id"`
	Sequence      int64          `json:"sequence"`
	InstanceID    string         `json:"instance_id,omitempty"`
	Kind          AuditEntryKind `json:"kind"`
	Severity      Severity       `json:"severity"`
	Code          ErrorCode      `json:"code,omitempty"`
	Message       string         `json:"message"`
	Actor         string         `json:"actor,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
