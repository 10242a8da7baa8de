// Package web provides HTTP request and response types for the recovery API.
package web

// ValidateTransitionRequest is the body for dry-running a state transition
// through the validator. FromState is optional; when empty the instance's
// stored state is used, which skips the optimistic concurrency check.
type ValidateTransitionRequest struct {
	InstanceID      string         `json:"instance_id"                validate:"required"`
	FromState       string         `json:"from_state,omitempty"`
	ToState         string         `json:"to_state,omitempty"`
	Action          string         `json:"action"                     validate:"required"`
	UserID          string         `json:"user_id"                    validate:"required"`
	UserRole        string         `json:"user_role"                  validate:"required"`
	ExpectedVersion int64          `json:"expected_version,omitempty" validate:"omitempty,min=0"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ReportErrorRequest submits a workflow error for recovery. Code must be one
// of the registered taxonomy codes; unknown codes are rejected before they
// reach the engine. CorrelationID is optional and lets callers continue an
// existing audit trail instead of starting a new one.
type ReportErrorRequest struct {
	Code          string         `json:"code"    validate:"required"`
	Message       string         `json:"message" validate:"required"`
	InstanceID    string         `json:"instance_id,omitempty"`
	ContentID     string         `json:"content_id,omitempty"`
	CurrentState  string         `json:"current_state,omitempty"`
	TargetState   string         `json:"target_state,omitempty"`
	Action        string         `json:"action,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	UserRole      string         `json:"user_role,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RollbackRequest restores an instance from its stored snapshot. Reason and
// PerformedBy end up in the instance history and the audit trail.
type RollbackRequest struct {
	Reason        string `json:"reason"       validate:"required"`
	PerformedBy   string `json:"performed_by" validate:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// UpsertInstanceRequest creates or replaces a workflow instance. This is the
// admin/test surface: CurrentState only applies on creation, existing
// instances keep their state and can only move via transitions or rollback.
type UpsertInstanceRequest struct {
	ContentID    string         `json:"content_id"   validate:"required"`
	ContentType  string         `json:"content_type" validate:"required,oneof=post page email_campaign landing_page platform"`
	CurrentState string         `json:"current_state,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ReportTimeoutRequest reports a timed-out operation for a retry-or-escalate
// decision.
type ReportTimeoutRequest struct {
	InstanceID string `json:"instance_id" validate:"required"`
	Operation  string `json:"operation"   validate:"required"`
	TimeoutMs  int64  `json:"timeout_ms"  validate:"required,min=1"`
}
