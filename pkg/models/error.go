package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorContext carries the situation a workflow error occurred in. The
// correlation ID ties together every audit entry, recovery step and
// notification produced while handling one failure; it is minted once at the
// first raise site and propagated unchanged afterwards.
type ErrorContext struct {
	CorrelationID       string         `json:"correlation_id"`
	WorkflowInstanceID  string         `json:"workflow_instance_id,omitempty"`
	ContentID           string         `json:"content_id,omitempty"`
	ContentType         ContentType    `json:"content_type,omitempty"`
	CurrentState        WorkflowState  `json:"current_state,omitempty"`
	TargetState         WorkflowState  `json:"target_state,omitempty"`
	Action              WorkflowAction `json:"action,omitempty"`
	UserID              string         `json:"user_id,omitempty"`
	UserRole            WorkflowRole   `json:"user_role,omitempty"`
	Timestamp           time.Time      `json:"timestamp"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	PreviousErrors      []string       `json:"previous_errors,omitempty"`
	RetryAttempt        int            `json:"retry_attempt,omitempty"`
	MaxRetries          int            `json:"max_retries,omitempty"`
	SystemLoad          float64        `json:"system_load,omitempty"`
	DatabaseConnections int            `json:"database_connections,omitempty"`
	ActiveWorkflows     int            `json:"active_workflows,omitempty"`
}

// NewErrorContext builds a context from a workflow instance, minting a fresh
// correlation ID. Instance may be nil for errors raised outside any instance.
func NewErrorContext(instance *WorkflowInstance) ErrorContext {
	ectx := ErrorContext{
		CorrelationID: uuid.Must(uuid.NewV7()).String(),
		Timestamp:     time.Now().UTC(),
	}

	if instance != nil {
		ectx.WorkflowInstanceID = instance.ID
		ectx.ContentID = instance.ContentID
		ectx.ContentType = instance.ContentType
		ectx.CurrentState = instance.CurrentState
	}

	return ectx
}

// WorkflowError is the single error type the recovery engine operates on.
// Values are never mutated after construction; the With* helpers return
// adjusted copies.
type WorkflowError struct {
	Code      ErrorCode    `json:"code"`
	Message   string       `json:"message"`
	Context   ErrorContext `json:"context"`
	Retryable bool         `json:"retryable"`
	Cause     error        `json:"-"`
}

// NewWorkflowError creates an error with the code's default retryability.
// A missing correlation ID or timestamp is filled in so every error is
// traceable even when the raise site built the context by hand.
func NewWorkflowError(code ErrorCode, message string, ectx ErrorContext) *WorkflowError {
	if ectx.CorrelationID == "" {
		ectx.CorrelationID = uuid.Must(uuid.NewV7()).String()
	}

	if ectx.Timestamp.IsZero() {
		ectx.Timestamp = time.Now().UTC()
	}

	return &WorkflowError{
		Code:      code,
		Message:   message,
		Context:   ectx,
		Retryable: code.DefaultRetryable(),
	}
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Code.WireCode(), e.Code, e.Message)
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// Is matches two workflow errors by code, so callers can test against a
// template like errors.Is(err, &WorkflowError{Code: ErrCodeContentLocked}).
func (e *WorkflowError) Is(target error) bool {
	other, ok := target.(*WorkflowError)
	if !ok {
		return false
	}

	return e.Code == other.Code
}

// WithCause returns a copy carrying the underlying cause.
func (e *WorkflowError) WithCause(cause error) *WorkflowError {
	clone := *e
	clone.Cause = cause

	return &clone
}

// WithRetryable returns a copy with retryability overridden. Raise sites use
// this when the default for the code does not fit the concrete occurrence.
func (e *WorkflowError) WithRetryable(retryable bool) *WorkflowError {
	clone := *e
	clone.Retryable = retryable

	return &clone
}

// Category returns the taxonomy category of the error's code.
func (e *WorkflowError) Category() ErrorCategory {
	return e.Code.Category()
}

// Severity returns the notification severity of the error's code.
func (e *WorkflowError) Severity() Severity {
	return e.Code.DefaultSeverity()
}

// MarshalJSON adds the stable wire code and flattens the cause chain into a
// string so errors stay serializable for audit details and API responses.
func (e *WorkflowError) MarshalJSON() ([]byte, error) {
	type alias WorkflowError

	payload := struct {
		*alias
		WireCode string `json:"wire_code"`
		Cause    string `json:"cause,omitempty"`
	}{
		alias:    (*alias)(e),
		WireCode: e.Code.WireCode(),
	}

	if e.Cause != nil {
		payload.Cause = e.Cause.Error()
	}

	return json.Marshal(payload)
}

// AsWorkflowError extracts a *WorkflowError from an error chain. It returns
// nil when the chain contains none.
func AsWorkflowError(err error) *WorkflowError {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr
	}

	return nil
}
