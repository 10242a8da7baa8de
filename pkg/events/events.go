// Package events defines event types and structures for error and recovery
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/medwise/remedion/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "remedion.events" // Topic for error/recovery lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Error and recovery lifecycle events.
	WorkflowErrorRaisedEvent EventType = "workflow.error.raised"
	RecoveryStartedEvent     EventType = "recovery.started"
	RecoverySucceededEvent   EventType = "recovery.succeeded"
	RecoveryFailedEvent      EventType = "recovery.failed"
	RollbackPerformedEvent   EventType = "rollback.performed"
	EscalationRaisedEvent    EventType = "escalation.raised"

	// Deadlock events.
	DeadlockDetectedEvent EventType = "deadlock.detected"
	DeadlockResolvedEvent EventType = "deadlock.resolved"

	// Digest events.
	NotificationDigestEvent EventType = "notification.digest"
)

type BaseEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	InstanceID    string         `json:"instance_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type WorkflowErrorRaised struct {
	BaseEvent

	Code      models.ErrorCode `json:"code"`
	WireCode  string           `json:"wire_code"`
	Message   string           `json:"message"`
	Severity  models.Severity  `json:"severity"`
	Retryable bool             `json:"retryable"`
}

func (w WorkflowErrorRaised) GetType() EventType {
	return WorkflowErrorRaisedEvent
}

// NewWorkflowErrorRaised builds the notification payload for a raised error.
func NewWorkflowErrorRaised(workflowError *models.WorkflowError) WorkflowErrorRaised {
	base := NewBaseEvent(WorkflowErrorRaisedEvent, workflowError.Context.WorkflowInstanceID)
	base.CorrelationID = workflowError.Context.CorrelationID

	return WorkflowErrorRaised{
		BaseEvent: base,
		Code:      workflowError.Code,
		WireCode:  workflowError.Code.WireCode(),
		Message:   workflowError.Message,
		Severity:  workflowError.Severity(),
		Retryable: workflowError.Retryable,
	}
}

type RecoveryStarted struct {
	BaseEvent

	Code      models.ErrorCode        `json:"code"`
	Strategy  models.RecoveryStrategy `json:"strategy"`
	StepCount int                     `json:"step_count"`
	RiskLevel models.RiskLevel        `json:"risk_level"`
}

func (r RecoveryStarted) GetType() EventType {
	return RecoveryStartedEvent
}

func NewRecoveryStarted(workflowError *models.WorkflowError, plan *models.RecoveryPlan) RecoveryStarted {
	base := NewBaseEvent(RecoveryStartedEvent, workflowError.Context.WorkflowInstanceID)
	base.CorrelationID = workflowError.Context.CorrelationID

	return RecoveryStarted{
		BaseEvent: base,
		Code:      workflowError.Code,
		Strategy:  plan.Strategy,
		StepCount: len(plan.Steps),
		RiskLevel: plan.RiskLevel,
	}
}

type RecoverySucceeded struct {
	BaseEvent

	Strategy      models.RecoveryStrategy `json:"strategy"`
	ExecutedSteps []string                `json:"executed_steps"`
	DurationMs    int64                   `json:"duration_ms"`
}

func (r RecoverySucceeded) GetType() EventType {
	return RecoverySucceededEvent
}

func NewRecoverySucceeded(instanceID, correlationID string, result *models.RecoveryResult) RecoverySucceeded {
	base := NewBaseEvent(RecoverySucceededEvent, instanceID)
	base.CorrelationID = correlationID

	return RecoverySucceeded{
		BaseEvent:     base,
		Strategy:      result.Strategy,
		ExecutedSteps: result.ExecutedSteps,
		DurationMs:    result.Duration.Milliseconds(),
	}
}

type RecoveryFailed struct {
	BaseEvent

	Strategy             models.RecoveryStrategy `json:"strategy"`
	Error                string                  `json:"error"`
	RequiresIntervention bool                    `json:"requires_intervention"`
	DurationMs           int64                   `json:"duration_ms"`
}

func (r RecoveryFailed) GetType() EventType {
	return RecoveryFailedEvent
}

func NewRecoveryFailed(instanceID, correlationID string, result *models.RecoveryResult) RecoveryFailed {
	base := NewBaseEvent(RecoveryFailedEvent, instanceID)
	base.CorrelationID = correlationID

	event := RecoveryFailed{
		BaseEvent:            base,
		Strategy:             result.Strategy,
		RequiresIntervention: result.RequiresIntervention,
		DurationMs:           result.Duration.Milliseconds(),
	}

	if result.Err != nil {
		event.Error = result.Err.Error()
	}

	return event
}

type RollbackPerformed struct {
	BaseEvent

	RestoredState models.WorkflowState `json:"restored_state"`
	RevertedState models.WorkflowState `json:"reverted_state,omitempty"`
	PerformedBy   string               `json:"performed_by"`
	Reason        string               `json:"reason"`
	NoOp          bool                 `json:"no_op"`
}

func (r RollbackPerformed) GetType() EventType {
	return RollbackPerformedEvent
}

func NewRollbackPerformed(correlationID string, result *models.RollbackResult) RollbackPerformed {
	base := NewBaseEvent(RollbackPerformedEvent, result.InstanceID)
	base.CorrelationID = correlationID

	return RollbackPerformed{
		BaseEvent:     base,
		RestoredState: result.RestoredState,
		RevertedState: result.RevertedState,
		PerformedBy:   result.PerformedBy,
		Reason:        result.Reason,
		NoOp:          result.NoOp,
	}
}

type EscalationRaised struct {
	BaseEvent

	Code          models.ErrorCode `json:"code"`
	WireCode      string           `json:"wire_code"`
	Severity      models.Severity  `json:"severity"`
	Message       string           `json:"message"`
	RecoveryError string           `json:"recovery_error,omitempty"`
}

func (e EscalationRaised) GetType() EventType {
	return EscalationRaisedEvent
}

func NewEscalationRaised(workflowError *models.WorkflowError, recoveryErr error) EscalationRaised {
	base := NewBaseEvent(EscalationRaisedEvent, workflowError.Context.WorkflowInstanceID)
	base.CorrelationID = workflowError.Context.CorrelationID

	event := EscalationRaised{
		BaseEvent: base,
		Code:      workflowError.Code,
		WireCode:  workflowError.Code.WireCode(),
		Severity:  workflowError.Severity(),
		Message:   workflowError.Message,
	}

	if recoveryErr != nil {
		event.RecoveryError = recoveryErr.Error()
	}

	return event
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
		Metadata:   make(map[string]any),
	}
}
