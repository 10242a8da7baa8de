package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medwise/remedion/pkg/models"
)

// Operations eligible for automatic retry after a timeout. Everything else
// escalates straight to an administrator because repeating it blind could
// double-apply side effects.
const (
	OpStateTransition   = "state_transition"
	OpContentValidation = "content_validation"
	OpNotificationSend  = "notification_send"
)

const (
	timeoutMaxRetries    = 3
	timeoutBackoffFactor = 2
	timeoutMaxBaseDelay  = time.Second
)

// TimeoutAction says what the caller of a timed-out operation does next.
type TimeoutAction string

const (
	TimeoutRetry    TimeoutAction = "retry"
	TimeoutEscalate TimeoutAction = "escalate"
)

// TimeoutDecision is the verdict for one observed timeout.
type TimeoutDecision struct {
	Action            TimeoutAction `json:"action"`
	Operation         string        `json:"operation"`
	InstanceID        string        `json:"instance_id"`
	CorrelationID     string        `json:"correlation_id"`
	Attempt           int           `json:"attempt,omitempty"`
	MaxRetries        int           `json:"max_retries"`
	Delay             time.Duration `json:"delay,omitempty"`
	BackoffMultiplier int           `json:"backoff_multiplier"`
	Reason            string        `json:"reason,omitempty"`
}

// timeoutBudget tracks the retries already granted for one (instance,
// operation) pair. The correlation id groups its audit entries into one trail.
type timeoutBudget struct {
	correlationID string
	attempts      int
}

// HandleWorkflowTimeout decides whether a timed-out operation is retried or
// escalated. Each timeout burns one attempt of the per-(instance, operation)
// budget; the delay doubles per attempt from a base of a tenth of the
// operation timeout, capped at one second.
func (h *Handler) HandleWorkflowTimeout(ctx context.Context, instanceID, operation string, timeout time.Duration) *TimeoutDecision {
	if !retryableOperation(operation) {
		return h.escalateTimeout(ctx, instanceID, operation, timeout, "",
			"operation "+operation+" is not safe to retry")
	}

	h.mu.Lock()

	key := instanceID + "/" + operation

	budget, tracked := h.timeouts[key]
	if !tracked {
		budget = &timeoutBudget{correlationID: uuid.Must(uuid.NewV7()).String()}
		h.timeouts[key] = budget
	}

	budget.attempts++
	attempt := budget.attempts
	correlationID := budget.correlationID

	if attempt > timeoutMaxRetries {
		delete(h.timeouts, key)
	}

	h.mu.Unlock()

	if attempt > timeoutMaxRetries {
		return h.escalateTimeout(ctx, instanceID, operation, timeout, correlationID,
			"retry budget exhausted")
	}

	delay := retryDelay(timeout, attempt)

	h.auditor.LogTimeoutRetry(correlationID, instanceID, operation, attempt, delay)

	h.logger.InfoContext(ctx, "retrying timed out operation",
		"instance_id", instanceID,
		"operation", operation,
		"attempt", attempt,
		"delay", delay)

	return &TimeoutDecision{
		Action:            TimeoutRetry,
		Operation:         operation,
		InstanceID:        instanceID,
		CorrelationID:     correlationID,
		Attempt:           attempt,
		MaxRetries:        timeoutMaxRetries,
		Delay:             delay,
		BackoffMultiplier: timeoutBackoffFactor,
	}
}

// ResetTimeoutBudget forgets the retry attempts for an operation. Callers run
// it when the operation finally succeeds so the next timeout starts fresh.
func (h *Handler) ResetTimeoutBudget(instanceID, operation string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.timeouts, instanceID+"/"+operation)
}

func (h *Handler) escalateTimeout(ctx context.Context, instanceID, operation string, timeout time.Duration, correlationID, reason string) *TimeoutDecision {
	ectx := models.NewErrorContext(nil)
	ectx.WorkflowInstanceID = instanceID
	ectx.Metadata = map[string]any{
		"operation":  operation,
		"timeout_ms": timeout.Milliseconds(),
	}

	if correlationID != "" {
		ectx.CorrelationID = correlationID
	}

	workflowError := models.NewWorkflowError(
		models.ErrCodeWorkflowExecutionTimeout,
		"operation "+operation+" timed out after "+timeout.String(),
		ectx,
	)

	h.auditor.LogTimeoutEscalated(workflowError.Context.CorrelationID, instanceID, operation, timeout)
	h.notifier.EscalateToAdministrators(ctx, workflowError, errors.New(reason))
	h.raiseAlert(workflowError, reason)

	h.logger.WarnContext(ctx, "timed out operation escalated",
		"instance_id", instanceID,
		"operation", operation,
		"timeout", timeout,
		"reason", reason)

	return &TimeoutDecision{
		Action:            TimeoutEscalate,
		Operation:         operation,
		InstanceID:        instanceID,
		CorrelationID:     workflowError.Context.CorrelationID,
		MaxRetries:        timeoutMaxRetries,
		BackoffMultiplier: timeoutBackoffFactor,
		Reason:            reason,
	}
}

func retryableOperation(operation string) bool {
	switch operation {
	case OpStateTransition, OpContentValidation, OpNotificationSend:
		return true
	default:
		return false
	}
}

// retryDelay doubles per attempt from a base of a tenth of the operation
// timeout, capped at one second.
func retryDelay(timeout time.Duration, attempt int) time.Duration {
	base := timeout / 10
	if base > timeoutMaxBaseDelay {
		base = timeoutMaxBaseDelay
	}

	delay := base
	for range attempt - 1 {
		delay *= timeoutBackoffFactor
	}

	return delay
}
