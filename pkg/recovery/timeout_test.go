package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medwise/remedion/pkg/models"
)

func TestHandler_TimeoutRetriesThenEscalates(t *testing.T) {
	h := newRecoveryHarness(t)

	first := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpStateTransition, 30*time.Second)
	require.Equal(t, TimeoutRetry, first.Action)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, 3, first.MaxRetries)
	assert.Equal(t, 2, first.BackoffMultiplier)
	assert.Equal(t, time.Second, first.Delay)

	second := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpStateTransition, 30*time.Second)
	require.Equal(t, TimeoutRetry, second.Action)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, 2*time.Second, second.Delay)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)

	third := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpStateTransition, 30*time.Second)
	require.Equal(t, TimeoutRetry, third.Action)
	assert.Equal(t, 3, third.Attempt)
	assert.Equal(t, 4*time.Second, third.Delay)

	exhausted := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpStateTransition, 30*time.Second)
	require.Equal(t, TimeoutEscalate, exhausted.Action)
	assert.Equal(t, first.CorrelationID, exhausted.CorrelationID)
	assert.Equal(t, "retry budget exhausted", exhausted.Reason)

	assert.Equal(t, 1, h.notifier.escalationCount())
	require.Len(t, h.handler.ActiveAlerts(), 1)

	kinds := h.trailKinds(t, first.CorrelationID)
	assert.Equal(t, []models.AuditEntryKind{
		models.AuditTimeoutRetry,
		models.AuditTimeoutRetry,
		models.AuditTimeoutRetry,
		models.AuditTimeoutEscalated,
	}, kinds)

	// Budgets are per instance and operation.
	other := h.handler.HandleWorkflowTimeout(t.Context(), "wf-2", OpStateTransition, 30*time.Second)
	require.Equal(t, TimeoutRetry, other.Action)
	assert.Equal(t, 1, other.Attempt)
	assert.NotEqual(t, first.CorrelationID, other.CorrelationID)
}

func TestHandler_TimeoutDelayScalesWithOperationTimeout(t *testing.T) {
	h := newRecoveryHarness(t)

	first := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpContentValidation, 5*time.Second)
	require.Equal(t, TimeoutRetry, first.Action)
	assert.Equal(t, 500*time.Millisecond, first.Delay)

	second := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpContentValidation, 5*time.Second)
	assert.Equal(t, time.Second, second.Delay)

	third := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpContentValidation, 5*time.Second)
	assert.Equal(t, 2*time.Second, third.Delay)
}

func TestHandler_NonRetryableOperationEscalatesImmediately(t *testing.T) {
	h := newRecoveryHarness(t)

	decision := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", "content_publish", 10*time.Second)

	require.Equal(t, TimeoutEscalate, decision.Action)
	assert.Zero(t, decision.Attempt)
	assert.Contains(t, decision.Reason, "not safe to retry")

	assert.Equal(t, 1, h.notifier.escalationCount())
	require.Len(t, h.handler.ActiveAlerts(), 1)

	kinds := h.trailKinds(t, decision.CorrelationID)
	assert.Equal(t, []models.AuditEntryKind{models.AuditTimeoutEscalated}, kinds)
}

func TestHandler_ResetTimeoutBudgetStartsFresh(t *testing.T) {
	h := newRecoveryHarness(t)

	first := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpNotificationSend, 10*time.Second)
	require.Equal(t, 1, first.Attempt)

	second := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpNotificationSend, 10*time.Second)
	require.Equal(t, 2, second.Attempt)

	h.handler.ResetTimeoutBudget("wf-1", OpNotificationSend)

	fresh := h.handler.HandleWorkflowTimeout(t.Context(), "wf-1", OpNotificationSend, 10*time.Second)
	assert.Equal(t, 1, fresh.Attempt)
	assert.NotEqual(t, first.CorrelationID, fresh.CorrelationID)
}
