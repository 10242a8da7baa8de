// Package notification turns recovery outcomes into events on the bus.
// Delivery is fire-and-forget: a notification failure is logged and audited
// as an incident but never blocks or fails the operation that raised it.
package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/medwise/remedion/pkg/eventbus"
	"github.com/medwise/remedion/pkg/events"
	"github.com/medwise/remedion/pkg/models"
)

// AdminChannel is the digest channel administrator notices buffer into.
const AdminChannel = "administrators"

// Notifier is the outbound notification surface of the recovery engine.
// Implementations must not block the caller on delivery.
type Notifier interface {
	NotifyRecoveryStarted(ctx context.Context, workflowError *models.WorkflowError, plan *models.RecoveryPlan)
	NotifyRecoveryFinished(ctx context.Context, instanceID, correlationID string, result *models.RecoveryResult)
	NotifyRollback(ctx context.Context, correlationID string, result *models.RollbackResult)
	NotifyDeadlockResolution(ctx context.Context, correlationID string, deadlock *models.Deadlock, victimInstanceID string)
	NotifyAdministrators(ctx context.Context, workflowError *models.WorkflowError, severity models.Severity, immediate bool)
	EscalateToAdministrators(ctx context.Context, workflowError *models.WorkflowError, recoveryErr error)
}

// IncidentAuditor records notification delivery failures in the audit trail.
// Implemented by the audit logger.
type IncidentAuditor interface {
	LogIncident(workflowError *models.WorkflowError)
}

// BusNotifier publishes notifications as typed events. Notices below the
// immediate severity threshold buffer into a per-channel digest instead of
// paging an administrator per error.
type BusNotifier struct {
	publisher eventbus.EventPublisher
	auditor   IncidentAuditor
	logger    *slog.Logger

	threshold models.Severity
	digests   *digestBuffer

	wg sync.WaitGroup
}

// Option adjusts BusNotifier construction.
type Option func(*BusNotifier)

// WithImmediateThreshold sets the severity at which administrator notices
// bypass the digest. Default is SeverityHigh.
func WithImmediateThreshold(threshold models.Severity) Option {
	return func(n *BusNotifier) {
		n.threshold = threshold
	}
}

// NewBusNotifier wires the notifier. The auditor may be nil; delivery
// failures are then only logged.
func NewBusNotifier(publisher eventbus.EventPublisher, auditor IncidentAuditor, logger *slog.Logger, opts ...Option) *BusNotifier {
	n := &BusNotifier{
		publisher: publisher,
		auditor:   auditor,
		logger:    logger.With("module", "notification"),
		threshold: models.SeverityHigh,
		digests:   newDigestBuffer(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// BindAuditor attaches the incident auditor after construction. The audit
// logger escalates through the notifier, so the two cannot be built in one
// pass; assembly creates the notifier first and binds the auditor here.
// Must be called before the notifier handles traffic.
func (n *BusNotifier) BindAuditor(auditor IncidentAuditor) {
	n.auditor = auditor
}

// NotifyRecoveryStarted announces that a recovery plan is about to execute.
func (n *BusNotifier) NotifyRecoveryStarted(ctx context.Context, workflowError *models.WorkflowError, plan *models.RecoveryPlan) {
	event := events.NewRecoveryStarted(workflowError, plan)
	n.publish(ctx, workflowError.Context.WorkflowInstanceID, event,
		workflowError.Context.CorrelationID, workflowError.Context.WorkflowInstanceID)
}

// NotifyRecoveryFinished publishes the outcome of a finished recovery,
// succeeded or failed.
func (n *BusNotifier) NotifyRecoveryFinished(ctx context.Context, instanceID, correlationID string, result *models.RecoveryResult) {
	var event eventbus.Event
	if result.Success {
		event = events.NewRecoverySucceeded(instanceID, correlationID, result)
	} else {
		event = events.NewRecoveryFailed(instanceID, correlationID, result)
	}

	n.publish(ctx, instanceID, event, correlationID, instanceID)
}

// NotifyRollback publishes the outcome of a completed rollback.
func (n *BusNotifier) NotifyRollback(ctx context.Context, correlationID string, result *models.RollbackResult) {
	event := events.NewRollbackPerformed(correlationID, result)
	n.publish(ctx, result.InstanceID, event, correlationID, result.InstanceID)
}

// NotifyDeadlockResolution publishes how a detected cycle was broken.
func (n *BusNotifier) NotifyDeadlockResolution(ctx context.Context, correlationID string, deadlock *models.Deadlock, victimInstanceID string) {
	event := events.NewDeadlockResolved(deadlock, victimInstanceID)
	event.CorrelationID = correlationID

	n.publish(ctx, deadlock.ID, event, correlationID, victimInstanceID)
}

// NotifyAdministrators pages administrators about an error. Notices below the
// immediate threshold buffer into the administrator digest unless the caller
// forces immediate delivery.
func (n *BusNotifier) NotifyAdministrators(ctx context.Context, workflowError *models.WorkflowError, severity models.Severity, immediate bool) {
	if !immediate && severity.Rank() < n.threshold.Rank() {
		n.digests.add(AdminChannel, events.DigestNotice{
			Code:       workflowError.Code,
			WireCode:   workflowError.Code.WireCode(),
			Severity:   severity,
			Message:    workflowError.Message,
			InstanceID: workflowError.Context.WorkflowInstanceID,
			RaisedAt:   workflowError.Context.Timestamp,
		})

		n.logger.DebugContext(ctx, "administrator notice deferred to digest",
			"code", workflowError.Code,
			"severity", severity,
			"correlation_id", workflowError.Context.CorrelationID)

		return
	}

	event := events.NewWorkflowErrorRaised(workflowError)
	n.publish(ctx, workflowError.Context.WorkflowInstanceID, event,
		workflowError.Context.CorrelationID, workflowError.Context.WorkflowInstanceID)
}

// EscalateToAdministrators publishes an escalation. Escalations are always
// immediate, whatever their severity.
func (n *BusNotifier) EscalateToAdministrators(ctx context.Context, workflowError *models.WorkflowError, recoveryErr error) {
	event := events.NewEscalationRaised(workflowError, recoveryErr)
	n.publish(ctx, workflowError.Context.WorkflowInstanceID, event,
		workflowError.Context.CorrelationID, workflowError.Context.WorkflowInstanceID)
}

// FlushDigest publishes and clears the pending digest for a channel. Empty
// windows publish nothing.
func (n *BusNotifier) FlushDigest(ctx context.Context, channel string) {
	notices, windowStart, windowEnd, ok := n.digests.drain(channel)
	if !ok {
		return
	}

	n.logger.InfoContext(ctx, "flushing notification digest",
		"channel", channel,
		"notices", len(notices))

	event := events.NewNotificationDigest(channel, notices, windowStart, windowEnd)
	n.publish(ctx, channel, event, "", "")
}

// FlushAll publishes every pending digest. Called on shutdown so buffered
// notices are not lost.
func (n *BusNotifier) FlushAll(ctx context.Context) {
	for _, channel := range n.digests.channels() {
		n.FlushDigest(ctx, channel)
	}
}

// PendingNotices reports how many notices are buffered for a channel.
func (n *BusNotifier) PendingNotices(channel string) int {
	return n.digests.pending(channel)
}

// Wait blocks until every in-flight delivery has finished. Tests and
// shutdown paths use it; production callers never need to.
func (n *BusNotifier) Wait() {
	n.wg.Wait()
}

// Close flushes pending digests and waits for in-flight deliveries.
func (n *BusNotifier) Close() {
	n.FlushAll(context.Background())
	n.Wait()
}

// publish delivers the event on a detached context so cancellation of the
// triggering operation cannot lose the notification.
func (n *BusNotifier) publish(ctx context.Context, key string, event eventbus.Event, correlationID, instanceID string) {
	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		err := n.publisher.Publish(context.Background(), key, event)
		if err == nil {
			return
		}

		n.logger.ErrorContext(ctx, "notification delivery failed",
			"event_type", event.GetType(),
			"correlation_id", correlationID,
			"error", err)

		n.recordDeliveryFailure(event, correlationID, instanceID, err)
	}()
}

// recordDeliveryFailure audits an undelivered notification. Escalations about
// audit write failures are only logged: auditing those again would let audit
// and notification failures feed each other forever.
func (n *BusNotifier) recordDeliveryFailure(event eventbus.Event, correlationID, instanceID string, cause error) {
	if n.auditor == nil {
		return
	}

	if escalation, ok := event.(events.EscalationRaised); ok && escalation.Code == models.ErrCodeAuditLogWriteFailed {
		return
	}

	ectx := models.NewErrorContext(nil)
	ectx.CorrelationID = correlationID
	ectx.WorkflowInstanceID = instanceID

	incident := models.NewWorkflowError(
		models.ErrCodeNotificationDeliveryFailed,
		"failed to deliver "+string(event.GetType())+" notification: "+cause.Error(),
		ectx,
	).WithCause(cause)

	n.auditor.LogIncident(incident)
}
