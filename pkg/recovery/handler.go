package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medwise/remedion/pkg/audit"
	"github.com/medwise/remedion/pkg/deadlock"
	"github.com/medwise/remedion/pkg/lock"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/notification"
	"github.com/medwise/remedion/pkg/persistence"
)

const (
	// recoveryLockTTL bounds how long a crashed recovery can keep an
	// instance locked against further recoveries.
	recoveryLockTTL = 5 * time.Minute

	// historyLimit caps how many past errors per instance feed the recovery
	// context of the next one.
	historyLimit = 10

	// recoveryActor names the engine in audit entries and transition
	// records it performs itself.
	recoveryActor = "recovery-engine"
)

// Alert is an unresolved escalation waiting for an administrator.
type Alert struct {
	CorrelationID string           `json:"correlation_id"`
	InstanceID    string           `json:"instance_id,omitempty"`
	Code          models.ErrorCode `json:"code"`
	WireCode      string           `json:"wire_code"`
	Message       string           `json:"message"`
	RaisedAt      time.Time        `json:"raised_at"`
}

// Handler owns the resolution of workflow errors. Once an error is handed
// over, the handler never re-raises it: the outcome comes back as a
// RecoveryResult, failed recoveries included. The error return is reserved
// for caller misuse and for errors rejected because their instance is
// already mid-recovery.
type Handler struct {
	planner   *Planner
	executor  *Executor
	auditor   *audit.Logger
	notifier  notification.Notifier
	detector  *deadlock.Detector
	instances persistence.InstanceRepository
	locker    lock.InstanceLocker
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	active   map[string]string   // instance id -> correlation id of the running recovery
	history  map[string][]string // instance id -> recent error descriptions
	alerts   map[string]Alert    // correlation id -> unresolved escalation
	timeouts map[string]*timeoutBudget
}

// NewHandler wires the error handler. All collaborators are required.
func NewHandler(
	planner *Planner,
	executor *Executor,
	auditor *audit.Logger,
	notifier notification.Notifier,
	detector *deadlock.Detector,
	instances persistence.InstanceRepository,
	locker lock.InstanceLocker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		planner:   planner,
		executor:  executor,
		auditor:   auditor,
		notifier:  notifier,
		detector:  detector,
		instances: instances,
		locker:    locker,
		logger:    logger.With("module", "recovery"),
		now:       time.Now,
		active:    make(map[string]string),
		history:   make(map[string][]string),
		alerts:    make(map[string]Alert),
		timeouts:  make(map[string]*timeoutBudget),
	}
}

// HandleWorkflowError runs the recovery pipeline for one error occurrence:
// audit the raw error, enrich its context, serialize on the instance, check
// for deadlocks, then plan and execute. Instance may be nil for errors raised
// outside any instance.
func (h *Handler) HandleWorkflowError(ctx context.Context, workflowError *models.WorkflowError, instance *models.WorkflowInstance) (*models.RecoveryResult, error) {
	if workflowError == nil {
		return nil, errors.New("cannot recover from a nil workflow error")
	}

	started := h.now()

	// The raw error is audited before anything else so the trail survives
	// whatever recovery does next.
	h.auditor.LogWorkflowError(workflowError)

	workflowError = h.buildRecoveryContext(ctx, workflowError, instance)
	instanceID := workflowError.Context.WorkflowInstanceID
	correlationID := workflowError.Context.CorrelationID

	h.logger.InfoContext(ctx, "handling workflow error",
		"code", workflowError.Code,
		"wire_code", workflowError.Code.WireCode(),
		"instance_id", instanceID,
		"correlation_id", correlationID)

	if instanceID != "" {
		release, acquired, err := h.locker.TryAcquire(ctx, instanceID, recoveryLockTTL)
		if err != nil {
			return h.abortOnLockFailure(ctx, workflowError, started, err), nil
		}

		if !acquired {
			return nil, h.rejectConcurrentRecovery(instanceID, workflowError)
		}

		defer release(ctx)

		h.setActive(instanceID, correlationID)
		defer h.clearActive(instanceID)
	}

	h.recordHistory(instanceID, workflowError)

	if instanceID != "" {
		cycle, err := h.detector.CheckInstance(ctx, instanceID)
		if err != nil {
			h.logger.WarnContext(ctx, "deadlock check failed, continuing with recovery",
				"instance_id", instanceID,
				"error", err)
		}

		if cycle != nil {
			h.auditor.LogDeadlockDetected(correlationID, cycle)

			result := h.resolveDeadlock(ctx, workflowError, cycle)
			result.Duration = h.now().Sub(started)
			h.finishRecovery(ctx, workflowError, result)

			return result, nil
		}
	}

	plan := h.planner.CreatePlan(workflowError)

	h.auditor.LogRecoveryAttempt(workflowError, plan)
	h.notifier.NotifyRecoveryStarted(ctx, workflowError, plan)

	executedSteps, failure := h.executor.Execute(ctx, workflowError, plan)

	result := &models.RecoveryResult{
		Strategy:      plan.Strategy,
		ExecutedSteps: executedSteps,
		Duration:      h.now().Sub(started),
	}

	if failure != nil {
		result.Message = failure.Message
		result.RequiresIntervention = true
		result.Err = failure

		h.auditor.LogEscalation(workflowError, failure)
		h.notifier.EscalateToAdministrators(ctx, workflowError, failure)
		h.raiseAlert(workflowError, failure.Message)
		h.finishRecovery(ctx, workflowError, result)

		h.logger.ErrorContext(ctx, "recovery failed, escalated to administrators",
			"strategy", plan.Strategy,
			"correlation_id", correlationID,
			"error", failure)

		return result, nil
	}

	result.Success = true
	result.Message = successMessage(plan.Strategy)

	// Manual and escalate strategies succeed by handing the problem to a
	// human; the instance still needs attention.
	if plan.Strategy == models.StrategyManual || plan.Strategy == models.StrategyEscalate {
		result.RequiresIntervention = true
		h.raiseAlert(workflowError, result.Message)
	}

	h.finishRecovery(ctx, workflowError, result)

	h.logger.InfoContext(ctx, "recovery completed",
		"strategy", plan.Strategy,
		"executed_steps", len(executedSteps),
		"duration", result.Duration,
		"correlation_id", correlationID)

	return result, nil
}

// ResolveDeadlock handles a cycle found by a background scan rather than by
// an error report. It mints the deadlock error itself and then follows the
// same resolution path HandleWorkflowError takes.
func (h *Handler) ResolveDeadlock(ctx context.Context, cycle *models.Deadlock) *models.RecoveryResult {
	started := h.now()

	ectx := models.NewErrorContext(nil)
	if len(cycle.InvolvedInstances) > 0 {
		ectx.WorkflowInstanceID = cycle.InvolvedInstances[0]
	}

	workflowError := models.NewWorkflowError(
		models.ErrCodeWorkflowDeadlockDetected,
		"deadlock detected: "+cycle.CycleDescription,
		ectx,
	)

	h.auditor.LogWorkflowError(workflowError)
	h.auditor.LogDeadlockDetected(workflowError.Context.CorrelationID, cycle)

	result := h.resolveDeadlock(ctx, workflowError, cycle)
	result.Duration = h.now().Sub(started)
	h.finishRecovery(ctx, workflowError, result)

	return result
}

// resolveDeadlock applies the cycle's resolution strategy. Timeout
// resolutions succeed by doing nothing: the pending waits expire on their
// own. Priority resolutions abort the lowest-priority instance. Manual and
// abort resolutions only flag the cycle for an administrator.
func (h *Handler) resolveDeadlock(ctx context.Context, workflowError *models.WorkflowError, cycle *models.Deadlock) *models.RecoveryResult {
	correlationID := workflowError.Context.CorrelationID

	result := &models.RecoveryResult{
		Strategy: models.StrategyEscalate,
	}

	switch cycle.ResolutionStrategy {
	case models.ResolutionTimeout:
		result.Success = true
		result.Message = "deadlock clears when the pending waits expire; no action taken"

		h.auditor.LogDeadlockResolution(correlationID, cycle, "")
		h.notifier.NotifyDeadlockResolution(ctx, correlationID, cycle, "")

	case models.ResolutionPriority:
		victimID, err := h.abortLowestPriority(ctx, cycle)
		if err != nil {
			result.Message = "deadlock priority resolution failed: " + err.Error()
			result.RequiresIntervention = true

			h.auditor.LogDeadlockFailure(correlationID, cycle, err)
			h.notifier.EscalateToAdministrators(ctx, workflowError, err)
			h.raiseAlert(workflowError, result.Message)

			break
		}

		result.Success = true
		result.Message = fmt.Sprintf("aborted lowest-priority instance %s to break the cycle", victimID)

		h.auditor.LogDeadlockResolution(correlationID, cycle, victimID)
		h.notifier.NotifyDeadlockResolution(ctx, correlationID, cycle, victimID)

	default:
		// Manual and abort cycles are too risky to break automatically.
		interventionErr := fmt.Errorf("deadlock across %d instances requires manual resolution", len(cycle.InvolvedInstances))

		result.Message = interventionErr.Error()
		result.RequiresIntervention = true

		h.auditor.LogEscalation(workflowError, interventionErr)
		h.notifier.EscalateToAdministrators(ctx, workflowError, interventionErr)
		h.raiseAlert(workflowError, result.Message)
	}

	return result
}

// abortLowestPriority picks the victim by content-type rank, breaking ties by
// instance id so resolution stays deterministic, then locks the victim's
// content and drops its waits from the graph.
func (h *Handler) abortLowestPriority(ctx context.Context, cycle *models.Deadlock) (string, error) {
	victimID := ""
	victimRank := 0

	for _, id := range cycle.InvolvedInstances {
		instance, err := h.instances.GetByID(ctx, id)
		if err != nil {
			return "", err
		}

		if instance == nil {
			continue
		}

		rank := instance.ContentType.PriorityRank()
		if victimID == "" || rank < victimRank || (rank == victimRank && id < victimID) {
			victimID = id
			victimRank = rank
		}
	}

	if victimID == "" {
		return "", errors.New("no instance in the cycle could be loaded")
	}

	err := h.instances.SetContentLock(ctx, victimID, true, "aborted as deadlock victim")
	if err != nil {
		return "", err
	}

	h.detector.Graph().Remove(victimID)

	return victimID, nil
}

// finishRecovery writes the terminal audit entry and publishes the outcome.
func (h *Handler) finishRecovery(ctx context.Context, workflowError *models.WorkflowError, result *models.RecoveryResult) {
	if result.Success {
		h.auditor.LogRecoverySuccess(workflowError, result)
	} else {
		h.auditor.LogRecoveryFailure(workflowError, result)
	}

	h.notifier.NotifyRecoveryFinished(ctx, workflowError.Context.WorkflowInstanceID,
		workflowError.Context.CorrelationID, result)
}

// abortOnLockFailure handles the locker itself failing, which means exclusive
// recovery cannot be guaranteed. Nothing is executed; the error escalates.
func (h *Handler) abortOnLockFailure(ctx context.Context, workflowError *models.WorkflowError, started time.Time, lockErr error) *models.RecoveryResult {
	failure := models.NewWorkflowError(
		models.ErrCodeWorkflowRecoveryFailed,
		"could not acquire the recovery lock: "+lockErr.Error(),
		workflowError.Context,
	).WithCause(lockErr)

	result := &models.RecoveryResult{
		Strategy:             models.StrategyEscalate,
		Message:              failure.Message,
		RequiresIntervention: true,
		Err:                  failure,
		Duration:             h.now().Sub(started),
	}

	h.auditor.LogEscalation(workflowError, failure)
	h.notifier.EscalateToAdministrators(ctx, workflowError, failure)
	h.raiseAlert(workflowError, failure.Message)
	h.finishRecovery(ctx, workflowError, result)

	return result
}

// rejectConcurrentRecovery refuses an error whose instance is already
// mid-recovery. Interleaving two recoveries against one instance could stack
// rollbacks, so the later error is returned to the caller to resubmit.
func (h *Handler) rejectConcurrentRecovery(instanceID string, workflowError *models.WorkflowError) *models.WorkflowError {
	h.mu.Lock()
	activeCorrelation := h.active[instanceID]
	h.mu.Unlock()

	ectx := workflowError.Context
	if activeCorrelation != "" {
		ectx.Metadata = map[string]any{"active_recovery": activeCorrelation}
	}

	rejection := models.NewWorkflowError(
		models.ErrCodeConcurrentStateModified,
		fmt.Sprintf("instance %s is already mid-recovery", instanceID),
		ectx,
	)

	h.auditor.LogWorkflowError(rejection)

	h.logger.Warn("rejected error while instance is mid-recovery",
		"instance_id", instanceID,
		"correlation_id", workflowError.Context.CorrelationID,
		"active_recovery", activeCorrelation)

	return rejection
}

// buildRecoveryContext returns a copy of the error enriched with everything
// recovery later wants to know: instance identity, the errors previously
// handled for the same instance and a coarse load snapshot.
func (h *Handler) buildRecoveryContext(ctx context.Context, workflowError *models.WorkflowError, instance *models.WorkflowInstance) *models.WorkflowError {
	clone := *workflowError
	ectx := &clone.Context

	if instance != nil {
		if ectx.WorkflowInstanceID == "" {
			ectx.WorkflowInstanceID = instance.ID
		}

		if ectx.ContentID == "" {
			ectx.ContentID = instance.ContentID
		}

		if ectx.ContentType == "" {
			ectx.ContentType = instance.ContentType
		}

		if ectx.CurrentState == "" {
			ectx.CurrentState = instance.CurrentState
		}
	}

	ectx.PreviousErrors = h.previousErrors(ectx.WorkflowInstanceID)

	// In-flight recoveries are the load this engine itself generates; the
	// audit queue depth shows how far behind the trail writer is.
	ectx.SystemLoad = float64(h.activeCount())

	meta := make(map[string]any, len(ectx.Metadata)+1)
	for k, v := range ectx.Metadata {
		meta[k] = v
	}

	meta["audit_queue_depth"] = h.auditor.QueueDepth()
	ectx.Metadata = meta

	if instances, err := h.instances.List(ctx); err == nil {
		ectx.ActiveWorkflows = len(instances)
	}

	return &clone
}

func successMessage(strategy models.RecoveryStrategy) string {
	switch strategy {
	case models.StrategyRollback:
		return "state restored from snapshot"
	case models.StrategyRetry:
		return "operation validates cleanly again"
	case models.StrategyManual:
		return "administrator paged for manual intervention"
	case models.StrategyEscalate:
		return "content locked and administrators notified"
	default:
		return "no recovery action required"
	}
}

func (h *Handler) setActive(instanceID, correlationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.active[instanceID] = correlationID
}

func (h *Handler) clearActive(instanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.active, instanceID)
}

func (h *Handler) activeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.active)
}

func (h *Handler) recordHistory(instanceID string, workflowError *models.WorkflowError) {
	if instanceID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entry := workflowError.Code.WireCode() + " " + string(workflowError.Code)
	records := append(h.history[instanceID], entry)

	if len(records) > historyLimit {
		records = records[len(records)-historyLimit:]
	}

	h.history[instanceID] = records
}

func (h *Handler) previousErrors(instanceID string) []string {
	if instanceID == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.history[instanceID]...)
}

// RecoveryHistory lists the errors handled for an instance, oldest first,
// capped at the last few occurrences.
func (h *Handler) RecoveryHistory(instanceID string) []string {
	return h.previousErrors(instanceID)
}

func (h *Handler) raiseAlert(workflowError *models.WorkflowError, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.alerts[workflowError.Context.CorrelationID] = Alert{
		CorrelationID: workflowError.Context.CorrelationID,
		InstanceID:    workflowError.Context.WorkflowInstanceID,
		Code:          workflowError.Code,
		WireCode:      workflowError.Code.WireCode(),
		Message:       message,
		RaisedAt:      h.now(),
	}
}

// ActiveAlerts lists unresolved escalations, oldest first.
func (h *Handler) ActiveAlerts() []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	alerts := make([]Alert, 0, len(h.alerts))
	for _, alert := range h.alerts {
		alerts = append(alerts, alert)
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].RaisedAt.Equal(alerts[j].RaisedAt) {
			return alerts[i].CorrelationID < alerts[j].CorrelationID
		}

		return alerts[i].RaisedAt.Before(alerts[j].RaisedAt)
	})

	return alerts
}

// ClearStaleAlerts drops alerts older than maxAge and reports how many were
// removed. The watchdog runs this so acknowledged incidents age out of the
// active set.
func (h *Handler) ClearStaleAlerts(maxAge time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-maxAge)
	cleared := 0

	for id, alert := range h.alerts {
		if alert.RaisedAt.Before(cutoff) {
			delete(h.alerts, id)
			cleared++
		}
	}

	return cleared
}
