package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medwise/remedion/pkg/audit"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/notification"
	"github.com/medwise/remedion/pkg/persistence"
	"github.com/medwise/remedion/pkg/snapshot"
	"github.com/medwise/remedion/pkg/statemachine"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelayMs  = 5000
)

// Executor runs recovery plans step by step. Every step executes under its
// own timeout and is audited whether it succeeds or not.
type Executor struct {
	snapshots *snapshot.Manager
	instances persistence.InstanceRepository
	validator *statemachine.Validator
	auditor   *audit.Logger
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewExecutor wires a step executor.
func NewExecutor(
	snapshots *snapshot.Manager,
	instances persistence.InstanceRepository,
	validator *statemachine.Validator,
	auditor *audit.Logger,
	notifier notification.Notifier,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		snapshots: snapshots,
		instances: instances,
		validator: validator,
		auditor:   auditor,
		notifier:  notifier,
		logger:    logger.With("module", "recovery"),
	}
}

// Execute runs the plan's steps in order and returns the actions that
// completed. A failed step with RollbackOnFailure unset logs a warning and
// execution continues. With it set the plan aborts: completed steps are
// undone best effort and the failure comes back wrapped as
// WORKFLOW_RECOVERY_FAILED with the original error as cause.
func (e *Executor) Execute(ctx context.Context, workflowError *models.WorkflowError, plan *models.RecoveryPlan) ([]string, *models.WorkflowError) {
	executed := make([]string, 0, len(plan.Steps))
	completed := make([]models.RecoveryStep, 0, len(plan.Steps))

	for i := range plan.Steps {
		step := plan.Steps[i]

		stepErr := e.runStep(ctx, workflowError, step)
		e.auditor.LogStep(workflowError, &step, stepErr)

		if stepErr == nil {
			executed = append(executed, string(step.Action))
			completed = append(completed, step)

			continue
		}

		if !step.RollbackOnFailure {
			e.logger.WarnContext(ctx, "recovery step failed, continuing",
				"step", step.Action,
				"correlation_id", workflowError.Context.CorrelationID,
				"error", stepErr)

			continue
		}

		e.undoSteps(ctx, workflowError, completed)

		failure := models.NewWorkflowError(
			models.ErrCodeWorkflowRecoveryFailed,
			fmt.Sprintf("recovery step %s failed: %v", step.Action, stepErr),
			workflowError.Context,
		).WithCause(workflowError)

		return executed, failure
	}

	return executed, nil
}

// runStep races the step against its timeout. The runner receives a context
// that expires with the deadline so well-behaved work stops early; a stuck
// step is abandoned to its goroutine rather than waited on.
func (e *Executor) runStep(ctx context.Context, workflowError *models.WorkflowError, step models.RecoveryStep) error {
	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- e.dispatch(stepCtx, workflowError, step)
	}()

	select {
	case err := <-done:
		return err
	case <-stepCtx.Done():
		return fmt.Errorf("step %s did not finish within %s: %w", step.Action, step.Timeout, stepCtx.Err())
	}
}

func (e *Executor) dispatch(ctx context.Context, workflowError *models.WorkflowError, step models.RecoveryStep) error {
	switch step.Action {
	case models.StepCreateBackup:
		return e.createBackup(ctx, workflowError)
	case models.StepRollbackState:
		return e.rollbackState(ctx, workflowError)
	case models.StepRetryTransition:
		return e.retryTransition(ctx, workflowError, step.Parameters)
	case models.StepNotifyAdmin:
		return e.notifyAdmin(ctx, workflowError)
	case models.StepLockContent:
		return e.lockContent(ctx, workflowError)
	default:
		return fmt.Errorf("no runner for step action %q", step.Action)
	}
}

// createBackup captures the instance as it stands and records the capture in
// the audit trail. The capture is forensic only: it does not replace the
// stored snapshot, which stays the rollback target for the next step.
func (e *Executor) createBackup(ctx context.Context, workflowError *models.WorkflowError) error {
	instance, err := e.loadInstance(ctx, workflowError, models.StepCreateBackup)
	if err != nil {
		return err
	}

	capture, err := models.NewStateSnapshot(instance)
	if err != nil {
		return err
	}

	e.auditor.LogStateSnapshot(workflowError.Context.CorrelationID, capture)

	return nil
}

func (e *Executor) rollbackState(ctx context.Context, workflowError *models.WorkflowError) error {
	instanceID := workflowError.Context.WorkflowInstanceID
	if instanceID == "" {
		return errors.New("rollback_state requires a workflow instance")
	}

	reason := "automatic recovery from " + workflowError.Code.WireCode()

	_, err := e.snapshots.Rollback(ctx, workflowError.Context.CorrelationID, instanceID, reason, recoveryActor)

	return err
}

// retryTransition re-probes the failed operation with a pause between
// attempts. Recovery never applies transitions itself, so success means the
// original request validates cleanly against the freshly loaded instance.
func (e *Executor) retryTransition(ctx context.Context, workflowError *models.WorkflowError, params map[string]any) error {
	if workflowError.Context.WorkflowInstanceID == "" {
		return errors.New("retry_transition requires a workflow instance")
	}

	maxAttempts := intParam(params, "max_attempts", defaultRetryAttempts)
	delay := time.Duration(intParam(params, "delay_ms", defaultRetryDelayMs)) * time.Millisecond

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = e.probeTransition(ctx, workflowError)
		if lastErr == nil {
			return nil
		}

		e.logger.DebugContext(ctx, "transition retry failed",
			"instance_id", workflowError.Context.WorkflowInstanceID,
			"attempt", attempt,
			"error", lastErr)
	}

	return fmt.Errorf("transition still failing after %d attempts: %w", maxAttempts, lastErr)
}

// probeTransition reloads the instance and re-validates the originally
// requested action from the state it is in now. Errors raised outside a
// transition carry no action; for those the probe passes once the instance
// loads cleanly in a known, unlocked state.
func (e *Executor) probeTransition(ctx context.Context, workflowError *models.WorkflowError) error {
	instance, err := e.loadInstance(ctx, workflowError, models.StepRetryTransition)
	if err != nil {
		return err
	}

	action := workflowError.Context.Action
	if action == "" {
		if !statemachine.KnownState(instance.CurrentState) {
			return fmt.Errorf("instance %s is in unknown state %s", instance.ID, instance.CurrentState)
		}

		if instance.Locked {
			return fmt.Errorf("content of instance %s is locked: %s", instance.ID, instance.LockReason)
		}

		return nil
	}

	target, ok := statemachine.Lookup(instance.CurrentState, action)
	if !ok {
		return fmt.Errorf("action %s is not available from state %s", action, instance.CurrentState)
	}

	req := statemachine.TransitionRequest{
		FromState: instance.CurrentState,
		ToState:   target,
		Action:    action,
		UserID:    workflowError.Context.UserID,
		UserRole:  workflowError.Context.UserRole,
		Metadata:  workflowError.Context.Metadata,
	}

	_, err = e.validator.ValidateTransition(ctx, instance, req)

	return err
}

func (e *Executor) notifyAdmin(ctx context.Context, workflowError *models.WorkflowError) error {
	e.notifier.NotifyAdministrators(ctx, workflowError, workflowError.Severity(), true)

	return nil
}

func (e *Executor) lockContent(ctx context.Context, workflowError *models.WorkflowError) error {
	instanceID := workflowError.Context.WorkflowInstanceID
	if instanceID == "" {
		return errors.New("lock_content requires a workflow instance")
	}

	reason := "locked by recovery after " + workflowError.Code.WireCode()

	return e.instances.SetContentLock(ctx, instanceID, true, reason)
}

// undoSteps reverses completed steps best effort, newest first. Most steps
// have nothing to compensate: a forensic capture and a notification cannot be
// unsent and a validation probe has no side effects. Content locks are
// released.
func (e *Executor) undoSteps(ctx context.Context, workflowError *models.WorkflowError, completed []models.RecoveryStep) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]

		undone, err := e.undoStep(ctx, workflowError, step)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to undo recovery step",
				"step", step.Action,
				"correlation_id", workflowError.Context.CorrelationID,
				"error", err)

			continue
		}

		if undone {
			e.logger.InfoContext(ctx, "recovery step undone",
				"step", step.Action,
				"correlation_id", workflowError.Context.CorrelationID)
		}
	}
}

func (e *Executor) undoStep(ctx context.Context, workflowError *models.WorkflowError, step models.RecoveryStep) (bool, error) {
	switch step.Action {
	case models.StepLockContent:
		err := e.instances.SetContentLock(ctx, workflowError.Context.WorkflowInstanceID, false, "")
		if err != nil {
			return false, err
		}

		return true, nil
	default:
		return false, nil
	}
}

func (e *Executor) loadInstance(ctx context.Context, workflowError *models.WorkflowError, step models.StepAction) (*models.WorkflowInstance, error) {
	instanceID := workflowError.Context.WorkflowInstanceID
	if instanceID == "" {
		return nil, fmt.Errorf("%s requires a workflow instance", step)
	}

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}

	return instance, nil
}

// intParam reads an integer step parameter, tolerating the float64 that JSON
// decoding produces for numbers.
func intParam(params map[string]any, key string, fallback int) int {
	raw, ok := params[key]
	if !ok {
		return fallback
	}

	switch value := raw.(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return fallback
	}
}
