package statemachine

import (
	"context"
	"fmt"

	"github.com/medwise/remedion/pkg/models"
)

// TransitionRequest is one proposed state change. FromState carries the state
// the caller loaded the instance in; comparing it against the stored state is
// the optimistic concurrency check. ExpectedVersion is optional (zero means
// the caller did not track versions) and tightens that check when present.
type TransitionRequest struct {
	FromState       models.WorkflowState
	ToState         models.WorkflowState
	Action          models.WorkflowAction
	UserID          string
	UserRole        models.WorkflowRole
	ExpectedVersion int64
	Metadata        map[string]any
}

// Validator checks proposed transitions against the state machine. It holds
// no state; every verdict is a pure function of the instance and the request.
type Validator struct{}

// NewValidator creates a transition validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTransition runs the four validation stages in order, stopping at
// the first failure: transition legality, prerequisites, concurrency safety,
// authorization. Failures are returned as *models.WorkflowError carrying a
// fully populated context; the caller decides whether to hand them to the
// recovery engine. On success the result may carry advisory warnings and
// recommendations, which never block the transition.
func (v *Validator) ValidateTransition(_ context.Context, instance *models.WorkflowInstance, req TransitionRequest) (*models.ValidationResult, error) {
	ectx := newTransitionErrorContext(instance, req)

	if err := v.checkLegality(req, ectx); err != nil {
		return nil, err
	}

	if err := v.checkPrerequisites(instance, req, ectx); err != nil {
		return nil, err
	}

	if err := v.checkConcurrency(instance, req, ectx); err != nil {
		return nil, err
	}

	if err := v.checkAuthorization(req, ectx); err != nil {
		return nil, err
	}

	result := models.NewValidationResult()
	result.Warnings = warningsFor(req)
	result.Recommendations = recommendationsFor(instance, req)

	return result, nil
}

// checkLegality verifies the (state, action) pair exists in the transition
// table and that the requested target matches the table's target.
func (v *Validator) checkLegality(req TransitionRequest, ectx models.ErrorContext) error {
	if !KnownState(req.FromState) {
		return models.NewWorkflowError(
			models.ErrCodeInvalidWorkflowState,
			fmt.Sprintf("state %q is not part of the content workflow", req.FromState),
			ectx,
		)
	}

	target, ok := Lookup(req.FromState, req.Action)
	if !ok {
		return models.NewWorkflowError(
			models.ErrCodeInvalidStateTransition,
			fmt.Sprintf("action %s is not allowed from state %s", req.Action, req.FromState),
			ectx,
		)
	}

	if req.ToState != "" && req.ToState != target {
		return models.NewWorkflowError(
			models.ErrCodeInvalidStateTransition,
			fmt.Sprintf("action %s from state %s leads to %s, not %s", req.Action, req.FromState, target, req.ToState),
			ectx,
		)
	}

	return nil
}

// checkPrerequisites enforces target-state business rules. Missing metadata
// flags are retryable: the caller can complete the work and resubmit.
func (v *Validator) checkPrerequisites(instance *models.WorkflowInstance, req TransitionRequest, ectx models.ErrorContext) error {
	if instance.Locked {
		reason := instance.LockReason
		if reason == "" {
			reason = "content is locked pending manual intervention"
		}

		return models.NewWorkflowError(models.ErrCodeContentLocked, reason, ectx)
	}

	meta, err := models.DecodeTransitionMetadata(req.Action, req.Metadata)
	if err != nil {
		return models.NewWorkflowError(
			models.ErrCodeInvalidTransitionMetadata,
			"transition metadata does not match the shape required by "+string(req.Action),
			ectx,
		).WithCause(err)
	}

	switch typed := meta.(type) {
	case models.PublishMetadata:
		if !typed.ContentValidated {
			return models.NewWorkflowError(
				models.ErrCodePrerequisiteNotMet,
				"publishing requires content validation to have passed",
				ectx,
			).WithRetryable(true)
		}

		if !typed.SEOOptimized {
			return models.NewWorkflowError(
				models.ErrCodePrerequisiteNotMet,
				"publishing requires the SEO optimization check to have passed",
				ectx,
			).WithRetryable(true)
		}
	case models.ApprovalMetadata:
		if !typed.ReviewCompleted {
			return models.NewWorkflowError(
				models.ErrCodePrerequisiteNotMet,
				"approval requires the editorial review to be completed",
				ectx,
			).WithRetryable(true)
		}
	}

	return nil
}

// checkConcurrency detects whether another actor changed the instance since
// the caller loaded it. Always retryable: reload and resubmit.
func (v *Validator) checkConcurrency(instance *models.WorkflowInstance, req TransitionRequest, ectx models.ErrorContext) error {
	if req.FromState != instance.CurrentState {
		return models.NewWorkflowError(
			models.ErrCodeConcurrentStateModified,
			fmt.Sprintf("instance moved to %s while the request was based on %s; reload and resubmit", instance.CurrentState, req.FromState),
			ectx,
		)
	}

	if req.ExpectedVersion > 0 && req.ExpectedVersion != instance.Version {
		return models.NewWorkflowError(
			models.ErrCodeConcurrentStateModified,
			fmt.Sprintf("instance is at version %d but the request expected version %d; reload and resubmit", instance.Version, req.ExpectedVersion),
			ectx,
		)
	}

	return nil
}

// checkAuthorization verifies the requesting role against the action's
// allow-list. Permission failures are never retryable.
func (v *Validator) checkAuthorization(req TransitionRequest, ectx models.ErrorContext) error {
	if !KnownRole(req.UserRole) {
		return models.NewWorkflowError(
			models.ErrCodeUnknownWorkflowRole,
			fmt.Sprintf("role %q is not a workflow role", req.UserRole),
			ectx,
		)
	}

	if !RoleAllowed(req.Action, req.UserRole) {
		return models.NewWorkflowError(
			models.ErrCodeInsufficientPermissions,
			fmt.Sprintf("role %s is not permitted to perform %s", req.UserRole, req.Action),
			ectx,
		)
	}

	return nil
}

func warningsFor(req TransitionRequest) []string {
	warnings := []string{}

	if req.Action == models.ActionWithdraw && req.FromState == models.StatePublished {
		warnings = append(warnings, "withdrawing published content takes it offline immediately")
	}

	return warnings
}

func recommendationsFor(instance *models.WorkflowInstance, req TransitionRequest) []string {
	recommendations := []string{}

	switch req.Action {
	case models.ActionApprove:
		recommendations = append(recommendations, "publish the approved content promptly so the clinical review does not go stale")
	case models.ActionRestore:
		recommendations = append(recommendations, "restored content re-enters the workflow as a draft and needs a full review cycle before publishing")
	case models.ActionSubmitForReview:
		if _, ok := req.Metadata["seoOptimized"]; !ok {
			recommendations = append(recommendations, "run the SEO audit before review to avoid a publish-stage rejection")
		}
	}

	if req.Action == models.ActionPublish && instance.ContentType == models.ContentTypePlatform {
		recommendations = append(recommendations, "platform-level content is visible on every page; double-check the change window")
	}

	return recommendations
}

// newTransitionErrorContext builds the error context every validation failure
// carries. Validation errors must always be traceable to the request that
// triggered them, so the context is populated up front.
func newTransitionErrorContext(instance *models.WorkflowInstance, req TransitionRequest) models.ErrorContext {
	ectx := models.NewErrorContext(instance)
	ectx.TargetState = req.ToState
	ectx.Action = req.Action
	ectx.UserID = req.UserID
	ectx.UserRole = req.UserRole
	ectx.Metadata = req.Metadata

	if req.ToState == "" {
		if target, ok := Lookup(req.FromState, req.Action); ok {
			ectx.TargetState = target
		}
	}

	return ectx
}
