package statemachine

import (
	"testing"
	"time"

	"github.com/medwise/remedion/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstance(state models.WorkflowState) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:           "wf-001",
		ContentID:    "content-001",
		ContentType:  models.ContentTypePost,
		CurrentState: state,
		Version:      3,
		UpdatedAt:    time.Now().UTC(),
	}
}

func requireWorkflowError(t *testing.T, err error, code models.ErrorCode) *models.WorkflowError {
	t.Helper()

	require.Error(t, err)

	wfErr := models.AsWorkflowError(err)
	require.NotNil(t, wfErr, "validator must return *models.WorkflowError, got %T", err)
	assert.Equal(t, code, wfErr.Code)
	assert.NotEmpty(t, wfErr.Context.CorrelationID, "validation errors must carry a correlation id")
	assert.False(t, wfErr.Context.Timestamp.IsZero(), "validation errors must carry a timestamp")

	return wfErr
}

// Scenario: an instance in DRAFT cannot be published directly.
func TestValidateTransition_PublishFromDraftIsIllegal(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateDraft)

	result, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateDraft,
		Action:    models.ActionPublish,
		UserRole:  models.RolePublisher,
	})

	assert.Nil(t, result)

	wfErr := requireWorkflowError(t, err, models.ErrCodeInvalidStateTransition)
	assert.False(t, wfErr.Retryable)
	assert.Equal(t, instance.ID, wfErr.Context.WorkflowInstanceID)
	assert.Equal(t, models.ActionPublish, wfErr.Context.Action)
}

// Scenario: a completed review is approvable by an approver.
func TestValidateTransition_ApproveFromReviewSucceeds(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateReview)

	result, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateReview,
		ToState:   models.StateApproved,
		Action:    models.ActionApprove,
		UserRole:  models.RoleApprover,
		Metadata:  map[string]any{"reviewCompleted": true},
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Valid)
	assert.NotNil(t, result.Warnings)
	assert.NotEmpty(t, result.Recommendations, "approval should recommend publishing promptly")
}

func TestValidateTransition_EveryIllegalPairFails(t *testing.T) {
	validator := NewValidator()

	for _, state := range States() {
		for _, action := range Actions() {
			if _, legal := Lookup(state, action); legal {
				continue
			}

			instance := testInstance(state)

			result, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
				FromState: state,
				Action:    action,
				UserRole:  models.RoleAdmin,
			})

			assert.Nil(t, result, "%s + %s must not produce a result", state, action)
			requireWorkflowError(t, err, models.ErrCodeInvalidStateTransition)
		}
	}
}

func TestValidateTransition_EveryLegalRowPassesWithAdmin(t *testing.T) {
	validator := NewValidator()

	// Metadata satisfying every prerequisite, so only legality and
	// authorization are in play.
	metadata := map[string]any{
		"contentValidated": true,
		"seoOptimized":     true,
		"reviewCompleted":  true,
	}

	for _, tt := range legalTransitions {
		instance := testInstance(tt.from)

		result, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
			FromState: tt.from,
			ToState:   tt.to,
			Action:    tt.action,
			UserRole:  models.RoleAdmin,
			Metadata:  metadata,
		})

		require.NoError(t, err, "%s + %s -> %s must validate", tt.from, tt.action, tt.to)
		assert.True(t, result.Valid)
	}
}

func TestValidateTransition_UnknownCurrentState(t *testing.T) {
	validator := NewValidator()
	instance := testInstance("LIMBO")

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: "LIMBO",
		Action:    models.ActionPublish,
		UserRole:  models.RoleAdmin,
	})

	requireWorkflowError(t, err, models.ErrCodeInvalidWorkflowState)
}

func TestValidateTransition_MismatchedTargetState(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateDraft)

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateDraft,
		ToState:   models.StatePublished, // SUBMIT_FOR_REVIEW leads to REVIEW
		Action:    models.ActionSubmitForReview,
		UserRole:  models.RoleAuthor,
	})

	requireWorkflowError(t, err, models.ErrCodeInvalidStateTransition)
}

func TestValidateTransition_PublishPrerequisites(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name     string
		metadata map[string]any
	}{
		{"no metadata at all", nil},
		{"content not validated", map[string]any{"contentValidated": false, "seoOptimized": true}},
		{"seo not optimized", map[string]any{"contentValidated": true, "seoOptimized": false}},
		{"flags missing", map[string]any{"somethingElse": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance := testInstance(models.StateApproved)

			_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
				FromState: models.StateApproved,
				Action:    models.ActionPublish,
				UserRole:  models.RolePublisher,
				Metadata:  tt.metadata,
			})

			wfErr := requireWorkflowError(t, err, models.ErrCodePrerequisiteNotMet)
			assert.True(t, wfErr.Retryable, "caller can supply the flags and resubmit")
		})
	}
}

func TestValidateTransition_ApprovalPrerequisite(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateReview)

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateReview,
		Action:    models.ActionApprove,
		UserRole:  models.RoleApprover,
		Metadata:  map[string]any{"reviewCompleted": false},
	})

	wfErr := requireWorkflowError(t, err, models.ErrCodePrerequisiteNotMet)
	assert.True(t, wfErr.Retryable)
}

func TestValidateTransition_MalformedMetadata(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateApproved)

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateApproved,
		Action:    models.ActionPublish,
		UserRole:  models.RolePublisher,
		Metadata:  map[string]any{"contentValidated": "yes", "seoOptimized": true},
	})

	requireWorkflowError(t, err, models.ErrCodeInvalidTransitionMetadata)
}

func TestValidateTransition_LockedContent(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateReview)
	instance.Locked = true
	instance.LockReason = "locked during incident inc-42"

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateReview,
		Action:    models.ActionApprove,
		UserRole:  models.RoleApprover,
		Metadata:  map[string]any{"reviewCompleted": true},
	})

	wfErr := requireWorkflowError(t, err, models.ErrCodeContentLocked)
	assert.Contains(t, wfErr.Message, "inc-42")
}

func TestValidateTransition_ConcurrentModification(t *testing.T) {
	validator := NewValidator()

	t.Run("state moved under the caller", func(t *testing.T) {
		instance := testInstance(models.StateApproved) // someone already approved

		_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
			FromState: models.StateReview, // caller still believes it is in review
			Action:    models.ActionApprove,
			UserRole:  models.RoleApprover,
			Metadata:  map[string]any{"reviewCompleted": true},
		})

		wfErr := requireWorkflowError(t, err, models.ErrCodeConcurrentStateModified)
		assert.True(t, wfErr.Retryable, "concurrency conflicts are always retryable")
	})

	t.Run("version moved under the caller", func(t *testing.T) {
		instance := testInstance(models.StateReview)
		instance.Version = 7

		_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
			FromState:       models.StateReview,
			Action:          models.ActionApprove,
			UserRole:        models.RoleApprover,
			ExpectedVersion: 6,
			Metadata:        map[string]any{"reviewCompleted": true},
		})

		wfErr := requireWorkflowError(t, err, models.ErrCodeConcurrentStateModified)
		assert.True(t, wfErr.Retryable)
	})

	t.Run("matching version passes", func(t *testing.T) {
		instance := testInstance(models.StateReview)
		instance.Version = 7

		result, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
			FromState:       models.StateReview,
			Action:          models.ActionApprove,
			UserRole:        models.RoleApprover,
			ExpectedVersion: 7,
			Metadata:        map[string]any{"reviewCompleted": true},
		})

		require.NoError(t, err)
		assert.True(t, result.Valid)
	})
}

func TestValidateTransition_InsufficientPermissions(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateApproved)

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateApproved,
		Action:    models.ActionPublish,
		UserRole:  models.RoleAuthor,
		Metadata:  map[string]any{"contentValidated": true, "seoOptimized": true},
	})

	wfErr := requireWorkflowError(t, err, models.ErrCodeInsufficientPermissions)
	assert.False(t, wfErr.Retryable, "permission failures are never retryable")
}

func TestValidateTransition_UnknownRole(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StateDraft)

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateDraft,
		Action:    models.ActionSubmitForReview,
		UserRole:  "INTERN",
	})

	requireWorkflowError(t, err, models.ErrCodeUnknownWorkflowRole)
}

// The stages short-circuit in a fixed order: a request that is illegal,
// unauthorized and concurrency-stale at once reports the legality failure.
func TestValidateTransition_ChecksShortCircuitInOrder(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StatePublished)

	_, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StateDraft, // stale view AND illegal action from draft
		Action:    models.ActionApprove,
		UserRole:  "INTERN", // also an unknown role
	})

	requireWorkflowError(t, err, models.ErrCodeInvalidStateTransition)
}

func TestValidateTransition_WithdrawWarning(t *testing.T) {
	validator := NewValidator()
	instance := testInstance(models.StatePublished)

	result, err := validator.ValidateTransition(t.Context(), instance, TransitionRequest{
		FromState: models.StatePublished,
		Action:    models.ActionWithdraw,
		UserRole:  models.RolePublisher,
	})

	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "offline immediately")
}
