// Package web provides the HTTP surface of the recovery engine: transition
// validation, error intake, snapshots and rollbacks, audit queries and
// deadlock scans.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/medwise/remedion/pkg/deadlock"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
	"github.com/medwise/remedion/pkg/recovery"
	"github.com/medwise/remedion/pkg/snapshot"
	"github.com/medwise/remedion/pkg/statemachine"
)

const defaultAuditLimit = 100

type APIHandlers struct {
	store     persistence.Persistence
	machine   *statemachine.Validator
	recovery  *recovery.Handler
	snapshots *snapshot.Manager
	detector  *deadlock.Detector
	validate  *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	machine *statemachine.Validator,
	recoveryHandler *recovery.Handler,
	snapshots *snapshot.Manager,
	detector *deadlock.Detector,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		machine:   machine,
		recovery:  recoveryHandler,
		snapshots: snapshots,
		detector:  detector,
		validate:  validate,
	}
}

// ValidateTransition dry-runs a transition through the validator. A failing
// verdict comes back as the taxonomy error; nothing is handed to recovery,
// the caller decides what to do with the failure.
func (h *APIHandlers) ValidateTransition(c fiber.Ctx) error {
	var req ValidateTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.store.InstanceRepository().GetByID(c.Context(), req.InstanceID)
	if err != nil {
		return internalError(c, err)
	}

	if instance == nil {
		return notFound(c, "workflow instance not found")
	}

	fromState := models.WorkflowState(req.FromState)
	if req.FromState == "" {
		fromState = instance.CurrentState
	}

	result, err := h.machine.ValidateTransition(c.Context(), instance, statemachine.TransitionRequest{
		FromState:       fromState,
		ToState:         models.WorkflowState(req.ToState),
		Action:          models.WorkflowAction(req.Action),
		UserID:          req.UserID,
		UserRole:        models.WorkflowRole(req.UserRole),
		ExpectedVersion: req.ExpectedVersion,
		Metadata:        req.Metadata,
	})
	if err != nil {
		if workflowError := models.AsWorkflowError(err); workflowError != nil {
			return workflowProblem(c, workflowError)
		}

		return internalError(c, err)
	}

	return c.JSON(result)
}

// ReportError feeds a workflow error into the recovery engine and returns the
// recovery result. An instance already mid-recovery is rejected with 409.
func (h *APIHandlers) ReportError(c fiber.Ctx) error {
	var req ReportErrorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	code := models.ErrorCode(req.Code)
	if !code.Valid() {
		return badRequest(c, "unknown error code "+req.Code)
	}

	var instance *models.WorkflowInstance

	if req.InstanceID != "" {
		loaded, err := h.store.InstanceRepository().GetByID(c.Context(), req.InstanceID)
		if err != nil {
			return internalError(c, err)
		}

		// A missing instance is not fatal: the engine recovers errors
		// raised outside any tracked instance too.
		instance = loaded
	}

	ectx := models.NewErrorContext(instance)
	ectx.WorkflowInstanceID = req.InstanceID
	ectx.Action = models.WorkflowAction(req.Action)
	ectx.UserID = req.UserID
	ectx.UserRole = models.WorkflowRole(req.UserRole)
	ectx.Metadata = req.Metadata

	if req.CorrelationID != "" {
		ectx.CorrelationID = req.CorrelationID
	}

	if req.ContentID != "" {
		ectx.ContentID = req.ContentID
	}

	if req.CurrentState != "" {
		ectx.CurrentState = models.WorkflowState(req.CurrentState)
	}

	if req.TargetState != "" {
		ectx.TargetState = models.WorkflowState(req.TargetState)
	}

	workflowError := models.NewWorkflowError(code, req.Message, ectx)

	result, err := h.recovery.HandleWorkflowError(c.Context(), workflowError, instance)
	if err != nil {
		if rejection := models.AsWorkflowError(err); rejection != nil {
			return workflowProblem(c, rejection)
		}

		return badRequest(c, err.Error())
	}

	return c.JSON(result)
}

// ReportTimeout asks the engine whether a timed-out operation should be
// retried and with what delay, or escalated.
func (h *APIHandlers) ReportTimeout(c fiber.Ctx) error {
	var req ReportTimeoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	decision := h.recovery.HandleWorkflowTimeout(c.Context(), req.InstanceID, req.Operation,
		time.Duration(req.TimeoutMs)*time.Millisecond)

	return c.JSON(decision)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance ID is required")
	}

	instance, err := h.store.InstanceRepository().GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if instance == nil {
		return notFound(c, "workflow instance not found")
	}

	return c.JSON(instance)
}

func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	instances, err := h.store.InstanceRepository().List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   instances,
		"total_count": len(instances),
	})
}

// UpsertInstance creates or replaces an instance. State is only honored on
// creation; a stored instance moves exclusively through transitions and
// rollbacks.
func (h *APIHandlers) UpsertInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance ID is required")
	}

	var req UpsertInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	repo := h.store.InstanceRepository()

	existing, err := repo.GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if existing == nil {
		state := models.StateDraft

		if req.CurrentState != "" {
			state = models.WorkflowState(req.CurrentState)
			if !statemachine.KnownState(state) {
				return badRequest(c, "unknown workflow state "+req.CurrentState)
			}
		}

		instance := &models.WorkflowInstance{
			ID:           id,
			ContentID:    req.ContentID,
			ContentType:  models.ContentType(req.ContentType),
			CurrentState: state,
			Owner:        req.Owner,
			Metadata:     req.Metadata,
		}

		if err := repo.Save(c.Context(), instance); err != nil {
			return handleRepositoryError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(instance)
	}

	existing.ContentID = req.ContentID
	existing.ContentType = models.ContentType(req.ContentType)
	existing.Owner = req.Owner

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	if err := repo.Save(c.Context(), existing); err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(existing)
}

// CreateSnapshot captures the instance's current state as its stored
// snapshot, replacing any previous one.
func (h *APIHandlers) CreateSnapshot(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance ID is required")
	}

	instance, err := h.store.InstanceRepository().GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if instance == nil {
		return notFound(c, "workflow instance not found")
	}

	captured, err := h.snapshots.Create(c.Context(), c.Query("correlation_id"), instance)
	if err != nil {
		if workflowError := models.AsWorkflowError(err); workflowError != nil {
			return workflowProblem(c, workflowError)
		}

		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(captured)
}

// RollbackInstance restores the instance from its stored snapshot.
func (h *APIHandlers) RollbackInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance ID is required")
	}

	var req RollbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.snapshots.Rollback(c.Context(), req.CorrelationID, id, req.Reason, req.PerformedBy)
	if err != nil {
		if persistence.IsSnapshotNotFound(err) {
			return notFound(c, "no snapshot recorded for instance "+id)
		}

		if workflowError := models.AsWorkflowError(err); workflowError != nil {
			return workflowProblem(c, workflowError)
		}

		return internalError(c, err)
	}

	return c.JSON(result)
}

// GetAuditTrail returns audit entries either for one correlation (the full
// trail of one failure, in sequence order) or for one instance (most recent
// first, bounded by limit).
func (h *APIHandlers) GetAuditTrail(c fiber.Ctx) error {
	correlationID := c.Query("correlation_id")
	instanceID := c.Query("instance_id")

	if (correlationID == "") == (instanceID == "") {
		return badRequest(c, "exactly one of correlation_id or instance_id is required")
	}

	var (
		entries []*models.AuditEntry
		err     error
	)

	if correlationID != "" {
		entries, err = h.store.AuditRepository().ListByCorrelationID(c.Context(), correlationID)
	} else {
		limit := defaultAuditLimit

		if limitStr := c.Query("limit"); limitStr != "" {
			limit, err = strconv.Atoi(limitStr)
			if err != nil {
				return badRequest(c, "invalid limit: "+limitStr)
			}
		}

		entries, err = h.store.AuditRepository().ListByInstanceID(c.Context(), instanceID, limit)
	}

	if err != nil {
		return internalError(c, err)
	}

	if entries == nil {
		entries = []*models.AuditEntry{}
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetDeadlocks runs a detection scan over the wait-for graph and reports
// every cycle found. Detection only; resolution goes through error reports
// or the watchdog.
func (h *APIHandlers) GetDeadlocks(c fiber.Ctx) error {
	deadlocks, err := h.detector.DetectDeadlocks(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	if deadlocks == nil {
		deadlocks = []*models.Deadlock{}
	}

	return c.JSON(fiber.Map{
		"deadlocks": deadlocks,
		"count":     len(deadlocks),
	})
}

// GetAlerts lists the recoveries still waiting for an administrator.
func (h *APIHandlers) GetAlerts(c fiber.Ctx) error {
	alerts := h.recovery.ActiveAlerts()

	return c.JSON(fiber.Map{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck := "ok"

	status := "healthy"
	message := "Remedion API is healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		repositoryCheck = err.Error()
		status = "unhealthy"
		message = "Remedion API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
