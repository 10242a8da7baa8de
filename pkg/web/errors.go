package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// statusForCode maps taxonomy codes to HTTP statuses: code-specific overrides
// first, then the category default.
func statusForCode(code models.ErrorCode) int {
	switch code {
	case models.ErrCodeConcurrentStateModified:
		return fiber.StatusConflict
	case models.ErrCodeContentNotFound, models.ErrCodeWorkflowInstanceNotFound:
		return fiber.StatusNotFound
	case models.ErrCodeContentLocked:
		return fiber.StatusLocked
	}

	switch code.Category() {
	case models.CategoryStateTransition, models.CategoryContent:
		return fiber.StatusUnprocessableEntity
	case models.CategoryPermission:
		return fiber.StatusForbidden
	case models.CategoryInfrastructure:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// workflowProblem renders a workflow error as an RFC-7807 problem. The stable
// wire code travels as the problem type and the correlation id goes in a
// response header so clients can pull the full audit trail for the failure.
func workflowProblem(c fiber.Ctx, workflowError *models.WorkflowError) error {
	status := statusForCode(workflowError.Code)

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(workflowError.Code.WireCode()).
		WithDetail(workflowError.Message)

	c.Set("X-Correlation-ID", workflowError.Context.CorrelationID)

	return c.Status(status).JSON(problem)
}

// handleRepositoryError provides typed error handling for persistence errors.
func handleRepositoryError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")

	case persistence.IsSnapshotNotFound(err):
		return notFound(c, "state snapshot not found")

	case persistence.IsVersionConflict(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("version_conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, err)
	}
}
