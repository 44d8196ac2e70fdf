package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
	"github.com/dukex/devsim/pkg/rules"
	"github.com/dukex/devsim/pkg/transmission"
)

// stateConflictProblem carries the device state that blocked the action.
type stateConflictProblem struct {
	*problems.DefaultProblem

	State models.TransmissionState `json:"state"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind + "_not_found").
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

// handleServiceError maps transmission core errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var conflict *transmission.StateConflictError

	switch {
	case persistence.IsDeviceNotFound(err):
		return notFound(c, "device", "device not found")

	case persistence.IsConnectionNotFound(err):
		return notFound(c, "connection", "connection not found")

	case errors.As(err, &conflict):
		problem := &stateConflictProblem{
			DefaultProblem: problems.NewStatusProblem(409).
				WithInstance(c.Path()).
				WithType("state_conflict").
				WithDetail(err.Error()),
			State: conflict.State,
		}

		return c.Status(fiber.StatusConflict).JSON(problem)

	case rules.IsCapacityExceeded(err):
		problem := problems.NewStatusProblem(429).
			WithInstance(c.Path()).
			WithType("capacity_exceeded").
			WithDetail(err.Error())

		return c.Status(fiber.StatusTooManyRequests).JSON(problem)

	case transmission.IsValidation(err), rules.IsFrequencyOutOfRange(err):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
