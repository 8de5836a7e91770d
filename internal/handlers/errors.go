package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/models"
)

// statusFromError maps core errors onto HTTP statuses: missing records 404,
// conflicts 409, agent state-machine violations 400, upstream provider
// failures during a sync 502, everything else 500.
func statusFromError(err error) int {
	var syncErr *models.SyncError
	switch {
	case models.IsNotFound(err):
		return fiber.StatusNotFound
	case models.IsConflict(err):
		return fiber.StatusConflict
	case models.IsAgentRule(err):
		return fiber.StatusBadRequest
	case errors.As(err, &syncErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(statusFromError(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
