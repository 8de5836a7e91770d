package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/services"
)

// StatusHandler serves the instance overview used by connectivity checks.
type StatusHandler struct {
	version string
	poller  *services.Poller
	bus     *events.Bus
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(version string, poller *services.Poller, bus *events.Bus) *StatusHandler {
	return &StatusHandler{version: version, poller: poller, bus: bus}
}

// StatusResponse summarizes the running instance.
type StatusResponse struct {
	Version     string `json:"version"`
	Repos       int    `json:"repos"`
	Worktrees   int    `json:"worktrees"`
	Tickets     int    `json:"tickets"`
	OpenSession bool   `json:"open_session"`
	Subscribers int    `json:"subscribers"`
}

// GetStatus returns version and entity counts
// @Summary Instance status
// @Tags status
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /api/status [get]
func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	snap, err := h.poller.Collect(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(StatusResponse{
		Version:     h.version,
		Repos:       len(snap.Repos),
		Worktrees:   len(snap.Worktrees),
		Tickets:     len(snap.Tickets),
		OpenSession: snap.CurrentSession != nil,
		Subscribers: h.bus.SubscriberCount(),
	})
}
