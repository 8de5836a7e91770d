package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/config"
)

// ConfigHandler serves the work-target CRUD endpoints backed by the TOML
// config file.
type ConfigHandler struct {
	cfg *config.Config
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// UpdateWorkTargetRequest replaces the target at Index.
type UpdateWorkTargetRequest struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Command string `json:"command"`
	Type    string `json:"type"`
}

// ListWorkTargets returns the configured work targets
// @Summary List work targets
// @Tags config
// @Produce json
// @Success 200 {array} config.WorkTarget
// @Router /api/config/work-targets [get]
func (h *ConfigHandler) ListWorkTargets(c *fiber.Ctx) error {
	return c.JSON(h.cfg.WorkTargets())
}

// AddWorkTarget appends a work target
// @Summary Add a work target
// @Tags config
// @Accept json
// @Produce json
// @Param request body config.WorkTarget true "Target to add"
// @Success 201 {array} config.WorkTarget
// @Router /api/config/work-targets [post]
func (h *ConfigHandler) AddWorkTarget(c *fiber.Ctx) error {
	var target config.WorkTarget
	if err := c.BodyParser(&target); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if target.Name == "" || target.Command == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name and command are required",
		})
	}

	if err := h.cfg.AddWorkTarget(target); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.cfg.WorkTargets())
}

// UpdateWorkTarget replaces the work target at an index
// @Summary Update a work target
// @Tags config
// @Accept json
// @Produce json
// @Param request body UpdateWorkTargetRequest true "Index and replacement target"
// @Success 200 {array} config.WorkTarget
// @Router /api/config/work-targets [put]
func (h *ConfigHandler) UpdateWorkTarget(c *fiber.Ctx) error {
	var req UpdateWorkTargetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" || req.Command == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name and command are required",
		})
	}

	err := h.cfg.UpdateWorkTarget(req.Index, config.WorkTarget{
		Name:    req.Name,
		Command: req.Command,
		Type:    req.Type,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(h.cfg.WorkTargets())
}

// RemoveWorkTarget deletes the work target at an index
// @Summary Remove a work target
// @Tags config
// @Produce json
// @Param index path int true "Target index"
// @Success 200 {array} config.WorkTarget
// @Router /api/config/work-targets/{index} [delete]
func (h *ConfigHandler) RemoveWorkTarget(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid index",
		})
	}
	if err := h.cfg.RemoveWorkTarget(index); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(h.cfg.WorkTargets())
}
