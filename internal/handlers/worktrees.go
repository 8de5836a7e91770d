package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/services"
)

// WorktreesHandler serves worktree lifecycle endpoints.
type WorktreesHandler struct {
	repos     *services.RepoManager
	worktrees *services.WorktreeManager
}

// NewWorktreesHandler creates a new worktrees handler.
func NewWorktreesHandler(repos *services.RepoManager, worktrees *services.WorktreeManager) *WorktreesHandler {
	return &WorktreesHandler{repos: repos, worktrees: worktrees}
}

// CreateWorktreeRequest is the body for materializing a worktree.
type CreateWorktreeRequest struct {
	Name       string  `json:"name"`
	BaseBranch string  `json:"base_branch"`
	TicketID   *string `json:"ticket_id"`
}

// ListWorktrees returns the repo's worktrees
// @Summary List worktrees
// @Tags worktrees
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Success 200 {array} models.Worktree
// @Router /api/repos/{ref}/worktrees [get]
func (h *WorktreesHandler) ListWorktrees(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	worktrees, err := h.worktrees.List(c.UserContext(), repo.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(worktrees)
}

// CreateWorktree materializes a worktree for the repo
// @Summary Create a worktree
// @Tags worktrees
// @Accept json
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Param request body CreateWorktreeRequest true "Worktree to create"
// @Success 201 {object} models.Worktree
// @Router /api/repos/{ref}/worktrees [post]
func (h *WorktreesHandler) CreateWorktree(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}

	var req CreateWorktreeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Worktree name is required",
		})
	}

	worktree, err := h.worktrees.Create(c.UserContext(), repo, req.Name, req.BaseBranch, req.TicketID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(worktree)
}

// GetWorktree returns one worktree by id or slug
// @Summary Get a worktree
// @Tags worktrees
// @Produce json
// @Param ref path string true "Worktree id"
// @Success 200 {object} models.Worktree
// @Router /api/worktrees/{ref} [get]
func (h *WorktreesHandler) GetWorktree(c *fiber.Ctx) error {
	worktree, err := h.worktrees.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(worktree)
}

// DeleteWorktree removes the checkout and soft-deletes the record
// @Summary Delete a worktree
// @Tags worktrees
// @Produce json
// @Param ref path string true "Worktree id"
// @Success 200 {object} models.Worktree
// @Router /api/worktrees/{ref} [delete]
func (h *WorktreesHandler) DeleteWorktree(c *fiber.Ctx) error {
	worktree, err := h.worktrees.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	repo, err := h.repos.GetByID(c.UserContext(), worktree.RepoID)
	if err != nil {
		return respondError(c, err)
	}

	deleted, err := h.worktrees.Delete(c.UserContext(), repo, worktree.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(deleted)
}
