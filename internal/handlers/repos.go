// Package handlers exposes conductor's managers over HTTP: JSON resource
// endpoints under /api plus the SSE event stream the frontends subscribe to.
package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

// ReposHandler serves repository registration and issue-source endpoints.
type ReposHandler struct {
	repos   *services.RepoManager
	sources *services.SourceManager
}

// NewReposHandler creates a new repos handler.
func NewReposHandler(repos *services.RepoManager, sources *services.SourceManager) *ReposHandler {
	return &ReposHandler{repos: repos, sources: sources}
}

// AddRepoRequest is the body for registering a repository.
type AddRepoRequest struct {
	URL       string `json:"url"`
	Slug      string `json:"slug"`
	LocalPath string `json:"local_path"`
	Workspace string `json:"workspace"`
}

// AddSourceRequest is the body for attaching an issue source.
type AddSourceRequest struct {
	Kind   models.SourceKind `json:"kind"`
	Config json.RawMessage   `json:"config"`
}

// ListRepos returns all registered repositories
// @Summary List repositories
// @Tags repos
// @Produce json
// @Success 200 {array} models.Repo
// @Router /api/repos [get]
func (h *ReposHandler) ListRepos(c *fiber.Ctx) error {
	repos, err := h.repos.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(repos)
}

// AddRepo registers a repository
// @Summary Register a repository
// @Tags repos
// @Accept json
// @Produce json
// @Param request body AddRepoRequest true "Repository to register"
// @Success 201 {object} models.Repo
// @Router /api/repos [post]
func (h *ReposHandler) AddRepo(c *fiber.Ctx) error {
	var req AddRepoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	repo, err := h.repos.Add(c.UserContext(), services.AddRepoOptions{
		RemoteURL: req.URL,
		Slug:      req.Slug,
		LocalPath: req.LocalPath,
		Workspace: req.Workspace,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(repo)
}

// GetRepo returns one repository by id or slug
// @Summary Get a repository
// @Tags repos
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Success 200 {object} models.Repo
// @Router /api/repos/{ref} [get]
func (h *ReposHandler) GetRepo(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(repo)
}

// RemoveRepo unregisters a repository and everything hanging off it
// @Summary Remove a repository
// @Tags repos
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Success 200 {object} map[string]string
// @Router /api/repos/{ref} [delete]
func (h *ReposHandler) RemoveRepo(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	if err := h.repos.Remove(c.UserContext(), repo.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"removed": repo.Slug})
}

// ListSources returns the repo's issue sources
// @Summary List issue sources
// @Tags sources
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Success 200 {array} models.IssueSource
// @Router /api/repos/{ref}/sources [get]
func (h *ReposHandler) ListSources(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	sources, err := h.sources.List(c.UserContext(), repo.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sources)
}

// AddSource attaches an issue source to the repo
// @Summary Attach an issue source
// @Tags sources
// @Accept json
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Param request body AddSourceRequest true "Source to attach"
// @Success 201 {object} models.IssueSource
// @Router /api/repos/{ref}/sources [post]
func (h *ReposHandler) AddSource(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}

	var req AddSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	source, err := h.sources.Add(c.UserContext(), repo, req.Kind, string(req.Config))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(source)
}

// RemoveSource detaches an issue source
// @Summary Detach an issue source
// @Tags sources
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Param sourceId path string true "Source id"
// @Success 200 {object} map[string]string
// @Router /api/repos/{ref}/sources/{sourceId} [delete]
func (h *ReposHandler) RemoveSource(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	source, err := h.sources.Get(c.UserContext(), c.Params("sourceId"))
	if err != nil {
		return respondError(c, err)
	}
	if source.RepoID != repo.ID {
		return respondError(c, models.ErrSourceNotFound)
	}
	if err := h.sources.Remove(c.UserContext(), source.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"removed": source.ID})
}
