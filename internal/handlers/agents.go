package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

// AgentsHandler serves agent-run control and inspection endpoints.
type AgentsHandler struct {
	worktrees *services.WorktreeManager
	agents    *services.AgentManager
	runner    *services.AgentRunner
}

// NewAgentsHandler creates a new agents handler.
func NewAgentsHandler(worktrees *services.WorktreeManager, agents *services.AgentManager, runner *services.AgentRunner) *AgentsHandler {
	return &AgentsHandler{worktrees: worktrees, agents: agents, runner: runner}
}

// StartAgentRequest is the body for launching an agent run.
type StartAgentRequest struct {
	Prompt string `json:"prompt"`
	Resume bool   `json:"resume"`
}

// ListRuns returns the worktree's agent runs, newest first
// @Summary List agent runs
// @Tags agents
// @Produce json
// @Param ref path string true "Worktree id"
// @Success 200 {array} models.AgentRun
// @Router /api/worktrees/{ref}/agent-runs [get]
func (h *AgentsHandler) ListRuns(c *fiber.Ctx) error {
	worktree, err := h.worktrees.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	runs, err := h.agents.ListForWorktree(c.UserContext(), worktree.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(runs)
}

// StartAgent launches an agent run in a tmux window
// @Summary Start an agent
// @Tags agents
// @Accept json
// @Produce json
// @Param ref path string true "Worktree id"
// @Param request body StartAgentRequest true "Prompt and resume flag"
// @Success 201 {object} models.AgentRun
// @Router /api/worktrees/{ref}/agent/start [post]
func (h *AgentsHandler) StartAgent(c *fiber.Ctx) error {
	var req StartAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Prompt is required",
		})
	}

	run, err := h.runner.StartAgent(c.UserContext(), c.Params("ref"), req.Prompt, req.Resume)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(run)
}

// StopAgent cancels the worktree's running agent
// @Summary Stop an agent
// @Tags agents
// @Produce json
// @Param ref path string true "Worktree id"
// @Success 200 {object} models.AgentRun
// @Router /api/worktrees/{ref}/agent/stop [post]
func (h *AgentsHandler) StopAgent(c *fiber.Ctx) error {
	run, err := h.runner.StopAgent(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(run)
}

// GetAgentEvents replays the latest run's log as display events
// @Summary Get agent log events
// @Tags agents
// @Produce json
// @Param ref path string true "Worktree id"
// @Success 200 {array} models.AgentLogEvent
// @Router /api/worktrees/{ref}/agent/events [get]
func (h *AgentsHandler) GetAgentEvents(c *fiber.Ctx) error {
	run, err := h.latestRun(c)
	if err != nil {
		return respondError(c, err)
	}

	if run.LogFile == nil {
		return c.JSON([]models.AgentLogEvent{})
	}
	agentEvents, err := services.ParseAgentLog(*run.LogFile)
	if err != nil {
		return respondError(c, err)
	}
	if agentEvents == nil {
		agentEvents = []models.AgentLogEvent{}
	}
	return c.JSON(agentEvents)
}

// GetAgentPrompt returns the latest run's prompt
// @Summary Get agent prompt
// @Tags agents
// @Produce json
// @Param ref path string true "Worktree id"
// @Success 200 {object} map[string]string
// @Router /api/worktrees/{ref}/agent/prompt [get]
func (h *AgentsHandler) GetAgentPrompt(c *fiber.Ctx) error {
	run, err := h.latestRun(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"run_id": run.ID,
		"prompt": run.Prompt,
	})
}

// LatestRuns returns each worktree's most recent run
// @Summary Latest run per worktree
// @Tags agents
// @Produce json
// @Success 200 {object} map[string]models.AgentRun
// @Router /api/agent/latest-runs [get]
func (h *AgentsHandler) LatestRuns(c *fiber.Ctx) error {
	runs, err := h.agents.LatestRunsByWorktree(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(runs)
}

// TicketTotals returns agent spend aggregated per linked ticket
// @Summary Agent totals per ticket
// @Tags agents
// @Produce json
// @Success 200 {object} map[string]models.RunTotals
// @Router /api/agent/ticket-totals [get]
func (h *AgentsHandler) TicketTotals(c *fiber.Ctx) error {
	totals, err := h.agents.TicketTotals(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(totals)
}

// latestRun resolves the worktree in :ref and its most recent run, treating
// a runless worktree as not found.
func (h *AgentsHandler) latestRun(c *fiber.Ctx) (*models.AgentRun, error) {
	worktree, err := h.worktrees.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return nil, err
	}
	run, err := h.agents.LatestForWorktree(c.UserContext(), worktree.ID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, models.ErrRunNotFound
	}
	return run, nil
}
