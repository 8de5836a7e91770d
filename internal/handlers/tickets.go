package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

// TicketsHandler serves ticket queries and the synchronous sync endpoint.
type TicketsHandler struct {
	repos     *services.RepoManager
	syncer    *services.TicketSyncer
	worktrees *services.WorktreeManager
	agents    *services.AgentManager
}

// NewTicketsHandler creates a new tickets handler.
func NewTicketsHandler(repos *services.RepoManager, syncer *services.TicketSyncer, worktrees *services.WorktreeManager, agents *services.AgentManager) *TicketsHandler {
	return &TicketsHandler{repos: repos, syncer: syncer, worktrees: worktrees, agents: agents}
}

// TicketDetail is a ticket joined with its worktrees and agent spend.
type TicketDetail struct {
	Ticket    models.Ticket     `json:"ticket"`
	Worktrees []models.Worktree `json:"worktrees"`
	Totals    models.RunTotals  `json:"totals"`
}

// ListRepoTickets returns the repo's cached tickets
// @Summary List a repo's tickets
// @Tags tickets
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Success 200 {array} models.Ticket
// @Router /api/repos/{ref}/tickets [get]
func (h *TicketsHandler) ListRepoTickets(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	tickets, err := h.syncer.List(c.UserContext(), repo.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tickets)
}

// SyncRepoTickets reconciles the repo's tickets against its sources
// @Summary Sync a repo's tickets
// @Tags tickets
// @Produce json
// @Param ref path string true "Repository id or slug"
// @Success 200 {object} models.SyncResult
// @Router /api/repos/{ref}/tickets/sync [post]
func (h *TicketsHandler) SyncRepoTickets(c *fiber.Ctx) error {
	repo, err := h.repos.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	result, err := h.syncer.SyncRepo(c.UserContext(), repo)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// ListAllTickets returns cached tickets across every repo
// @Summary List all tickets
// @Tags tickets
// @Produce json
// @Success 200 {array} models.Ticket
// @Router /api/tickets [get]
func (h *TicketsHandler) ListAllTickets(c *fiber.Ctx) error {
	tickets, err := h.syncer.ListAll(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tickets)
}

// GetTicketDetail returns a ticket with its worktrees and agent totals
// @Summary Get ticket detail
// @Tags tickets
// @Produce json
// @Param id path string true "Ticket id"
// @Success 200 {object} TicketDetail
// @Router /api/tickets/{id}/detail [get]
func (h *TicketsHandler) GetTicketDetail(c *fiber.Ctx) error {
	ticket, err := h.syncer.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	worktrees, err := h.worktrees.ListForTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return respondError(c, err)
	}
	totals, err := h.agents.TotalsForTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(TicketDetail{Ticket: *ticket, Worktrees: worktrees, Totals: totals})
}
