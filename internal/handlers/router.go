package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/services"
)

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Version   string
	Config    *config.Config
	Bus       *events.Bus
	Repos     *services.RepoManager
	Sources   *services.SourceManager
	Syncer    *services.TicketSyncer
	Worktrees *services.WorktreeManager
	Agents    *services.AgentManager
	Runner    *services.AgentRunner
	Poller    *services.Poller
}

// NewRouter builds the fiber app with every /api route mounted.
func NewRouter(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "conductor",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(RequestLogger())

	repos := NewReposHandler(deps.Repos, deps.Sources)
	worktrees := NewWorktreesHandler(deps.Repos, deps.Worktrees)
	tickets := NewTicketsHandler(deps.Repos, deps.Syncer, deps.Worktrees, deps.Agents)
	agents := NewAgentsHandler(deps.Worktrees, deps.Agents, deps.Runner)
	cfg := NewConfigHandler(deps.Config)
	status := NewStatusHandler(deps.Version, deps.Poller, deps.Bus)
	stream := NewEventsHandler(deps.Bus)

	api := app.Group("/api")

	api.Get("/status", status.GetStatus)
	api.Get("/events", stream.HandleSSE)

	api.Get("/repos", repos.ListRepos)
	api.Post("/repos", repos.AddRepo)
	api.Get("/repos/:ref", repos.GetRepo)
	api.Delete("/repos/:ref", repos.RemoveRepo)
	api.Get("/repos/:ref/sources", repos.ListSources)
	api.Post("/repos/:ref/sources", repos.AddSource)
	api.Delete("/repos/:ref/sources/:sourceId", repos.RemoveSource)

	api.Get("/repos/:ref/worktrees", worktrees.ListWorktrees)
	api.Post("/repos/:ref/worktrees", worktrees.CreateWorktree)
	api.Get("/worktrees/:ref", worktrees.GetWorktree)
	api.Delete("/worktrees/:ref", worktrees.DeleteWorktree)

	api.Get("/repos/:ref/tickets", tickets.ListRepoTickets)
	api.Post("/repos/:ref/tickets/sync", tickets.SyncRepoTickets)
	api.Get("/tickets", tickets.ListAllTickets)
	api.Get("/tickets/:id/detail", tickets.GetTicketDetail)

	api.Get("/worktrees/:ref/agent-runs", agents.ListRuns)
	api.Post("/worktrees/:ref/agent/start", agents.StartAgent)
	api.Post("/worktrees/:ref/agent/stop", agents.StopAgent)
	api.Get("/worktrees/:ref/agent/events", agents.GetAgentEvents)
	api.Get("/worktrees/:ref/agent/prompt", agents.GetAgentPrompt)
	api.Get("/agent/latest-runs", agents.LatestRuns)
	api.Get("/agent/ticket-totals", agents.TicketTotals)

	api.Get("/config/work-targets", cfg.ListWorkTargets)
	api.Post("/config/work-targets", cfg.AddWorkTarget)
	api.Put("/config/work-targets", cfg.UpdateWorkTarget)
	api.Delete("/config/work-targets/:index", cfg.RemoveWorkTarget)

	return app
}
