package cmd

import (
	"fmt"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/git"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/services"
	"github.com/conductor-sh/conductor/internal/tools"
)

// appContext is the wired application: one store, one bus, and every
// manager the frontends share. CLI commands build one per invocation; serve
// and the TUI keep one alive for the process lifetime.
type appContext struct {
	cfg   *config.Config
	store *db.Store
	bus   *events.Bus

	repos     *services.RepoManager
	sources   *services.SourceManager
	syncer    *services.TicketSyncer
	worktrees *services.WorktreeManager
	sessions  *services.SessionManager
	agents    *services.AgentManager
	runner    *services.AgentRunner

	poller    *services.Poller
	scheduler *services.SyncScheduler
	watcher   *services.AgentWatcher
}

// newAppContext opens the conductor directory, runs migrations and wires
// the managers. Migrations complete before any caller sees the context.
func newAppContext() (*appContext, error) {
	if err := config.EnsureLayout(); err != nil {
		return nil, fmt.Errorf("failed to prepare conductor directory: %w", err)
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	store, err := db.Open(config.DBPath())
	if err != nil {
		return nil, err
	}

	a := &appContext{
		cfg:   cfg,
		store: store,
		bus:   events.NewBus(),
	}
	a.repos = services.NewRepoManager(store, cfg, a.bus)
	a.sources = services.NewSourceManager(store, a.bus)
	a.syncer = services.NewTicketSyncer(store, a.sources, a.bus, tools.NewCLIFetcher())
	a.worktrees = services.NewWorktreeManager(store, cfg, a.bus, git.NewShellExecutor())
	a.sessions = services.NewSessionManager(store, a.bus)
	a.agents = services.NewAgentManager(store)
	a.runner = services.NewAgentRunner(a.agents, a.worktrees, tools.NewTmux(), a.bus)

	a.poller = services.NewPoller(a.repos, a.worktrees, a.syncer, a.sessions, a.agents, a.bus)
	a.scheduler = services.NewSyncScheduler(a.repos, a.syncer, cfg, a.bus)
	a.watcher = services.NewAgentWatcher(a.agents, a.bus)
	return a, nil
}

// startWorkers brings up the background fabric for long-lived frontends.
func (a *appContext) startWorkers() {
	a.poller.Start()
	a.scheduler.Start()
	if err := a.watcher.Start(); err != nil {
		logger.Logger.Warn().Err(err).Msg("agent log watcher unavailable")
	}
}

func (a *appContext) stopWorkers() {
	a.watcher.Stop()
	a.scheduler.Stop()
	a.poller.Stop()
}

func (a *appContext) Close() {
	if err := a.store.Close(); err != nil {
		logger.Logger.Warn().Err(err).Msg("failed to close store")
	}
}
