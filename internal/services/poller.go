package services

import (
	"context"
	"time"

	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/recovery"
)

// pollInterval is the baseline snapshot cadence. Agent runs finish in a
// separate process whose only footprint is the database, so polling is what
// turns their terminal transitions into events.
const pollInterval = 2 * time.Second

// Snapshot is one consistent read of everything the frontends display.
type Snapshot struct {
	Repos              []models.Repo
	Worktrees          []models.Worktree
	Tickets            []models.Ticket
	CurrentSession     *models.Session
	SessionWorktreeIDs []string
	LatestRuns         map[string]models.AgentRun
	TicketTotals       map[string]models.RunTotals
	CollectedAt        time.Time
}

// Poller periodically collects snapshots, publishes agent terminal
// transitions it observes between them, and feeds the latest snapshot to
// whoever listens. The snapshot channel holds one element; a slow consumer
// gets the freshest state, never a backlog.
type Poller struct {
	repos     *RepoManager
	worktrees *WorktreeManager
	tickets   *TicketSyncer
	sessions  *SessionManager
	agents    *AgentManager
	bus       *events.Bus

	interval  time.Duration
	snapshots chan Snapshot
	poke      chan struct{}
	stopCh    chan struct{}

	// prevRuns tracks run statuses between passes, keyed by run id.
	prevRuns map[string]models.RunStatus
}

// NewPoller creates a poller over the given managers.
func NewPoller(repos *RepoManager, worktrees *WorktreeManager, tickets *TicketSyncer, sessions *SessionManager, agents *AgentManager, bus *events.Bus) *Poller {
	return &Poller{
		repos:     repos,
		worktrees: worktrees,
		tickets:   tickets,
		sessions:  sessions,
		agents:    agents,
		bus:       bus,
		interval:  pollInterval,
		snapshots: make(chan Snapshot, 1),
		poke:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		prevRuns:  make(map[string]models.RunStatus),
	}
}

// Snapshots returns the feed of collected snapshots.
func (p *Poller) Snapshots() <-chan Snapshot {
	return p.snapshots
}

// Poke requests an immediate pass without waiting for the next tick.
func (p *Poller) Poke() {
	select {
	case p.poke <- struct{}{}:
	default:
	}
}

// Start launches the poll loop.
func (p *Poller) Start() {
	recovery.SafeGo("poller", p.loop)
}

// Stop halts the poll loop.
func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pass()
	for {
		select {
		case <-ticker.C:
			p.pass()
		case <-p.poke:
			p.pass()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := p.Collect(ctx)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("snapshot collection failed")
		return
	}

	p.publishTransitions(snap.LatestRuns)

	// Replace a stale pending snapshot rather than queueing behind it.
	select {
	case p.snapshots <- snap:
	default:
		select {
		case <-p.snapshots:
		default:
		}
		select {
		case p.snapshots <- snap:
		default:
		}
	}
}

// Collect gathers one snapshot from the store.
func (p *Poller) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{CollectedAt: time.Now().UTC()}

	var err error
	if snap.Repos, err = p.repos.List(ctx); err != nil {
		return snap, err
	}
	if snap.Worktrees, err = p.worktrees.ListAll(ctx); err != nil {
		return snap, err
	}
	if snap.Tickets, err = p.tickets.ListAll(ctx); err != nil {
		return snap, err
	}
	if snap.CurrentSession, err = p.sessions.Current(ctx); err != nil {
		return snap, err
	}
	if snap.CurrentSession != nil {
		if snap.SessionWorktreeIDs, err = p.sessions.WorktreeIDs(ctx, snap.CurrentSession.ID); err != nil {
			return snap, err
		}
	}
	if snap.LatestRuns, err = p.agents.LatestRunsByWorktree(ctx); err != nil {
		return snap, err
	}
	if snap.TicketTotals, err = p.agents.TicketTotals(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

// publishTransitions announces runs that left the running state since the
// previous pass. The start and stop paths also announce inline on their own
// process's bus; subscribers tolerate duplicates.
func (p *Poller) publishTransitions(latest map[string]models.AgentRun) {
	next := make(map[string]models.RunStatus, len(latest))
	for _, run := range latest {
		next[run.ID] = run.Status

		prev, seen := p.prevRuns[run.ID]
		if !seen || prev != models.RunRunning || !run.Status.Terminal() {
			continue
		}

		payload := events.AgentPayload{RunID: run.ID, WorktreeID: run.WorktreeID}
		switch run.Status {
		case models.RunCompleted:
			p.bus.Publish(events.AgentCompleted, payload)
		case models.RunFailed:
			p.bus.Publish(events.AgentFailed, payload)
		case models.RunCancelled:
			p.bus.Publish(events.AgentCancelled, payload)
		}
	}
	p.prevRuns = next
}
