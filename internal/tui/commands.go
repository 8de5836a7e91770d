package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

// actionTimeout bounds writes issued from the board. Sync gets longer since
// it shells out to provider CLIs.
const (
	actionTimeout = 10 * time.Second
	syncTimeout   = 2 * time.Minute
)

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForSnapshot blocks on the poller's channel and re-arms after every
// delivery. The channel always holds the freshest state, never a backlog.
func (m Model) waitForSnapshot() tea.Cmd {
	ch := m.deps.Poller.Snapshots()
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m Model) syncRepoCmd(repo models.Repo) tea.Cmd {
	syncer := m.deps.Syncer
	poller := m.deps.Poller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		result, err := syncer.SyncRepo(ctx, &repo)
		poller.Poke()
		return syncDoneMsg{slug: repo.Slug, result: result, err: err}
	}
}

func (m Model) createWorktreeCmd(repo models.Repo, name string, ticket *models.Ticket) tea.Cmd {
	worktrees := m.deps.Worktrees
	sessions := m.deps.Sessions
	poller := m.deps.Poller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		var ticketID *string
		if ticket != nil {
			ticketID = &ticket.ID
		}
		worktree, err := worktrees.Create(ctx, &repo, name, "", ticketID)
		if err != nil {
			return errMsg{err}
		}
		if err := sessions.AttachCurrent(ctx, worktree.ID); err != nil {
			return errMsg{err}
		}
		poller.Poke()
		return worktreeCreatedMsg{worktree: worktree, ticket: ticket}
	}
}

func (m Model) deleteWorktreeCmd(repo models.Repo, name string) tea.Cmd {
	worktrees := m.deps.Worktrees
	poller := m.deps.Poller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		worktree, err := worktrees.Delete(ctx, &repo, name)
		if err != nil {
			return errMsg{err}
		}
		poller.Poke()
		return actionDoneMsg{status: fmt.Sprintf("Deleted %s (%s)", worktree.Slug, worktree.Status)}
	}
}

func (m Model) startAgentCmd(worktreeID, prompt string) tea.Cmd {
	runner := m.deps.Runner
	sessions := m.deps.Sessions
	poller := m.deps.Poller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		run, err := runner.StartAgent(ctx, worktreeID, prompt, false)
		if err != nil {
			return errMsg{err}
		}
		if err := sessions.AttachCurrent(ctx, worktreeID); err != nil {
			return errMsg{err}
		}
		poller.Poke()
		return actionDoneMsg{status: "Agent started in window " + deref(run.TmuxWindow)}
	}
}

func (m Model) stopAgentCmd(worktreeID string) tea.Cmd {
	runner := m.deps.Runner
	poller := m.deps.Poller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		run, err := runner.StopAgent(ctx, worktreeID)
		if err != nil {
			return errMsg{err}
		}
		poller.Poke()
		return actionDoneMsg{status: fmt.Sprintf("Cancelled run %s", run.ID[:8])}
	}
}

// toggleSessionCmd starts a session when none is open; notes end the open
// one.
func (m Model) toggleSessionCmd(notes *string) tea.Cmd {
	sessions := m.deps.Sessions
	poller := m.deps.Poller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		current, err := sessions.Current(ctx)
		if err != nil {
			return errMsg{err}
		}

		if current == nil {
			session, err := sessions.Start(ctx)
			if err != nil {
				return errMsg{err}
			}
			poller.Poke()
			return actionDoneMsg{status: "Session " + session.ID[:8] + " started"}
		}

		session, err := sessions.End(ctx, notes)
		if err != nil {
			return errMsg{err}
		}
		poller.Poke()
		return actionDoneMsg{status: fmt.Sprintf("Session ended after %s",
			session.EndedAt.Sub(session.StartedAt).Round(time.Minute))}
	}
}

// loadRunEventsCmd replays the run's log for the inspector.
func loadRunEventsCmd(run models.AgentRun) tea.Cmd {
	return func() tea.Msg {
		if run.LogFile == nil {
			return runEventsMsg{runID: run.ID}
		}
		agentEvents, err := services.ParseAgentLog(*run.LogFile)
		if err != nil {
			return runEventsMsg{runID: run.ID}
		}
		return runEventsMsg{runID: run.ID, events: agentEvents}
	}
}

// ticketPrompt is the canned agent prompt for a worktree cut from a ticket.
func ticketPrompt(ticket *models.Ticket) string {
	prompt := fmt.Sprintf("Work on this ticket: %s", ticket.Title)
	if ticket.Body != "" {
		prompt += "\n\n" + ticket.Body
	}
	if ticket.URL != "" {
		prompt += "\n\nTicket URL: " + ticket.URL
	}
	return prompt
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
