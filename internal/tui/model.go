package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
	"github.com/conductor-sh/conductor/internal/tui/components"
)

// focusArea is the pane holding the cursor.
type focusArea int

const (
	focusRepos focusArea = iota
	focusWorktrees
	focusTickets
)

// inputMode says what the modal text input is collecting.
type inputMode int

const (
	modeNone inputMode = iota
	modeNewWorktree
	modeAgentPrompt
	modeSessionNotes
)

// Deps are the managers the TUI drives. Reads come from poller snapshots;
// writes go through the same manager APIs the HTTP layer serves, followed
// by a poke of the poller.
type Deps struct {
	Version   string
	Config    *config.Config
	Syncer    *services.TicketSyncer
	Worktrees *services.WorktreeManager
	Sessions  *services.SessionManager
	Runner    *services.AgentRunner
	Poller    *services.Poller
}

// Model is the whole TUI state: the latest snapshot, cursor positions, and
// whichever overlay (inspector or modal input) is active.
type Model struct {
	deps Deps

	snapshot services.Snapshot
	ready    bool

	focus       focusArea
	repoIdx     int
	worktreeIdx int
	ticketIdx   int

	// Run inspector overlay.
	inspecting   bool
	inspectorRun *models.AgentRun
	inspector    viewport.Model

	// Modal input overlay. modalTicket backs a new-worktree modal cut from
	// a ticket; modalWorktree backs an agent-prompt modal.
	mode          inputMode
	input         textinput.Model
	modalTicket   *models.Ticket
	modalWorktree *models.Worktree

	spinner spinner.Model
	syncing bool

	status string
	err    error

	width  int
	height int
}

func newModel(deps Deps) Model {
	input := textinput.New()
	input.CharLimit = 200
	input.Width = 50
	input.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(components.ColorPrimary)).Bold(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(components.ColorWarning))

	return Model{
		deps:      deps,
		input:     input,
		spinner:   s,
		inspector: viewport.New(80, 20),
		status:    "Waiting for first snapshot...",
	}
}

func (m *Model) selectedRepo() *models.Repo {
	if m.repoIdx < 0 || m.repoIdx >= len(m.snapshot.Repos) {
		return nil
	}
	return &m.snapshot.Repos[m.repoIdx]
}

// repoWorktrees returns the selected repo's worktrees in snapshot order,
// which is active first, newest first.
func (m *Model) repoWorktrees() []models.Worktree {
	repo := m.selectedRepo()
	if repo == nil {
		return nil
	}
	var out []models.Worktree
	for _, worktree := range m.snapshot.Worktrees {
		if worktree.RepoID == repo.ID {
			out = append(out, worktree)
		}
	}
	return out
}

func (m *Model) repoTickets() []models.Ticket {
	repo := m.selectedRepo()
	if repo == nil {
		return nil
	}
	var out []models.Ticket
	for _, ticket := range m.snapshot.Tickets {
		if ticket.RepoID == repo.ID {
			out = append(out, ticket)
		}
	}
	return out
}

func (m *Model) selectedWorktree() *models.Worktree {
	worktrees := m.repoWorktrees()
	if m.worktreeIdx < 0 || m.worktreeIdx >= len(worktrees) {
		return nil
	}
	return &worktrees[m.worktreeIdx]
}

func (m *Model) selectedTicket() *models.Ticket {
	tickets := m.repoTickets()
	if m.ticketIdx < 0 || m.ticketIdx >= len(tickets) {
		return nil
	}
	return &tickets[m.ticketIdx]
}

func (m *Model) latestRun(worktreeID string) *models.AgentRun {
	run, ok := m.snapshot.LatestRuns[worktreeID]
	if !ok {
		return nil
	}
	return &run
}

// inSession reports whether the worktree is attached to the open session.
func (m *Model) inSession(worktreeID string) bool {
	for _, id := range m.snapshot.SessionWorktreeIDs {
		if id == worktreeID {
			return true
		}
	}
	return false
}

// clampCursors keeps every cursor inside its pane after a snapshot swap.
func (m *Model) clampCursors() {
	if m.repoIdx >= len(m.snapshot.Repos) {
		m.repoIdx = len(m.snapshot.Repos) - 1
	}
	if m.repoIdx < 0 {
		m.repoIdx = 0
	}
	if n := len(m.repoWorktrees()); m.worktreeIdx >= n {
		m.worktreeIdx = n - 1
	}
	if m.worktreeIdx < 0 {
		m.worktreeIdx = 0
	}
	if n := len(m.repoTickets()); m.ticketIdx >= n {
		m.ticketIdx = n - 1
	}
	if m.ticketIdx < 0 {
		m.ticketIdx = 0
	}
}
