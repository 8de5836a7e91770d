package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
	"github.com/conductor-sh/conductor/internal/tui/components"
)

// Init arms the snapshot listener and the refresh tick. The poller runs an
// immediate pass on start, so the first snapshot arrives right away.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForSnapshot(), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.inspector.Width = max(20, msg.Width-8)
		m.inspector.Height = max(5, msg.Height-9)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		return m.handleSnapshot(msg)

	case tickMsg:
		return m.handleTick()

	case syncDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.err = fmt.Errorf("sync %s: %w", msg.slug, msg.err)
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("%s: %d synced, %d closed", msg.slug, msg.result.Synced, msg.result.Closed)
		return m, nil

	case actionDoneMsg:
		m.status = msg.status
		m.err = nil
		return m, nil

	case worktreeCreatedMsg:
		return m.handleWorktreeCreated(msg)

	case runEventsMsg:
		return m.handleRunEvents(msg)

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) handleSnapshot(msg snapshotMsg) (tea.Model, tea.Cmd) {
	m.snapshot = services.Snapshot(msg)
	m.ready = true
	m.clampCursors()

	// Keep the inspected run's status current as snapshots arrive.
	if m.inspecting && m.inspectorRun != nil {
		if run := m.latestRun(m.inspectorRun.WorktreeID); run != nil && run.ID == m.inspectorRun.ID {
			m.inspectorRun = run
		}
	}
	return m, m.waitForSnapshot()
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{tick()}
	// A running inspected agent re-reads its log every second.
	if m.inspecting && m.inspectorRun != nil && m.inspectorRun.Status == models.RunRunning {
		cmds = append(cmds, loadRunEventsCmd(*m.inspectorRun))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleWorktreeCreated(msg worktreeCreatedMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	m.status = fmt.Sprintf("Created %s on %s", msg.worktree.Slug, msg.worktree.Branch)
	if msg.ticket == nil {
		return m, nil
	}

	switch m.deps.Config.AutoStartAgent() {
	case config.AutoStartAlways:
		m.status = "Created " + msg.worktree.Slug + ", starting agent..."
		return m, m.startAgentCmd(msg.worktree.ID, ticketPrompt(msg.ticket))
	case config.AutoStartNever:
		return m, nil
	default:
		// Ask: open the prompt modal seeded from the ticket, and let the
		// user rewrite or cancel.
		return m.openAgentPromptModal(msg.worktree, "Work on this ticket: "+msg.ticket.Title)
	}
}

func (m Model) handleRunEvents(msg runEventsMsg) (tea.Model, tea.Cmd) {
	if !m.inspecting || m.inspectorRun == nil || m.inspectorRun.ID != msg.runID {
		return m, nil
	}
	atBottom := m.inspector.AtBottom()
	m.inspector.SetContent(renderRunEvents(msg.events, m.inspector.Width))
	if atBottom {
		m.inspector.GotoBottom()
	}
	return m, nil
}

// handleKey routes keys by precedence: a modal owns the keyboard, then the
// inspector, then the board.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeNone {
		return m.handleModalKey(msg)
	}
	if m.inspecting {
		return m.handleInspectorKey(msg)
	}
	return m.handleBoardKey(msg)
}

func (m Model) handleModalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case components.KeyEscape:
		m.closeModal()
		m.status = "Cancelled"
		return m, nil
	case components.KeyEnter:
		return m.submitModal()
	case components.KeyQuitAlt:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitModal() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())

	switch m.mode {
	case modeNewWorktree:
		if value == "" {
			m.status = "Name required"
			return m, nil
		}
		repo := m.selectedRepo()
		if repo == nil {
			m.closeModal()
			return m, nil
		}
		ticket := m.modalTicket
		m.closeModal()
		m.status = "Creating " + value + "..."
		return m, m.createWorktreeCmd(*repo, value, ticket)

	case modeAgentPrompt:
		if value == "" {
			m.status = "Prompt required"
			return m, nil
		}
		worktree := m.modalWorktree
		m.closeModal()
		if worktree == nil {
			return m, nil
		}
		m.status = "Starting agent on " + worktree.Slug + "..."
		return m, m.startAgentCmd(worktree.ID, value)

	case modeSessionNotes:
		var notes *string
		if value != "" {
			notes = &value
		}
		m.closeModal()
		m.status = "Ending session..."
		return m, m.toggleSessionCmd(notes)
	}

	m.closeModal()
	return m, nil
}

func (m *Model) closeModal() {
	m.mode = modeNone
	m.modalTicket = nil
	m.modalWorktree = nil
	m.input.Reset()
	m.input.Blur()
}

func (m Model) handleInspectorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case components.KeyEscape, components.KeyQuit:
		m.inspecting = false
		m.inspectorRun = nil
		return m, nil
	case components.KeyQuitAlt:
		return m, tea.Quit
	case components.KeyRefresh:
		if m.inspectorRun != nil {
			return m, loadRunEventsCmd(*m.inspectorRun)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.inspector, cmd = m.inspector.Update(msg)
	return m, cmd
}

func (m Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch {
	case key == components.KeyQuit || key == components.KeyQuitAlt:
		return m, tea.Quit

	case key == components.KeyTab:
		m.focus = (m.focus + 1) % 3
		return m, nil

	case components.IsNavUp(key):
		m.moveCursor(-1)
		return m, nil

	case components.IsNavDown(key):
		m.moveCursor(1)
		return m, nil

	case key == components.KeyEnter:
		return m.handleEnter()

	case key == components.KeyNewWorktree:
		return m.openNewWorktreeModal(nil)

	case key == components.KeyStartAgent:
		worktree := m.selectedWorktree()
		if worktree == nil {
			m.status = "No worktree selected"
			return m, nil
		}
		return m.openAgentPromptModal(worktree, "")

	case key == components.KeyStopAgent:
		worktree := m.selectedWorktree()
		if worktree == nil {
			m.status = "No worktree selected"
			return m, nil
		}
		m.status = "Stopping agent on " + worktree.Slug + "..."
		return m, m.stopAgentCmd(worktree.ID)

	case key == components.KeySync:
		repo := m.selectedRepo()
		if repo == nil {
			m.status = "No repo selected"
			return m, nil
		}
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		m.status = "Syncing " + repo.Slug + "..."
		return m, tea.Batch(m.syncRepoCmd(*repo), m.spinner.Tick)

	case key == components.KeySession:
		if m.snapshot.CurrentSession == nil {
			m.status = "Starting session..."
			return m, m.toggleSessionCmd(nil)
		}
		m.mode = modeSessionNotes
		m.input.Placeholder = "Closing notes (optional)"
		m.input.Focus()
		return m, textinput.Blink

	case key == components.KeyDelete:
		repo := m.selectedRepo()
		worktree := m.selectedWorktree()
		if repo == nil || worktree == nil {
			m.status = "No worktree selected"
			return m, nil
		}
		m.status = "Deleting " + worktree.Slug + "..."
		return m, m.deleteWorktreeCmd(*repo, worktree.ID)

	case key == components.KeyRefresh:
		m.deps.Poller.Poke()
		m.status = "Refreshing..."
		return m, nil
	}

	return m, nil
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusRepos:
		if m.selectedRepo() != nil {
			m.focus = focusWorktrees
		}
		return m, nil

	case focusWorktrees:
		worktree := m.selectedWorktree()
		if worktree == nil {
			return m, nil
		}
		run := m.latestRun(worktree.ID)
		if run == nil {
			m.status = "No runs on " + worktree.Slug
			return m, nil
		}
		m.inspecting = true
		m.inspectorRun = run
		m.inspector.SetContent(components.MutedStyle.Render("Loading log..."))
		m.inspector.GotoTop()
		return m, loadRunEventsCmd(*run)

	case focusTickets:
		ticket := m.selectedTicket()
		if ticket == nil {
			return m, nil
		}
		return m.openNewWorktreeModal(ticket)
	}
	return m, nil
}

// openNewWorktreeModal collects a worktree name, optionally bound to the
// ticket the cursor was on. The manager slugifies whatever comes in.
func (m Model) openNewWorktreeModal(ticket *models.Ticket) (tea.Model, tea.Cmd) {
	if m.selectedRepo() == nil {
		m.status = "Register a repo first: conductor repo add <url>"
		return m, nil
	}
	m.mode = modeNewWorktree
	if ticket != nil {
		t := *ticket
		m.modalTicket = &t
		m.input.SetValue(ticket.Title)
		m.input.CursorEnd()
	}
	m.input.Placeholder = "Worktree name"
	m.input.Focus()
	return m, textinput.Blink
}

func (m Model) openAgentPromptModal(worktree *models.Worktree, prefill string) (tea.Model, tea.Cmd) {
	m.mode = modeAgentPrompt
	w := *worktree
	m.modalWorktree = &w
	m.input.Placeholder = "Prompt"
	if prefill != "" {
		m.input.SetValue(prefill)
		m.input.CursorEnd()
	}
	m.input.Focus()
	return m, textinput.Blink
}

// moveCursor shifts the focused pane's cursor, clamped to its rows. Moving
// the repo cursor resets the dependent panes.
func (m *Model) moveCursor(delta int) {
	switch m.focus {
	case focusRepos:
		m.repoIdx = clampIndex(m.repoIdx+delta, len(m.snapshot.Repos))
		m.worktreeIdx = 0
		m.ticketIdx = 0
	case focusWorktrees:
		m.worktreeIdx = clampIndex(m.worktreeIdx+delta, len(m.repoWorktrees()))
	case focusTickets:
		m.ticketIdx = clampIndex(m.ticketIdx+delta, len(m.repoTickets()))
	}
}

func clampIndex(idx, n int) int {
	if n == 0 || idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
