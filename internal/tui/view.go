package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/tui/components"
)

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 6 {
		return lipgloss.JoinVertical(lipgloss.Left, header,
			lipgloss.Place(m.width, max(1, bodyHeight), lipgloss.Center, lipgloss.Center,
				components.MutedStyle.Render("Terminal too small")),
			footer)
	}

	var body string
	switch {
	case m.mode != modeNone:
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, m.renderModal())
	case m.inspecting:
		body = m.renderInspector(bodyHeight)
	case !m.ready:
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center,
			components.MutedStyle.Render("Collecting first snapshot..."))
	default:
		body = m.renderBoard(bodyHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader() string {
	left := "🎛️  Conductor " + m.deps.Version

	right := components.MutedStyle.Render("no session")
	if s := m.snapshot.CurrentSession; s != nil {
		right = components.SessionOnStyle.Render(fmt.Sprintf("● session %s · %s",
			s.ID[:8], time.Since(s.StartedAt).Round(time.Minute)))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return components.HeaderStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderFooter() string {
	var status string
	switch {
	case m.err != nil:
		status = components.ErrorStyle.Render(truncate("✗ "+m.err.Error(), m.width-6))
	case m.syncing:
		status = m.spinner.View() + " " + truncate(m.status, m.width-8)
	default:
		status = truncate(m.status, m.width-6)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, status, m.helpLine())
	return components.FooterStyle.Width(m.width).Render(content)
}

func (m Model) helpLine() string {
	type entry struct{ key, desc string }
	var entries []entry
	switch {
	case m.mode != modeNone:
		entries = []entry{{"enter", "confirm"}, {"esc", "cancel"}}
	case m.inspecting:
		entries = []entry{{"j/k", "scroll"}, {"r", "reload"}, {"esc", "back"}}
	default:
		entries = []entry{
			{"tab", "pane"}, {"enter", "open"}, {"n", "worktree"}, {"a", "agent"},
			{"x", "stop"}, {"s", "sync"}, {"S", "session"}, {"d", "delete"},
			{"r", "refresh"}, {"q", "quit"},
		}
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, components.KeyHighlightStyle.Render(e.key)+" "+components.MutedStyle.Render(e.desc))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderBoard(bodyHeight int) string {
	repoW := m.width / 4
	if repoW < 24 {
		repoW = min(24, m.width/2)
	}
	rightW := m.width - repoW

	worktreeH := (bodyHeight * 3) / 5
	ticketH := bodyHeight - worktreeH

	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderWorktreePane(rightW, worktreeH),
		m.renderTicketPane(rightW, ticketH))
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderRepoPane(repoW, bodyHeight), right)
}

// pane draws a bordered, titled box with a fixed outer size. Lines must
// already be truncated to width-4.
func pane(title string, lines []string, width, height int, focused bool) string {
	style := components.PaneStyle
	if focused {
		style = components.PaneFocusedStyle
	}
	contentW := width - 2
	contentH := height - 2
	if contentW < 3 || contentH < 1 {
		return ""
	}

	rows := append([]string{components.PaneTitleStyle.Render(truncate(title, contentW-2))}, lines...)
	if len(rows) > contentH {
		rows = rows[:contentH]
	}
	return style.Width(contentW).Height(contentH).Render(strings.Join(rows, "\n"))
}

func (m Model) renderRepoPane(width, height int) string {
	textW := width - 4
	visible := height - 3

	var lines []string
	if len(m.snapshot.Repos) == 0 {
		lines = append(lines, components.MutedStyle.Render(truncate("conductor repo add <url>", textW)))
	}
	start, end := window(len(m.snapshot.Repos), visible, m.repoIdx)
	for i := start; i < end; i++ {
		row := truncate(m.snapshot.Repos[i].Slug, textW-2)
		if i == m.repoIdx {
			row = components.SelectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		lines = append(lines, row)
	}
	return pane(fmt.Sprintf("Repos (%d)", len(m.snapshot.Repos)), lines, width, height, m.focus == focusRepos)
}

func (m Model) renderWorktreePane(width, height int) string {
	textW := width - 4
	visible := height - 3
	worktrees := m.repoWorktrees()

	title := "Worktrees"
	if repo := m.selectedRepo(); repo != nil {
		title = fmt.Sprintf("Worktrees · %s (%d)", repo.Slug, len(worktrees))
	}

	var lines []string
	if len(worktrees) == 0 {
		lines = append(lines, components.MutedStyle.Render(truncate("No worktrees. Press n to create one.", textW)))
	}

	slugW := textW - 28
	if slugW < 8 {
		slugW = 8
	}
	start, end := window(len(worktrees), visible, m.worktreeIdx)
	for i := start; i < end; i++ {
		worktree := worktrees[i]

		slug := padRight(truncate(worktree.Slug, slugW), slugW)
		cursor := "  "
		if i == m.worktreeIdx {
			cursor = "> "
			slug = components.SelectedRowStyle.Render(slug)
		}

		ticketRef := components.MutedStyle.Render(padRight("-", 9))
		if worktree.TicketID != nil {
			if ticket := m.ticketByID(*worktree.TicketID); ticket != nil {
				ref := kindShort(ticket.SourceKind) + "#" + ticket.SourceID
				ticketRef = components.OpenStyle.Render(padRight(truncate(ref, 9), 9))
			}
		}

		sess := "    "
		if m.inSession(worktree.ID) {
			sess = components.SessionOnStyle.Render("sess")
		}

		lines = append(lines, cursor+slug+" "+m.worktreeStatusCell(worktree)+" "+ticketRef+" "+sess)
	}
	return pane(title, lines, width, height, m.focus == focusWorktrees)
}

func (m Model) worktreeStatusCell(worktree models.Worktree) string {
	if worktree.Status != models.WorktreeActive {
		return components.NeutralStyle.Render(padRight(string(worktree.Status), 10))
	}
	run := m.latestRun(worktree.ID)
	if run == nil {
		return components.MutedStyle.Render(padRight("idle", 10))
	}
	switch run.Status {
	case models.RunRunning:
		return components.RunningStyle.Render(padRight("● running", 10))
	case models.RunCompleted:
		return components.SuccessStyle.Render(padRight("✓ done", 10))
	case models.RunFailed:
		return components.FailedStyle.Render(padRight("✗ failed", 10))
	default:
		return components.NeutralStyle.Render(padRight("⊘ stopped", 10))
	}
}

func (m Model) renderTicketPane(width, height int) string {
	textW := width - 4
	visible := height - 3
	tickets := m.repoTickets()

	var lines []string
	if len(tickets) == 0 {
		lines = append(lines, components.MutedStyle.Render(truncate("No tickets. Press s to sync sources.", textW)))
	}

	titleW := textW - 26
	if titleW < 10 {
		titleW = 10
	}
	start, end := window(len(tickets), visible, m.ticketIdx)
	for i := start; i < end; i++ {
		ticket := tickets[i]

		cursor := "  "
		name := padRight(truncate(ticket.Title, titleW), titleW)
		if i == m.ticketIdx {
			cursor = "> "
			name = components.SelectedRowStyle.Render(name)
		}

		ref := padRight(truncate(kindShort(ticket.SourceKind)+"#"+ticket.SourceID, 10), 10)
		totals := ""
		if tt, ok := m.snapshot.TicketTotals[ticket.ID]; ok && tt.Runs > 0 {
			totals = components.MutedStyle.Render(fmt.Sprintf(" $%.2f · %d runs", tt.CostUSD, tt.Runs))
		}

		lines = append(lines, cursor+ticketStateGlyph(ticket.State)+" "+ref+" "+name+totals)
	}
	return pane(fmt.Sprintf("Tickets (%d)", len(tickets)), lines, width, height, m.focus == focusTickets)
}

func ticketStateGlyph(state models.TicketState) string {
	switch state {
	case models.TicketOpen:
		return components.OpenStyle.Render("○")
	case models.TicketInProgress:
		return components.RunningStyle.Render("◐")
	default:
		return components.NeutralStyle.Render("●")
	}
}

func (m Model) renderInspector(bodyHeight int) string {
	run := m.inspectorRun
	if run == nil {
		return lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center,
			components.MutedStyle.Render("No run selected"))
	}

	slug := run.WorktreeID
	if worktree := m.worktreeByID(run.WorktreeID); worktree != nil {
		slug = worktree.Slug
	}
	title := fmt.Sprintf("Run %s · %s · ", run.ID[:8], truncate(slug, 30)) + runStatusText(run.Status)

	content := lipgloss.JoinVertical(lipgloss.Left,
		components.PaneTitleStyle.Render(title),
		components.MutedStyle.Render(runMeta(run)),
		m.inspector.View())
	box := components.PaneFocusedStyle.Width(m.width - 4).Render(content)
	return lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, box)
}

func runStatusText(status models.RunStatus) string {
	switch status {
	case models.RunRunning:
		return components.RunningStyle.Render("running")
	case models.RunCompleted:
		return components.SuccessStyle.Render("completed")
	case models.RunFailed:
		return components.FailedStyle.Render("failed")
	default:
		return components.NeutralStyle.Render("cancelled")
	}
}

func runMeta(run *models.AgentRun) string {
	parts := []string{"started " + run.StartedAt.Format(time.Kitchen)}
	if run.CostUSD != nil {
		parts = append(parts, fmt.Sprintf("$%.4f", *run.CostUSD))
	}
	if run.Turns != nil {
		parts = append(parts, fmt.Sprintf("%d turns", *run.Turns))
	}
	if run.DurationMS != nil {
		parts = append(parts, (time.Duration(*run.DurationMS) * time.Millisecond).Round(time.Second).String())
	}
	return strings.Join(parts, " · ")
}

// renderRunEvents lays out replayed log events for the inspector viewport,
// wrapped to its width.
func renderRunEvents(events []models.AgentLogEvent, width int) string {
	if len(events) == 0 {
		return components.MutedStyle.Render("No log output yet.")
	}
	wrap := lipgloss.NewStyle().Width(width)
	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, wrap.Render(renderEventLine(event)))
	}
	return strings.Join(lines, "\n")
}

func renderEventLine(event models.AgentLogEvent) string {
	switch event.Kind {
	case models.AgentEventSystem:
		return components.MutedStyle.Render("● " + event.Summary)
	case models.AgentEventTool:
		return components.KeyHighlightStyle.Render("→ ") + event.Summary
	case models.AgentEventResult:
		return components.SuccessStyle.Render("✓ " + event.Summary)
	case models.AgentEventError:
		return components.ErrorStyle.Render("✗ " + event.Summary)
	default:
		return "  " + event.Summary
	}
}

func (m Model) renderModal() string {
	var title, context string
	switch m.mode {
	case modeNewWorktree:
		title = "New worktree"
		if repo := m.selectedRepo(); repo != nil {
			context = "in " + repo.Slug
		}
		if m.modalTicket != nil {
			context = fmt.Sprintf("from %s#%s · %s", kindShort(m.modalTicket.SourceKind),
				m.modalTicket.SourceID, truncate(m.modalTicket.Title, 40))
		}
	case modeAgentPrompt:
		title = "Start agent"
		if m.modalWorktree != nil {
			context = "on " + m.modalWorktree.Slug
		}
	case modeSessionNotes:
		title = "End session"
		context = "notes are kept on the session record"
	}

	rows := []string{components.PaneTitleStyle.Render(title)}
	if context != "" {
		rows = append(rows, components.MutedStyle.Render(context))
	}
	rows = append(rows, "", m.input.View(), "",
		components.MutedStyle.Render("enter confirm · esc cancel"))
	return components.ModalStyle.Render(strings.Join(rows, "\n"))
}

func (m *Model) worktreeByID(id string) *models.Worktree {
	for i := range m.snapshot.Worktrees {
		if m.snapshot.Worktrees[i].ID == id {
			return &m.snapshot.Worktrees[i]
		}
	}
	return nil
}

func (m *Model) ticketByID(id string) *models.Ticket {
	for i := range m.snapshot.Tickets {
		if m.snapshot.Tickets[i].ID == id {
			return &m.snapshot.Tickets[i]
		}
	}
	return nil
}

// window slides a fixed-size view over n rows so idx stays visible.
func window(n, size, idx int) (int, int) {
	if size < 1 || n == 0 {
		return 0, 0
	}
	start := 0
	if idx >= size {
		start = idx - size + 1
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}

func kindShort(kind models.SourceKind) string {
	if kind == models.SourceGitHub {
		return "gh"
	}
	return string(kind)
}

func truncate(s string, w int) string {
	if w < 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w == 1 {
		return "…"
	}
	return string(r[:w-1]) + "…"
}

func padRight(s string, w int) string {
	if n := len([]rune(s)); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}
