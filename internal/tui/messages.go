package tui

import (
	"time"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

// Core message types
type snapshotMsg services.Snapshot
type tickMsg time.Time
type errMsg struct{ err error }

// actionDoneMsg reports a completed board action in the footer.
type actionDoneMsg struct{ status string }

// syncDoneMsg reports one repo's sync outcome.
type syncDoneMsg struct {
	slug   string
	result models.SyncResult
	err    error
}

// worktreeCreatedMsg carries the fresh worktree plus the ticket it was cut
// from, which decides whether an agent auto-starts.
type worktreeCreatedMsg struct {
	worktree *models.Worktree
	ticket   *models.Ticket
}

// runEventsMsg delivers a replayed agent log to the inspector.
type runEventsMsg struct {
	runID  string
	events []models.AgentLogEvent
}
