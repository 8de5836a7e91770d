// Package tui renders the orchestration board: repos, worktrees and tickets
// in panes fed by poller snapshots, with a run inspector and modal inputs
// layered on top. All writes go through the same managers the HTTP API uses,
// so every frontend observes the same state.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// App owns the bubbletea program for one terminal session.
type App struct {
	deps Deps
}

func New(deps Deps) *App {
	return &App{deps: deps}
}

// Run blocks until the user quits or ctx is cancelled. Cancellation is a
// normal shutdown, not an error.
func (a *App) Run(ctx context.Context) error {
	program := tea.NewProgram(newModel(a.deps), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
