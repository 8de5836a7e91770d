package tools

import (
	"context"
)

// WindowRunner manages the multiplexer windows agent runs execute in. The
// tmux implementation is the only one used at runtime; tests substitute a
// fake so no multiplexer server is required.
type WindowRunner interface {
	// NewWindow opens a detached window running shellCommand.
	NewWindow(ctx context.Context, name, shellCommand string) error

	// CapturePane returns the scrollback of the window's active pane.
	CapturePane(ctx context.Context, name string) ([]byte, error)

	// KillWindow tears the window down.
	KillWindow(ctx context.Context, name string) error
}

// Tmux implements WindowRunner against the tmux binary.
type Tmux struct{}

// NewTmux creates a tmux-backed window runner.
func NewTmux() *Tmux {
	return &Tmux{}
}

// NewWindow runs tmux new-window -d -n <name> <shellCommand>.
func (t *Tmux) NewWindow(ctx context.Context, name, shellCommand string) error {
	_, err := run(ctx, "tmux", "new-window", "-d", "-n", name, shellCommand)
	return err
}

// CapturePane runs tmux capture-pane -p -t <name>.
func (t *Tmux) CapturePane(ctx context.Context, name string) ([]byte, error) {
	return run(ctx, "tmux", "capture-pane", "-p", "-t", name)
}

// KillWindow runs tmux kill-window -t <name>.
func (t *Tmux) KillWindow(ctx context.Context, name string) error {
	_, err := run(ctx, "tmux", "kill-window", "-t", name)
	return err
}
