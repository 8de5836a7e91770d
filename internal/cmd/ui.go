package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "🖥️  Open the interactive TUI",
	Long: `# 🖥️ Conductor TUI

**The interactive workbench**: repos, worktrees, tickets and agent runs on
one screen, refreshed live from the shared store.

## ⌨️  Keys

- **↑/↓, j/k** navigate, **tab** switch panes, **enter** inspect a run
- **n** new worktree, **a** start an agent, **d** delete a worktree
- **s** sync tickets, **S** toggle the working session, **q** quit`,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("the TUI requires a terminal; try 'conductor serve' or --help")
	}

	// Stderr belongs to the terminal display; stray log lines would tear it.
	if err := logger.ConfigureFile(config.LogFilePath(), logger.GetLogLevelFromEnv(false)); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	app.startWorkers()
	defer app.stopWorkers()

	return tui.New(tui.Deps{
		Version:   GetVersion(),
		Config:    app.cfg,
		Syncer:    app.syncer,
		Worktrees: app.worktrees,
		Sessions:  app.sessions,
		Runner:    app.runner,
		Poller:    app.poller,
	}).Run(cmd.Context())
}
