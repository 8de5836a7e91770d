package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/logger"
)

var (
	agentExecRunID  string
	agentExecPath   string
	agentExecPrompt string
	agentExecResume string
)

// agentCmd is hidden: its only subcommand is the internal exec body that
// StartAgent launches inside a tmux window. Users drive agents through the
// TUI or the HTTP API.
var agentCmd = &cobra.Command{
	Use:    "agent",
	Short:  "Internal agent-run plumbing",
	Hidden: true,
}

var agentExecCmd = &cobra.Command{
	Use:    "exec",
	Short:  "Run claude against a worktree and record the outcome",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stderr is the tmux window's display; diagnostics go to the file.
		if err := logger.ConfigureFile(config.LogFilePath(), logger.GetLogLevelFromEnv(false)); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		return app.runner.Execute(cmd.Context(), agentExecRunID, agentExecPath, agentExecPrompt, agentExecResume)
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentExecCmd)

	agentExecCmd.Flags().StringVar(&agentExecRunID, "run-id", "", "Agent run id to execute")
	agentExecCmd.Flags().StringVar(&agentExecPath, "worktree-path", "", "Worktree directory to run in")
	agentExecCmd.Flags().StringVar(&agentExecPrompt, "prompt", "", "Prompt for the agent")
	agentExecCmd.Flags().StringVar(&agentExecResume, "resume", "", "Claude session id to resume")
	_ = agentExecCmd.MarkFlagRequired("run-id")
	_ = agentExecCmd.MarkFlagRequired("worktree-path")
	_ = agentExecCmd.MarkFlagRequired("prompt")
}
