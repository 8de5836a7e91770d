package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/tools"
)

// AgentRunner launches and supervises claude runs. Orchestration (start,
// stop) happens in the server or CLI process, which opens a detached tmux
// window running `conductor agent exec`; that child process owns the claude
// subprocess and drives the run to a terminal state through Execute. The
// database row is the only channel between the two sides.
type AgentRunner struct {
	agents    *AgentManager
	worktrees *WorktreeManager
	tmux      tools.WindowRunner
	bus       *events.Bus

	// binary is the claude executable, overridable in tests.
	binary string
}

// NewAgentRunner creates a new agent runner.
func NewAgentRunner(agents *AgentManager, worktrees *WorktreeManager, tmux tools.WindowRunner, bus *events.Bus) *AgentRunner {
	return &AgentRunner{
		agents:    agents,
		worktrees: worktrees,
		tmux:      tmux,
		bus:       bus,
		binary:    "claude",
	}
}

// StartAgent creates a run for the worktree and opens a tmux window
// executing it. Refused while the worktree's latest run is still running;
// with resume set, the new run continues the most recent claude session
// recorded for the worktree.
func (r *AgentRunner) StartAgent(ctx context.Context, worktreeID, prompt string, resume bool) (*models.AgentRun, error) {
	worktree, err := r.worktrees.Get(ctx, worktreeID)
	if err != nil {
		return nil, err
	}

	latest, err := r.agents.LatestForWorktree(ctx, worktree.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == models.RunRunning {
		return nil, fmt.Errorf("%w: run %s", models.ErrAgentAlreadyRunning, latest.ID)
	}

	var resumeSessionID string
	if resume {
		resumeSessionID, err = r.lastSessionID(ctx, worktree.ID)
		if err != nil {
			return nil, err
		}
	}

	run, err := r.agents.CreateRun(ctx, worktree.ID, prompt)
	if err != nil {
		return nil, err
	}

	window := "conductor-run-" + run.ID[:8]
	shellCmd := r.execCommand(run.ID, worktree.Path, prompt, resumeSessionID)
	if err := r.tmux.NewWindow(ctx, window, shellCmd); err != nil {
		if failErr := r.agents.FailRun(ctx, run.ID, "failed to open tmux window: "+err.Error()); failErr != nil {
			logger.Logger.Error().Err(failErr).Str("run_id", run.ID).Msg("failed to mark run failed")
		}
		return nil, fmt.Errorf("failed to open tmux window: %w", err)
	}

	if err := r.agents.UpdateRunTmuxWindow(ctx, run.ID, window); err != nil {
		logger.Logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record tmux window")
	}

	logger.Logger.Info().Str("run_id", run.ID).Str("worktree", worktree.Slug).Str("window", window).Msg("agent started")
	r.bus.Publish(events.AgentStarted, events.AgentPayload{RunID: run.ID, WorktreeID: worktree.ID})
	return r.agents.GetRun(ctx, run.ID)
}

// StopAgent cancels the worktree's running agent, capturing the tmux pane
// scrollback next to the run log before the window goes down.
func (r *AgentRunner) StopAgent(ctx context.Context, worktreeID string) (*models.AgentRun, error) {
	worktree, err := r.worktrees.Get(ctx, worktreeID)
	if err != nil {
		return nil, err
	}

	latest, err := r.agents.LatestForWorktree(ctx, worktree.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Status != models.RunRunning {
		return nil, fmt.Errorf("%w: %s", models.ErrAgentNotRunning, worktree.Slug)
	}

	if latest.TmuxWindow != nil {
		if pane, err := r.tmux.CapturePane(ctx, *latest.TmuxWindow); err == nil {
			capturePath := filepath.Join(config.AgentLogDir(), latest.ID+".capture.txt")
			if err := os.WriteFile(capturePath, pane, 0644); err != nil {
				logger.Logger.Warn().Err(err).Str("run_id", latest.ID).Msg("failed to save pane capture")
			}
		}
		if err := r.tmux.KillWindow(ctx, *latest.TmuxWindow); err != nil {
			logger.Logger.Warn().Err(err).Str("window", *latest.TmuxWindow).Msg("failed to kill tmux window")
		}
	}

	if err := r.agents.CancelRun(ctx, latest.ID); err != nil {
		return nil, err
	}

	logger.Logger.Info().Str("run_id", latest.ID).Str("worktree", worktree.Slug).Msg("agent cancelled")
	r.bus.Publish(events.AgentCancelled, events.AgentPayload{RunID: latest.ID, WorktreeID: worktree.ID})
	return r.agents.GetRun(ctx, latest.ID)
}

// lastSessionID finds the most recent claude session recorded for the
// worktree.
func (r *AgentRunner) lastSessionID(ctx context.Context, worktreeID string) (string, error) {
	runs, err := r.agents.ListForWorktree(ctx, worktreeID)
	if err != nil {
		return "", err
	}
	for _, run := range runs {
		if run.SessionID != nil && *run.SessionID != "" {
			return *run.SessionID, nil
		}
	}
	return "", fmt.Errorf("no previous session to resume for this worktree")
}

// execCommand builds the shell command the tmux window runs.
func (r *AgentRunner) execCommand(runID, worktreePath, prompt, resumeSessionID string) string {
	exe, err := os.Executable()
	if err != nil {
		exe = "conductor"
	}

	parts := []string{
		shellQuote(exe), "agent", "exec",
		"--run-id", shellQuote(runID),
		"--worktree-path", shellQuote(worktreePath),
		"--prompt", shellQuote(prompt),
	}
	if resumeSessionID != "" {
		parts = append(parts, "--resume", shellQuote(resumeSessionID))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Execute runs claude against the worktree and drives the run row to a
// terminal state. It is the body of `conductor agent exec`, running inside
// the tmux window. Once the run row is confirmed to exist every failure is
// recorded on it instead of being returned; the row is the contract with
// the orchestrating process.
func (r *AgentRunner) Execute(ctx context.Context, runID, worktreePath, prompt, resumeSessionID string) error {
	if _, err := r.agents.GetRun(ctx, runID); err != nil {
		return err
	}

	if err := os.MkdirAll(config.AgentLogDir(), 0755); err != nil {
		return r.fail(ctx, runID, "failed to create log directory: "+err.Error())
	}
	logPath := config.AgentLogPath(runID)
	logFile, err := os.Create(logPath)
	if err != nil {
		return r.fail(ctx, runID, "failed to create log file: "+err.Error())
	}
	defer logFile.Close()

	// Recorded before the stream starts so watchers can follow along.
	if err := r.agents.UpdateRunLogFile(ctx, runID, logPath); err != nil {
		return r.fail(ctx, runID, "failed to record log file: "+err.Error())
	}

	args := []string{"-p", prompt, "--output-format=stream-json", "--verbose"}
	if resumeSessionID != "" {
		args = append(args, "--resume", resumeSessionID)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = worktreePath
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.fail(ctx, runID, "failed to create stdout pipe: "+err.Error())
	}
	if err := cmd.Start(); err != nil {
		return r.fail(ctx, runID, "failed to start claude: "+err.Error())
	}

	var (
		sessionID  string
		resultText *string
		costUSD    *float64
		turns      *int
		durationMS *int64
		isError    bool
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBuffer)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if _, err := logFile.Write(append(raw, '\n')); err != nil {
			logger.Logger.Warn().Err(err).Msg("failed to append to agent log")
		}

		var line streamLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		if sessionID == "" && line.SessionID != "" {
			sessionID = line.SessionID
		}

		switch line.Type {
		case "assistant":
			if line.Message == nil {
				continue
			}
			for _, content := range line.Message.Content {
				switch content.Type {
				case "text":
					if text := strings.TrimSpace(content.Text); text != "" {
						fmt.Fprintln(os.Stderr, text)
					}
				case "tool_use":
					fmt.Fprintf(os.Stderr, "[tool: %s]\n", content.Name)
				}
			}
		case "result":
			resultText = line.Result
			costUSD = line.TotalCostUSD
			turns = line.NumTurns
			durationMS = line.DurationMS
			isError = line.IsError
			if line.Result != nil {
				fmt.Fprintln(os.Stderr, truncate(*line.Result, 200))
			}
		}
	}

	// A line over the scanner buffer stops the loop with the pipe still
	// open; drain it so Wait cannot block on a writer stuck in a full pipe.
	if err := scanner.Err(); err != nil {
		logger.Logger.Warn().Err(err).Str("run_id", runID).Msg("agent output scan stopped early")
		if _, err := io.Copy(io.Discard, stdout); err != nil {
			logger.Logger.Warn().Err(err).Str("run_id", runID).Msg("failed to drain agent output")
		}
	}

	waitErr := cmd.Wait()
	switch {
	case waitErr == nil && !isError:
		var sid *string
		if sessionID != "" {
			sid = &sessionID
		}
		if err := r.agents.CompleteRun(ctx, runID, sid, resultText, costUSD, turns, durationMS); err != nil {
			return err
		}
		logger.Logger.Info().Str("run_id", runID).Msg("agent run completed")
		return nil

	case isError:
		message := "Claude reported an error"
		if resultText != nil && *resultText != "" {
			message = *resultText
		}
		return r.fail(ctx, runID, message)

	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return r.fail(ctx, runID, fmt.Sprintf("Claude exited with status: %d", exitErr.ExitCode()))
		}
		return r.fail(ctx, runID, "Error waiting for claude: "+waitErr.Error())
	}
}

// fail records the failure on the run and surfaces it on stderr for the
// tmux window. The returned error is nil when the record stuck; the row is
// what the orchestrating side reads.
func (r *AgentRunner) fail(ctx context.Context, runID, message string) error {
	fmt.Fprintln(os.Stderr, message)
	if err := r.agents.FailRun(ctx, runID, message); err != nil {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
