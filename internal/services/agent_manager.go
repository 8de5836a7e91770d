package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/models"
)

// AgentManager owns the agent-run records and their state machine. running
// is the only state a run can leave; every terminal transition is guarded
// by a status check in the UPDATE itself, so two racing finishers cannot
// both win.
type AgentManager struct {
	store *db.Store
}

// NewAgentManager creates a new agent-run manager.
func NewAgentManager(store *db.Store) *AgentManager {
	return &AgentManager{store: store}
}

// CreateRun records a new running agent run.
func (m *AgentManager) CreateRun(ctx context.Context, worktreeID, prompt string) (*models.AgentRun, error) {
	run := &models.AgentRun{
		ID:         uuid.New().String(),
		WorktreeID: worktreeID,
		Prompt:     prompt,
		Status:     models.RunRunning,
		StartedAt:  time.Now().UTC(),
	}

	_, err := m.store.DB.ExecContext(ctx, `
		INSERT INTO agent_runs (id, worktree_id, prompt, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.WorktreeID, run.Prompt, run.Status, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert agent run: %w", err)
	}
	return run, nil
}

// GetRun returns the run with the given id.
func (m *AgentManager) GetRun(ctx context.Context, id string) (*models.AgentRun, error) {
	var run models.AgentRun
	err := m.store.RO.GetContext(ctx, &run, `SELECT * FROM agent_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent run: %w", err)
	}
	return &run, nil
}

// ListForWorktree returns the worktree's runs, newest first.
func (m *AgentManager) ListForWorktree(ctx context.Context, worktreeID string) ([]models.AgentRun, error) {
	var runs []models.AgentRun
	err := m.store.RO.SelectContext(ctx, &runs,
		`SELECT * FROM agent_runs WHERE worktree_id = ? ORDER BY started_at DESC`, worktreeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent runs: %w", err)
	}
	return runs, nil
}

// LatestForWorktree returns the worktree's most recent run, or nil when it
// has none.
func (m *AgentManager) LatestForWorktree(ctx context.Context, worktreeID string) (*models.AgentRun, error) {
	var run models.AgentRun
	err := m.store.RO.GetContext(ctx, &run,
		`SELECT * FROM agent_runs WHERE worktree_id = ? ORDER BY started_at DESC LIMIT 1`, worktreeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest agent run: %w", err)
	}
	return &run, nil
}

// LatestRunsByWorktree returns each worktree's most recent run keyed by
// worktree id.
func (m *AgentManager) LatestRunsByWorktree(ctx context.Context) (map[string]models.AgentRun, error) {
	var runs []models.AgentRun
	err := m.store.RO.SelectContext(ctx, &runs, `
		SELECT r.* FROM agent_runs r
		JOIN (
			SELECT worktree_id, MAX(started_at) AS latest
			FROM agent_runs GROUP BY worktree_id
		) last ON last.worktree_id = r.worktree_id AND last.latest = r.started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest agent runs: %w", err)
	}

	latest := make(map[string]models.AgentRun, len(runs))
	for _, run := range runs {
		latest[run.WorktreeID] = run
	}
	return latest, nil
}

// UpdateRunLogFile persists the path of the run's stream-json log.
func (m *AgentManager) UpdateRunLogFile(ctx context.Context, id, logFile string) error {
	_, err := m.store.DB.ExecContext(ctx,
		`UPDATE agent_runs SET log_file = ? WHERE id = ?`, logFile, id)
	if err != nil {
		return fmt.Errorf("failed to update agent run log file: %w", err)
	}
	return nil
}

// UpdateRunTmuxWindow persists the tmux window the run executes in.
func (m *AgentManager) UpdateRunTmuxWindow(ctx context.Context, id, window string) error {
	_, err := m.store.DB.ExecContext(ctx,
		`UPDATE agent_runs SET tmux_window = ? WHERE id = ?`, window, id)
	if err != nil {
		return fmt.Errorf("failed to update agent run tmux window: %w", err)
	}
	return nil
}

// CompleteRun transitions a running run to completed with its result data.
func (m *AgentManager) CompleteRun(ctx context.Context, id string, sessionID, resultText *string, costUSD *float64, turns *int, durationMS *int64) error {
	res, err := m.store.DB.ExecContext(ctx, `
		UPDATE agent_runs
		SET status = ?, session_id = ?, result_text = ?, cost_usd = ?, turns = ?, duration_ms = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, models.RunCompleted, sessionID, resultText, costUSD, turns, durationMS, time.Now().UTC(), id, models.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to complete agent run: %w", err)
	}
	return m.checkTransition(ctx, res, id)
}

// FailRun transitions a running run to failed, keeping the failure message
// as its result text.
func (m *AgentManager) FailRun(ctx context.Context, id, message string) error {
	res, err := m.store.DB.ExecContext(ctx, `
		UPDATE agent_runs SET status = ?, result_text = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, models.RunFailed, message, time.Now().UTC(), id, models.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to fail agent run: %w", err)
	}
	return m.checkTransition(ctx, res, id)
}

// CancelRun transitions a running run to cancelled.
func (m *AgentManager) CancelRun(ctx context.Context, id string) error {
	res, err := m.store.DB.ExecContext(ctx, `
		UPDATE agent_runs SET status = ?, ended_at = ? WHERE id = ? AND status = ?
	`, models.RunCancelled, time.Now().UTC(), id, models.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to cancel agent run: %w", err)
	}
	return m.checkTransition(ctx, res, id)
}

// checkTransition distinguishes a missing run from one already terminal
// when a guarded UPDATE touched no rows.
func (m *AgentManager) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := m.GetRun(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: run %s is not running", models.ErrAgentNotRunning, id)
}

// TotalsForWorktree sums cost, turns and duration across the worktree's
// runs. A still-running run contributes its live turn count read from the
// log file.
func (m *AgentManager) TotalsForWorktree(ctx context.Context, worktreeID string) (models.RunTotals, error) {
	var totals models.RunTotals
	err := m.store.RO.GetContext(ctx, &totals, `
		SELECT
			COALESCE(SUM(cost_usd), 0) AS cost_usd,
			COALESCE(SUM(turns), 0) AS turns,
			COALESCE(SUM(duration_ms), 0) AS duration_ms,
			COUNT(*) AS runs
		FROM agent_runs WHERE worktree_id = ?
	`, worktreeID)
	if err != nil {
		return models.RunTotals{}, fmt.Errorf("failed to total agent runs: %w", err)
	}

	live, err := m.liveTurns(ctx, `worktree_id = ?`, worktreeID)
	if err != nil {
		return models.RunTotals{}, err
	}
	totals.Turns += live
	return totals, nil
}

// TotalsForTicket sums across every run of every worktree linked to the
// ticket.
func (m *AgentManager) TotalsForTicket(ctx context.Context, ticketID string) (models.RunTotals, error) {
	var totals models.RunTotals
	err := m.store.RO.GetContext(ctx, &totals, `
		SELECT
			COALESCE(SUM(r.cost_usd), 0) AS cost_usd,
			COALESCE(SUM(r.turns), 0) AS turns,
			COALESCE(SUM(r.duration_ms), 0) AS duration_ms,
			COUNT(*) AS runs
		FROM agent_runs r
		JOIN worktrees w ON w.id = r.worktree_id
		WHERE w.ticket_id = ?
	`, ticketID)
	if err != nil {
		return models.RunTotals{}, fmt.Errorf("failed to total agent runs: %w", err)
	}

	live, err := m.liveTurns(ctx,
		`worktree_id IN (SELECT id FROM worktrees WHERE ticket_id = ?)`, ticketID)
	if err != nil {
		return models.RunTotals{}, err
	}
	totals.Turns += live
	return totals, nil
}

// TicketTotals aggregates run totals for every linked ticket in one pass,
// keyed by ticket id.
func (m *AgentManager) TicketTotals(ctx context.Context) (map[string]models.RunTotals, error) {
	rows := []struct {
		TicketID string `db:"ticket_id"`
		models.RunTotals
	}{}
	err := m.store.RO.SelectContext(ctx, &rows, `
		SELECT
			w.ticket_id AS ticket_id,
			COALESCE(SUM(r.cost_usd), 0) AS cost_usd,
			COALESCE(SUM(r.turns), 0) AS turns,
			COALESCE(SUM(r.duration_ms), 0) AS duration_ms,
			COUNT(*) AS runs
		FROM agent_runs r
		JOIN worktrees w ON w.id = r.worktree_id
		WHERE w.ticket_id IS NOT NULL
		GROUP BY w.ticket_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to total agent runs by ticket: %w", err)
	}

	totals := make(map[string]models.RunTotals, len(rows))
	for _, row := range rows {
		totals[row.TicketID] = row.RunTotals
	}
	return totals, nil
}

// liveTurns counts assistant turns in the logs of running runs matching the
// where clause. Terminal runs already carry their turn count in the row.
func (m *AgentManager) liveTurns(ctx context.Context, where string, args ...any) (int, error) {
	var logFiles []string
	err := m.store.RO.SelectContext(ctx, &logFiles,
		`SELECT log_file FROM agent_runs WHERE status = 'running' AND log_file IS NOT NULL AND `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to find running agent logs: %w", err)
	}

	total := 0
	for _, logFile := range logFiles {
		total += CountTurnsInLog(logFile)
	}
	return total, nil
}
