package models

import "time"

// RunStatus is the agent-run state machine. running is the only
// non-terminal state; transitions out of a terminal state are rejected.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// AgentRun is one invocation of the coding agent against a worktree.
// Result fields stay null until a terminal transition; at most one run per
// worktree may be running.
type AgentRun struct {
	ID         string     `db:"id" json:"id"`
	WorktreeID string     `db:"worktree_id" json:"worktree_id"`
	SessionID  *string    `db:"session_id" json:"session_id,omitempty"`
	Prompt     string     `db:"prompt" json:"prompt"`
	Status     RunStatus  `db:"status" json:"status"`
	ResultText *string    `db:"result_text" json:"result_text,omitempty"`
	CostUSD    *float64   `db:"cost_usd" json:"cost_usd,omitempty"`
	Turns      *int       `db:"turns" json:"turns,omitempty"`
	DurationMS *int64     `db:"duration_ms" json:"duration_ms,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	EndedAt    *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	TmuxWindow *string    `db:"tmux_window" json:"tmux_window,omitempty"`
	LogFile    *string    `db:"log_file" json:"log_file,omitempty"`
}

// RunTotals aggregates cost, turns and duration across a set of runs.
type RunTotals struct {
	CostUSD    float64 `db:"cost_usd" json:"cost_usd"`
	Turns      int     `db:"turns" json:"turns"`
	DurationMS int64   `db:"duration_ms" json:"duration_ms"`
	Runs       int     `db:"runs" json:"runs"`
}

// AgentEventKind discriminates replayed log events.
type AgentEventKind string

const (
	AgentEventSystem AgentEventKind = "system"
	AgentEventText   AgentEventKind = "text"
	AgentEventTool   AgentEventKind = "tool"
	AgentEventResult AgentEventKind = "result"
	AgentEventError  AgentEventKind = "error"
)

// AgentLogEvent is one displayable event synthesized from a run's
// stream-json log file.
type AgentLogEvent struct {
	Kind    AgentEventKind `json:"kind"`
	Summary string         `json:"summary"`
}
