package events

// RepoPayload accompanies repo lifecycle events.
type RepoPayload struct {
	RepoID string `json:"repo_id"`
	Slug   string `json:"slug"`
}

// SourcePayload accompanies issue-source lifecycle events.
type SourcePayload struct {
	SourceID string `json:"source_id"`
	RepoID   string `json:"repo_id"`
	Kind     string `json:"kind"`
}

// WorktreePayload accompanies worktree lifecycle events.
type WorktreePayload struct {
	WorktreeID string `json:"worktree_id"`
	RepoID     string `json:"repo_id"`
	Slug       string `json:"slug"`
	Status     string `json:"status,omitempty"`
}

// TicketSyncPayload reports one reconciliation pass over a repo.
type TicketSyncPayload struct {
	RepoID string `json:"repo_id"`
	Synced int    `json:"synced"`
	Closed int    `json:"closed"`
}

// SessionPayload accompanies session lifecycle events.
type SessionPayload struct {
	SessionID string `json:"session_id"`
}

// AgentPayload accompanies agent-run lifecycle events.
type AgentPayload struct {
	RunID      string `json:"run_id"`
	WorktreeID string `json:"worktree_id"`
}

// AgentProgressPayload carries live turn counts inferred from the run's log.
type AgentProgressPayload struct {
	RunID      string `json:"run_id"`
	WorktreeID string `json:"worktree_id"`
	Turns      int    `json:"turns"`
}

// SyncOutcomePayload reports the scheduler's per-repo sweep result.
type SyncOutcomePayload struct {
	RepoID string `json:"repo_id"`
	Slug   string `json:"slug"`
	Synced int    `json:"synced"`
	Closed int    `json:"closed"`
	Error  string `json:"error,omitempty"`
}

// HeartbeatPayload keeps SSE connections alive.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
	Uptime    int64 `json:"uptime"`
}
