package models

import "time"

// Session is a developer working window. At most one session may be open
// (ended_at null) at any time.
type Session struct {
	ID        string     `db:"id" json:"id"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
}

// Open reports whether the session is still running.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// SessionWorktree links a session to a worktree it touched. Deduplicated
// by primary key.
type SessionWorktree struct {
	SessionID  string `db:"session_id" json:"session_id"`
	WorktreeID string `db:"worktree_id" json:"worktree_id"`
}
