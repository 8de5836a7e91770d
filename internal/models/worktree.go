package models

import "time"

// WorktreeStatus tracks a worktree through its soft-delete lifecycle.
// Deletion only transitions status; purge is the sole row-removing path.
type WorktreeStatus string

const (
	WorktreeActive    WorktreeStatus = "active"
	WorktreeMerged    WorktreeStatus = "merged"
	WorktreeAbandoned WorktreeStatus = "abandoned"
)

// Valid reports whether the status is a known lifecycle state.
func (s WorktreeStatus) Valid() bool {
	return s == WorktreeActive || s == WorktreeMerged || s == WorktreeAbandoned
}

// Terminal reports whether the worktree has left active work.
func (s WorktreeStatus) Terminal() bool {
	return s == WorktreeMerged || s == WorktreeAbandoned
}

// Worktree is a branch-bound working directory materialized under the
// repo's workspace dir. Slug is unique within the repo and starts with
// feat- or fix-; the branch is the matching feat/<x> or fix/<x>.
type Worktree struct {
	ID          string         `db:"id" json:"id"`
	RepoID      string         `db:"repo_id" json:"repo_id"`
	Slug        string         `db:"slug" json:"slug"`
	Branch      string         `db:"branch" json:"branch"`
	Path        string         `db:"path" json:"path"`
	TicketID    *string        `db:"ticket_id" json:"ticket_id,omitempty"`
	Status      WorktreeStatus `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}
