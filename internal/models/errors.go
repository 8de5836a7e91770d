package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the core taxonomy. Handlers map these onto HTTP
// statuses; the CLI prints them and exits non-zero.
var (
	ErrRepoNotFound        = errors.New("repo not found")
	ErrRepoAlreadyExists   = errors.New("repo already exists")
	ErrSourceNotFound      = errors.New("issue source not found")
	ErrSourceAlreadyExists = errors.New("issue source already exists")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrWorktreeNotFound    = errors.New("worktree not found")
	ErrWorktreeExists      = errors.New("worktree already exists")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAlreadyOpen  = errors.New("a session is already open")
	ErrNoOpenSession       = errors.New("no open session")
	ErrRunNotFound         = errors.New("agent run not found")
	ErrAgentAlreadyRunning = errors.New("an agent is already running for this worktree")
	ErrAgentNotRunning     = errors.New("no agent is running for this worktree")
)

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRepoNotFound) ||
		errors.Is(err, ErrSourceNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrWorktreeNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsConflict reports whether err is an already-exists violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrRepoAlreadyExists) ||
		errors.Is(err, ErrSourceAlreadyExists) ||
		errors.Is(err, ErrWorktreeExists) ||
		errors.Is(err, ErrSessionAlreadyOpen)
}

// IsAgentRule reports whether err is an agent state-machine violation.
func IsAgentRule(err error) bool {
	return errors.Is(err, ErrAgentAlreadyRunning) || errors.Is(err, ErrAgentNotRunning)
}

// GitError carries the stderr of a failed git invocation verbatim.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed: %v\nstderr: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *GitError) Unwrap() error { return e.Err }

// SyncError marks an upstream provider failure during a ticket sync. It is
// surfaced per repo without aborting a multi-repo sweep.
type SyncError struct {
	RepoSlug string
	Kind     SourceKind
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("ticket sync failed for %s (%s): %v", e.RepoSlug, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
