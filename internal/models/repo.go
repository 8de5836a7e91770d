package models

import "time"

// Repo is the root aggregate: a registered source repository. Everything
// else (sources, tickets, worktrees, runs) hangs off it and is removed by
// cascade when the repo is removed.
type Repo struct {
	ID            string    `db:"id" json:"id"`
	Slug          string    `db:"slug" json:"slug"`
	LocalPath     string    `db:"local_path" json:"local_path"`
	RemoteURL     string    `db:"remote_url" json:"remote_url"`
	DefaultBranch string    `db:"default_branch" json:"default_branch"`
	WorkspaceDir  string    `db:"workspace_dir" json:"workspace_dir"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SourceKind identifies an issue provider.
type SourceKind string

const (
	SourceGitHub SourceKind = "github"
	SourceJira   SourceKind = "jira"
)

// Valid reports whether the kind is a known provider.
func (k SourceKind) Valid() bool {
	return k == SourceGitHub || k == SourceJira
}

// IssueSource binds a repo to an external ticket provider. Config is an
// opaque JSON blob whose shape depends on Kind: {owner, repo} for github,
// {jql, url} for jira. At most one source of each kind per repo.
type IssueSource struct {
	ID        string     `db:"id" json:"id"`
	RepoID    string     `db:"repo_id" json:"repo_id"`
	Kind      SourceKind `db:"kind" json:"kind"`
	Config    string     `db:"config" json:"config"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// GitHubSourceConfig is the recognized config shape for github sources.
type GitHubSourceConfig struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// JiraSourceConfig is the recognized config shape for jira sources.
type JiraSourceConfig struct {
	JQL string `json:"jql"`
	URL string `json:"url"`
}
