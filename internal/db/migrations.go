package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrate brings the schema up to the latest version. Each migration runs
// in its own transaction and records its version on success; already-applied
// versions are skipped. No down-migrations.
func migrate(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var version int
	if err := db.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration1},
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", m.version, err)
		}
	}

	return nil
}

// Migration 1: the full core schema.
const migration1 = `
-- Registered repositories: the root aggregate.
CREATE TABLE IF NOT EXISTS repos (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    local_path TEXT NOT NULL,
    remote_url TEXT NOT NULL,
    default_branch TEXT NOT NULL DEFAULT 'main',
    workspace_dir TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Issue provider bindings; at most one of each kind per repo.
CREATE TABLE IF NOT EXISTS issue_sources (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    config TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (repo_id, kind)
);

-- Cached external issues; (repo_id, source_kind, source_id) is the upsert key.
CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
    source_kind TEXT NOT NULL,
    source_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'open',
    labels TEXT NOT NULL DEFAULT '[]',
    assignee TEXT,
    priority TEXT,
    url TEXT NOT NULL DEFAULT '',
    synced_at DATETIME NOT NULL,
    raw TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (repo_id, source_kind, source_id)
);

CREATE INDEX IF NOT EXISTS idx_tickets_repo_state ON tickets(repo_id, state);

-- Branch-bound working directories; slug unique within a repo.
CREATE TABLE IF NOT EXISTS worktrees (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
    slug TEXT NOT NULL,
    branch TEXT NOT NULL,
    path TEXT NOT NULL,
    ticket_id TEXT REFERENCES tickets(id) ON DELETE SET NULL,
    status TEXT NOT NULL DEFAULT 'active',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    UNIQUE (repo_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_worktrees_ticket ON worktrees(ticket_id);

-- Agent invocations against worktrees; at most one running per worktree,
-- enforced by the agent manager under the single writer connection.
CREATE TABLE IF NOT EXISTS agent_runs (
    id TEXT PRIMARY KEY,
    worktree_id TEXT NOT NULL REFERENCES worktrees(id) ON DELETE CASCADE,
    session_id TEXT,
    prompt TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    result_text TEXT,
    cost_usd REAL,
    turns INTEGER,
    duration_ms INTEGER,
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    tmux_window TEXT,
    log_file TEXT
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_worktree ON agent_runs(worktree_id, started_at DESC);

-- Developer work sessions; at most one open (ended_at IS NULL) at a time.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    notes TEXT
);

-- Session to worktree links, deduplicated by primary key.
CREATE TABLE IF NOT EXISTS session_worktrees (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    worktree_id TEXT NOT NULL REFERENCES worktrees(id) ON DELETE CASCADE,
    PRIMARY KEY (session_id, worktree_id)
);
`
