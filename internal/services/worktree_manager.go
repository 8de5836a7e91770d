package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/git"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/models"
)

// WorktreeManager handles the worktree lifecycle: branch creation, checkout
// under the repo's workspace dir, soft deletion and purge of the rows left
// behind.
type WorktreeManager struct {
	store    *db.Store
	cfg      *config.Config
	bus      *events.Bus
	executor git.Executor
}

// NewWorktreeManager creates a new worktree manager.
func NewWorktreeManager(store *db.Store, cfg *config.Config, bus *events.Bus, executor git.Executor) *WorktreeManager {
	return &WorktreeManager{store: store, cfg: cfg, bus: bus, executor: executor}
}

// Create materializes a new worktree for the repo. The name is slugified
// and prefixed (feat- unless it already carries a known prefix), a matching
// feat/<x> or fix/<x> branch is forked from baseBranch (the repo's default
// branch when empty), and the checkout lands at <workspace>/<slug>. A
// package.json in the fresh checkout triggers a best-effort dependency
// install.
func (m *WorktreeManager) Create(ctx context.Context, repo *models.Repo, name, baseBranch string, ticketID *string) (*models.Worktree, error) {
	slug, branch, err := m.slugify(name)
	if err != nil {
		return nil, err
	}

	if _, err := m.GetBySlug(ctx, repo.ID, slug); err == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrWorktreeExists, slug)
	} else if !errors.Is(err, models.ErrWorktreeNotFound) {
		return nil, err
	}

	base := strings.TrimSpace(baseBranch)
	if base == "" {
		base = repo.DefaultBranch
	}

	path := filepath.Join(repo.WorkspaceDir, slug)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	if _, err := m.executor.Git(ctx, repo.LocalPath, "branch", branch, base); err != nil {
		return nil, err
	}
	if _, err := m.executor.Git(ctx, repo.LocalPath, "worktree", "add", path, branch); err != nil {
		// Leave no orphan branch behind when the checkout failed.
		if _, cleanupErr := m.executor.Git(ctx, repo.LocalPath, "branch", "-D", branch); cleanupErr != nil {
			logger.Logger.Warn().Err(cleanupErr).Str("branch", branch).Msg("failed to clean up branch after worktree add failure")
		}
		return nil, err
	}

	m.installDependencies(ctx, path)

	worktree := &models.Worktree{
		ID:        uuid.New().String(),
		RepoID:    repo.ID,
		Slug:      slug,
		Branch:    branch,
		Path:      path,
		TicketID:  ticketID,
		Status:    models.WorktreeActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err = m.store.DB.ExecContext(ctx, `
		INSERT INTO worktrees (id, repo_id, slug, branch, path, ticket_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, worktree.ID, worktree.RepoID, worktree.Slug, worktree.Branch, worktree.Path,
		worktree.TicketID, worktree.Status, worktree.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert worktree: %w", err)
	}

	logger.Logger.Info().Str("slug", slug).Str("branch", branch).Str("path", path).Msg("worktree created")
	m.bus.Publish(events.WorktreeCreated, events.WorktreePayload{
		WorktreeID: worktree.ID,
		RepoID:     repo.ID,
		Slug:       slug,
		Status:     string(worktree.Status),
	})
	return worktree, nil
}

// slugify normalizes a worktree name into its slug and branch. Lowercased,
// spaces become hyphens, anything outside [a-z0-9-_] is dropped and hyphen
// runs collapse. A fix- name keeps that prefix; everything else gets feat-.
func (m *WorktreeManager) slugify(name string) (slug, branch string, err error) {
	featPrefix, fixPrefix := m.cfg.WorktreePrefixes()

	clean := strings.ToLower(strings.TrimSpace(name))
	clean = strings.ReplaceAll(clean, " ", "-")
	var b strings.Builder
	for _, r := range clean {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	clean = b.String()
	for strings.Contains(clean, "--") {
		clean = strings.ReplaceAll(clean, "--", "-")
	}
	clean = strings.Trim(clean, "-")

	prefix := featPrefix
	if strings.HasPrefix(clean, fixPrefix) {
		prefix = fixPrefix
	}
	rest := strings.TrimPrefix(clean, prefix)
	if rest == "" {
		return "", "", fmt.Errorf("invalid worktree name %q", name)
	}

	return prefix + rest, strings.TrimSuffix(prefix, "-") + "/" + rest, nil
}

// installDependencies runs the package manager matching the checkout's
// lockfile when a package.json is present. Failures only warn; a worktree
// without node_modules is still a worktree.
func (m *WorktreeManager) installDependencies(ctx context.Context, path string) {
	if _, err := os.Stat(filepath.Join(path, "package.json")); err != nil {
		return
	}

	pm := "npm"
	switch {
	case fileExists(filepath.Join(path, "bun.lockb")) || fileExists(filepath.Join(path, "bun.lock")):
		pm = "bun"
	case fileExists(filepath.Join(path, "pnpm-lock.yaml")):
		pm = "pnpm"
	case fileExists(filepath.Join(path, "yarn.lock")):
		pm = "yarn"
	}

	logger.Logger.Info().Str("pm", pm).Str("path", path).Msg("installing dependencies")
	if _, err := m.executor.Command(ctx, path, pm, "install"); err != nil {
		logger.Logger.Warn().Err(err).Str("pm", pm).Msg("dependency install failed")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Delete tears down the worktree's checkout and branch, then soft-deletes
// the row: merged when its linked ticket is closed, abandoned otherwise.
// Git cleanup failures are tolerated so a half-removed worktree can be
// deleted again.
func (m *WorktreeManager) Delete(ctx context.Context, repo *models.Repo, name string) (*models.Worktree, error) {
	worktree, err := m.Resolve(ctx, repo, name)
	if err != nil {
		return nil, err
	}

	if _, err := m.executor.Git(ctx, repo.LocalPath, "worktree", "remove", "--force", worktree.Path); err != nil {
		logger.Logger.Warn().Err(err).Str("path", worktree.Path).Msg("failed to remove worktree checkout")
	}
	if _, err := m.executor.Git(ctx, repo.LocalPath, "branch", "-D", worktree.Branch); err != nil {
		logger.Logger.Warn().Err(err).Str("branch", worktree.Branch).Msg("failed to delete branch")
	}

	status := worktree.Status
	if status == models.WorktreeActive {
		status = models.WorktreeAbandoned
		if worktree.TicketID != nil {
			var state models.TicketState
			err := m.store.DB.GetContext(ctx, &state, `SELECT state FROM tickets WHERE id = ?`, *worktree.TicketID)
			if err == nil && state == models.TicketClosed {
				status = models.WorktreeMerged
			}
		}
	}

	now := time.Now().UTC()
	_, err = m.store.DB.ExecContext(ctx,
		`UPDATE worktrees SET status = ?, completed_at = ? WHERE id = ?`,
		status, now, worktree.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update worktree status: %w", err)
	}
	worktree.Status = status
	worktree.CompletedAt = &now

	logger.Logger.Info().Str("slug", worktree.Slug).Str("status", string(status)).Msg("worktree deleted")
	m.bus.Publish(events.WorktreeDeleted, events.WorktreePayload{
		WorktreeID: worktree.ID,
		RepoID:     worktree.RepoID,
		Slug:       worktree.Slug,
		Status:     string(status),
	})
	return worktree, nil
}

// Purge removes soft-deleted rows. With a name it purges that single
// worktree, refusing while it is still active; without one it sweeps every
// merged and abandoned row of the repo. Returns the number of rows removed.
func (m *WorktreeManager) Purge(ctx context.Context, repo *models.Repo, name string) (int, error) {
	if name == "" {
		res, err := m.store.DB.ExecContext(ctx,
			`DELETE FROM worktrees WHERE repo_id = ? AND status != ?`,
			repo.ID, models.WorktreeActive)
		if err != nil {
			return 0, fmt.Errorf("failed to purge worktrees: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	}

	worktree, err := m.Resolve(ctx, repo, name)
	if err != nil {
		return 0, err
	}
	if !worktree.Status.Terminal() {
		return 0, fmt.Errorf("worktree %s is still active; delete it first", worktree.Slug)
	}

	if _, err := m.store.DB.ExecContext(ctx, `DELETE FROM worktrees WHERE id = ?`, worktree.ID); err != nil {
		return 0, fmt.Errorf("failed to purge worktree: %w", err)
	}
	return 1, nil
}

// Push pushes the worktree's branch to origin, setting upstream.
func (m *WorktreeManager) Push(ctx context.Context, worktree *models.Worktree) error {
	_, err := m.executor.Git(ctx, worktree.Path, "push", "-u", "origin", worktree.Branch)
	return err
}

// CreatePR opens a pull request for the worktree's branch via gh, returning
// the URL gh prints.
func (m *WorktreeManager) CreatePR(ctx context.Context, worktree *models.Worktree) (string, error) {
	out, err := m.executor.Command(ctx, worktree.Path, "gh", "pr", "create", "--fill", "--head", worktree.Branch)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// LinkTicket points the worktree at a ticket, or detaches it when ticketID
// is nil.
func (m *WorktreeManager) LinkTicket(ctx context.Context, worktreeID string, ticketID *string) error {
	worktree, err := m.Get(ctx, worktreeID)
	if err != nil {
		return err
	}
	if ticketID != nil {
		var one int
		err := m.store.RO.GetContext(ctx, &one, `SELECT 1 FROM tickets WHERE id = ?`, *ticketID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", models.ErrTicketNotFound, *ticketID)
		}
		if err != nil {
			return fmt.Errorf("failed to check ticket: %w", err)
		}
	}

	if _, err := m.store.DB.ExecContext(ctx, `UPDATE worktrees SET ticket_id = ? WHERE id = ?`, ticketID, worktreeID); err != nil {
		return fmt.Errorf("failed to link ticket: %w", err)
	}

	m.bus.Publish(events.WorktreeUpdated, events.WorktreePayload{
		WorktreeID: worktree.ID,
		RepoID:     worktree.RepoID,
		Slug:       worktree.Slug,
		Status:     string(worktree.Status),
	})
	return nil
}

// List returns the repo's worktrees, active ones first, newest first within
// each group.
func (m *WorktreeManager) List(ctx context.Context, repoID string) ([]models.Worktree, error) {
	var worktrees []models.Worktree
	err := m.store.RO.SelectContext(ctx, &worktrees, `
		SELECT * FROM worktrees WHERE repo_id = ?
		ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, created_at DESC
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return worktrees, nil
}

// ListAll returns every worktree across repos, newest first.
func (m *WorktreeManager) ListAll(ctx context.Context) ([]models.Worktree, error) {
	var worktrees []models.Worktree
	err := m.store.RO.SelectContext(ctx, &worktrees, `
		SELECT * FROM worktrees
		ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return worktrees, nil
}

// ListForTicket returns the worktrees linked to the ticket, newest first.
func (m *WorktreeManager) ListForTicket(ctx context.Context, ticketID string) ([]models.Worktree, error) {
	var worktrees []models.Worktree
	err := m.store.RO.SelectContext(ctx, &worktrees,
		`SELECT * FROM worktrees WHERE ticket_id = ? ORDER BY created_at DESC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return worktrees, nil
}

// Get returns the worktree with the given id.
func (m *WorktreeManager) Get(ctx context.Context, id string) (*models.Worktree, error) {
	var worktree models.Worktree
	err := m.store.RO.GetContext(ctx, &worktree, `SELECT * FROM worktrees WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrWorktreeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return &worktree, nil
}

// GetBySlug returns the repo's worktree with the given slug.
func (m *WorktreeManager) GetBySlug(ctx context.Context, repoID, slug string) (*models.Worktree, error) {
	var worktree models.Worktree
	err := m.store.RO.GetContext(ctx, &worktree,
		`SELECT * FROM worktrees WHERE repo_id = ? AND slug = ?`, repoID, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrWorktreeNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return &worktree, nil
}

// Resolve finds the repo's worktree by name: first by id, then the exact
// slug, then with each configured prefix prepended.
func (m *WorktreeManager) Resolve(ctx context.Context, repo *models.Repo, name string) (*models.Worktree, error) {
	if worktree, err := m.Get(ctx, name); err == nil {
		if worktree.RepoID == repo.ID {
			return worktree, nil
		}
	} else if !errors.Is(err, models.ErrWorktreeNotFound) {
		return nil, err
	}

	featPrefix, fixPrefix := m.cfg.WorktreePrefixes()
	for _, candidate := range []string{name, featPrefix + name, fixPrefix + name} {
		worktree, err := m.GetBySlug(ctx, repo.ID, candidate)
		if err == nil {
			return worktree, nil
		}
		if !errors.Is(err, models.ErrWorktreeNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrWorktreeNotFound, name)
}
