// Package services holds conductor's domain logic: repo registration, issue
// sources, ticket reconciliation, worktree lifecycle, agent runs and work
// sessions. Managers persist through the shared SQLite store and announce
// mutations on the event bus; frontends stay thin over this layer.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// RepoManager handles repository registration and lookup.
type RepoManager struct {
	store *db.Store
	cfg   *config.Config
	bus   *events.Bus
}

// NewRepoManager creates a new repository manager.
func NewRepoManager(store *db.Store, cfg *config.Config, bus *events.Bus) *RepoManager {
	return &RepoManager{store: store, cfg: cfg, bus: bus}
}

// AddRepoOptions carries the optional overrides for Add. Zero values are
// derived: slug from the remote URL basename, workspace dir from the
// configured workspace root, local path from <workspace>/main.
type AddRepoOptions struct {
	Slug      string
	LocalPath string
	RemoteURL string
	Workspace string
}

// Add registers a repository. When the local path is an existing clone its
// origin URL and HEAD branch fill in whatever the caller left blank.
func (m *RepoManager) Add(ctx context.Context, opts AddRepoOptions) (*models.Repo, error) {
	remoteURL := strings.TrimSpace(opts.RemoteURL)

	slug := strings.TrimSpace(opts.Slug)
	if slug == "" {
		slug = git.SlugFromRemote(remoteURL)
	}
	if slug == "" {
		return nil, fmt.Errorf("cannot derive a slug from %q: provide one explicitly", remoteURL)
	}

	workspace := strings.TrimSpace(opts.Workspace)
	if workspace == "" {
		workspace = filepath.Join(m.cfg.WorkspaceRoot(), slug)
	}
	workspace = config.ExpandHome(workspace)

	localPath := strings.TrimSpace(opts.LocalPath)
	if localPath == "" {
		localPath = filepath.Join(workspace, "main")
	}
	localPath = config.ExpandHome(localPath)

	// An existing clone is the best source of truth for remote and branch.
	inspectedRemote, inspectedBranch := git.Inspect(localPath)
	if remoteURL == "" {
		remoteURL = inspectedRemote
	}
	branch := inspectedBranch
	if branch == "" {
		branch = m.cfg.DefaultBranch()
	}

	if _, err := m.GetBySlug(ctx, slug); err == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRepoAlreadyExists, slug)
	} else if !errors.Is(err, models.ErrRepoNotFound) {
		return nil, err
	}

	repo := &models.Repo{
		ID:            uuid.New().String(),
		Slug:          slug,
		LocalPath:     localPath,
		RemoteURL:     remoteURL,
		DefaultBranch: branch,
		WorkspaceDir:  workspace,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := m.store.DB.ExecContext(ctx, `
		INSERT INTO repos (id, slug, local_path, remote_url, default_branch, workspace_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, repo.ID, repo.Slug, repo.LocalPath, repo.RemoteURL, repo.DefaultBranch, repo.WorkspaceDir, repo.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert repo: %w", err)
	}

	logger.Logger.Info().Str("slug", repo.Slug).Str("path", repo.LocalPath).Msg("repo registered")
	m.bus.Publish(events.RepoCreated, events.RepoPayload{RepoID: repo.ID, Slug: repo.Slug})
	return repo, nil
}

// List returns all repositories ordered by slug.
func (m *RepoManager) List(ctx context.Context) ([]models.Repo, error) {
	var repos []models.Repo
	if err := m.store.RO.SelectContext(ctx, &repos, `SELECT * FROM repos ORDER BY slug ASC`); err != nil {
		return nil, fmt.Errorf("failed to list repos: %w", err)
	}
	return repos, nil
}

// GetByID returns the repository with the given id.
func (m *RepoManager) GetByID(ctx context.Context, id string) (*models.Repo, error) {
	var repo models.Repo
	err := m.store.RO.GetContext(ctx, &repo, `SELECT * FROM repos WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRepoNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo: %w", err)
	}
	return &repo, nil
}

// GetBySlug returns the repository with the given slug.
func (m *RepoManager) GetBySlug(ctx context.Context, slug string) (*models.Repo, error) {
	var repo models.Repo
	err := m.store.RO.GetContext(ctx, &repo, `SELECT * FROM repos WHERE slug = ?`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRepoNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo: %w", err)
	}
	return &repo, nil
}

// Get resolves ref as an id first, then as a slug.
func (m *RepoManager) Get(ctx context.Context, ref string) (*models.Repo, error) {
	repo, err := m.GetByID(ctx, ref)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, models.ErrRepoNotFound) {
		return nil, err
	}
	return m.GetBySlug(ctx, ref)
}

// Remove deletes the repository and, by cascade, its sources, tickets,
// worktrees and runs. Worktree directories on disk are left alone.
func (m *RepoManager) Remove(ctx context.Context, ref string) error {
	repo, err := m.Get(ctx, ref)
	if err != nil {
		return err
	}

	if _, err := m.store.DB.ExecContext(ctx, `DELETE FROM repos WHERE id = ?`, repo.ID); err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}

	logger.Logger.Info().Str("slug", repo.Slug).Msg("repo removed")
	m.bus.Publish(events.RepoDeleted, events.RepoPayload{RepoID: repo.ID, Slug: repo.Slug})
	return nil
}
