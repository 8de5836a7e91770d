package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/git"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/models"
)

// SourceManager handles issue-source bindings on repos.
type SourceManager struct {
	store *db.Store
	bus   *events.Bus
}

// NewSourceManager creates a new issue-source manager.
func NewSourceManager(store *db.Store, bus *events.Bus) *SourceManager {
	return &SourceManager{store: store, bus: bus}
}

// Add binds an issue source of the given kind to the repo. configJSON must
// match the kind's recognized shape; an empty github config is inferred from
// the repo's remote URL when it points at github.com. The config is stored
// as the caller provided it, extra fields included.
func (m *SourceManager) Add(ctx context.Context, repo *models.Repo, kind models.SourceKind, configJSON string) (*models.IssueSource, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}

	// HTTP bodies that omit config deliver the literal JSON "null" through
	// the raw-message field; treat it the same as no config at all.
	configJSON = strings.TrimSpace(configJSON)
	if configJSON == "" || configJSON == "{}" || configJSON == "null" {
		if kind != models.SourceGitHub {
			return nil, fmt.Errorf("%s source requires a config", kind)
		}
		inferred, err := inferGitHubConfig(repo)
		if err != nil {
			return nil, err
		}
		configJSON = inferred
	}

	if err := validateSourceConfig(kind, configJSON); err != nil {
		return nil, err
	}

	existing, err := m.List(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	for _, src := range existing {
		if src.Kind == kind {
			return nil, fmt.Errorf("%w: %s source on %s", models.ErrSourceAlreadyExists, kind, repo.Slug)
		}
	}

	source := &models.IssueSource{
		ID:        uuid.New().String(),
		RepoID:    repo.ID,
		Kind:      kind,
		Config:    configJSON,
		CreatedAt: time.Now().UTC(),
	}

	_, err = m.store.DB.ExecContext(ctx, `
		INSERT INTO issue_sources (id, repo_id, kind, config, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, source.ID, source.RepoID, source.Kind, source.Config, source.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert issue source: %w", err)
	}

	logger.Logger.Info().Str("repo", repo.Slug).Str("kind", string(kind)).Msg("issue source added")
	m.bus.Publish(events.SourceCreated, events.SourcePayload{
		SourceID: source.ID,
		RepoID:   repo.ID,
		Kind:     string(kind),
	})
	return source, nil
}

// List returns the repo's sources ordered by kind.
func (m *SourceManager) List(ctx context.Context, repoID string) ([]models.IssueSource, error) {
	var sources []models.IssueSource
	err := m.store.RO.SelectContext(ctx, &sources,
		`SELECT * FROM issue_sources WHERE repo_id = ? ORDER BY kind ASC`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue sources: %w", err)
	}
	return sources, nil
}

// Get returns the source with the given id.
func (m *SourceManager) Get(ctx context.Context, id string) (*models.IssueSource, error) {
	var source models.IssueSource
	err := m.store.RO.GetContext(ctx, &source, `SELECT * FROM issue_sources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue source: %w", err)
	}
	return &source, nil
}

// Remove deletes the source. Tickets already cached from it stay.
func (m *SourceManager) Remove(ctx context.Context, id string) error {
	source, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := m.store.DB.ExecContext(ctx, `DELETE FROM issue_sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete issue source: %w", err)
	}

	m.bus.Publish(events.SourceDeleted, events.SourcePayload{
		SourceID: source.ID,
		RepoID:   source.RepoID,
		Kind:     string(source.Kind),
	})
	return nil
}

// RemoveByKind deletes the repo's source of the given kind, reporting
// whether one existed.
func (m *SourceManager) RemoveByKind(ctx context.Context, repoID string, kind models.SourceKind) (bool, error) {
	sources, err := m.List(ctx, repoID)
	if err != nil {
		return false, err
	}
	for _, src := range sources {
		if src.Kind == kind {
			return true, m.Remove(ctx, src.ID)
		}
	}
	return false, nil
}

func inferGitHubConfig(repo *models.Repo) (string, error) {
	info, ok := git.ParseGitHubRemote(repo.RemoteURL)
	if !ok {
		return "", fmt.Errorf("cannot infer github owner/repo from remote %q: provide a config", repo.RemoteURL)
	}
	raw, err := json.Marshal(models.GitHubSourceConfig{Owner: info.Owner, Repo: info.Name})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func validateSourceConfig(kind models.SourceKind, configJSON string) error {
	switch kind {
	case models.SourceGitHub:
		var cfg models.GitHubSourceConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return fmt.Errorf("invalid github source config: %w", err)
		}
		if cfg.Owner == "" || cfg.Repo == "" {
			return fmt.Errorf("github source config requires owner and repo")
		}
	case models.SourceJira:
		var cfg models.JiraSourceConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return fmt.Errorf("invalid jira source config: %w", err)
		}
		if cfg.JQL == "" {
			return fmt.Errorf("jira source config requires a jql query")
		}
	}
	return nil
}
