package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/models"
)

// Fetcher retrieves open tickets from an external provider. The production
// implementation shells out to the gh and acli CLIs; tests substitute stubs.
type Fetcher interface {
	FetchGitHub(ctx context.Context, owner, repo string) ([]models.TicketInput, error)
	FetchJira(ctx context.Context, jql, baseURL string) ([]models.TicketInput, error)
}

// TicketSyncer reconciles the local ticket cache against the providers
// bound to a repo. Fetched tickets are upserted; cached open tickets absent
// from a successful fetch are closed; closed tickets release their active
// worktrees.
type TicketSyncer struct {
	store   *db.Store
	sources *SourceManager
	bus     *events.Bus
	fetcher Fetcher
}

// NewTicketSyncer creates a new ticket syncer.
func NewTicketSyncer(store *db.Store, sources *SourceManager, bus *events.Bus, fetcher Fetcher) *TicketSyncer {
	return &TicketSyncer{store: store, sources: sources, bus: bus, fetcher: fetcher}
}

// SyncRepo runs one reconciliation pass over every source bound to the
// repo. A provider failure skips that source's fetch but never the others,
// and closure propagation to worktrees runs regardless; the collected
// provider errors come back joined.
func (s *TicketSyncer) SyncRepo(ctx context.Context, repo *models.Repo) (models.SyncResult, error) {
	sources, err := s.sources.List(ctx, repo.ID)
	if err != nil {
		return models.SyncResult{}, err
	}

	var result models.SyncResult
	var fetchErrs []error

	for _, source := range sources {
		inputs, err := s.fetch(ctx, repo, source)
		if err != nil {
			logger.Logger.Warn().Err(err).
				Str("repo", repo.Slug).
				Str("kind", string(source.Kind)).
				Msg("ticket fetch failed")
			fetchErrs = append(fetchErrs, &models.SyncError{RepoSlug: repo.Slug, Kind: source.Kind, Err: err})
			continue
		}

		present := make([]string, 0, len(inputs))
		for _, input := range inputs {
			if err := s.Upsert(ctx, repo.ID, source.Kind, input); err != nil {
				return result, err
			}
			present = append(present, input.SourceID)
		}
		result.Synced += len(inputs)

		closed, err := s.CloseMissing(ctx, repo.ID, source.Kind, present)
		if err != nil {
			return result, err
		}
		result.Closed += closed
	}

	// Worktrees linked to now-closed tickets are released even when a
	// provider fetch failed this pass.
	if err := s.PropagateClosures(ctx, repo.ID); err != nil {
		return result, err
	}

	if len(fetchErrs) > 0 {
		return result, errors.Join(fetchErrs...)
	}

	logger.Logger.Info().
		Str("repo", repo.Slug).
		Int("synced", result.Synced).
		Int("closed", result.Closed).
		Msg("tickets synced")
	s.bus.Publish(events.TicketSynced, events.TicketSyncPayload{
		RepoID: repo.ID,
		Synced: result.Synced,
		Closed: result.Closed,
	})
	return result, nil
}

func (s *TicketSyncer) fetch(ctx context.Context, repo *models.Repo, source models.IssueSource) ([]models.TicketInput, error) {
	switch source.Kind {
	case models.SourceGitHub:
		var cfg models.GitHubSourceConfig
		if err := json.Unmarshal([]byte(source.Config), &cfg); err != nil {
			return nil, fmt.Errorf("invalid github source config: %w", err)
		}
		return s.fetcher.FetchGitHub(ctx, cfg.Owner, cfg.Repo)
	case models.SourceJira:
		var cfg models.JiraSourceConfig
		if err := json.Unmarshal([]byte(source.Config), &cfg); err != nil {
			return nil, fmt.Errorf("invalid jira source config: %w", err)
		}
		return s.fetcher.FetchJira(ctx, cfg.JQL, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown source kind %q", source.Kind)
	}
}

// Upsert inserts or refreshes one cached ticket. The (repo_id, source_kind,
// source_id) key decides identity; on conflict the local id and created_at
// survive while every provider-owned field is overwritten.
func (s *TicketSyncer) Upsert(ctx context.Context, repoID string, kind models.SourceKind, input models.TicketInput) error {
	labels := input.Labels
	if labels == "" {
		labels = "[]"
	}
	now := time.Now().UTC()

	_, err := s.store.DB.ExecContext(ctx, `
		INSERT INTO tickets (
			id, repo_id, source_kind, source_id, title, body, state,
			labels, assignee, priority, url, synced_at, raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, source_kind, source_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			state = excluded.state,
			labels = excluded.labels,
			assignee = excluded.assignee,
			priority = excluded.priority,
			url = excluded.url,
			synced_at = excluded.synced_at,
			raw = excluded.raw
	`, uuid.New().String(), repoID, kind, input.SourceID, input.Title, input.Body, input.State,
		labels, input.Assignee, input.Priority, input.URL, now, input.Raw, now)
	if err != nil {
		return fmt.Errorf("failed to upsert ticket %s: %w", input.SourceID, err)
	}
	return nil
}

// CloseMissing closes cached tickets of the given kind whose source ids are
// absent from present. An empty present set is a no-op: a provider returning
// nothing is indistinguishable from a broken fetch, and mass-closing on it
// would destroy the cache.
func (s *TicketSyncer) CloseMissing(ctx context.Context, repoID string, kind models.SourceKind, present []string) (int, error) {
	if len(present) == 0 {
		logger.Logger.Debug().
			Str("repo_id", repoID).
			Str("kind", string(kind)).
			Msg("empty fetch result, skipping close pass")
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE tickets SET state = 'closed'
		WHERE repo_id = ? AND source_kind = ? AND state != 'closed' AND source_id NOT IN (?)
	`, repoID, kind, present)
	if err != nil {
		return 0, fmt.Errorf("failed to build close query: %w", err)
	}

	res, err := s.store.DB.ExecContext(ctx, s.store.DB.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to close missing tickets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PropagateClosures marks active worktrees whose linked ticket is closed as
// merged, stamping completion time.
func (s *TicketSyncer) PropagateClosures(ctx context.Context, repoID string) error {
	var worktrees []models.Worktree
	err := s.store.DB.SelectContext(ctx, &worktrees, `
		SELECT w.* FROM worktrees w
		JOIN tickets t ON t.id = w.ticket_id
		WHERE w.repo_id = ? AND w.status = 'active' AND t.state = 'closed'
	`, repoID)
	if err != nil {
		return fmt.Errorf("failed to find worktrees with closed tickets: %w", err)
	}

	now := time.Now().UTC()
	for _, w := range worktrees {
		_, err := s.store.DB.ExecContext(ctx,
			`UPDATE worktrees SET status = ?, completed_at = ? WHERE id = ? AND status = 'active'`,
			models.WorktreeMerged, now, w.ID)
		if err != nil {
			return fmt.Errorf("failed to release worktree %s: %w", w.Slug, err)
		}

		logger.Logger.Info().Str("worktree", w.Slug).Msg("ticket closed, worktree marked merged")
		s.bus.Publish(events.WorktreeUpdated, events.WorktreePayload{
			WorktreeID: w.ID,
			RepoID:     w.RepoID,
			Slug:       w.Slug,
			Status:     string(models.WorktreeMerged),
		})
	}
	return nil
}

// List returns the repo's cached tickets, open states first.
func (s *TicketSyncer) List(ctx context.Context, repoID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.store.RO.SelectContext(ctx, &tickets, `
		SELECT * FROM tickets WHERE repo_id = ?
		ORDER BY CASE state WHEN 'open' THEN 0 WHEN 'in_progress' THEN 1 ELSE 2 END,
			source_kind, source_id
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// ListAll returns every cached ticket across repos.
func (s *TicketSyncer) ListAll(ctx context.Context) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.store.RO.SelectContext(ctx, &tickets, `
		SELECT * FROM tickets
		ORDER BY repo_id,
			CASE state WHEN 'open' THEN 0 WHEN 'in_progress' THEN 1 ELSE 2 END,
			source_kind, source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// GetTicket returns the ticket with the given id.
func (s *TicketSyncer) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.store.RO.GetContext(ctx, &ticket, `SELECT * FROM tickets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrTicketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &ticket, nil
}
