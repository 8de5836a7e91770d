package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/models"
)

func githubRepo(t *testing.T, env *testEnv, slug string) *models.Repo {
	t.Helper()
	repo := env.addRepo(t, slug)
	_, err := env.sources.Add(context.Background(), repo, models.SourceGitHub, "")
	require.NoError(t, err)
	return repo
}

func input(sourceID, title string, state models.TicketState) models.TicketInput {
	return models.TicketInput{SourceID: sourceID, Title: title, State: state, Labels: "[]"}
}

func TestSyncUpsertIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := githubRepo(t, env, "idem")

	env.fetcher.setGitHub([]models.TicketInput{input("42", "first title", models.TicketOpen)}, nil)
	result, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	tickets, err := env.syncer.List(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	original := tickets[0]

	// Same source id again with new fields: row refreshed, identity kept.
	env.fetcher.setGitHub([]models.TicketInput{{
		SourceID: "42",
		Title:    "retitled",
		State:    models.TicketInProgress,
		Labels:   `["bug"]`,
	}}, nil)
	_, err = env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)

	tickets, err = env.syncer.List(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	updated := tickets[0]

	assert.Equal(t, original.ID, updated.ID)
	assert.WithinDuration(t, original.CreatedAt, updated.CreatedAt, 0)
	assert.Equal(t, "retitled", updated.Title)
	assert.Equal(t, models.TicketInProgress, updated.State)
	assert.Equal(t, `["bug"]`, updated.Labels)
	assert.False(t, updated.SyncedAt.Before(original.SyncedAt))
}

func TestSyncClosesDisappearedTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := githubRepo(t, env, "closer")

	env.fetcher.setGitHub([]models.TicketInput{
		input("1", "stays", models.TicketOpen),
		input("2", "goes away", models.TicketOpen),
	}, nil)
	_, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)

	// Ticket 2 no longer comes back from the provider.
	env.fetcher.setGitHub([]models.TicketInput{input("1", "stays", models.TicketOpen)}, nil)
	result, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Closed)

	states := ticketStates(t, env, repo)
	assert.Equal(t, models.TicketOpen, states["1"])
	assert.Equal(t, models.TicketClosed, states["2"])
}

func TestSyncEmptyFetchClosesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := githubRepo(t, env, "guarded")

	env.fetcher.setGitHub([]models.TicketInput{
		input("1", "a", models.TicketOpen),
		input("2", "b", models.TicketOpen),
	}, nil)
	_, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)

	env.fetcher.setGitHub([]models.TicketInput{}, nil)
	result, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Closed)

	states := ticketStates(t, env, repo)
	assert.Equal(t, models.TicketOpen, states["1"])
	assert.Equal(t, models.TicketOpen, states["2"])
}

func TestSyncReleasesWorktreeOnTicketClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := githubRepo(t, env, "release")

	env.fetcher.setGitHub([]models.TicketInput{input("5", "the work", models.TicketOpen)}, nil)
	_, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)

	tickets, err := env.syncer.List(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	worktree, err := env.worktrees.Create(ctx, repo, "the-work", "", &tickets[0].ID)
	require.NoError(t, err)

	sub := env.bus.Subscribe()
	defer env.bus.Unsubscribe(sub)

	// Provider closes the ticket.
	env.fetcher.setGitHub([]models.TicketInput{input("5", "the work", models.TicketClosed)}, nil)
	_, err = env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)

	got, err := env.worktrees.Get(ctx, worktree.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorktreeMerged, got.Status)
	require.NotNil(t, got.CompletedAt)

	assertEventSeen(t, sub, events.WorktreeUpdated)
}

func TestSyncProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := githubRepo(t, env, "flaky")

	env.fetcher.setGitHub([]models.TicketInput{input("9", "cached", models.TicketOpen)}, nil)
	_, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)

	t.Run("CacheSurvivesAndErrorIsTyped", func(t *testing.T) {
		env.fetcher.setGitHub(nil, errors.New("api rate limited"))
		_, err := env.syncer.SyncRepo(ctx, repo)
		require.Error(t, err)

		var syncErr *models.SyncError
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, "flaky", syncErr.RepoSlug)
		assert.Equal(t, models.SourceGitHub, syncErr.Kind)

		states := ticketStates(t, env, repo)
		assert.Equal(t, models.TicketOpen, states["9"])
	})

	t.Run("PropagationRunsDespiteFailure", func(t *testing.T) {
		tickets, err := env.syncer.List(ctx, repo.ID)
		require.NoError(t, err)
		require.Len(t, tickets, 1)

		worktree, err := env.worktrees.Create(ctx, repo, "despite", "", &tickets[0].ID)
		require.NoError(t, err)

		// Close the ticket locally, then sync with the provider still down.
		require.NoError(t, env.syncer.Upsert(ctx, repo.ID, models.SourceGitHub,
			input("9", "cached", models.TicketClosed)))
		env.fetcher.setGitHub(nil, errors.New("still down"))
		_, err = env.syncer.SyncRepo(ctx, repo)
		require.Error(t, err)

		got, err := env.worktrees.Get(ctx, worktree.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorktreeMerged, got.Status)
	})
}

func TestSyncMultipleSourcesIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := githubRepo(t, env, "dual")
	_, err := env.sources.Add(ctx, repo, models.SourceJira,
		`{"jql":"project = DUAL","url":"https://acme.atlassian.net"}`)
	require.NoError(t, err)

	env.fetcher.setGitHub([]models.TicketInput{input("1", "gh ticket", models.TicketOpen)}, nil)
	env.fetcher.jira = []models.TicketInput{{
		SourceID: "DUAL-1",
		Title:    "jira ticket",
		State:    models.TicketInProgress,
		Labels:   "[]",
	}}

	result, err := env.syncer.SyncRepo(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)

	// A github id equal to a jira id would still be distinct rows; kinds
	// partition the upsert key.
	env.fetcher.jiraErr = errors.New("jira down")
	result, err = env.syncer.SyncRepo(ctx, repo)
	require.Error(t, err)
	assert.Equal(t, 1, result.Synced)

	tickets, err := env.syncer.List(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func ticketStates(t *testing.T, env *testEnv, repo *models.Repo) map[string]models.TicketState {
	t.Helper()
	tickets, err := env.syncer.List(context.Background(), repo.ID)
	require.NoError(t, err)
	states := make(map[string]models.TicketState, len(tickets))
	for _, ticket := range tickets {
		states[ticket.SourceID] = ticket.State
	}
	return states
}

func assertEventSeen(t *testing.T, sub *events.Subscription, want events.Type) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case event := <-sub.C:
			if event.Type == want {
				return
			}
		case <-deadline:
			t.Fatalf("event %s not observed", want)
		}
	}
}
