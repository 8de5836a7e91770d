package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/models"
)

func TestRepoAdd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("DerivesSlugFromRemote", func(t *testing.T) {
		repo, err := env.repos.Add(ctx, AddRepoOptions{
			RemoteURL: "https://github.com/org/my-proj.git",
		})
		require.NoError(t, err)
		assert.Equal(t, "my-proj", repo.Slug)
		assert.Equal(t, filepath.Join(env.cfg.WorkspaceRoot(), "my-proj"), repo.WorkspaceDir)
		assert.Equal(t, filepath.Join(repo.WorkspaceDir, "main"), repo.LocalPath)
		assert.Equal(t, "main", repo.DefaultBranch)
	})

	t.Run("ExplicitSlugWins", func(t *testing.T) {
		repo, err := env.repos.Add(ctx, AddRepoOptions{
			Slug:      "renamed",
			RemoteURL: "git@github.com:org/other.git",
		})
		require.NoError(t, err)
		assert.Equal(t, "renamed", repo.Slug)
	})

	t.Run("DuplicateSlugRejected", func(t *testing.T) {
		_, err := env.repos.Add(ctx, AddRepoOptions{
			RemoteURL: "https://github.com/other-org/my-proj",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrRepoAlreadyExists)
		assert.True(t, models.IsConflict(err))
	})

	t.Run("NoSlugNoRemote", func(t *testing.T) {
		_, err := env.repos.Add(ctx, AddRepoOptions{})
		require.Error(t, err)
	})
}

func TestRepoLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alpha := env.addRepo(t, "alpha")
	env.addRepo(t, "beta")

	t.Run("ListOrderedBySlug", func(t *testing.T) {
		repos, err := env.repos.List(ctx)
		require.NoError(t, err)
		require.Len(t, repos, 2)
		assert.Equal(t, "alpha", repos[0].Slug)
		assert.Equal(t, "beta", repos[1].Slug)
	})

	t.Run("GetResolvesIDThenSlug", func(t *testing.T) {
		byID, err := env.repos.Get(ctx, alpha.ID)
		require.NoError(t, err)
		assert.Equal(t, alpha.Slug, byID.Slug)

		bySlug, err := env.repos.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, alpha.ID, bySlug.ID)
	})

	t.Run("UnknownRefNotFound", func(t *testing.T) {
		_, err := env.repos.Get(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrRepoNotFound)
	})
}

func TestRepoRemoveCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	repo := env.addRepo(t, "doomed")
	_, err := env.sources.Add(ctx, repo, models.SourceGitHub, "")
	require.NoError(t, err)
	ticket := env.upsertTicket(t, repo, "1", "cascade me", models.TicketOpen)
	worktree := env.addWorktree(t, repo, "feature")
	run, err := env.agents.CreateRun(ctx, worktree.ID, "do the thing")
	require.NoError(t, err)

	require.NoError(t, env.repos.Remove(ctx, "doomed"))

	_, err = env.repos.Get(ctx, "doomed")
	assert.ErrorIs(t, err, models.ErrRepoNotFound)

	sources, err := env.sources.List(ctx, repo.ID)
	require.NoError(t, err)
	assert.Empty(t, sources)

	_, err = env.syncer.GetTicket(ctx, ticket.ID)
	assert.ErrorIs(t, err, models.ErrTicketNotFound)

	_, err = env.worktrees.Get(ctx, worktree.ID)
	assert.ErrorIs(t, err, models.ErrWorktreeNotFound)

	_, err = env.agents.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}
