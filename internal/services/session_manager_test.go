package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("NoSessionInitially", func(t *testing.T) {
		current, err := env.sessions.Current(ctx)
		require.NoError(t, err)
		assert.Nil(t, current)

		_, err = env.sessions.End(ctx, nil)
		assert.ErrorIs(t, err, models.ErrNoOpenSession)
	})

	t.Run("OnlyOneOpenSession", func(t *testing.T) {
		session, err := env.sessions.Start(ctx)
		require.NoError(t, err)
		assert.True(t, session.Open())

		_, err = env.sessions.Start(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrSessionAlreadyOpen)
		assert.Contains(t, err.Error(), session.ID)
	})

	t.Run("EndWithNotes", func(t *testing.T) {
		notes := "shipped the sync fix"
		ended, err := env.sessions.End(ctx, &notes)
		require.NoError(t, err)
		assert.False(t, ended.Open())
		require.NotNil(t, ended.Notes)
		assert.Equal(t, notes, *ended.Notes)

		current, err := env.sessions.Current(ctx)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("NewSessionAfterEnd", func(t *testing.T) {
		session, err := env.sessions.Start(ctx)
		require.NoError(t, err)

		sessions, err := env.sessions.List(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, session.ID, sessions[0].ID)
	})
}

func TestSessionWorktreeLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := env.addRepo(t, "tracked")
	one := env.addWorktree(t, repo, "one")
	two := env.addWorktree(t, repo, "two")

	session, err := env.sessions.Start(ctx)
	require.NoError(t, err)

	t.Run("LinksDeduplicate", func(t *testing.T) {
		require.NoError(t, env.sessions.AddWorktree(ctx, session.ID, one.ID))
		require.NoError(t, env.sessions.AddWorktree(ctx, session.ID, one.ID))
		require.NoError(t, env.sessions.AddWorktree(ctx, session.ID, two.ID))

		worktrees, err := env.sessions.GetWorktrees(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, worktrees, 2)
	})

	t.Run("AttachCurrent", func(t *testing.T) {
		three := env.addWorktree(t, repo, "three")
		require.NoError(t, env.sessions.AttachCurrent(ctx, three.ID))

		ids, err := env.sessions.WorktreeIDs(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, ids, 3)
	})

	t.Run("AttachWithoutSessionIsNoop", func(t *testing.T) {
		_, err := env.sessions.End(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, env.sessions.AttachCurrent(ctx, one.ID))

		ids, err := env.sessions.WorktreeIDs(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, ids, 3)
	})

	t.Run("LinksSurviveInHistory", func(t *testing.T) {
		got, err := env.sessions.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.False(t, got.Open())

		worktrees, err := env.sessions.GetWorktrees(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, worktrees, 3)
	})
}
