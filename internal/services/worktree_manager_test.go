package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/models"
)

func TestWorktreeSlugify(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		input      string
		wantSlug   string
		wantBranch string
	}{
		{"plain", "login-flow", "feat-login-flow", "feat/login-flow"},
		{"spaces and case", "Add Login Flow", "feat-add-login-flow", "feat/add-login-flow"},
		{"fix prefix kept", "fix-auth-timeout", "fix-auth-timeout", "fix/auth-timeout"},
		{"fix detected after cleaning", "Fix Login Flow", "fix-login-flow", "fix/login-flow"},
		{"feat prefix not doubled", "feat-search", "feat-search", "feat/search"},
		{"punctuation stripped", "add @oauth2.0 support!", "feat-add-oauth20-support", "feat/add-oauth20-support"},
		{"hyphen runs collapsed", "a - - b", "feat-a-b", "feat/a-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slug, branch, err := env.worktrees.slugify(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSlug, slug)
			assert.Equal(t, tt.wantBranch, branch)
		})
	}

	t.Run("empty after cleaning", func(t *testing.T) {
		_, _, err := env.worktrees.slugify("!!!")
		require.Error(t, err)
	})
}

func TestWorktreeCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := env.addRepo(t, "app")

	t.Run("BranchAndCheckout", func(t *testing.T) {
		worktree, err := env.worktrees.Create(ctx, repo, "new thing", "", nil)
		require.NoError(t, err)

		assert.Equal(t, "feat-new-thing", worktree.Slug)
		assert.Equal(t, "feat/new-thing", worktree.Branch)
		assert.Equal(t, models.WorktreeActive, worktree.Status)
		assert.Contains(t, worktree.Path, "feat-new-thing")

		assert.Contains(t, env.executor.gitCalls, []string{"branch", "feat/new-thing", "main"})
		assert.Contains(t, env.executor.gitCalls, []string{"worktree", "add", worktree.Path, "feat/new-thing"})
	})

	t.Run("ExplicitBaseBranch", func(t *testing.T) {
		_, err := env.worktrees.Create(ctx, repo, "from-develop", "develop", nil)
		require.NoError(t, err)
		assert.Contains(t, env.executor.gitCalls, []string{"branch", "feat/from-develop", "develop"})
	})

	t.Run("DuplicateSlugRejected", func(t *testing.T) {
		_, err := env.worktrees.Create(ctx, repo, "new thing", "", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrWorktreeExists)
	})

	t.Run("BranchCleanedUpWhenCheckoutFails", func(t *testing.T) {
		env.executor.gitFail["worktree"] = errors.New("worktree add failed")
		defer delete(env.executor.gitFail, "worktree")

		_, err := env.worktrees.Create(ctx, repo, "broken", "", nil)
		require.Error(t, err)
		assert.Contains(t, env.executor.gitCalls, []string{"branch", "-D", "feat/broken"})

		_, err = env.worktrees.GetBySlug(ctx, repo.ID, "feat-broken")
		assert.ErrorIs(t, err, models.ErrWorktreeNotFound)
	})
}

func TestWorktreeDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := env.addRepo(t, "deletable")

	t.Run("UnlinkedBecomesAbandoned", func(t *testing.T) {
		worktree := env.addWorktree(t, repo, "drop-me")

		deleted, err := env.worktrees.Delete(ctx, repo, "drop-me")
		require.NoError(t, err)
		assert.Equal(t, models.WorktreeAbandoned, deleted.Status)
		require.NotNil(t, deleted.CompletedAt)

		assert.Contains(t, env.executor.gitCalls, []string{"worktree", "remove", "--force", worktree.Path})
		assert.Contains(t, env.executor.gitCalls, []string{"branch", "-D", worktree.Branch})

		// Soft delete: the row is still there.
		got, err := env.worktrees.Get(ctx, worktree.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorktreeAbandoned, got.Status)
	})

	t.Run("ClosedTicketMeansMerged", func(t *testing.T) {
		ticket := env.upsertTicket(t, repo, "11", "done work", models.TicketClosed)
		_, err := env.worktrees.Create(ctx, repo, "done-work", "", &ticket.ID)
		require.NoError(t, err)

		deleted, err := env.worktrees.Delete(ctx, repo, "done-work")
		require.NoError(t, err)
		assert.Equal(t, models.WorktreeMerged, deleted.Status)
	})

	t.Run("GitFailureStillSoftDeletes", func(t *testing.T) {
		env.addWorktree(t, repo, "stubborn")
		env.executor.gitFail["worktree"] = errors.New("locked")
		env.executor.gitFail["branch"] = errors.New("in use")
		defer func() {
			delete(env.executor.gitFail, "worktree")
			delete(env.executor.gitFail, "branch")
		}()

		deleted, err := env.worktrees.Delete(ctx, repo, "stubborn")
		require.NoError(t, err)
		assert.Equal(t, models.WorktreeAbandoned, deleted.Status)
	})

	t.Run("UnknownNameNotFound", func(t *testing.T) {
		_, err := env.worktrees.Delete(ctx, repo, "no-such")
		assert.ErrorIs(t, err, models.ErrWorktreeNotFound)
	})
}

func TestWorktreePurge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := env.addRepo(t, "purgeable")

	active := env.addWorktree(t, repo, "keep")
	env.addWorktree(t, repo, "old-one")
	env.addWorktree(t, repo, "old-two")
	_, err := env.worktrees.Delete(ctx, repo, "old-one")
	require.NoError(t, err)
	_, err = env.worktrees.Delete(ctx, repo, "old-two")
	require.NoError(t, err)

	t.Run("ActiveRefused", func(t *testing.T) {
		_, err := env.worktrees.Purge(ctx, repo, "keep")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "still active")
	})

	t.Run("SingleTerminalPurged", func(t *testing.T) {
		n, err := env.worktrees.Purge(ctx, repo, "old-one")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = env.worktrees.GetBySlug(ctx, repo.ID, "feat-old-one")
		assert.ErrorIs(t, err, models.ErrWorktreeNotFound)
	})

	t.Run("SweepPurgesAllTerminal", func(t *testing.T) {
		n, err := env.worktrees.Purge(ctx, repo, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		remaining, err := env.worktrees.List(ctx, repo.ID)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, active.ID, remaining[0].ID)
	})
}

func TestWorktreeResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := env.addRepo(t, "resolver")
	worktree := env.addWorktree(t, repo, "payments")

	for _, ref := range []string{worktree.ID, "feat-payments", "payments"} {
		got, err := env.worktrees.Resolve(ctx, repo, ref)
		require.NoError(t, err, "ref %q", ref)
		assert.Equal(t, worktree.ID, got.ID)
	}

	other := env.addRepo(t, "other")
	_, err := env.worktrees.Resolve(ctx, other, "payments")
	assert.ErrorIs(t, err, models.ErrWorktreeNotFound)
}

func TestWorktreeLinkTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := env.addRepo(t, "linkable")
	worktree := env.addWorktree(t, repo, "feature")
	ticket := env.upsertTicket(t, repo, "3", "to link", models.TicketOpen)

	require.NoError(t, env.worktrees.LinkTicket(ctx, worktree.ID, &ticket.ID))
	got, err := env.worktrees.Get(ctx, worktree.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TicketID)
	assert.Equal(t, ticket.ID, *got.TicketID)

	t.Run("UnknownTicketRejected", func(t *testing.T) {
		bogus := "not-a-ticket"
		err := env.worktrees.LinkTicket(ctx, worktree.ID, &bogus)
		assert.ErrorIs(t, err, models.ErrTicketNotFound)
	})

	t.Run("NilDetaches", func(t *testing.T) {
		require.NoError(t, env.worktrees.LinkTicket(ctx, worktree.ID, nil))
		got, err := env.worktrees.Get(ctx, worktree.ID)
		require.NoError(t, err)
		assert.Nil(t, got.TicketID)
	})

	t.Run("PushAndPR", func(t *testing.T) {
		require.NoError(t, env.worktrees.Push(ctx, got))
		assert.Contains(t, env.executor.gitCalls, []string{"push", "-u", "origin", got.Branch})

		env.executor.cmdOut = []byte("https://github.com/acme/linkable/pull/12\n")
		url, err := env.worktrees.CreatePR(ctx, got)
		require.NoError(t, err)
		assert.Equal(t, "https://github.com/acme/linkable/pull/12", url)
	})
}
