package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/models"
)

func TestWorktreeEndpoints(t *testing.T) {
	ta := newTestApp(t)
	repo := ta.addRepo(t, "frontend")

	var created models.Worktree

	t.Run("Create", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos/frontend/worktrees", CreateWorktreeRequest{
			Name: "Dark Mode",
		})
		require.Equal(t, 201, resp.StatusCode)
		decode(t, resp, &created)
		assert.Equal(t, "feat-dark-mode", created.Slug)
		assert.Equal(t, "feat/dark-mode", created.Branch)
		assert.Equal(t, models.WorktreeActive, created.Status)
	})

	t.Run("NameRequired", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos/frontend/worktrees", CreateWorktreeRequest{})
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("DuplicateConflicts", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos/"+repo.ID+"/worktrees", CreateWorktreeRequest{
			Name: "dark mode",
		})
		assert.Equal(t, 409, resp.StatusCode)
	})

	t.Run("ListAndGet", func(t *testing.T) {
		resp := ta.request(t, "GET", "/api/repos/frontend/worktrees", nil)
		require.Equal(t, 200, resp.StatusCode)
		var worktrees []models.Worktree
		decode(t, resp, &worktrees)
		require.Len(t, worktrees, 1)

		resp = ta.request(t, "GET", "/api/worktrees/"+created.ID, nil)
		require.Equal(t, 200, resp.StatusCode)
		var got models.Worktree
		decode(t, resp, &got)
		assert.Equal(t, created.Slug, got.Slug)
	})

	t.Run("DeleteSoftDeletes", func(t *testing.T) {
		resp := ta.request(t, "DELETE", "/api/worktrees/"+created.ID, nil)
		require.Equal(t, 200, resp.StatusCode)

		var deleted models.Worktree
		decode(t, resp, &deleted)
		assert.Equal(t, models.WorktreeAbandoned, deleted.Status)
		assert.NotNil(t, deleted.CompletedAt)

		// Soft-deleted rows are still readable.
		resp = ta.request(t, "GET", "/api/worktrees/"+created.ID, nil)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("Unknown404", func(t *testing.T) {
		resp := ta.request(t, "GET", "/api/worktrees/missing", nil)
		assert.Equal(t, 404, resp.StatusCode)

		resp = ta.request(t, "DELETE", "/api/worktrees/missing", nil)
		assert.Equal(t, 404, resp.StatusCode)
	})
}
