package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/models"
)

func TestRepoEndpoints(t *testing.T) {
	ta := newTestApp(t)

	t.Run("RegisterDerivesSlug", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos", AddRepoRequest{
			URL: "https://github.com/acme/payments.git",
		})
		require.Equal(t, 201, resp.StatusCode)

		var repo models.Repo
		decode(t, resp, &repo)
		assert.Equal(t, "payments", repo.Slug)
		assert.Equal(t, "https://github.com/acme/payments.git", repo.RemoteURL)
		assert.Equal(t, "main", repo.DefaultBranch)
	})

	t.Run("DuplicateSlugConflicts", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos", AddRepoRequest{
			URL: "git@github.com:acme/payments.git",
		})
		assert.Equal(t, 409, resp.StatusCode)
	})

	t.Run("ListAndGet", func(t *testing.T) {
		resp := ta.request(t, "GET", "/api/repos", nil)
		require.Equal(t, 200, resp.StatusCode)
		var repos []models.Repo
		decode(t, resp, &repos)
		require.Len(t, repos, 1)

		resp = ta.request(t, "GET", "/api/repos/payments", nil)
		require.Equal(t, 200, resp.StatusCode)
		var bySlug models.Repo
		decode(t, resp, &bySlug)
		assert.Equal(t, repos[0].ID, bySlug.ID)

		resp = ta.request(t, "GET", "/api/repos/"+repos[0].ID, nil)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("UnknownRepo404", func(t *testing.T) {
		resp := ta.request(t, "GET", "/api/repos/nope", nil)
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("InvalidBody400", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos", "not an object")
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("Remove", func(t *testing.T) {
		resp := ta.request(t, "DELETE", "/api/repos/payments", nil)
		require.Equal(t, 200, resp.StatusCode)

		resp = ta.request(t, "GET", "/api/repos/payments", nil)
		assert.Equal(t, 404, resp.StatusCode)
	})
}

func TestSourceEndpoints(t *testing.T) {
	ta := newTestApp(t)
	repo := ta.addRepo(t, "billing")

	t.Run("AttachInfersGitHubConfig", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos/billing/sources", AddSourceRequest{
			Kind: models.SourceGitHub,
		})
		require.Equal(t, 201, resp.StatusCode)

		var source models.IssueSource
		decode(t, resp, &source)
		assert.Equal(t, models.SourceGitHub, source.Kind)
		assert.Contains(t, source.Config, `"owner":"acme"`)
		assert.Contains(t, source.Config, `"repo":"billing"`)
	})

	t.Run("DuplicateKindConflicts", func(t *testing.T) {
		resp := ta.request(t, "POST", "/api/repos/billing/sources", AddSourceRequest{
			Kind: models.SourceGitHub,
		})
		assert.Equal(t, 409, resp.StatusCode)
	})

	t.Run("ListAndRemove", func(t *testing.T) {
		resp := ta.request(t, "GET", "/api/repos/"+repo.ID+"/sources", nil)
		require.Equal(t, 200, resp.StatusCode)
		var sources []models.IssueSource
		decode(t, resp, &sources)
		require.Len(t, sources, 1)

		resp = ta.request(t, "DELETE", "/api/repos/billing/sources/"+sources[0].ID, nil)
		require.Equal(t, 200, resp.StatusCode)

		resp = ta.request(t, "GET", "/api/repos/billing/sources", nil)
		decode(t, resp, &sources)
		assert.Empty(t, sources)
	})

	t.Run("ForeignSource404", func(t *testing.T) {
		other := ta.addRepo(t, "inventory")
		src, err := ta.sources.Add(context.Background(), other, models.SourceGitHub, "")
		require.NoError(t, err)

		resp := ta.request(t, "DELETE", "/api/repos/billing/sources/"+src.ID, nil)
		assert.Equal(t, 404, resp.StatusCode)
	})
}
