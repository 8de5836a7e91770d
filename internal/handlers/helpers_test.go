package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

// testApp hosts the full router over a temp store, with stubs standing in
// for git, tmux and the issue providers.
type testApp struct {
	app   *fiber.App
	cfg   *config.Config
	store *db.Store
	bus   *events.Bus

	repos     *services.RepoManager
	sources   *services.SourceManager
	syncer    *services.TicketSyncer
	worktrees *services.WorktreeManager
	agents    *services.AgentManager
	runner    *services.AgentRunner
	poller    *services.Poller

	fetcher *stubFetcher
	windows *stubWindows
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("CONDUCTOR_DIR", dir)
	require.NoError(t, config.EnsureLayout())

	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	store, err := db.Open(filepath.Join(dir, "conductor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ta := &testApp{
		cfg:     cfg,
		store:   store,
		bus:     events.NewBus(),
		fetcher: &stubFetcher{},
		windows: newStubWindows(),
	}
	ta.repos = services.NewRepoManager(store, cfg, ta.bus)
	ta.sources = services.NewSourceManager(store, ta.bus)
	ta.syncer = services.NewTicketSyncer(store, ta.sources, ta.bus, ta.fetcher)
	ta.worktrees = services.NewWorktreeManager(store, cfg, ta.bus, &stubExecutor{})
	ta.agents = services.NewAgentManager(store)
	ta.runner = services.NewAgentRunner(ta.agents, ta.worktrees, ta.windows, ta.bus)
	ta.poller = services.NewPoller(ta.repos, ta.worktrees, ta.syncer, services.NewSessionManager(store, ta.bus), ta.agents, ta.bus)

	ta.app = NewRouter(Deps{
		Version:   "test",
		Config:    cfg,
		Bus:       ta.bus,
		Repos:     ta.repos,
		Sources:   ta.sources,
		Syncer:    ta.syncer,
		Worktrees: ta.worktrees,
		Agents:    ta.agents,
		Runner:    ta.runner,
		Poller:    ta.poller,
	})
	return ta
}

func (ta *testApp) addRepo(t *testing.T, slug string) *models.Repo {
	t.Helper()
	repo, err := ta.repos.Add(context.Background(), services.AddRepoOptions{
		Slug:      slug,
		LocalPath: filepath.Join(t.TempDir(), slug, "main"),
		RemoteURL: "https://github.com/acme/" + slug + ".git",
		Workspace: filepath.Join(t.TempDir(), slug),
	})
	require.NoError(t, err)
	return repo
}

func (ta *testApp) addWorktree(t *testing.T, repo *models.Repo, name string) *models.Worktree {
	t.Helper()
	worktree, err := ta.worktrees.Create(context.Background(), repo, name, "", nil)
	require.NoError(t, err)
	return worktree
}

// request performs one JSON request against the router.
func (ta *testApp) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	return resp
}

// decode reads the response body into out.
func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// stubExecutor accepts every git and tool invocation.
type stubExecutor struct{}

func (stubExecutor) Git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return nil, nil
}

func (stubExecutor) Command(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return nil, nil
}

// stubFetcher serves canned ticket inputs per provider.
type stubFetcher struct {
	mu        sync.Mutex
	github    []models.TicketInput
	githubErr error
	jira      []models.TicketInput
	jiraErr   error
}

func (s *stubFetcher) FetchGitHub(ctx context.Context, owner, repo string) ([]models.TicketInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.github, s.githubErr
}

func (s *stubFetcher) FetchJira(ctx context.Context, jql, baseURL string) ([]models.TicketInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jira, s.jiraErr
}

func (s *stubFetcher) setGitHub(inputs []models.TicketInput, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.github, s.githubErr = inputs, err
}

// stubWindows records tmux window operations.
type stubWindows struct {
	mu      sync.Mutex
	windows map[string]string
}

func newStubWindows() *stubWindows {
	return &stubWindows{windows: make(map[string]string)}
}

func (s *stubWindows) NewWindow(ctx context.Context, name, shellCommand string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[name] = shellCommand
	return nil
}

func (s *stubWindows) CapturePane(ctx context.Context, name string) ([]byte, error) {
	return []byte("captured\n"), nil
}

func (s *stubWindows) KillWindow(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, name)
	return nil
}
