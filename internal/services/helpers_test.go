package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/models"
)

// testEnv wires every manager over one temp store, with fakes for the
// external tools.
type testEnv struct {
	store    *db.Store
	cfg      *config.Config
	bus      *events.Bus
	executor *fakeExecutor
	fetcher  *stubFetcher
	tmux     *fakeWindowRunner

	repos     *RepoManager
	sources   *SourceManager
	syncer    *TicketSyncer
	worktrees *WorktreeManager
	agents    *AgentManager
	sessions  *SessionManager
	runner    *AgentRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("CONDUCTOR_DIR", dir)
	require.NoError(t, config.EnsureLayout())

	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	store, err := db.Open(filepath.Join(dir, "conductor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:    store,
		cfg:      cfg,
		bus:      events.NewBus(),
		executor: newFakeExecutor(),
		fetcher:  &stubFetcher{},
		tmux:     newFakeWindowRunner(),
	}
	env.repos = NewRepoManager(store, cfg, env.bus)
	env.sources = NewSourceManager(store, env.bus)
	env.syncer = NewTicketSyncer(store, env.sources, env.bus, env.fetcher)
	env.worktrees = NewWorktreeManager(store, cfg, env.bus, env.executor)
	env.agents = NewAgentManager(store)
	env.sessions = NewSessionManager(store, env.bus)
	env.runner = NewAgentRunner(env.agents, env.worktrees, env.tmux, env.bus)
	return env
}

// addRepo registers a repo with explicit everything so no git inspection or
// config derivation kicks in.
func (env *testEnv) addRepo(t *testing.T, slug string) *models.Repo {
	t.Helper()
	repo, err := env.repos.Add(context.Background(), AddRepoOptions{
		Slug:      slug,
		LocalPath: filepath.Join(t.TempDir(), slug, "main"),
		RemoteURL: "https://github.com/acme/" + slug + ".git",
		Workspace: filepath.Join(t.TempDir(), slug),
	})
	require.NoError(t, err)
	return repo
}

func (env *testEnv) addWorktree(t *testing.T, repo *models.Repo, name string) *models.Worktree {
	t.Helper()
	worktree, err := env.worktrees.Create(context.Background(), repo, name, "", nil)
	require.NoError(t, err)
	return worktree
}

func (env *testEnv) upsertTicket(t *testing.T, repo *models.Repo, sourceID, title string, state models.TicketState) *models.Ticket {
	t.Helper()
	ctx := context.Background()
	err := env.syncer.Upsert(ctx, repo.ID, models.SourceGitHub, models.TicketInput{
		SourceID: sourceID,
		Title:    title,
		State:    state,
		Labels:   "[]",
	})
	require.NoError(t, err)

	tickets, err := env.syncer.List(ctx, repo.ID)
	require.NoError(t, err)
	for i := range tickets {
		if tickets[i].SourceID == sourceID {
			return &tickets[i]
		}
	}
	t.Fatalf("ticket %s not found after upsert", sourceID)
	return nil
}

// fakeExecutor records every git and tool invocation. Failures can be
// injected per git subcommand.
type fakeExecutor struct {
	mu       sync.Mutex
	gitCalls [][]string
	cmdCalls [][]string
	gitFail  map[string]error
	cmdOut   []byte
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{gitFail: make(map[string]error)}
}

func (f *fakeExecutor) Git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gitCalls = append(f.gitCalls, args)
	if len(args) > 0 {
		if err := f.gitFail[args[0]]; err != nil {
			return nil, err
		}
	}
	// worktree add materializes the checkout dir, like real git.
	if len(args) >= 3 && args[0] == "worktree" && args[1] == "add" {
		if err := os.MkdirAll(args[2], 0o755); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *fakeExecutor) Command(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmdCalls = append(f.cmdCalls, append([]string{name}, args...))
	return f.cmdOut, nil
}

func (f *fakeExecutor) gitCalled(subcommand string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.gitCalls {
		if len(call) > 0 && call[0] == subcommand {
			return true
		}
	}
	return false
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
	if s.githubErr != nil {
		return nil, s.githubErr
	}
	return s.github, nil
}

func (s *stubFetcher) FetchJira(ctx context.Context, jql, baseURL string) ([]models.TicketInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jiraErr != nil {
		return nil, s.jiraErr
	}
	return s.jira, nil
}

func (s *stubFetcher) setGitHub(inputs []models.TicketInput, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.github, s.githubErr = inputs, err
}

// fakeWindowRunner records window operations in place of tmux.
type fakeWindowRunner struct {
	mu      sync.Mutex
	windows map[string]string
	killed  []string
	newErr  error
	pane    []byte
}

func newFakeWindowRunner() *fakeWindowRunner {
	return &fakeWindowRunner{windows: make(map[string]string), pane: []byte("pane output\n")}
}

func (f *fakeWindowRunner) NewWindow(ctx context.Context, name, shellCommand string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return f.newErr
	}
	f.windows[name] = shellCommand
	return nil
}

func (f *fakeWindowRunner) CapturePane(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[name]; !ok {
		return nil, fmt.Errorf("window %s not found", name)
	}
	return f.pane, nil
}

func (f *fakeWindowRunner) KillWindow(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, name)
	f.killed = append(f.killed, name)
	return nil
}

func (f *fakeWindowRunner) windowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

func (f *fakeWindowRunner) commandFor(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, cmd := range f.windows {
		if strings.HasPrefix(name, prefix) {
			return cmd
		}
	}
	return ""
}
