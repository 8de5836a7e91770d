package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/models"
)

func newTestPoller(env *testEnv) *Poller {
	return NewPoller(env.repos, env.worktrees, env.syncer, env.sessions, env.agents, env.bus)
}

func TestPollerCollect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poller := newTestPoller(env)

	repo := env.addRepo(t, "snapshot")
	worktree := env.addWorktree(t, repo, "viewport")
	ticket := env.upsertTicket(t, repo, "77", "Panel flickers", models.TicketOpen)
	require.NoError(t, env.worktrees.LinkTicket(ctx, worktree.ID, &ticket.ID))

	run, err := env.agents.CreateRun(ctx, worktree.ID, "investigate")
	require.NoError(t, err)
	turns := 4
	require.NoError(t, env.agents.CompleteRun(ctx, run.ID, nil, nil, nil, &turns, nil))

	session, err := env.sessions.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, env.sessions.AddWorktree(ctx, session.ID, worktree.ID))

	snap, err := poller.Collect(ctx)
	require.NoError(t, err)

	assert.Len(t, snap.Repos, 1)
	assert.Len(t, snap.Worktrees, 1)
	assert.Len(t, snap.Tickets, 1)
	require.NotNil(t, snap.CurrentSession)
	assert.Equal(t, session.ID, snap.CurrentSession.ID)
	assert.Equal(t, []string{worktree.ID}, snap.SessionWorktreeIDs)
	require.Contains(t, snap.LatestRuns, worktree.ID)
	assert.Equal(t, run.ID, snap.LatestRuns[worktree.ID].ID)
	require.Contains(t, snap.TicketTotals, ticket.ID)
	assert.Equal(t, 4, snap.TicketTotals[ticket.ID].Turns)
	assert.False(t, snap.CollectedAt.IsZero())

	t.Run("NoSessionMeansNoWorktreeIDs", func(t *testing.T) {
		_, err := env.sessions.End(ctx, nil)
		require.NoError(t, err)
		snap, err := poller.Collect(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap.CurrentSession)
		assert.Empty(t, snap.SessionWorktreeIDs)
	})
}

func TestPollerPublishesTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poller := newTestPoller(env)

	repo := env.addRepo(t, "transitions")
	worktree := env.addWorktree(t, repo, "observed")

	sub := env.bus.Subscribe()
	defer env.bus.Unsubscribe(sub)

	run, err := env.agents.CreateRun(ctx, worktree.ID, "work")
	require.NoError(t, err)

	// First pass sees the run as running; nothing terminal yet.
	poller.pass()
	assertEventNotSeen(t, sub, events.AgentCompleted)

	require.NoError(t, env.agents.CompleteRun(ctx, run.ID, nil, nil, nil, nil, nil))
	poller.pass()
	assertEventSeen(t, sub, events.AgentCompleted)

	t.Run("CancellationObserved", func(t *testing.T) {
		other := env.addWorktree(t, repo, "halted")
		run, err := env.agents.CreateRun(ctx, other.ID, "work")
		require.NoError(t, err)
		poller.pass()

		require.NoError(t, env.agents.CancelRun(ctx, run.ID))
		poller.pass()
		assertEventSeen(t, sub, events.AgentCancelled)
	})

	t.Run("AlreadyTerminalOnFirstSightIsSilent", func(t *testing.T) {
		fresh := newTestPoller(env)
		other := env.addWorktree(t, repo, "historic")
		run, err := env.agents.CreateRun(ctx, other.ID, "work")
		require.NoError(t, err)
		require.NoError(t, env.agents.FailRun(ctx, run.ID, "boom"))

		fresh.pass()
		assertEventNotSeen(t, sub, events.AgentFailed)
	})
}

func TestPollerSnapshotChannel(t *testing.T) {
	env := newTestEnv(t)
	poller := newTestPoller(env)

	env.addRepo(t, "first")
	poller.pass()
	env.addRepo(t, "second")
	poller.pass()

	// Only the freshest snapshot is pending.
	select {
	case snap := <-poller.Snapshots():
		assert.Len(t, snap.Repos, 2)
	default:
		t.Fatal("no snapshot pending after pass")
	}
	select {
	case <-poller.Snapshots():
		t.Fatal("stale snapshot left behind")
	default:
	}
}

func TestPollerPoke(t *testing.T) {
	env := newTestEnv(t)
	poller := newTestPoller(env)

	// Non-blocking even when nobody consumes and pokes pile up.
	poller.Poke()
	poller.Poke()
	poller.Poke()

	poller.Start()
	defer poller.Stop()

	select {
	case snap := <-poller.Snapshots():
		assert.False(t, snap.CollectedAt.IsZero())
	case <-time.After(3 * time.Second):
		t.Fatal("poller produced no snapshot")
	}
}

// assertEventNotSeen drains the subscription briefly and fails if the type
// shows up.
func assertEventNotSeen(t *testing.T, sub *events.Subscription, unwanted events.Type) {
	t.Helper()
	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case event := <-sub.C:
			if event.Type == unwanted {
				t.Fatalf("event %s observed unexpectedly", unwanted)
			}
		case <-deadline:
			return
		}
	}
}
