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

func TestSyncAllPublishesOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scheduler := NewSyncScheduler(env.repos, env.syncer, env.cfg, env.bus)

	// alpha sorts first and its jira source fails; beta's github source
	// succeeds, proving the sweep outlives a failure.
	alpha := env.addRepo(t, "alpha")
	_, err := env.sources.Add(ctx, alpha, models.SourceJira, `{"jql":"project = ALPHA"}`)
	require.NoError(t, err)

	beta := env.addRepo(t, "beta")
	_, err = env.sources.Add(ctx, beta, models.SourceGitHub, "")
	require.NoError(t, err)

	env.fetcher.setGitHub([]models.TicketInput{
		{SourceID: "1", Title: "Works", State: models.TicketOpen, Labels: "[]"},
	}, nil)
	env.fetcher.mu.Lock()
	env.fetcher.jiraErr = assert.AnError
	env.fetcher.mu.Unlock()

	sub := env.bus.Subscribe()
	defer env.bus.Unsubscribe(sub)

	scheduler.SyncAll(ctx)

	failed := nextEvent(t, sub, events.SyncFailed)
	failure, ok := failed.Payload.(events.SyncOutcomePayload)
	require.True(t, ok)
	assert.Equal(t, alpha.ID, failure.RepoID)
	assert.Equal(t, "alpha", failure.Slug)
	assert.NotEmpty(t, failure.Error)

	completed := nextEvent(t, sub, events.SyncCompleted)
	outcome, ok := completed.Payload.(events.SyncOutcomePayload)
	require.True(t, ok)
	assert.Equal(t, beta.ID, outcome.RepoID)
	assert.Equal(t, "beta", outcome.Slug)
	assert.Equal(t, 1, outcome.Synced)
	assert.Empty(t, outcome.Error)

	t.Run("TicketsLanded", func(t *testing.T) {
		tickets, err := env.syncer.List(ctx, beta.ID)
		require.NoError(t, err)
		assert.Len(t, tickets, 1)
	})
}

func TestSyncAllWithNothingRegistered(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewSyncScheduler(env.repos, env.syncer, env.cfg, env.bus)

	sub := env.bus.Subscribe()
	defer env.bus.Unsubscribe(sub)

	scheduler.SyncAll(context.Background())
	assertEventNotSeen(t, sub, events.SyncFailed)
	assertEventNotSeen(t, sub, events.SyncCompleted)
}

func TestSchedulerStartStop(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewSyncScheduler(env.repos, env.syncer, env.cfg, env.bus)

	scheduler.Start()
	scheduler.Stop()
}

// nextEvent waits for the given event type, skipping unrelated traffic.
func nextEvent(t *testing.T, sub *events.Subscription, want events.Type) events.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case event := <-sub.C:
			if event.Type == want {
				return event
			}
		case <-deadline:
			t.Fatalf("event %s not observed", want)
			return events.Event{}
		}
	}
}
