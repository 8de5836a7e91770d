package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	// Must not block or panic.
	bus.Publish(RepoCreated, RepoPayload{RepoID: "r1", Slug: "widgets"})
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestSubscriberReceivesInPublicationOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Publish(WorktreeCreated, WorktreePayload{WorktreeID: "w1"})
	bus.Publish(WorktreeUpdated, WorktreePayload{WorktreeID: "w1"})
	bus.Publish(WorktreeDeleted, WorktreePayload{WorktreeID: "w1"})

	assert.Equal(t, WorktreeCreated, (<-sub.C).Type)
	assert.Equal(t, WorktreeUpdated, (<-sub.C).Type)

	third := <-sub.C
	assert.Equal(t, WorktreeDeleted, third.Type)
	assert.NotEmpty(t, third.ID)
	assert.NotZero(t, third.Timestamp)
	assert.False(t, sub.Lagged())
}

func TestAllSubscribersReceive(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe()
	second := bus.Subscribe()
	defer bus.Unsubscribe(first)
	defer bus.Unsubscribe(second)

	bus.Publish(SessionStarted, SessionPayload{SessionID: "s1"})

	assert.Equal(t, SessionStarted, (<-first.C).Type)
	assert.Equal(t, SessionStarted, (<-second.C).Type)
}

func TestOverflowMarksLaggedAndDrops(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(AgentProgress, AgentProgressPayload{RunID: fmt.Sprintf("run-%d", i)})
	}

	assert.True(t, sub.Lagged())
	assert.False(t, sub.Lagged(), "flag is cleared by the read")
	assert.Len(t, sub.ch, subscriberBuffer, "buffered events are retained, overflow dropped")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// Double unsubscribe must be safe.
	bus.Unsubscribe(sub)
}
