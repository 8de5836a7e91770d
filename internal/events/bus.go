// Package events is the in-process broadcast fabric shared by the HTTP SSE
// endpoint and the background workers. Publishing never blocks: events to a
// full subscriber are dropped and the subscriber is marked lagged, after
// which it must refetch baseline state.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type discriminates bus events. The string values double as SSE event
// names on the wire.
type Type string

const (
	RepoCreated     Type = "repo:created"
	RepoDeleted     Type = "repo:deleted"
	SourceCreated   Type = "source:created"
	SourceDeleted   Type = "source:deleted"
	WorktreeCreated Type = "worktree:created"
	WorktreeUpdated Type = "worktree:updated"
	WorktreeDeleted Type = "worktree:deleted"
	TicketSynced    Type = "ticket:synced"
	SessionStarted  Type = "session:started"
	SessionEnded    Type = "session:ended"
	AgentStarted    Type = "agent:started"
	AgentProgress   Type = "agent:progress"
	AgentCompleted  Type = "agent:completed"
	AgentFailed     Type = "agent:failed"
	AgentCancelled  Type = "agent:cancelled"
	SyncCompleted   Type = "sync:completed"
	SyncFailed      Type = "sync:failed"
	Heartbeat       Type = "heartbeat"
	Lagged          Type = "lagged"
)

// Event is one bus message. ID and Timestamp let SSE clients deduplicate
// after a reconnect.
type Event struct {
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

// New builds a publishable event, stamping id and time.
func New(t Type, payload any) Event {
	return Event{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.New().String(),
	}
}

const subscriberBuffer = 128

// Subscription is one subscriber's ordered event feed.
type Subscription struct {
	C  <-chan Event
	ch chan Event
	id string

	lagged atomic.Bool
}

// Lagged reports whether events were dropped since the last call, clearing
// the flag. A lagged subscriber must refetch baseline state before trusting
// the stream again.
func (s *Subscription) Lagged() bool {
	return s.lagged.Swap(false)
}

// Bus fans events out to subscribers in publication order.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscriber with a buffered feed.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, id: uuid.New().String()}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its feed.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber without blocking. With no
// subscribers the event is dropped silently.
func (b *Bus) Publish(t Type, payload any) {
	b.publish(New(t, payload))
}

func (b *Bus) publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.lagged.Store(true)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
