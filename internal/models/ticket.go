package models

import "time"

// TicketState is the normalized lifecycle state of a cached ticket.
type TicketState string

const (
	TicketOpen       TicketState = "open"
	TicketInProgress TicketState = "in_progress"
	TicketClosed     TicketState = "closed"
)

// Valid reports whether the state is one of the normalized values.
func (s TicketState) Valid() bool {
	return s == TicketOpen || s == TicketInProgress || s == TicketClosed
}

// Ticket is a cached external issue. (repo_id, source_kind, source_id) is
// the upsert key; only the ticket syncer creates or mutates rows.
type Ticket struct {
	ID         string      `db:"id" json:"id"`
	RepoID     string      `db:"repo_id" json:"repo_id"`
	SourceKind SourceKind  `db:"source_kind" json:"source_kind"`
	SourceID   string      `db:"source_id" json:"source_id"`
	Title      string      `db:"title" json:"title"`
	Body       string      `db:"body" json:"body"`
	State      TicketState `db:"state" json:"state"`
	Labels     string      `db:"labels" json:"labels"` // JSON array
	Assignee   *string     `db:"assignee" json:"assignee,omitempty"`
	Priority   *string     `db:"priority" json:"priority,omitempty"`
	URL        string      `db:"url" json:"url"`
	SyncedAt   time.Time   `db:"synced_at" json:"synced_at"`
	Raw        string      `db:"raw" json:"-"` // provider payload, verbatim
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// TicketInput is a normalized per-source record produced by a fetch,
// before it is upserted into the store.
type TicketInput struct {
	SourceID string
	Title    string
	Body     string
	State    TicketState
	Labels   string // JSON array
	Assignee *string
	Priority *string
	URL      string
	Raw      string
}

// SyncResult summarizes one reconciliation pass for a repo.
type SyncResult struct {
	Synced int `json:"synced"`
	Closed int `json:"closed"`
}
