package tools

import (
	"testing"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jiraFixture = `[
  {
    "key": "X-1",
    "fields": {
      "summary": "Harden sync",
      "description": "plain text body",
      "status": {"name": "In Progress"},
      "assignee": {"displayName": "Ada Lovelace"},
      "priority": {"name": "High"},
      "labels": ["infra"]
    }
  },
  {
    "key": "X-2",
    "fields": {
      "summary": "Sparse item",
      "status": {"name": "Done"}
    }
  },
  {
    "key": "X-3"
  }
]`

func TestParseJiraItems(t *testing.T) {
	inputs, err := ParseJiraItems([]byte(jiraFixture), "https://j.example.com/")
	require.NoError(t, err)
	require.Len(t, inputs, 3)

	first := inputs[0]
	assert.Equal(t, "X-1", first.SourceID)
	assert.Equal(t, "Harden sync", first.Title)
	assert.Equal(t, "plain text body", first.Body)
	assert.Equal(t, models.TicketInProgress, first.State)
	require.NotNil(t, first.Assignee)
	assert.Equal(t, "Ada Lovelace", *first.Assignee)
	require.NotNil(t, first.Priority)
	assert.Equal(t, "High", *first.Priority)
	assert.JSONEq(t, `["infra"]`, first.Labels)
	assert.Equal(t, "https://j.example.com/browse/X-1", first.URL)

	second := inputs[1]
	assert.Equal(t, models.TicketClosed, second.State)
	assert.Nil(t, second.Assignee)
	assert.Nil(t, second.Priority)
	assert.Equal(t, "[]", second.Labels)

	// No fields object at all: everything defaults.
	third := inputs[2]
	assert.Equal(t, "X-3", third.SourceID)
	assert.Equal(t, models.TicketOpen, third.State)
	assert.Empty(t, third.Title)
}

func TestParseJiraItemsADFDescriptionDegrades(t *testing.T) {
	data := `[{"key": "X-9", "fields": {"summary": "s", "description": {"type": "doc", "content": []}}}]`
	inputs, err := ParseJiraItems([]byte(data), "https://j")
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Empty(t, inputs[0].Body)
}

func TestMapJiraStatus(t *testing.T) {
	tests := []struct {
		status string
		want   models.TicketState
	}{
		{"To Do", models.TicketOpen},
		{"open", models.TicketOpen},
		{"Backlog", models.TicketOpen},
		{"NEW", models.TicketOpen},
		{"Created", models.TicketOpen},
		{"Reopened", models.TicketOpen},
		{"In Progress", models.TicketInProgress},
		{"IN PROGRESS", models.TicketInProgress},
		{"in review", models.TicketInProgress},
		{"In Development", models.TicketInProgress},
		{"Review", models.TicketInProgress},
		{"Done", models.TicketClosed},
		{"closed", models.TicketClosed},
		{"Resolved", models.TicketClosed},
		{"Complete", models.TicketClosed},
		{"COMPLETED", models.TicketClosed},
		{"Custom", models.TicketOpen},
		{"", models.TicketOpen},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MapJiraStatus(tt.status), "status %q", tt.status)
	}
}

func TestBrowseURL(t *testing.T) {
	assert.Equal(t, "https://j/browse/X-1", BrowseURL("https://j/", "X-1"))
	assert.Equal(t, "https://j/browse/X-1", BrowseURL("https://j", "X-1"))
	assert.Equal(t, "", BrowseURL("", "X-1"))
}
