package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/conductor-sh/conductor/internal/models"
)

const jiraFields = "key,summary,description,status,assignee,priority,labels"

type jiraName struct {
	Name string `json:"name"`
}

type jiraUser struct {
	DisplayName string `json:"displayName"`
}

type jiraItemFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Status      *jiraName       `json:"status"`
	Assignee    *jiraUser       `json:"assignee"`
	Priority    *jiraName       `json:"priority"`
	Labels      []string        `json:"labels"`
}

type jiraItem struct {
	Key    string          `json:"key"`
	Fields *jiraItemFields `json:"fields"`
}

// FetchJira searches work items via acli and normalizes them into ticket
// inputs. A missing acli binary yields an actionable install message.
func (f *CLIFetcher) FetchJira(ctx context.Context, jql, baseURL string) ([]models.TicketInput, error) {
	if _, err := exec.LookPath("acli"); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("acli not found: install it from https://developer.atlassian.com/cloud/acli/")
		}
		return nil, err
	}

	out, err := run(ctx, "acli",
		"jira", "workitem", "search",
		"--jql", jql,
		"--json",
		"--fields", jiraFields,
		"--limit", "200",
	)
	if err != nil {
		return nil, err
	}
	return ParseJiraItems(out, baseURL)
}

// ParseJiraItems converts acli search output into ticket inputs. Nested
// fields are frequently absent depending on the instance's configuration, so
// every access is guarded.
func ParseJiraItems(data []byte, baseURL string) ([]models.TicketInput, error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(data, &rawItems); err != nil {
		return nil, fmt.Errorf("failed to parse acli search output: %w", err)
	}

	inputs := make([]models.TicketInput, 0, len(rawItems))
	for _, raw := range rawItems {
		var item jiraItem
		if err := json.Unmarshal(raw, &item); err != nil || item.Key == "" {
			continue
		}

		input := models.TicketInput{
			SourceID: item.Key,
			State:    models.TicketOpen,
			Labels:   "[]",
			URL:      BrowseURL(baseURL, item.Key),
			Raw:      string(raw),
		}

		if f := item.Fields; f != nil {
			input.Title = f.Summary
			input.Body = jiraDescription(f.Description)
			if f.Status != nil {
				input.State = MapJiraStatus(f.Status.Name)
			}
			if f.Assignee != nil && f.Assignee.DisplayName != "" {
				name := f.Assignee.DisplayName
				input.Assignee = &name
			}
			if f.Priority != nil && f.Priority.Name != "" {
				priority := f.Priority.Name
				input.Priority = &priority
			}
			if f.Labels != nil {
				if labelsJSON, err := json.Marshal(f.Labels); err == nil {
					input.Labels = string(labelsJSON)
				}
			}
		}

		inputs = append(inputs, input)
	}
	return inputs, nil
}

// MapJiraStatus normalizes a Jira status string onto the core ticket states.
// Matching is case-insensitive; unrecognized statuses fall back to open.
func MapJiraStatus(status string) models.TicketState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "to do", "open", "backlog", "new", "created", "reopened":
		return models.TicketOpen
	case "in progress", "in review", "in development", "review":
		return models.TicketInProgress
	case "done", "closed", "resolved", "complete", "completed":
		return models.TicketClosed
	default:
		return models.TicketOpen
	}
}

// BrowseURL synthesizes the web URL of a work item from the instance base
// URL, normalizing trailing slashes.
func BrowseURL(baseURL, key string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/browse/" + key
}

// jiraDescription extracts a plain-text body. Descriptions arrive either as
// a plain string or as an Atlassian Document Format object; only the former
// is rendered, the latter degrades to empty.
func jiraDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
