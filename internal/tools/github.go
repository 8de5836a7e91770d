package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/conductor-sh/conductor/internal/models"
)

// issueFields is the --json field list requested from gh. Kept in one place
// so the parser and the invocation cannot drift apart.
const issueFields = "number,title,body,labels,assignees,state,url"

type ghLabel struct {
	Name string `json:"name"`
}

type ghUser struct {
	Login string `json:"login"`
}

type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	URL       string    `json:"url"`
	Labels    []ghLabel `json:"labels"`
	Assignees []ghUser  `json:"assignees"`
}

// CLIFetcher retrieves open issues through the provider CLIs. It implements
// the ticket syncer's Fetcher interface.
type CLIFetcher struct{}

// NewCLIFetcher creates a fetcher backed by the gh and acli binaries.
func NewCLIFetcher() *CLIFetcher {
	return &CLIFetcher{}
}

// FetchGitHub lists open issues of owner/repo via gh and normalizes them
// into ticket inputs.
func (f *CLIFetcher) FetchGitHub(ctx context.Context, owner, repo string) ([]models.TicketInput, error) {
	out, err := run(ctx, "gh",
		"issue", "list",
		"--repo", owner+"/"+repo,
		"--json", issueFields,
		"--limit", "200",
		"--state", "open",
	)
	if err != nil {
		return nil, err
	}
	return ParseGitHubIssues(out)
}

// ParseGitHubIssues converts the JSON emitted by gh issue list into ticket
// inputs. Unknown fields default to empty strings and empty arrays; the raw
// per-issue payload is kept verbatim.
func ParseGitHubIssues(data []byte) ([]models.TicketInput, error) {
	var rawIssues []json.RawMessage
	if err := json.Unmarshal(data, &rawIssues); err != nil {
		return nil, fmt.Errorf("failed to parse gh issue list output: %w", err)
	}

	inputs := make([]models.TicketInput, 0, len(rawIssues))
	for _, raw := range rawIssues {
		var issue ghIssue
		if err := json.Unmarshal(raw, &issue); err != nil {
			continue
		}

		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			if l.Name != "" {
				labels = append(labels, l.Name)
			}
		}
		labelsJSON, _ := json.Marshal(labels)

		var assignee *string
		if len(issue.Assignees) > 0 && issue.Assignees[0].Login != "" {
			login := issue.Assignees[0].Login
			assignee = &login
		}

		state := models.TicketOpen
		if strings.EqualFold(issue.State, "closed") {
			state = models.TicketClosed
		}

		inputs = append(inputs, models.TicketInput{
			SourceID: strconv.Itoa(issue.Number),
			Title:    issue.Title,
			Body:     issue.Body,
			State:    state,
			Labels:   string(labelsJSON),
			Assignee: assignee,
			URL:      issue.URL,
			Raw:      string(raw),
		})
	}
	return inputs, nil
}
