package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/conductor-sh/conductor/internal/cache"
	"github.com/conductor-sh/conductor/internal/models"
)

// streamLine is one line of claude's stream-json output. Only the fields
// conductor consumes are declared; the discriminator is Type.
type streamLine struct {
	Type      string         `json:"type"`
	Subtype   string         `json:"subtype"`
	Model     string         `json:"model"`
	SessionID string         `json:"session_id"`
	Message   *streamMessage `json:"message"`

	// result lines only
	Result       *string  `json:"result"`
	TotalCostUSD *float64 `json:"total_cost_usd"`
	NumTurns     *int     `json:"num_turns"`
	DurationMS   *int64   `json:"duration_ms"`
	IsError      bool     `json:"is_error"`
}

type streamMessage struct {
	Content []streamContent `json:"content"`
}

type streamContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// scanBuffer sizes the line scanner for claude's output, where a single
// tool_use line can carry a whole file.
const scanBuffer = 4 * 1024 * 1024

// CountTurnsInLog counts assistant messages in a stream-json log, the live
// proxy for a running agent's turn count. Unreadable files and malformed
// lines count as zero.
func CountTurnsInLog(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	turns := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBuffer)
	for scanner.Scan() {
		var line struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Type == "assistant" {
			turns++
		}
	}
	return turns
}

// replayEntry memoizes one parsed log. It stays valid while the file's size
// and modification time are unchanged, which covers the append-only writes
// claude makes.
type replayEntry struct {
	size    int64
	modTime time.Time
	events  []models.AgentLogEvent
}

// replayCache spares the events endpoint and the TUI inspector, both of
// which poll running agents every second, from re-parsing multi-megabyte
// logs. Callers treat returned slices as read-only.
var replayCache = cache.New[replayEntry](64, time.Hour)

// ParseAgentLog replays a run's stream-json log as displayable events:
// session start, assistant text, tool invocations and the final result.
// Malformed lines are skipped.
func ParseAgentLog(path string) ([]models.AgentLogEvent, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent log: %w", err)
	}
	if cached, ok := replayCache.Get(path); ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.events, nil
	}

	agentEvents, err := parseAgentLog(path)
	if err != nil {
		return agentEvents, err
	}
	replayCache.Put(path, replayEntry{size: info.Size(), modTime: info.ModTime(), events: agentEvents})
	return agentEvents, nil
}

func parseAgentLog(path string) ([]models.AgentLogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent log: %w", err)
	}
	defer f.Close()

	var agentEvents []models.AgentLogEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBuffer)
	for scanner.Scan() {
		var line streamLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		agentEvents = append(agentEvents, eventsFromLine(&line)...)
	}
	if err := scanner.Err(); err != nil {
		return agentEvents, fmt.Errorf("failed to read agent log: %w", err)
	}
	return agentEvents, nil
}

func eventsFromLine(line *streamLine) []models.AgentLogEvent {
	switch line.Type {
	case "system":
		if line.Subtype != "init" {
			return nil
		}
		return []models.AgentLogEvent{{
			Kind:    models.AgentEventSystem,
			Summary: fmt.Sprintf("Session started (model: %s)", line.Model),
		}}

	case "assistant":
		if line.Message == nil {
			return nil
		}
		var out []models.AgentLogEvent
		for _, content := range line.Message.Content {
			switch content.Type {
			case "text":
				for _, text := range strings.Split(content.Text, "\n") {
					if text = strings.TrimSpace(text); text != "" {
						out = append(out, models.AgentLogEvent{Kind: models.AgentEventText, Summary: text})
					}
				}
			case "tool_use":
				out = append(out, models.AgentLogEvent{
					Kind:    models.AgentEventTool,
					Summary: fmt.Sprintf("[%s] %s", content.Name, toolDetail(content.Input)),
				})
			}
		}
		return out

	case "result":
		if line.IsError {
			text := "unknown error"
			if line.Result != nil && *line.Result != "" {
				text = *line.Result
			}
			return []models.AgentLogEvent{{Kind: models.AgentEventError, Summary: "Error: " + text}}
		}
		var cost float64
		if line.TotalCostUSD != nil {
			cost = *line.TotalCostUSD
		}
		var turns int
		if line.NumTurns != nil {
			turns = *line.NumTurns
		}
		var seconds float64
		if line.DurationMS != nil {
			seconds = float64(*line.DurationMS) / 1000
		}
		return []models.AgentLogEvent{{
			Kind:    models.AgentEventResult,
			Summary: fmt.Sprintf("$%.4f · %d turns · %.1fs", cost, turns, seconds),
		}}
	}
	return nil
}

// toolDetail extracts the most telling argument of a tool invocation for a
// one-line display.
func toolDetail(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var args struct {
		Description string `json:"description"`
		Command     string `json:"command"`
		FilePath    string `json:"file_path"`
		Pattern     string `json:"pattern"`
		URL         string `json:"url"`
		Query       string `json:"query"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return ""
	}

	switch {
	case args.Description != "":
		return args.Description
	case args.Command != "":
		if i := strings.IndexByte(args.Command, '\n'); i >= 0 {
			return args.Command[:i]
		}
		return args.Command
	case args.FilePath != "":
		return args.FilePath
	case args.Pattern != "":
		return args.Pattern
	case args.URL != "":
		return args.URL
	case args.Query != "":
		return args.Query
	}
	return ""
}
