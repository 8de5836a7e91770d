package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/recovery"
)

// progressDebounce caps how often one run may emit progress. Claude appends
// to its log in bursts; per-line events would flood the bus.
const progressDebounce = time.Second

// AgentWatcher follows the agent log directory and publishes live progress
// for running agents. The exec side appends stream-json lines from another
// process; file writes are the only signal that crosses the boundary before
// the run turns terminal.
type AgentWatcher struct {
	agents *AgentManager
	bus    *events.Bus

	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewAgentWatcher creates a new agent log watcher.
func NewAgentWatcher(agents *AgentManager, bus *events.Bus) *AgentWatcher {
	return &AgentWatcher{
		agents:   agents,
		bus:      bus,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// Start begins watching the agent log directory.
func (w *AgentWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create log watcher: %w", err)
	}
	if err := watcher.Add(config.AgentLogDir()); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch agent log dir: %w", err)
	}
	w.watcher = watcher

	recovery.SafeGo("agent-watcher", w.loop)
	logger.Logger.Debug().Str("dir", config.AgentLogDir()).Msg("agent log watcher started")
	return nil
}

// Stop shuts the watcher down.
func (w *AgentWatcher) Stop() {
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *AgentWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				w.handleWrite(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Logger.Warn().Err(err).Msg("agent log watcher error")
		case <-w.stopCh:
			return
		}
	}
}

func (w *AgentWatcher) handleWrite(path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".log") {
		return
	}
	runID := strings.TrimSuffix(name, ".log")

	if !w.shouldEmit(runID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := w.agents.GetRun(ctx, runID)
	if err != nil || run.Status.Terminal() {
		return
	}

	w.bus.Publish(events.AgentProgress, events.AgentProgressPayload{
		RunID:      run.ID,
		WorktreeID: run.WorktreeID,
		Turns:      CountTurnsInLog(path),
	})
}

func (w *AgentWatcher) shouldEmit(runID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.lastSeen[runID]; ok && now.Sub(last) < progressDebounce {
		return false
	}
	w.lastSeen[runID] = now
	return true
}
