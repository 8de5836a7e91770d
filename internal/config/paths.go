package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Dir returns the conductor data directory. CONDUCTOR_DIR overrides the
// default ~/.conductor (used heavily by tests).
func Dir() string {
	if dir := os.Getenv("CONDUCTOR_DIR"); dir != "" {
		return dir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "."
		}
	}
	return filepath.Join(homeDir, ".conductor")
}

// DBPath returns the SQLite database file path.
func DBPath() string {
	return filepath.Join(Dir(), "conductor.db")
}

// ConfigPath returns the TOML config file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// AgentLogDir returns the directory holding per-run stream-json captures.
func AgentLogDir() string {
	return filepath.Join(Dir(), "agent-logs")
}

// AgentLogPath returns the log file path for one agent run.
func AgentLogPath(runID string) string {
	return filepath.Join(AgentLogDir(), runID+".log")
}

// LogFilePath returns the diagnostic log sink used when stderr belongs to a
// terminal UI.
func LogFilePath() string {
	return filepath.Join(Dir(), "conductor.log")
}

// DefaultWorkspaceRoot is where worktrees are materialized unless the
// config overrides it.
func DefaultWorkspaceRoot() string {
	return filepath.Join(Dir(), "workspaces")
}

// EnsureLayout creates the conductor directory tree.
func EnsureLayout() error {
	for _, dir := range []string{Dir(), AgentLogDir()} {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// ExpandHome resolves a leading ~ against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
