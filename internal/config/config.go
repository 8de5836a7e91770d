// Package config owns the conductor data directory layout and the TOML
// configuration file, with read-mostly concurrent access.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// AutoStart controls whether creating a worktree from a ticket immediately
// launches an agent.
type AutoStart string

const (
	AutoStartAsk    AutoStart = "ask"
	AutoStartAlways AutoStart = "always"
	AutoStartNever  AutoStart = "never"
)

// WorkTarget is an external program the UI can hand a worktree to.
type WorkTarget struct {
	Name    string `toml:"name" json:"name"`
	Command string `toml:"command" json:"command"`
	Type    string `toml:"type" json:"type"`
}

type generalSection struct {
	WorkspaceRoot       string       `toml:"workspace_root,omitempty"`
	SyncIntervalMinutes int          `toml:"sync_interval_minutes,omitempty"`
	WorkTargets         []WorkTarget `toml:"work_targets,omitempty"`
	AutoStartAgent      AutoStart    `toml:"auto_start_agent,omitempty"`

	// Editor predates work_targets; when present and work_targets is
	// absent it is migrated into a single editor target at load time.
	Editor string `toml:"editor,omitempty"`
}

type defaultsSection struct {
	DefaultBranch      string `toml:"default_branch,omitempty"`
	WorktreePrefixFeat string `toml:"worktree_prefix_feat,omitempty"`
	WorktreePrefixFix  string `toml:"worktree_prefix_fix,omitempty"`
}

type fileLayout struct {
	General  generalSection  `toml:"general"`
	Defaults defaultsSection `toml:"defaults"`
}

// Config is the loaded configuration. Reads dominate; mutators persist to
// disk before returning.
type Config struct {
	mu   sync.RWMutex
	data fileLayout
	path string
}

// Load reads the config file at path, applying defaults for absent fields.
// A missing file yields a pure-defaults config; it is not created until the
// first mutation.
func Load(path string) (*Config, error) {
	c := &Config{path: path}
	c.applyDefaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	c.migrateLegacyEditor()
	return c, nil
}

// LoadDefault loads the config from the conductor directory.
func LoadDefault() (*Config, error) {
	return Load(ConfigPath())
}

func (c *Config) applyDefaults() {
	if c.data.General.WorkspaceRoot == "" {
		c.data.General.WorkspaceRoot = DefaultWorkspaceRoot()
	}
	if c.data.General.SyncIntervalMinutes <= 0 {
		c.data.General.SyncIntervalMinutes = 15
	}
	switch c.data.General.AutoStartAgent {
	case AutoStartAsk, AutoStartAlways, AutoStartNever:
	default:
		c.data.General.AutoStartAgent = AutoStartAsk
	}
	if c.data.Defaults.DefaultBranch == "" {
		c.data.Defaults.DefaultBranch = "main"
	}
	if c.data.Defaults.WorktreePrefixFeat == "" {
		c.data.Defaults.WorktreePrefixFeat = "feat-"
	}
	if c.data.Defaults.WorktreePrefixFix == "" {
		c.data.Defaults.WorktreePrefixFix = "fix-"
	}
}

func (c *Config) migrateLegacyEditor() {
	if c.data.General.Editor == "" || len(c.data.General.WorkTargets) > 0 {
		c.data.General.Editor = ""
		return
	}
	c.data.General.WorkTargets = []WorkTarget{{
		Name:    c.data.General.Editor,
		Command: c.data.General.Editor,
		Type:    "editor",
	}}
	c.data.General.Editor = ""
}

// save writes the config atomically. Caller must hold the write lock.
func (c *Config) save() error {
	raw, err := toml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := ensureDir(filepath.Dir(c.path)); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// WorkspaceRoot returns the worktree materialization root with ~ expanded.
func (c *Config) WorkspaceRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.data.General.WorkspaceRoot)
}

// SyncInterval returns the background ticket-sync period.
func (c *Config) SyncInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.data.General.SyncIntervalMinutes) * time.Minute
}

// AutoStartAgent returns the agent auto-start policy.
func (c *Config) AutoStartAgent() AutoStart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.General.AutoStartAgent
}

// DefaultBranch returns the branch new worktrees fork from when the repo
// does not specify one.
func (c *Config) DefaultBranch() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Defaults.DefaultBranch
}

// WorktreePrefixes returns the (feat, fix) slug prefixes.
func (c *Config) WorktreePrefixes() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Defaults.WorktreePrefixFeat, c.data.Defaults.WorktreePrefixFix
}

// WorkTargets returns a copy of the configured work targets.
func (c *Config) WorkTargets() []WorkTarget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]WorkTarget, len(c.data.General.WorkTargets))
	copy(out, c.data.General.WorkTargets)
	return out
}

// AddWorkTarget appends a target and persists.
func (c *Config) AddWorkTarget(t WorkTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.General.WorkTargets = append(c.data.General.WorkTargets, t)
	return c.save()
}

// UpdateWorkTarget replaces the target at index and persists.
func (c *Config) UpdateWorkTarget(index int, t WorkTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.data.General.WorkTargets) {
		return fmt.Errorf("work target index %d out of range", index)
	}
	c.data.General.WorkTargets[index] = t
	return c.save()
}

// RemoveWorkTarget deletes the target at index and persists.
func (c *Config) RemoveWorkTarget(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.data.General.WorkTargets) {
		return fmt.Errorf("work target index %d out of range", index)
	}
	c.data.General.WorkTargets = append(
		c.data.General.WorkTargets[:index],
		c.data.General.WorkTargets[index+1:]...,
	)
	return c.save()
}

// SetAutoStartAgent updates the auto-start policy and persists.
func (c *Config) SetAutoStartAgent(mode AutoStart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch mode {
	case AutoStartAsk, AutoStartAlways, AutoStartNever:
	default:
		return fmt.Errorf("invalid auto_start_agent %q", mode)
	}
	c.data.General.AutoStartAgent = mode
	return c.save()
}
