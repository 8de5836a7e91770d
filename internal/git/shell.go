// Package git shells out to the git binary and introspects local clones
// through go-git. Every git invocation conductor makes flows through the
// Executor interface so tests can substitute a recording fake.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/conductor-sh/conductor/internal/models"
)

// Executor runs git (and adjacent tools like package managers and gh) in a
// working directory.
type Executor interface {
	// Git runs a git command in dir. A non-zero exit surfaces as a
	// *models.GitError carrying the captured stderr.
	Git(ctx context.Context, dir string, args ...string) ([]byte, error)

	// Command runs an arbitrary binary in dir, returning stdout.
	Command(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ShellExecutor implements Executor using the installed binaries.
type ShellExecutor struct{}

// NewShellExecutor creates a shell-based executor.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

// Git runs a git command in the specified directory.
func (e *ShellExecutor) Git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &models.GitError{
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// Command runs any binary in the specified directory and returns stdout.
func (e *ShellExecutor) Command(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s failed: %w\nstderr: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
