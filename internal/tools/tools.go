// Package tools wraps the external CLIs conductor drives: gh for GitHub
// issues, acli for Jira, and tmux for agent windows. Adapters parse the
// documented output formats into core types; they never retain state.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// run executes a binary and returns stdout, folding captured stderr into the
// error on a non-zero exit.
func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s failed: %s", name, strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}
