// Package cmd is the cobra command tree behind the conductor binary. Every
// command wires the same managers the HTTP layer serves; the CLI is just
// another frontend over the shared store.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "🎛️  Conductor - Multi-repo agent orchestration workbench",
	Long: `# 🎛️ Conductor

**Orchestrate AI coding agents across repositories, worktrees and tickets.**

## ✨ What it does

- 📁 **Repos** - register repositories and bind them to issue trackers
- 🎫 **Tickets** - sync GitHub and Jira issues into a local cache
- 🌿 **Worktrees** - spin up branch-bound working copies per task
- 🤖 **Agents** - launch claude runs inside tmux windows and track cost
- ⏱️  **Sessions** - record working windows and the worktrees they touched

## 🚀 Getting started

Run **conductor** with no arguments to open the interactive TUI.

Run **conductor serve** to expose the HTTP API with live SSE events.

Use **conductor repo add <url>** to register your first repository.`,
	RunE: runUI,
}

// Execute runs the root command, exiting non-zero on any error surface.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderMarkdownHelp(cmd)
	})
}

// renderMarkdownHelp renders command help through glamour when stdout is a
// terminal, falling back to cobra's plain help otherwise.
func renderMarkdownHelp(cmd *cobra.Command) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		printPlainHelp(cmd)
		return
	}

	var help strings.Builder
	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString("# " + cmd.Short + "\n\n")
	}

	help.WriteString("## 📖 Usage\n\n```bash\n")
	help.WriteString(cmd.UseLine())
	help.WriteString("\n```\n\n")

	if cmd.HasAvailableSubCommands() {
		help.WriteString("## 🔧 Commands\n\n")
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				help.WriteString(fmt.Sprintf("- **%s** - %s\n", sub.Name(), sub.Short))
			}
		}
		help.WriteString("\n")
	}

	if flags := cmd.Flags().FlagUsages(); cmd.HasAvailableFlags() && flags != "" {
		help.WriteString("## ⚙️  Flags\n\n```\n")
		help.WriteString(flags)
		help.WriteString("```\n\n")
	}

	if cmd.HasParent() {
		if inherited := cmd.InheritedFlags().FlagUsages(); inherited != "" {
			help.WriteString("## 🌐 Global Flags\n\n```\n")
			help.WriteString(inherited)
			help.WriteString("```\n\n")
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		printPlainHelp(cmd)
		return
	}
	rendered, err := renderer.Render(help.String())
	if err != nil {
		printPlainHelp(cmd)
		return
	}
	fmt.Print(rendered)
}

// printPlainHelp emits cobra's default help without the markdown pass.
func printPlainHelp(cmd *cobra.Command) {
	if cmd.Long != "" {
		fmt.Println(cmd.Long)
		fmt.Println()
	}
	fmt.Println(cmd.UsageString())
}
