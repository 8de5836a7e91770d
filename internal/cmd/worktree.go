package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/models"
)

var (
	worktreeCreateBase   string
	worktreeCreateTicket string
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "🌿 Manage branch-bound worktrees",
	Long: `# 🌿 Worktrees

**One task, one worktree.** Each worktree is a git checkout on its own
feat/ or fix/ branch under the repo's workspace directory. Deleting a
worktree removes the checkout but keeps the record; purge removes records.`,
}

var worktreeCreateCmd = &cobra.Command{
	Use:   "create <repo> <name>",
	Short: "Create a worktree on a fresh branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repo, err := app.repos.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var ticketID *string
		if worktreeCreateTicket != "" {
			ticketID = &worktreeCreateTicket
		}
		worktree, err := app.worktrees.Create(cmd.Context(), repo, args[1], worktreeCreateBase, ticketID)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s on branch %s\n", worktree.Slug, worktree.Branch)
		fmt.Printf("  %s\n", worktree.Path)
		return nil
	},
}

var worktreeListCmd = &cobra.Command{
	Use:   "list [repo]",
	Short: "List worktrees, optionally for one repo",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		var worktrees []models.Worktree
		if len(args) == 1 {
			repo, err := app.repos.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			worktrees, err = app.worktrees.List(cmd.Context(), repo.ID)
			if err != nil {
				return err
			}
		} else {
			var err error
			worktrees, err = app.worktrees.ListAll(cmd.Context())
			if err != nil {
				return err
			}
		}
		if len(worktrees) == 0 {
			fmt.Println("No worktrees. Create one with 'conductor worktree create <repo> <name>'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tBRANCH\tSTATUS\tTICKET\tPATH")
		for _, worktree := range worktrees {
			ticket := "-"
			if worktree.TicketID != nil {
				ticket = *worktree.TicketID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				worktree.Slug, worktree.Branch, worktree.Status, ticket, worktree.Path)
		}
		return w.Flush()
	},
}

var worktreeDeleteCmd = &cobra.Command{
	Use:   "delete <repo> <name>",
	Short: "Tear down a worktree's checkout and branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repo, err := app.repos.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		worktree, err := app.worktrees.Delete(cmd.Context(), repo, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (recorded as %s)\n", worktree.Slug, worktree.Status)
		return nil
	},
}

var worktreePurgeCmd = &cobra.Command{
	Use:   "purge <repo> [name]",
	Short: "Remove deleted worktree records",
	Long: `# 🧹 Purge Worktrees

**Removes merged and abandoned worktree records** for a repo, or one named
record. Active worktrees are refused; delete them first.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repo, err := app.repos.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		purged, err := app.worktrees.Purge(cmd.Context(), repo, name)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d worktree record(s)\n", purged)
		return nil
	},
}

var worktreePushCmd = &cobra.Command{
	Use:   "push <repo> <name>",
	Short: "Push the worktree's branch to origin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		worktree, err := resolveWorktree(cmd, app, args[0], args[1])
		if err != nil {
			return err
		}
		if err := app.worktrees.Push(cmd.Context(), worktree); err != nil {
			return err
		}
		fmt.Printf("Pushed %s to origin\n", worktree.Branch)
		return nil
	},
}

var worktreePRCmd = &cobra.Command{
	Use:   "pr <repo> <name>",
	Short: "Open a pull request for the worktree's branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		worktree, err := resolveWorktree(cmd, app, args[0], args[1])
		if err != nil {
			return err
		}
		url, err := app.worktrees.CreatePR(cmd.Context(), worktree)
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

func resolveWorktree(cmd *cobra.Command, app *appContext, repoRef, name string) (*models.Worktree, error) {
	repo, err := app.repos.Get(cmd.Context(), repoRef)
	if err != nil {
		return nil, err
	}
	return app.worktrees.Resolve(cmd.Context(), repo, name)
}

func init() {
	rootCmd.AddCommand(worktreeCmd)
	worktreeCmd.AddCommand(worktreeCreateCmd, worktreeListCmd, worktreeDeleteCmd,
		worktreePurgeCmd, worktreePushCmd, worktreePRCmd)

	worktreeCreateCmd.Flags().StringVar(&worktreeCreateBase, "base", "", "Base branch (repo default if omitted)")
	worktreeCreateCmd.Flags().StringVar(&worktreeCreateTicket, "ticket", "", "Ticket id to link")
}
