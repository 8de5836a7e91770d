package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/models"
)

var ticketsLinkClear bool

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "🎫 Sync and inspect cached tickets",
	Long: `# 🎫 Tickets

**A local cache of your issue trackers.** Sync pulls open issues from every
source bound to a repo; open tickets that vanish from the provider are
closed locally and release their worktrees.`,
}

var ticketsSyncCmd = &cobra.Command{
	Use:   "sync [repo]",
	Short: "Sync tickets from issue sources",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		var repos []models.Repo
		if len(args) == 1 {
			repo, err := app.repos.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			repos = []models.Repo{*repo}
		} else {
			repos, err = app.repos.List(cmd.Context())
			if err != nil {
				return err
			}
		}

		failures := 0
		for i := range repos {
			repo := &repos[i]
			result, err := app.syncer.SyncRepo(cmd.Context(), repo)
			if err != nil {
				failures++
				fmt.Fprintf(os.Stderr, "%s: sync failed: %v\n", repo.Slug, err)
				continue
			}
			fmt.Printf("%s: %d synced, %d closed\n", repo.Slug, result.Synced, result.Closed)
		}
		if failures > 0 {
			return fmt.Errorf("%d repo(s) failed to sync", failures)
		}
		return nil
	},
}

var ticketsListCmd = &cobra.Command{
	Use:   "list [repo]",
	Short: "List cached tickets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		var tickets []models.Ticket
		if len(args) == 1 {
			repo, err := app.repos.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tickets, err = app.syncer.List(cmd.Context(), repo.ID)
			if err != nil {
				return err
			}
		} else {
			var err error
			tickets, err = app.syncer.ListAll(cmd.Context())
			if err != nil {
				return err
			}
		}
		if len(tickets) == 0 {
			fmt.Println("No tickets cached. Run 'conductor tickets sync'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATE\tTITLE")
		for _, ticket := range tickets {
			fmt.Fprintf(w, "%s\t%s#%s\t%s\t%s\n",
				ticket.ID, ticket.SourceKind, ticket.SourceID, ticket.State, ticket.Title)
		}
		return w.Flush()
	},
}

var ticketsLinkCmd = &cobra.Command{
	Use:   "link <repo> <worktree> [ticket-id]",
	Short: "Link a worktree to a ticket",
	Long: `# 🔗 Link Ticket

**Points a worktree at a cached ticket** so agent spend rolls up per issue.
Pass --clear instead of a ticket id to detach.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ticketsLinkClear && len(args) == 3 {
			return fmt.Errorf("--clear takes no ticket id")
		}
		if !ticketsLinkClear && len(args) < 3 {
			return fmt.Errorf("ticket id required (or pass --clear)")
		}

		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		worktree, err := resolveWorktree(cmd, app, args[0], args[1])
		if err != nil {
			return err
		}

		var ticketID *string
		if !ticketsLinkClear {
			ticketID = &args[2]
		}
		if err := app.worktrees.LinkTicket(cmd.Context(), worktree.ID, ticketID); err != nil {
			return err
		}
		if ticketID == nil {
			fmt.Printf("Detached %s from its ticket\n", worktree.Slug)
		} else {
			fmt.Printf("Linked %s to ticket %s\n", worktree.Slug, *ticketID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ticketsCmd)
	ticketsCmd.AddCommand(ticketsSyncCmd, ticketsListCmd, ticketsLinkCmd)
	ticketsLinkCmd.Flags().BoolVar(&ticketsLinkClear, "clear", false, "Detach the worktree from its ticket")
}
