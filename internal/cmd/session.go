package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionEndNotes string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "⏱️  Track working sessions",
	Long: `# ⏱️ Sessions

**A session is a working window.** At most one is open at a time; worktrees
you touch while it is open are attached to it, building a record of what
each sitting covered.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Open a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		session, err := app.sessions.Start(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Session %s started at %s\n", session.ID[:8], session.StartedAt.Local().Format(time.Kitchen))
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Close the open session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		var notes *string
		if sessionEndNotes != "" {
			notes = &sessionEndNotes
		}
		session, err := app.sessions.End(cmd.Context(), notes)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s ended after %s\n",
			session.ID[:8], session.EndedAt.Sub(session.StartedAt).Round(time.Minute))
		return nil
	},
}

var sessionAttachCmd = &cobra.Command{
	Use:   "attach <repo> <worktree>",
	Short: "Attach a worktree to the open session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		current, err := app.sessions.Current(cmd.Context())
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("no open session; start one with 'conductor session start'")
		}
		worktree, err := resolveWorktree(cmd, app, args[0], args[1])
		if err != nil {
			return err
		}
		if err := app.sessions.AddWorktree(cmd.Context(), current.ID, worktree.ID); err != nil {
			return err
		}
		fmt.Printf("Attached %s to session %s\n", worktree.Slug, current.ID[:8])
		return nil
	},
}

var sessionCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the open session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		current, err := app.sessions.Current(cmd.Context())
		if err != nil {
			return err
		}
		if current == nil {
			fmt.Println("No open session.")
			return nil
		}

		fmt.Printf("Session %s open since %s (%s)\n",
			current.ID[:8],
			current.StartedAt.Local().Format(time.Kitchen),
			time.Since(current.StartedAt).Round(time.Minute))

		worktrees, err := app.sessions.GetWorktrees(cmd.Context(), current.ID)
		if err != nil {
			return err
		}
		for _, worktree := range worktrees {
			fmt.Printf("  - %s\n", worktree.Slug)
		}
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		sessions, err := app.sessions.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTARTED\tDURATION\tNOTES")
		for _, session := range sessions {
			duration := "open"
			if session.EndedAt != nil {
				duration = session.EndedAt.Sub(session.StartedAt).Round(time.Minute).String()
			}
			notes := ""
			if session.Notes != nil {
				notes = *session.Notes
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				session.ID[:8], session.StartedAt.Local().Format("2006-01-02 15:04"), duration, notes)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionAttachCmd,
		sessionCurrentCmd, sessionListCmd)
	sessionEndCmd.Flags().StringVar(&sessionEndNotes, "notes", "", "Closing notes for the session")
}
