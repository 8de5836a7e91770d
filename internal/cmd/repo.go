package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/models"
	"github.com/conductor-sh/conductor/internal/services"
)

var (
	repoAddSlug      string
	repoAddLocalPath string
	repoAddWorkspace string
	sourceAddConfig  string
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "📁 Manage registered repositories",
	Long: `# 📁 Repositories

**Register the repositories conductor orchestrates.** Each repo gets a
workspace directory for its worktrees and can be bound to issue sources.`,
}

var repoAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repo, err := app.repos.Add(cmd.Context(), services.AddRepoOptions{
			RemoteURL: args[0],
			Slug:      repoAddSlug,
			LocalPath: repoAddLocalPath,
			Workspace: repoAddWorkspace,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s (default branch %s)\n", repo.Slug, repo.DefaultBranch)
		fmt.Printf("  worktrees will live under %s\n", repo.WorkspaceDir)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repos, err := app.repos.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories registered. Add one with 'conductor repo add <url>'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tBRANCH\tREMOTE\tLOCAL PATH")
		for _, repo := range repos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", repo.Slug, repo.DefaultBranch, repo.RemoteURL, repo.LocalPath)
		}
		return w.Flush()
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <slug>",
	Short: "Remove a repository and everything under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.repos.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s (sources, tickets and worktree records included)\n", args[0])
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage a repo's issue sources",
	Long: `# 🎫 Issue Sources

**Bind repositories to GitHub or Jira** so ticket sync knows where to look.
At most one source of each kind per repo.`,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <repo> <github|jira>",
	Short: "Attach an issue source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := models.SourceKind(args[1])
		if !kind.Valid() {
			return fmt.Errorf("unknown source kind %q (want github or jira)", args[1])
		}

		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repo, err := app.repos.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		source, err := app.sources.Add(cmd.Context(), repo, kind, sourceAddConfig)
		if err != nil {
			return err
		}
		fmt.Printf("Attached %s source to %s\n", source.Kind, repo.Slug)
		fmt.Printf("  config: %s\n", source.Config)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list <repo>",
	Short: "List a repo's issue sources",
	Args:  cobra.ExactArgs(1),
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
		sources, err := app.sources.List(cmd.Context(), repo.ID)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Printf("No sources attached to %s.\n", repo.Slug)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tCONFIG\tADDED")
		for _, source := range sources {
			fmt.Fprintf(w, "%s\t%s\t%s\n", source.Kind, source.Config, source.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <repo> <github|jira>",
	Short: "Detach an issue source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := models.SourceKind(args[1])
		if !kind.Valid() {
			return fmt.Errorf("unknown source kind %q (want github or jira)", args[1])
		}

		app, err := newAppContext()
		if err != nil {
			return err
		}
		defer app.Close()

		repo, err := app.repos.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		removed, err := app.sources.RemoveByKind(cmd.Context(), repo.ID, kind)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no %s source attached to %s", kind, repo.Slug)
		}
		fmt.Printf("Detached %s source from %s\n", kind, repo.Slug)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(repoCmd)
	repoCmd.AddCommand(repoAddCmd, repoListCmd, repoRemoveCmd, sourcesCmd)
	sourcesCmd.AddCommand(sourcesAddCmd, sourcesListCmd, sourcesRemoveCmd)

	repoAddCmd.Flags().StringVar(&repoAddSlug, "slug", "", "Short name (derived from the URL if omitted)")
	repoAddCmd.Flags().StringVar(&repoAddLocalPath, "local-path", "", "Existing clone to register (cloned fresh if omitted)")
	repoAddCmd.Flags().StringVar(&repoAddWorkspace, "workspace", "", "Directory for this repo's worktrees")
	sourcesAddCmd.Flags().StringVar(&sourceAddConfig, "config", "", "Provider config JSON ({owner,repo} or {jql,url}; inferred for github)")
}
