package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/conductor-sh/conductor/internal/handlers"
	"github.com/conductor-sh/conductor/internal/logger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "🌐 Serve the HTTP API with live SSE events",
	Long: `# 🌐 Conductor API Server

**Expose the workbench over HTTP** for editors, dashboards and scripts.

## 🔌 Surface

- 📁 **REST** endpoints for repos, sources, worktrees, tickets and agents
- 📡 **SSE stream** at /api/events mirroring every state change
- 🔄 **Background sync** of issue sources on the configured interval

The server binds to **127.0.0.1** only; put a reverse proxy in front if you
need remote access.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Configure(logger.GetLogLevelFromEnv(false), term.IsTerminal(int(os.Stderr.Fd())))

	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	app.startWorkers()
	defer app.stopWorkers()

	router := handlers.NewRouter(handlers.Deps{
		Version:   GetVersion(),
		Config:    app.cfg,
		Bus:       app.bus,
		Repos:     app.repos,
		Sources:   app.sources,
		Syncer:    app.syncer,
		Worktrees: app.worktrees,
		Agents:    app.agents,
		Runner:    app.runner,
		Poller:    app.poller,
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logger.Logger.Info().Msg("shutting down")
		if err := router.ShutdownWithTimeout(5 * time.Second); err != nil {
			logger.Logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", servePort)
	logger.Logger.Info().Str("addr", addr).Str("version", GetVersion()).Msg("conductor API listening")
	return router.Listen(addr)
}
