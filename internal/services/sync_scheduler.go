package services

import (
	"context"
	"time"

	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/recovery"
)

// SyncScheduler sweeps every registered repo through a ticket sync on the
// configured interval. One repo failing never stops the sweep; each repo's
// outcome goes out as its own event.
type SyncScheduler struct {
	repos  *RepoManager
	syncer *TicketSyncer
	cfg    *config.Config
	bus    *events.Bus

	stopCh chan struct{}
}

// NewSyncScheduler creates a new sync scheduler.
func NewSyncScheduler(repos *RepoManager, syncer *TicketSyncer, cfg *config.Config, bus *events.Bus) *SyncScheduler {
	return &SyncScheduler{
		repos:  repos,
		syncer: syncer,
		cfg:    cfg,
		bus:    bus,
		stopCh: make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (s *SyncScheduler) Start() {
	recovery.SafeGo("sync-scheduler", s.loop)
}

// Stop halts the periodic sweep.
func (s *SyncScheduler) Stop() {
	close(s.stopCh)
}

func (s *SyncScheduler) loop() {
	interval := s.cfg.SyncInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Logger.Info().Dur("interval", interval).Msg("ticket sync scheduler started")
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			s.SyncAll(ctx)
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// SyncAll reconciles tickets for every registered repo, publishing one
// outcome event per repo.
func (s *SyncScheduler) SyncAll(ctx context.Context) {
	repos, err := s.repos.List(ctx)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("sync sweep could not list repos")
		return
	}

	for i := range repos {
		repo := &repos[i]
		result, err := s.syncer.SyncRepo(ctx, repo)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("repo", repo.Slug).Msg("scheduled sync failed")
			s.bus.Publish(events.SyncFailed, events.SyncOutcomePayload{
				RepoID: repo.ID,
				Slug:   repo.Slug,
				Synced: result.Synced,
				Closed: result.Closed,
				Error:  err.Error(),
			})
			continue
		}
		s.bus.Publish(events.SyncCompleted, events.SyncOutcomePayload{
			RepoID: repo.ID,
			Slug:   repo.Slug,
			Synced: result.Synced,
			Closed: result.Closed,
		})
	}
}
