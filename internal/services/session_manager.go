package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-sh/conductor/internal/db"
	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
	"github.com/conductor-sh/conductor/internal/models"
)

// SessionManager handles developer work sessions. At most one session is
// open at a time; worktrees touched while it is open get linked to it.
type SessionManager struct {
	store *db.Store
	bus   *events.Bus
}

// NewSessionManager creates a new session manager.
func NewSessionManager(store *db.Store, bus *events.Bus) *SessionManager {
	return &SessionManager{store: store, bus: bus}
}

// Start opens a new session, refusing while another is open.
func (m *SessionManager) Start(ctx context.Context) (*models.Session, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%w (session %s)", models.ErrSessionAlreadyOpen, current.ID)
	}

	session := &models.Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	_, err = m.store.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		session.ID, session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	logger.Logger.Info().Str("session_id", session.ID).Msg("session started")
	m.bus.Publish(events.SessionStarted, events.SessionPayload{SessionID: session.ID})
	return session, nil
}

// End closes the open session, optionally attaching notes.
func (m *SessionManager) End(ctx context.Context, notes *string) (*models.Session, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, models.ErrNoOpenSession
	}

	now := time.Now().UTC()
	_, err = m.store.DB.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, notes = ? WHERE id = ?`,
		now, notes, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	current.EndedAt = &now
	current.Notes = notes

	logger.Logger.Info().Str("session_id", current.ID).Msg("session ended")
	m.bus.Publish(events.SessionEnded, events.SessionPayload{SessionID: current.ID})
	return current, nil
}

// Current returns the open session, or nil when none is.
func (m *SessionManager) Current(ctx context.Context) (*models.Session, error) {
	var session models.Session
	err := m.store.RO.GetContext(ctx, &session,
		`SELECT * FROM sessions WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}
	return &session, nil
}

// Get returns the session with the given id.
func (m *SessionManager) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := m.store.RO.GetContext(ctx, &session, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// List returns all sessions, newest first.
func (m *SessionManager) List(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := m.store.RO.SelectContext(ctx, &sessions,
		`SELECT * FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// AddWorktree links a worktree to the session. Linking the same pair twice
// is a no-op.
func (m *SessionManager) AddWorktree(ctx context.Context, sessionID, worktreeID string) error {
	_, err := m.store.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_worktrees (session_id, worktree_id) VALUES (?, ?)`,
		sessionID, worktreeID)
	if err != nil {
		return fmt.Errorf("failed to link worktree to session: %w", err)
	}
	return nil
}

// AttachCurrent links a worktree to the open session when one exists. The
// link is incidental; no open session is not an error.
func (m *SessionManager) AttachCurrent(ctx context.Context, worktreeID string) error {
	current, err := m.Current(ctx)
	if err != nil || current == nil {
		return err
	}
	return m.AddWorktree(ctx, current.ID, worktreeID)
}

// GetWorktrees returns the worktrees linked to the session.
func (m *SessionManager) GetWorktrees(ctx context.Context, sessionID string) ([]models.Worktree, error) {
	var worktrees []models.Worktree
	err := m.store.RO.SelectContext(ctx, &worktrees, `
		SELECT w.* FROM worktrees w
		JOIN session_worktrees sw ON sw.worktree_id = w.id
		WHERE sw.session_id = ?
		ORDER BY w.created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session worktrees: %w", err)
	}
	return worktrees, nil
}

// WorktreeIDs returns the ids of the worktrees linked to the session.
func (m *SessionManager) WorktreeIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := m.store.RO.SelectContext(ctx, &ids,
		`SELECT worktree_id FROM session_worktrees WHERE session_id = ? ORDER BY worktree_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session worktree ids: %w", err)
	}
	return ids, nil
}
