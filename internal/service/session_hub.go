package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

const minSweepInterval = time.Minute

// SessionResult describes a freshly signed-in dashboard session.
type SessionResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
	Dashboard *Dashboard
}

// SessionHub keeps one Dashboard per client session.
type SessionHub struct {
	store       store.DocumentStore
	credentials CredentialService
	cfg         config.Config
	logger      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Dashboard
	closed   bool
}

// NewSessionHub constructs an empty hub.
func NewSessionHub(documents store.DocumentStore, credentials CredentialService, cfg config.Config, logger zerolog.Logger) *SessionHub {
	return &SessionHub{
		store:       documents,
		credentials: credentials,
		cfg:         cfg,
		logger:      logger.With().Str("component", "session_hub").Logger(),
		sessions:    make(map[string]*Dashboard),
	}
}

// SignUp registers a principal with the given role and signs a new session in.
// The users record is written before the session signs in, so the role lookup
// that follows always finds it.
func (h *SessionHub) SignUp(ctx context.Context, email, password, role string) (SessionResult, error) {
	parsedRole, ok := models.ParseRole(role)
	if !ok {
		return SessionResult{}, validationError("Choose a role: teacher or student.")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return SessionResult{}, validationError("Please enter email and password.")
	}

	principalID, err := h.credentials.SignUp(ctx, email, password)
	if err != nil {
		return SessionResult{}, err
	}

	fields, err := store.Encode(models.Principal{Email: email, Role: parsedRole})
	if err != nil {
		return SessionResult{}, backendError("Error signing up", err)
	}

	writeCtx, cancel := requestContext(ctx, h.cfg.BackendTimeout)
	defer cancel()
	if err := h.store.Set(writeCtx, store.Doc(store.CollectionUsers, principalID), fields); err != nil {
		return SessionResult{}, backendError("Error signing up", err)
	}

	h.logger.Info().Str("principal_id", principalID).Str("role", string(parsedRole)).Msg("principal registered")
	return h.SignIn(ctx, email, password)
}

// SignIn opens a new dashboard session for the credentials.
func (h *SessionHub) SignIn(ctx context.Context, email, password string) (SessionResult, error) {
	sessionID := uuid.NewString()
	dashboard := NewDashboard(sessionID, h.store, h.credentials, h.cfg, h.logger)

	identity, err := dashboard.SignIn(ctx, email, password)
	if err != nil {
		dashboard.Close()
		return SessionResult{}, err
	}

	token, expiresAt, err := h.credentials.IssueToken(identity, sessionID)
	if err != nil {
		dashboard.Close()
		return SessionResult{}, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		dashboard.Close()
		return SessionResult{}, authError("Server is shutting down.", nil)
	}
	h.sessions[sessionID] = dashboard
	h.mu.Unlock()

	observability.SessionsActive().Inc()
	h.logger.Info().Str("session_id", sessionID).Str("principal_id", identity.ID).Msg("session opened")

	return SessionResult{Token: token, ExpiresAt: expiresAt, Identity: identity, Dashboard: dashboard}, nil
}

// SignOut logs the session out and discards its dashboard. Unknown sessions
// are ignored.
func (h *SessionHub) SignOut(sessionID string) {
	dashboard, ok := h.remove(sessionID)
	if !ok {
		return
	}

	dashboard.Logout()
	dashboard.Close()
	h.logger.Info().Str("session_id", sessionID).Msg("session closed")
}

// Get returns the dashboard of sessionID and records activity on it.
func (h *SessionHub) Get(sessionID string) (*Dashboard, bool) {
	h.mu.RLock()
	dashboard, ok := h.sessions[sessionID]
	h.mu.RUnlock()

	if ok {
		dashboard.Touch()
	}
	return dashboard, ok
}

// Len returns the number of open sessions.
func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions)
}

// Sweep closes sessions idle since before now minus the idle TTL and returns
// how many were closed.
func (h *SessionHub) Sweep(now time.Time) int {
	if h.cfg.SessionIdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-h.cfg.SessionIdleTTL)

	h.mu.RLock()
	idle := make([]string, 0)
	for id, dashboard := range h.sessions {
		if dashboard.IdleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range idle {
		h.SignOut(id)
	}
	if len(idle) > 0 {
		h.logger.Info().Int("sessions", len(idle)).Msg("swept idle sessions")
	}
	return len(idle)
}

// Start sweeps idle sessions until ctx ends.
func (h *SessionHub) Start(ctx context.Context) {
	if h.cfg.SessionIdleTTL <= 0 {
		return
	}

	interval := h.cfg.SessionIdleTTL / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				h.Sweep(now)
			}
		}
	}()
}

// Close signs out every session and rejects new ones.
func (h *SessionHub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.SignOut(id)
	}
}

func (h *SessionHub) remove(sessionID string) (*Dashboard, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dashboard, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
		observability.SessionsActive().Dec()
	}
	return dashboard, ok
}
