package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// Dashboard is the server-side state of one signed-in client: its auth
// session, subscriptions, projections and rendered view. Nothing mutable is
// shared between dashboards.
type Dashboard struct {
	ID string

	auth       *AuthSession
	queue      *TaskQueue
	registry   *SubscriptionRegistry
	view       *View
	controller *SessionController
	editor     *RosterEditor
	lastSeen   atomic.Int64
	closeOnce  sync.Once
	logger     zerolog.Logger
}

// NewDashboard wires a signed-out dashboard and starts following its session.
func NewDashboard(id string, documents store.DocumentStore, credentials CredentialService, cfg config.Config, logger zerolog.Logger) *Dashboard {
	logger = logger.With().Str("session_id", id).Logger()

	queue := NewTaskQueue(logger)
	registry := NewSubscriptionRegistry(logger)
	view := NewView()
	auth := NewAuthSession(credentials)
	f := &feed{
		store:    documents,
		registry: registry,
		queue:    queue,
		mode:     cfg.RefreshMode,
		timeout:  cfg.BackendTimeout,
		logger:   logger,
	}

	d := &Dashboard{
		ID:       id,
		auth:     auth,
		queue:    queue,
		registry: registry,
		view:     view,
		controller: newSessionController(controllerDeps{
			store:      documents,
			auth:       auth,
			feed:       f,
			view:       view,
			visibility: cfg.HomeworkVisibility,
			logger:     logger,
		}),
		editor: newRosterEditor(documents, registry, cfg, logger),
		logger: logger.With().Str("component", "dashboard").Logger(),
	}
	d.Touch()
	d.controller.Start()
	return d
}

// SignIn signs the dashboard's session in.
func (d *Dashboard) SignIn(ctx context.Context, email, password string) (Identity, error) {
	d.Touch()
	return d.auth.SignIn(ctx, email, password)
}

// Logout cancels all subscriptions and signs out.
func (d *Dashboard) Logout() {
	d.controller.Logout()
}

// Close stops the dashboard. Pending tasks are drained first.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		d.controller.Stop()
		d.queue.Close()
		d.view.Close()
	})
}

// Identity returns the signed-in identity.
func (d *Dashboard) Identity() (Identity, bool) {
	return d.auth.Current()
}

// State returns the role-dispatch state.
func (d *Dashboard) State() SessionState {
	return d.controller.State()
}

// Principal returns the principal once its role is resolved.
func (d *Dashboard) Principal() (models.Principal, bool) {
	return d.controller.Principal()
}

// ActiveSubscriptions returns the number of populated subscription slots.
func (d *Dashboard) ActiveSubscriptions() int {
	return d.registry.Active()
}

// Snapshot returns the current view.
func (d *Dashboard) Snapshot() dto.DashboardView {
	return d.view.Snapshot()
}

// Watch streams view versions.
func (d *Dashboard) Watch() (<-chan dto.DashboardView, func()) {
	return d.view.Watch()
}

// Flush waits for every queued task to run.
func (d *Dashboard) Flush(ctx context.Context) error {
	return d.queue.Flush(ctx)
}

// AwaitPrincipal waits until role resolution has finished and returns the
// active principal, or the error that stopped resolution.
func (d *Dashboard) AwaitPrincipal(ctx context.Context) (models.Principal, error) {
	updates, cleanup := d.view.Watch()
	defer cleanup()

	for {
		if principal, ok := d.controller.Principal(); ok {
			return principal, nil
		}

		select {
		case view, ok := <-updates:
			if !ok {
				return models.Principal{}, authError("Session closed.", nil)
			}
			_, signedIn := d.auth.Current()
			if err := resolutionError(view, signedIn); err != nil {
				return models.Principal{}, err
			}
		case <-ctx.Done():
			return models.Principal{}, backendError("Error loading user", ctx.Err())
		}
	}
}

// A logged-out view of a signed-in session only means the sign-in has not
// been processed yet.
func resolutionError(view dto.DashboardView, signedIn bool) error {
	switch {
	case view.State == string(StateLoggedOut) && !signedIn:
		return authError("Sign in first.", nil)
	case view.State == string(StateResolvingRole) && view.Error != nil:
		if view.Error.Kind == "role_not_found" {
			return roleNotFoundError()
		}
		return &Error{Kind: ErrBackend, Message: view.Error.Message}
	default:
		return nil
	}
}

// Touch records activity for idle tracking.
func (d *Dashboard) Touch() {
	d.lastSeen.Store(time.Now().UnixNano())
}

// IdleSince returns the time of the last recorded activity.
func (d *Dashboard) IdleSince() time.Time {
	return time.Unix(0, d.lastSeen.Load())
}

// CreateClass creates a class owned by the signed-in teacher.
func (d *Dashboard) CreateClass(ctx context.Context, name string) (string, error) {
	teacher, err := d.actor()
	if err != nil {
		return "", err
	}
	return d.editor.CreateClass(ctx, teacher, name)
}

// DeleteClass deletes a class and its enrollments.
func (d *Dashboard) DeleteClass(ctx context.Context, classID string) error {
	teacher, err := d.actor()
	if err != nil {
		return err
	}
	return d.editor.DeleteClass(ctx, teacher, classID)
}

// AddStudent enrolls a student by email.
func (d *Dashboard) AddStudent(ctx context.Context, email, classID string) (string, error) {
	teacher, err := d.actor()
	if err != nil {
		return "", err
	}
	return d.editor.AddStudent(ctx, teacher, email, classID)
}

// RemoveStudent removes an enrollment.
func (d *Dashboard) RemoveStudent(ctx context.Context, classID, studentID string) error {
	teacher, err := d.actor()
	if err != nil {
		return err
	}
	return d.editor.RemoveStudent(ctx, teacher, classID, studentID)
}

// AddHomework publishes a homework.
func (d *Dashboard) AddHomework(ctx context.Context, title, description, classID string) (string, error) {
	teacher, err := d.actor()
	if err != nil {
		return "", err
	}
	return d.editor.AddHomework(ctx, teacher, title, description, classID)
}

// DeleteHomework deletes a homework.
func (d *Dashboard) DeleteHomework(ctx context.Context, homeworkID string) error {
	teacher, err := d.actor()
	if err != nil {
		return err
	}
	return d.editor.DeleteHomework(ctx, teacher, homeworkID)
}

func (d *Dashboard) actor() (models.Principal, error) {
	d.Touch()
	principal, ok := d.controller.Principal()
	if !ok {
		return models.Principal{}, authError("Sign in first.", nil)
	}
	return principal, nil
}
