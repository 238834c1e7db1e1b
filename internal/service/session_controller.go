package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// SessionState is the dashboard role-dispatch state.
type SessionState string

// Session states.
const (
	StateLoggedOut     SessionState = "logged_out"
	StateResolvingRole SessionState = "resolving_role"
	StateTeacherActive SessionState = "teacher_active"
	StateStudentActive SessionState = "student_active"
)

// SessionController follows the sign-in state of one AuthSession, resolves
// the role of the signed-in principal and activates the matching dashboard.
//
// Session notifications and role lookups are handled on the task queue. A
// lookup result is applied only if no other session change happened since it
// was started.
type SessionController struct {
	store      store.DocumentStore
	auth       *AuthSession
	registry   *SubscriptionRegistry
	queue      *TaskQueue
	view       *View
	resolver   *MembershipResolver
	homework   *HomeworkProjection
	classes    *ClassProjection
	visibility string
	timeout    time.Duration
	logger     zerolog.Logger

	epoch       uint64
	unsubscribe func()

	mu        sync.RWMutex
	state     SessionState
	principal *models.Principal
}

type controllerDeps struct {
	store      store.DocumentStore
	auth       *AuthSession
	feed       *feed
	view       *View
	visibility string
	logger     zerolog.Logger
}

func newSessionController(deps controllerDeps) *SessionController {
	return &SessionController{
		store:      deps.store,
		auth:       deps.auth,
		registry:   deps.feed.registry,
		queue:      deps.feed.queue,
		view:       deps.view,
		resolver:   newMembershipResolver(deps.feed, deps.logger),
		homework:   newHomeworkProjection(deps.feed, deps.view, deps.visibility, deps.logger),
		classes:    newClassProjection(deps.feed, deps.view, deps.logger),
		visibility: deps.visibility,
		timeout:    deps.feed.timeout,
		logger:     deps.logger.With().Str("component", "session_controller").Logger(),
		state:      StateLoggedOut,
	}
}

// Start subscribes to session changes. It must be called once.
func (c *SessionController) Start() {
	c.unsubscribe = c.auth.OnSessionChange(func(identity *Identity) {
		c.queue.Post("session_change", func() { c.handleSessionChange(identity) })
	})
}

// Stop detaches from the auth session and cancels every subscription.
func (c *SessionController) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.registry.CancelAll()
}

// Logout cancels every subscription and signs the session out.
func (c *SessionController) Logout() {
	c.registry.CancelAll()
	c.auth.SignOut()
}

// State returns the current state.
func (c *SessionController) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Principal returns the principal whose dashboard is active.
func (c *SessionController) Principal() (models.Principal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.principal == nil {
		return models.Principal{}, false
	}
	return *c.principal, true
}

func (c *SessionController) handleSessionChange(identity *Identity) {
	c.epoch++
	c.deactivate()

	if identity == nil {
		c.setState(StateLoggedOut, nil)
		c.view.Update(resetView)
		return
	}

	c.setState(StateResolvingRole, nil)
	c.view.Update(func(view *dto.DashboardView) {
		resetView(view)
		view.State = string(StateResolvingRole)
		view.Email = identity.Email
		view.Visible = dto.Visibility{Dashboard: true}
	})

	epoch := c.epoch
	signedIn := *identity
	go func() {
		ctx, cancel := requestContext(context.Background(), c.timeout)
		doc, err := c.store.Get(ctx, store.Doc(store.CollectionUsers, signedIn.ID))
		cancel()

		c.queue.Post("role_resolved", func() { c.applyRole(epoch, signedIn, doc, err) })
	}()
}

func (c *SessionController) applyRole(epoch uint64, identity Identity, doc store.Document, lookupErr error) {
	if epoch != c.epoch {
		observability.RoleLookups().WithLabelValues("stale").Inc()
		return
	}

	if lookupErr != nil {
		var surfaced error = backendError("Error loading user", lookupErr)
		outcome := "error"
		if errors.Is(lookupErr, store.ErrNotFound) {
			surfaced = roleNotFoundError()
			outcome = "not_found"
		}
		observability.RoleLookups().WithLabelValues(outcome).Inc()
		c.logger.Warn().Err(lookupErr).Str("principal_id", identity.ID).Msg("role lookup failed")
		c.view.Update(func(view *dto.DashboardView) { setViewError(view, surfaced) })
		return
	}

	var principal models.Principal
	if err := doc.Decode(&principal); err != nil {
		observability.RoleLookups().WithLabelValues("error").Inc()
		c.view.Update(func(view *dto.DashboardView) { setViewError(view, backendError("Error loading user", err)) })
		return
	}
	principal.ID = identity.ID
	if principal.Email == "" {
		principal.Email = identity.Email
	}

	role, ok := models.ParseRole(string(principal.Role))
	if !ok {
		observability.RoleLookups().WithLabelValues("not_found").Inc()
		c.view.Update(func(view *dto.DashboardView) { setViewError(view, roleNotFoundError()) })
		return
	}
	principal.Role = role
	observability.RoleLookups().WithLabelValues(string(role)).Inc()

	var err error
	if principal.IsTeacher() {
		err = c.activateTeacher(principal)
	} else {
		err = c.activateStudent(principal)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("principal_id", principal.ID).Msg("dashboard activation failed")
		c.view.Update(func(view *dto.DashboardView) { setViewError(view, err) })
	}
}

func (c *SessionController) activateTeacher(teacher models.Principal) error {
	c.setState(StateTeacherActive, &teacher)
	c.view.Update(func(view *dto.DashboardView) {
		view.State = string(StateTeacherActive)
		view.Role = string(teacher.Role)
		view.Visible = dto.Visibility{Dashboard: true, Teacher: true}
		view.Error = nil
	})

	if err := c.homework.ActivateTeacher(teacher); err != nil {
		return err
	}
	return c.classes.Activate(teacher)
}

func (c *SessionController) activateStudent(student models.Principal) error {
	c.setState(StateStudentActive, &student)
	c.view.Update(func(view *dto.DashboardView) {
		view.State = string(StateStudentActive)
		view.Role = string(student.Role)
		view.Visible = dto.Visibility{Dashboard: true, Student: true}
		view.Error = nil
	})

	if err := c.homework.ActivateStudent(); err != nil {
		return err
	}
	if c.visibility == config.VisibilityGlobal {
		return nil
	}

	return c.resolver.Watch(student.ID, c.homework.SetMembership, func(err error) {
		c.logger.Warn().Err(err).Str("principal_id", student.ID).Msg("membership resolution failed")
		c.view.Update(func(view *dto.DashboardView) { setViewError(view, err) })
	})
}

func (c *SessionController) deactivate() {
	c.registry.CancelAll()
}

func (c *SessionController) setState(state SessionState, principal *models.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	c.principal = principal
}
