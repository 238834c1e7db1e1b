package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// RosterEditor mutates classes, enrollments and homework on behalf of a
// teacher. Every operation takes the acting principal explicitly.
type RosterEditor struct {
	store      store.DocumentStore
	registry   *SubscriptionRegistry
	refresh    string
	visibility string
	timeout    time.Duration
	sanitizer  *bluemonday.Policy
	tracer     trace.Tracer
	logger     zerolog.Logger
	now        func() time.Time
}

func newRosterEditor(documents store.DocumentStore, registry *SubscriptionRegistry, cfg config.Config, logger zerolog.Logger) *RosterEditor {
	return &RosterEditor{
		store:      documents,
		registry:   registry,
		refresh:    cfg.RefreshMode,
		visibility: cfg.HomeworkVisibility,
		timeout:    cfg.BackendTimeout,
		sanitizer:  bluemonday.StrictPolicy(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-homework-api/internal/service/roster"),
		logger:     logger.With().Str("component", "roster_editor").Logger(),
		now:        time.Now,
	}
}

// CreateClass inserts a class owned by teacher and returns its id.
func (e *RosterEditor) CreateClass(ctx context.Context, teacher models.Principal, name string) (string, error) {
	if err := requireTeacher(teacher); err != nil {
		return "", err
	}
	name = e.clean(name)
	if name == "" {
		return "", validationError("Enter a class name.")
	}

	ctx, span, cancel := e.start(ctx, "roster.create_class", teacher)
	defer cancel()
	defer span.End()

	fields, err := store.Encode(models.ClassGroup{Name: name, OwnerID: teacher.ID})
	if err != nil {
		return "", backendError("Error creating class", err)
	}

	id, err := e.store.Insert(ctx, store.CollectionClasses, fields)
	if err != nil {
		span.RecordError(err)
		return "", backendError("Error creating class", err)
	}

	e.logger.Info().Str("class_id", id).Str("owner_id", teacher.ID).Msg("class created")
	e.refreshAfter(SlotClass, true)
	return id, nil
}

// DeleteClass deletes every enrollment of the class and then the class. The
// cascade is not transactional: when an enrollment delete fails the class is
// kept so the call can be repeated, and the error reports how many
// enrollments are left behind.
func (e *RosterEditor) DeleteClass(ctx context.Context, teacher models.Principal, classID string) error {
	if err := requireTeacher(teacher); err != nil {
		return err
	}
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return validationError("Select a class.")
	}

	ctx, span, cancel := e.start(ctx, "roster.delete_class", teacher)
	defer cancel()
	defer span.End()
	span.SetAttributes(attribute.String("roster.class_id", classID))

	if _, err := e.ownedClass(ctx, teacher, classID, "Error deleting class"); err != nil {
		return err
	}

	enrollments, err := e.store.List(ctx, store.StudentsOf(classID))
	if err != nil {
		span.RecordError(err)
		return backendError("Error deleting class", err)
	}

	for i, enrollment := range enrollments {
		if err := e.store.Delete(ctx, store.Doc(store.StudentsOf(classID), enrollment.ID)); err != nil && !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			remaining := len(enrollments) - i
			e.logger.Error().Err(err).Str("class_id", classID).Int("orphaned", remaining).Msg("class delete cascade interrupted")
			return backendError("Error deleting class", fmt.Errorf("%d enrollment(s) left behind: %w", remaining, err))
		}
	}

	if err := e.store.Delete(ctx, store.Doc(store.CollectionClasses, classID)); err != nil {
		span.RecordError(err)
		return backendError("Error deleting class", err)
	}

	e.logger.Info().Str("class_id", classID).Int("enrollments", len(enrollments)).Msg("class deleted")
	e.refreshAfter(SlotClass, true)
	return nil
}

// AddStudent enrolls the student registered under email into the class and
// returns the student id. The first principal with that email wins; if it is
// not a student, or there is none, nothing is written.
func (e *RosterEditor) AddStudent(ctx context.Context, teacher models.Principal, email, classID string) (string, error) {
	if err := requireTeacher(teacher); err != nil {
		return "", err
	}
	email = strings.ToLower(e.clean(email))
	classID = strings.TrimSpace(classID)
	if email == "" || classID == "" {
		return "", validationError("Fill both student email and class selection.")
	}

	ctx, span, cancel := e.start(ctx, "roster.add_student", teacher)
	defer cancel()
	defer span.End()
	span.SetAttributes(attribute.String("roster.class_id", classID))

	if _, err := e.ownedClass(ctx, teacher, classID, "Error adding student"); err != nil {
		return "", err
	}

	matches, err := e.store.List(ctx, store.CollectionUsers, store.Where("email", email))
	if err != nil {
		span.RecordError(err)
		return "", backendError("Error adding student", err)
	}
	if len(matches) == 0 {
		return "", studentNotFoundError()
	}

	var principal models.Principal
	if err := matches[0].Decode(&principal); err != nil {
		return "", backendError("Error adding student", err)
	}
	if principal.Role != models.RoleStudent {
		return "", studentNotFoundError()
	}
	studentID := matches[0].ID

	fields, err := store.Encode(models.Enrollment{Email: email, AddedAt: e.now().UTC()})
	if err != nil {
		return "", backendError("Error adding student", err)
	}
	if err := e.store.Set(ctx, store.Doc(store.StudentsOf(classID), studentID), fields); err != nil {
		span.RecordError(err)
		return "", backendError("Error adding student", err)
	}

	e.logger.Info().Str("class_id", classID).Str("student_id", studentID).Msg("student enrolled")
	e.refreshAfter(SlotClass, false)
	return studentID, nil
}

// RemoveStudent deletes one enrollment.
func (e *RosterEditor) RemoveStudent(ctx context.Context, teacher models.Principal, classID, studentID string) error {
	if err := requireTeacher(teacher); err != nil {
		return err
	}
	classID = strings.TrimSpace(classID)
	studentID = strings.TrimSpace(studentID)
	if classID == "" || studentID == "" {
		return validationError("Select a class and a student.")
	}

	ctx, span, cancel := e.start(ctx, "roster.remove_student", teacher)
	defer cancel()
	defer span.End()

	if _, err := e.ownedClass(ctx, teacher, classID, "Error removing student"); err != nil {
		return err
	}

	if err := e.store.Delete(ctx, store.Doc(store.StudentsOf(classID), studentID)); err != nil {
		span.RecordError(err)
		return backendError("Error removing student", err)
	}

	e.logger.Info().Str("class_id", classID).Str("student_id", studentID).Msg("student removed")
	e.refreshAfter(SlotClass, false)
	return nil
}

// AddHomework publishes a homework stamped with teacher and the current time.
// A class is required unless homework visibility is global.
func (e *RosterEditor) AddHomework(ctx context.Context, teacher models.Principal, title, description, classID string) (string, error) {
	if err := requireTeacher(teacher); err != nil {
		return "", err
	}
	title = e.clean(title)
	description = e.clean(description)
	classID = strings.TrimSpace(classID)
	if title == "" || description == "" {
		return "", validationError("Enter both title and description.")
	}
	if classID == "" && e.visibility == config.VisibilityClassScoped {
		return "", validationError("Select a class for this homework.")
	}

	ctx, span, cancel := e.start(ctx, "roster.add_homework", teacher)
	defer cancel()
	defer span.End()

	if classID != "" {
		if _, err := e.ownedClass(ctx, teacher, classID, "Error adding homework"); err != nil {
			return "", err
		}
	}

	fields, err := store.Encode(models.Homework{
		Title:       title,
		Description: description,
		AssignedBy:  teacher.ID,
		AssignedAt:  e.now().UTC(),
		ClassID:     classID,
	})
	if err != nil {
		return "", backendError("Error adding homework", err)
	}

	id, err := e.store.Insert(ctx, store.CollectionHomeworks, fields)
	if err != nil {
		span.RecordError(err)
		return "", backendError("Error adding homework", err)
	}

	e.logger.Info().Str("homework_id", id).Str("class_id", classID).Msg("homework added")
	e.refreshAfter(SlotHomework, true)
	return id, nil
}

// DeleteHomework deletes a homework assigned by teacher.
func (e *RosterEditor) DeleteHomework(ctx context.Context, teacher models.Principal, homeworkID string) error {
	if err := requireTeacher(teacher); err != nil {
		return err
	}
	homeworkID = strings.TrimSpace(homeworkID)
	if homeworkID == "" {
		return validationError("Select a homework.")
	}

	ctx, span, cancel := e.start(ctx, "roster.delete_homework", teacher)
	defer cancel()
	defer span.End()

	path := store.Doc(store.CollectionHomeworks, homeworkID)
	doc, err := e.store.Get(ctx, path)
	if err != nil {
		return backendError("Error deleting homework", err)
	}

	var homework models.Homework
	if err := doc.Decode(&homework); err != nil {
		return backendError("Error deleting homework", err)
	}
	if homework.AssignedBy != teacher.ID {
		return authError("You can only delete homework you assigned.", nil)
	}

	if err := e.store.Delete(ctx, path); err != nil {
		span.RecordError(err)
		return backendError("Error deleting homework", err)
	}

	e.logger.Info().Str("homework_id", homeworkID).Msg("homework deleted")
	e.refreshAfter(SlotHomework, true)
	return nil
}

func (e *RosterEditor) ownedClass(ctx context.Context, teacher models.Principal, classID, action string) (models.ClassGroup, error) {
	doc, err := e.store.Get(ctx, store.Doc(store.CollectionClasses, classID))
	if err != nil {
		return models.ClassGroup{}, backendError(action, err)
	}

	var class models.ClassGroup
	if err := doc.Decode(&class); err != nil {
		return models.ClassGroup{}, backendError(action, err)
	}
	if class.OwnerID != teacher.ID {
		return models.ClassGroup{}, authError("You do not own this class.", nil)
	}
	class.ID = doc.ID
	return class, nil
}

// refreshAfter re-runs slot after a mutation. Live subscriptions already see
// writes to the collection they watch, so in live mode only mutations the
// subscription may not observe (visibleToLive == false) trigger a refresh.
func (e *RosterEditor) refreshAfter(slot Slot, visibleToLive bool) {
	if e.refresh == config.RefreshLive && visibleToLive {
		return
	}
	if err := e.registry.Refresh(slot); err != nil {
		e.logger.Warn().Err(err).Str("slot", string(slot)).Msg("failed to refresh after mutation")
	}
}

func (e *RosterEditor) start(ctx context.Context, name string, principal models.Principal) (context.Context, trace.Span, context.CancelFunc) {
	ctx, cancel := requestContext(ctx, e.timeout)
	spanCtx, span := e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("roster.principal_id", principal.ID)))
	return spanCtx, span, cancel
}

func (e *RosterEditor) clean(value string) string {
	return strings.TrimSpace(e.sanitizer.Sanitize(strings.TrimSpace(value)))
}

func requireTeacher(principal models.Principal) error {
	if principal.ID == "" {
		return authError("Sign in first.", nil)
	}
	if !principal.IsTeacher() {
		return authError("Only teachers can manage classes and homework.", nil)
	}
	return nil
}
