package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

func TestDashboardTeacherSeesOwnHomeworkAndClasses(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	colleague := env.register(t, "colleague@x.com", models.RoleTeacher)
	student := env.register(t, "student@x.com", models.RoleStudent)
	env.addHomework(t, colleague, "Other", "Not mine", "")

	d := env.dashboard(t, env.store, testConfig())
	signIn(t, d, teacher)

	view := waitForView(t, d, func(v dto.DashboardView) bool {
		return v.State == string(StateTeacherActive) && v.TeacherHomework.Placeholder == PlaceholderNoTeacherWork
	})
	require.Equal(t, dto.Visibility{Dashboard: true, Teacher: true}, view.Visible)
	require.Equal(t, teacher.Email, view.Email)
	require.Empty(t, view.Classes)

	ctx := context.Background()
	classID, err := d.CreateClass(ctx, "Algebra I")
	require.NoError(t, err)

	waitForView(t, d, func(v dto.DashboardView) bool {
		return len(v.Classes) == 1 && v.Classes[0].Students == PlaceholderNoStudents
	})

	_, err = d.AddStudent(ctx, student.Email, classID)
	require.NoError(t, err)

	view = waitForView(t, d, func(v dto.DashboardView) bool {
		return len(v.Classes) == 1 && v.Classes[0].Students == student.Email
	})
	require.Equal(t, []dto.ClassOption{{ID: classID, Name: "Algebra I"}}, view.ClassOptions)
	require.Equal(t, []string{dto.ActionDelete}, view.Classes[0].Actions)
	require.Equal(t, student.ID, view.Classes[0].Roster[0].ID)

	homeworkID, err := d.AddHomework(ctx, "Quiz 1", "Chapter 3", classID)
	require.NoError(t, err)

	view = waitForView(t, d, func(v dto.DashboardView) bool {
		return len(v.TeacherHomework.Items) == 1
	})
	require.Equal(t, dto.ListItem{ID: homeworkID, Text: "Quiz 1 – Chapter 3", Actions: []string{dto.ActionDelete}}, view.TeacherHomework.Items[0])
	require.Empty(t, view.TeacherHomework.Placeholder)

	require.NoError(t, d.DeleteHomework(ctx, homeworkID))
	waitForView(t, d, func(v dto.DashboardView) bool {
		return len(v.TeacherHomework.Items) == 0 && v.TeacherHomework.Placeholder == PlaceholderNoTeacherWork
	})
}

func TestDashboardStudentSeesHomeworkOfEnrolledClassesOnly(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	student := env.register(t, "student@x.com", models.RoleStudent)

	classA := env.createClass(t, teacher, "Algebra I")
	classB := env.createClass(t, teacher, "Biology")
	env.enroll(t, classA, student)
	env.addHomework(t, teacher, "Quiz 1", "Chapter 3", classA)
	env.addHomework(t, teacher, "Quiz 2", "Cells", classB)

	d := env.dashboard(t, env.store, testConfig())
	signIn(t, d, student)

	view := waitForView(t, d, func(v dto.DashboardView) bool {
		return v.State == string(StateStudentActive) && len(v.StudentHomework.Items) == 1
	})
	require.Equal(t, []string{"Quiz 1 – Chapter 3"}, itemTexts(view.StudentHomework))
	require.Equal(t, dto.Visibility{Dashboard: true, Student: true}, view.Visible)

	_, err := d.CreateClass(context.Background(), "Sneaky")
	require.ErrorIs(t, err, ErrAuth)
}

func TestDashboardStudentPlaceholders(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	student := env.register(t, "student@x.com", models.RoleStudent)
	classID := env.createClass(t, teacher, "Algebra I")

	d := env.dashboard(t, env.store, testConfig())
	signIn(t, d, student)

	waitForView(t, d, func(v dto.DashboardView) bool {
		return v.StudentHomework.Placeholder == PlaceholderNotInClass
	})

	env.enroll(t, classID, student)
	waitForView(t, d, func(v dto.DashboardView) bool {
		return v.StudentHomework.Placeholder == PlaceholderNoStudentWork
	})

	env.addHomework(t, teacher, "Quiz 1", "Chapter 3", classID)
	waitForView(t, d, func(v dto.DashboardView) bool {
		return len(v.StudentHomework.Items) == 1 && v.StudentHomework.Placeholder == ""
	})
}

func TestDashboardGlobalVisibilityShowsAllHomework(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	student := env.register(t, "student@x.com", models.RoleStudent)
	env.addHomework(t, teacher, "Quiz 1", "Chapter 3", "")
	env.addHomework(t, teacher, "Quiz 2", "Cells", "some-class")

	cfg := testConfig()
	cfg.HomeworkVisibility = config.VisibilityGlobal
	d := env.dashboard(t, env.store, cfg)
	signIn(t, d, student)

	view := waitForView(t, d, func(v dto.DashboardView) bool {
		return len(v.StudentHomework.Items) == 2
	})
	require.ElementsMatch(t, []string{"Quiz 1 – Chapter 3", "Quiz 2 – Cells"}, itemTexts(view.StudentHomework))
	require.Equal(t, 1, d.ActiveSubscriptions())
}

func TestDashboardSurfacesLiveQueryFailure(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	env.insertRaw(t, store.CollectionHomeworks, "broken", "{not json")

	d := env.dashboard(t, env.store, testConfig())
	signIn(t, d, teacher)

	view := waitForView(t, d, func(v dto.DashboardView) bool {
		return v.State == string(StateTeacherActive) && v.Error != nil
	})
	require.Equal(t, "backend", view.Error.Kind)
	require.Contains(t, view.Error.Message, "Error loading homeworks")
	require.Equal(t, PlaceholderLoading, view.TeacherHomework.Placeholder)
}

func TestDashboardRoleNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.credentials.SignUp(context.Background(), "ghost@x.com", testPassword)
	require.NoError(t, err)

	d := env.dashboard(t, env.store, testConfig())
	signIn(t, d, models.Principal{Email: "ghost@x.com"})

	view := waitForView(t, d, func(v dto.DashboardView) bool {
		return v.Error != nil
	})
	require.Equal(t, string(StateResolvingRole), view.State)
	require.Equal(t, "role_not_found", view.Error.Kind)
	require.Equal(t, "User role not found.", view.Error.Message)
	require.False(t, view.Visible.Teacher)
	require.False(t, view.Visible.Student)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = d.AwaitPrincipal(ctx)
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestDashboardLogoutCancelsEverySubscription(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)

	d := env.dashboard(t, env.store, testConfig())
	signIn(t, d, teacher)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	principal, err := d.AwaitPrincipal(ctx)
	require.NoError(t, err)
	require.Equal(t, teacher.ID, principal.ID)
	require.NoError(t, d.Flush(ctx))
	require.Equal(t, 2, d.ActiveSubscriptions())

	d.Logout()
	require.Zero(t, d.ActiveSubscriptions())

	view := waitForView(t, d, func(v dto.DashboardView) bool {
		return v.State == string(StateLoggedOut)
	})
	require.Equal(t, dto.Visibility{Auth: true}, view.Visible)
	require.Empty(t, view.Email)
	require.Empty(t, view.Classes)

	_, ok := d.Principal()
	require.False(t, ok)
	d.Logout()
}

func TestDashboardDiscardsFanOutStartedBeforeLogout(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	first := env.register(t, "first@x.com", models.RoleStudent)
	second := env.register(t, "second@x.com", models.RoleStudent)

	classA := env.createClass(t, teacher, "Algebra I")
	classB := env.createClass(t, teacher, "Biology")
	env.enroll(t, classA, first)
	env.enroll(t, classB, second)
	env.addHomework(t, teacher, "Quiz 1", "Chapter 3", classA)
	env.addHomework(t, teacher, "Quiz 2", "Cells", classB)

	gated := newGatedStore(env.store, first.ID)
	d := env.dashboard(t, gated, testConfig())
	signIn(t, d, first)

	select {
	case <-gated.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("membership fan-out never started")
	}

	staleBefore := testutil.ToFloat64(observability.StaleResults().WithLabelValues("membership"))

	d.Logout()
	waitForView(t, d, func(v dto.DashboardView) bool { return v.State == string(StateLoggedOut) })

	signIn(t, d, second)
	waitForView(t, d, func(v dto.DashboardView) bool {
		return v.State == string(StateStudentActive) && len(v.StudentHomework.Items) == 1
	})

	close(gated.release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.StaleResults().WithLabelValues("membership")) > staleBefore
	}, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))

	view := d.Snapshot()
	require.Equal(t, second.Email, view.Email)
	require.Equal(t, []string{"Quiz 2 – Cells"}, itemTexts(view.StudentHomework))
}

func TestDashboardManualRefreshMode(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.register(t, "teacher@x.com", models.RoleTeacher)
	colleague := env.register(t, "colleague@x.com", models.RoleTeacher)

	cfg := testConfig()
	cfg.RefreshMode = config.RefreshManual
	d := env.dashboard(t, env.store, cfg)
	signIn(t, d, teacher)

	waitForView(t, d, func(v dto.DashboardView) bool {
		return v.TeacherHomework.Placeholder == PlaceholderNoTeacherWork
	})

	ctx := context.Background()
	classID, err := d.CreateClass(ctx, "Algebra I")
	require.NoError(t, err)
	waitForView(t, d, func(v dto.DashboardView) bool { return len(v.Classes) == 1 })

	_, err = d.AddHomework(ctx, "Quiz 1", "Chapter 3", classID)
	require.NoError(t, err)
	waitForView(t, d, func(v dto.DashboardView) bool { return len(v.TeacherHomework.Items) == 1 })

	otherClass := env.createClass(t, colleague, "Biology")
	fields, err := store.Encode(models.Homework{Title: "Late", Description: "Unseen", AssignedBy: teacher.ID, ClassID: otherClass})
	require.NoError(t, err)
	_, err = env.store.Insert(ctx, store.CollectionHomeworks, fields)
	require.NoError(t, err)

	require.NoError(t, d.Flush(ctx))
	time.Sleep(50 * time.Millisecond)
	require.Len(t, d.Snapshot().TeacherHomework.Items, 1)
}
