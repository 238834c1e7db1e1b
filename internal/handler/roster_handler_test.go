package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

func TestRosterHandlerTeacherFlow(t *testing.T) {
	app := newTestApp(t)
	teacher := app.signUp(t, "teacher@x.com", models.RoleTeacher)
	student := app.signUp(t, "student@x.com", models.RoleStudent)

	status, payload := app.do(t, http.MethodPost, "/api/v1/classes", teacher.Token, dto.CreateClassRequest{Name: "Algebra I"})
	require.Equal(t, fiber.StatusCreated, status, payload.Message)
	var class dto.CreatedResponse
	decodeData(t, payload, &class)
	require.NotEmpty(t, class.ID)

	status, payload = app.do(t, http.MethodPost, "/api/v1/classes/"+class.ID+"/students", teacher.Token, dto.AddStudentRequest{Email: "student@x.com"})
	require.Equal(t, fiber.StatusCreated, status, payload.Message)
	var enrolled dto.CreatedResponse
	decodeData(t, payload, &enrolled)
	require.Equal(t, student.PrincipalID, enrolled.ID)

	status, payload = app.do(t, http.MethodPost, "/api/v1/homeworks", teacher.Token, dto.AddHomeworkRequest{
		Title:       "Quiz 1",
		Description: "Chapter 3",
		ClassID:     class.ID,
	})
	require.Equal(t, fiber.StatusCreated, status, payload.Message)

	view := app.waitForView(t, teacher.Token, func(v dto.DashboardView) bool {
		return len(v.Classes) == 1 && v.Classes[0].Students == "student@x.com" && len(v.TeacherHomework.Items) == 1
	})
	require.Equal(t, "Quiz 1 – Chapter 3", view.TeacherHomework.Items[0].Text)

	studentView := app.waitForView(t, student.Token, func(v dto.DashboardView) bool {
		return len(v.StudentHomework.Items) == 1
	})
	require.Equal(t, "Quiz 1 – Chapter 3", studentView.StudentHomework.Items[0].Text)

	status, _ = app.do(t, http.MethodDelete, "/api/v1/classes/"+class.ID+"/students/"+student.PrincipalID, teacher.Token, nil)
	require.Equal(t, fiber.StatusOK, status)

	app.waitForView(t, student.Token, func(v dto.DashboardView) bool {
		return v.StudentHomework.Placeholder == "You are not in any class."
	})

	status, _ = app.do(t, http.MethodDelete, "/api/v1/classes/"+class.ID, teacher.Token, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, payload = app.do(t, http.MethodDelete, "/api/v1/classes/"+class.ID, teacher.Token, nil)
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, "backend", payload.Details["kind"])
}

func TestRosterHandlerRejectsStudents(t *testing.T) {
	app := newTestApp(t)
	student := app.signUp(t, "student@x.com", models.RoleStudent)

	status, payload := app.do(t, http.MethodPost, "/api/v1/classes", student.Token, dto.CreateClassRequest{Name: "Hacking 101"})
	require.Equal(t, fiber.StatusForbidden, status)
	require.False(t, payload.Success)

	status, _ = app.do(t, http.MethodPost, "/api/v1/homeworks", "", dto.AddHomeworkRequest{Title: "x"})
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRosterHandlerMapsErrorKinds(t *testing.T) {
	app := newTestApp(t)
	teacher := app.signUp(t, "teacher@x.com", models.RoleTeacher)

	status, payload := app.do(t, http.MethodPost, "/api/v1/classes", teacher.Token, dto.CreateClassRequest{Name: "  "})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "Enter a class name.", payload.Message)
	require.Equal(t, "validation", payload.Details["kind"])

	status, payload = app.do(t, http.MethodPost, "/api/v1/classes", teacher.Token, dto.CreateClassRequest{Name: "Algebra I"})
	require.Equal(t, fiber.StatusCreated, status)
	var class dto.CreatedResponse
	decodeData(t, payload, &class)

	status, payload = app.do(t, http.MethodPost, "/api/v1/classes/"+class.ID+"/students", teacher.Token, dto.AddStudentRequest{Email: "ghost@x.com"})
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, "Student not found.", payload.Message)
	require.Equal(t, "student_not_found", payload.Details["kind"])

	status, payload = app.do(t, http.MethodPost, "/api/v1/homeworks", teacher.Token, dto.AddHomeworkRequest{Title: "Quiz 1", Description: "Chapter 3"})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "Select a class for this homework.", payload.Message)

	status, _ = app.do(t, http.MethodDelete, "/api/v1/homeworks/missing", teacher.Token, nil)
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestRosterHandlerRoleNotFound(t *testing.T) {
	app := newTestApp(t)
	teacher := app.signUp(t, "teacher@x.com", models.RoleTeacher)

	require.NoError(t, app.store.Delete(context.Background(), store.Doc(store.CollectionUsers, teacher.PrincipalID)))

	status, payload := app.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "teacher@x.com", Password: testPassword})
	require.Equal(t, fiber.StatusOK, status)
	var session dto.SessionResponse
	decodeData(t, payload, &session)

	status, payload = app.do(t, http.MethodPost, "/api/v1/classes", session.Token, dto.CreateClassRequest{Name: "Algebra I"})
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "User role not found.", payload.Message)
	require.Equal(t, "role_not_found", payload.Details["kind"])
}
