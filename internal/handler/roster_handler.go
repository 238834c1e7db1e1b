package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

// RosterHandler exposes the teacher mutations: classes, enrollments and
// homework. The routers must resolve the session and require the teacher
// role.
type RosterHandler struct {
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRosterHandler constructs the roster handler.
func NewRosterHandler(validator *validator.Validate, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		validator: validator,
		logger:    logger.With().Str("component", "roster_handler").Logger(),
	}
}

// Register binds class routes on classes and homework routes on homeworks.
func (h *RosterHandler) Register(classes, homeworks fiber.Router) {
	classes.Post("/", h.createClass)
	classes.Delete("/:id", h.deleteClass)
	classes.Post("/:id/students", h.addStudent)
	classes.Delete("/:id/students/:studentId", h.removeStudent)

	homeworks.Post("/", h.addHomework)
	homeworks.Delete("/:id", h.deleteHomework)
}

func (h *RosterHandler) createClass(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var req dto.CreateClassRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return sendBadRequest(c, err)
	}

	id, err := dashboard.CreateClass(middleware.RequestContext(c), req.Name)
	if err != nil {
		return sendServiceError(c, h.logger, err, "create_class")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "class created", dto.CreatedResponse{ID: id})
}

func (h *RosterHandler) deleteClass(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	if err := dashboard.DeleteClass(middleware.RequestContext(c), strings.TrimSpace(c.Params("id"))); err != nil {
		return sendServiceError(c, h.logger, err, "delete_class")
	}
	return utils.SendSuccess(c, "class deleted", nil)
}

func (h *RosterHandler) addStudent(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var req dto.AddStudentRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return sendBadRequest(c, err)
	}

	id, err := dashboard.AddStudent(middleware.RequestContext(c), req.Email, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return sendServiceError(c, h.logger, err, "add_student")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student added", dto.CreatedResponse{ID: id})
}

func (h *RosterHandler) removeStudent(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	classID := strings.TrimSpace(c.Params("id"))
	studentID := strings.TrimSpace(c.Params("studentId"))
	if err := dashboard.RemoveStudent(middleware.RequestContext(c), classID, studentID); err != nil {
		return sendServiceError(c, h.logger, err, "remove_student")
	}
	return utils.SendSuccess(c, "student removed", nil)
}

func (h *RosterHandler) addHomework(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	var req dto.AddHomeworkRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return sendBadRequest(c, err)
	}

	id, err := dashboard.AddHomework(middleware.RequestContext(c), req.Title, req.Description, req.ClassID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "add_homework")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "homework added", dto.CreatedResponse{ID: id})
}

func (h *RosterHandler) deleteHomework(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	if err := dashboard.DeleteHomework(middleware.RequestContext(c), strings.TrimSpace(c.Params("id"))); err != nil {
		return sendServiceError(c, h.logger, err, "delete_homework")
	}
	return utils.SendSuccess(c, "homework deleted", nil)
}
