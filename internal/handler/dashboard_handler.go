package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

const websocketWriteTimeout = 10 * time.Second

// DashboardHandler serves the dashboard view of the caller's session, either
// as a snapshot or as a websocket stream of versions.
type DashboardHandler struct {
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewDashboardHandler constructs the dashboard handler.
func NewDashboardHandler(keepAlive time.Duration, logger zerolog.Logger) *DashboardHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &DashboardHandler{
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register binds the dashboard routes. The router must carry the JWT and
// session middlewares.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("/", h.snapshot)
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.stream))
}

func (h *DashboardHandler) snapshot(c *fiber.Ctx) error {
	dashboard, ok := middleware.DashboardFromContext(c)
	if !ok {
		return sendUnauthenticated(c)
	}

	view := dashboard.Snapshot()
	return utils.OK(c, view, "dashboard retrieved", fiber.Map{"version": view.Version})
}

func (h *DashboardHandler) stream(conn *websocket.Conn) {
	dashboard, ok := conn.Locals("dashboard").(*service.Dashboard)
	if !ok || dashboard == nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session missing"))
		_ = conn.Close()
		return
	}

	logger := h.logger.With().Str("session_id", dashboard.ID).Logger()
	logger.Info().Msg("dashboard stream connected")
	defer logger.Info().Msg("dashboard stream disconnected")

	updates, cleanup := dashboard.Watch()
	defer cleanup()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			dashboard.Touch()
		}
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case view, ok := <-updates:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := h.write(conn, view); err != nil {
				logger.Debug().Err(err).Msg("dashboard stream write failed")
				return
			}
		case <-ticker.C:
			dashboard.Touch()
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *DashboardHandler) write(conn *websocket.Conn, view dto.DashboardView) error {
	_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
	return conn.WriteJSON(view)
}
