package handler

import (
	"servicelines-be/internal/pkg/logger"
	"servicelines-be/internal/pkg/serverutils"
	internalWS "servicelines-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// StreamHandler upgrades authenticated requests to a websocket that receives
// the session's workflow updates.
type StreamHandler struct {
	sessions serverutils.SessionParser
	hub      *internalWS.Hub
	logger   logger.ILogger
}

func NewStreamHandler(sessions serverutils.SessionParser, hub *internalWS.Hub, log logger.ILogger) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		hub:      hub,
		logger:   log,
	}
}

// ServeWs authenticates with the "token" query parameter (browsers cannot set
// headers on a websocket handshake) or a bearer header.
func (h *StreamHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	sessionID, err := h.sessions.Parse(tokenStr)
	if err != nil {
		h.logger.Warn("StreamHandler", "Invalid token in websocket handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("StreamHandler", "Starting websocket session", map[string]interface{}{"session_id": sessionID})
		internalWS.ServeWs(h.hub, conn, sessionID)
		h.logger.Info("StreamHandler", "Websocket session ended", map[string]interface{}{"session_id": sessionID})
	})(c)
}

func (h *StreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/workflow/v1/ws", h.ServeWs)
}
