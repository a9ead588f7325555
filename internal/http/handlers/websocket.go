package handlers

import (
	"net/http"
	"strings"

	"commhub/internal/auth"
	"commhub/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades operator connections onto the realtime hub
type WebSocketHandler struct {
	hub         *realtime.Hub
	authService *auth.Service
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *realtime.Hub, authService *auth.Service) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, authService: authService}
}

var upgrader = websocket.Upgrader{
	// Browsers connect from the CRM origin; the token is the access control
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWebSocket godoc
// @Summary Realtime operator feed
// @Description Upgrades to a WebSocket delivering new_message, message_deleted, manager_assigned and typing events
// @Tags communications
// @Param token query string false "JWT when the Authorization header cannot be set"
// @Success 101
// @Failure 401 {object} ErrorResponse
// @Router /ws/messages [get]
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		if header := c.Request().Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(header[7:])
		}
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization token")
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		return err
	}
	p := claims.Principal()
	if p.UserID == nil || *p.UserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Token has no user")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return nil
	}
	h.hub.Serve(conn, p.UserID.String(), p.DisplayName)
	return nil
}
