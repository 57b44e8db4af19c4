package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/db/mongodb"
	"github.com/hexcrawl/backend/internal/session"
)

// upgrader upgrades HTTP requests to websocket connections. Origin checks
// are delegated to the CORS middleware in front of this handler.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades campaign connections and hands them to the
// session hub.
type WebSocketHandler struct {
	hub     *session.Hub
	members *mongodb.MembershipStore
	logger  *zap.SugaredLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *session.Hub, members *mongodb.MembershipStore, logger *zap.SugaredLogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		members: members,
		logger:  logger,
	}
}

// HandleConnection authenticates, authorizes, and upgrades one campaign
// connection. The JWT middleware has already validated the token; this
// handler resolves the caller's campaign membership to decide their role.
func (h *WebSocketHandler) HandleConnection(c echo.Context) error {
	campaignID := c.Param("campaignId")
	if campaignID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing campaign id")
	}

	userID, _ := c.Get("userID").(string)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	name, _ := c.Get("userName").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	member, err := h.members.Get(ctx, campaignID, userID)
	if errors.Is(err, mongodb.ErrNotMember) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this campaign")
	}
	if err != nil {
		h.logger.Errorf("Membership lookup failed for user %s in campaign %s: %v", userID, campaignID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "membership lookup failed")
	}
	if name == "" {
		name = member.Name
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed for user %s: %v", userID, err)
		return err
	}

	h.logger.Infof("User %s connected to campaign %s as %s", userID, campaignID, member.Role)
	h.hub.HandleConnection(conn, campaignID, userID, name, member.Role)
	return nil
}
