package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/db/mongodb"
	"github.com/hexcrawl/backend/internal/session"
)

// CampaignHandler serves the REST side of campaign management: membership
// rows and the session audit trail. Live session traffic goes over the
// websocket, not through here.
type CampaignHandler struct {
	members  *mongodb.MembershipStore
	sessions *mongodb.SessionStore
	events   *mongodb.EventStore
	engine   *session.Engine
	logger   *zap.SugaredLogger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(members *mongodb.MembershipStore, sessions *mongodb.SessionStore, events *mongodb.EventStore, engine *session.Engine, logger *zap.SugaredLogger) *CampaignHandler {
	return &CampaignHandler{
		members:  members,
		sessions: sessions,
		events:   events,
		engine:   engine,
		logger:   logger,
	}
}

// MemberRequest is the payload for adding or updating a campaign member
type MemberRequest struct {
	UserID string       `json:"userId" validate:"required"`
	Name   string       `json:"name" validate:"required"`
	Role   session.Role `json:"role" validate:"required,oneof=dm player"`
}

// UpsertMember adds or updates one membership row. Only an existing DM of
// the campaign may change membership; the first member of a new campaign
// must be its DM.
func (h *CampaignHandler) UpsertMember(c echo.Context) error {
	campaignID := c.Param("campaignId")
	callerID, _ := c.Get("userID").(string)

	var req MemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	existing, err := h.members.List(ctx, campaignID)
	if err != nil {
		h.logger.Errorf("Failed to list members of campaign %s: %v", campaignID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "membership lookup failed")
	}

	if len(existing) == 0 {
		if req.Role != session.RoleHost || req.UserID != callerID {
			return echo.NewHTTPError(http.StatusForbidden, "a new campaign starts with its DM")
		}
	} else {
		callerIsDM := false
		for _, m := range existing {
			if m.UserID == callerID && m.Role == session.RoleHost {
				callerIsDM = true
				break
			}
		}
		if !callerIsDM {
			return echo.NewHTTPError(http.StatusForbidden, "only the DM may manage members")
		}
	}

	err = h.members.Upsert(ctx, mongodb.Membership{
		CampaignID: campaignID,
		UserID:     req.UserID,
		Name:       req.Name,
		Role:       req.Role,
	})
	if err != nil {
		h.logger.Errorf("Failed to upsert member %s in campaign %s: %v", req.UserID, campaignID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save member")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMembers returns every member of a campaign.
func (h *CampaignHandler) ListMembers(c echo.Context) error {
	campaignID := c.Param("campaignId")

	members, err := h.members.List(c.Request().Context(), campaignID)
	if err != nil {
		h.logger.Errorf("Failed to list members of campaign %s: %v", campaignID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "membership lookup failed")
	}
	return c.JSON(http.StatusOK, members)
}

// GetSession returns one persisted session record.
func (h *CampaignHandler) GetSession(c echo.Context) error {
	rec, err := h.sessions.GetSession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// ListSessionEvents returns a session's audit trail in order.
func (h *CampaignHandler) ListSessionEvents(c echo.Context) error {
	events, err := h.events.ListBySession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		h.logger.Errorf("Failed to list events for session %s: %v", c.Param("sessionId"), err)
		return echo.NewHTTPError(http.StatusInternalServerError, "event lookup failed")
	}
	if events == nil {
		events = []session.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

// LiveStatus reports whether a campaign currently has an in-memory room.
func (h *CampaignHandler) LiveStatus(c echo.Context) error {
	status, sessionID, ok := h.engine.RoomSummary(c.Param("campaignId"))
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"live": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"live":      true,
		"status":    status,
		"sessionId": sessionID,
	})
}
