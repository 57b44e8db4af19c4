package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/api/middleware/auth"
	"github.com/hexcrawl/backend/internal/config"
)

// AuthHandler issues session tokens. Account management lives in a separate
// identity service; this server only needs to mint and verify JWTs.
type AuthHandler struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: logger,
	}
}

// TokenRequest is the payload for token issuance
type TokenRequest struct {
	UserID string `json:"userId" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

// TokenResponse carries an issued JWT
type TokenResponse struct {
	Token string `json:"token"`
}

// IssueToken mints a JWT for the given user identity.
func (h *AuthHandler) IssueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, err := auth.GenerateJWT(req.UserID, req.Name, h.cfg.JWT.Secret, h.cfg.JWT.Expiration)
	if err != nil {
		h.logger.Errorf("Failed to generate token for user %s: %v", req.UserID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}
