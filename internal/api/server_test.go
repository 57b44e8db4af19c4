package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/api/middleware/auth"
	"github.com/hexcrawl/backend/internal/config"
	"github.com/hexcrawl/backend/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "loading configuration should not fail")

	logger := zap.NewNop().Sugar()
	engine := session.NewEngine(context.Background(), session.Stores{}, logger)
	hub := session.NewHub(engine, logger)

	return NewServer(cfg, Deps{Engine: engine, Hub: hub}, logger)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "hexcrawl", cfg.MongoDB.Database)
	assert.Equal(t, "hex_visibility", cfg.MongoDB.VisibilityColl)
	assert.Equal(t, 24, cfg.JWT.Expiration)
	assert.Equal(t, 100, cfg.Session.EventQueueBatch)
}

func TestIssueToken(t *testing.T) {
	server := newTestServer(t)

	body := `{"userId":"u1","name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	tokenString := resp["token"]
	require.NotEmpty(t, tokenString)

	// The minted token must carry the identity it was issued for.
	claims := &auth.Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(server.cfg.JWT.Secret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
}

func TestIssueTokenRejectsMissingFields(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"userId":"u1"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{
		"/api/v1/campaigns/c1/members",
		"/api/v1/campaigns/c1/live",
		"/api/v1/sessions/s1/events",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equalf(t, http.StatusUnauthorized, rec.Code, "path %s", path)
	}
}

func TestLiveStatusWithValidToken(t *testing.T) {
	server := newTestServer(t)

	token, err := auth.GenerateJWT("u1", "Alice", server.cfg.JWT.Secret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c1/live", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["live"])
}

func TestTokenMayRideQueryString(t *testing.T) {
	server := newTestServer(t)

	token, err := auth.GenerateJWT("u1", "Alice", server.cfg.JWT.Secret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c1/live?token="+token, nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	server := newTestServer(t)

	// Generate a request to count
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"userId":"u1","name":"Alice"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RequestCount map[string]int `json:"requestCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.RequestCount["POST:/api/v1/auth/token:200"])
}
