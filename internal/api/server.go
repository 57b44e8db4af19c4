package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/api/handlers"
	"github.com/hexcrawl/backend/internal/api/middleware/auth"
	"github.com/hexcrawl/backend/internal/config"
	"github.com/hexcrawl/backend/internal/db/mongodb"
	"github.com/hexcrawl/backend/internal/queue"
	"github.com/hexcrawl/backend/internal/session"
)

// CustomValidator is the request validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// RequestMetrics tracks metrics for API requests
type RequestMetrics struct {
	RequestCount map[string]int
	DurationSum  map[string]float64
	mutex        sync.RWMutex
}

// Deps bundles the collaborators the server wires into its handlers.
type Deps struct {
	Engine      *session.Engine
	Hub         *session.Hub
	Members     *mongodb.MembershipStore
	Sessions    *mongodb.SessionStore
	Events      *mongodb.EventStore
	EventQueue  *queue.EventQueue
	MongoClient *mongo.Client
	RedisClient *redis.Client
}

// Server represents the API server
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	deps    Deps
	logger  *zap.SugaredLogger
	metrics *RequestMetrics
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps, logger *zap.SugaredLogger) *Server {
	e := echo.New()
	e.HideBanner = true

	// Set up validator
	e.Validator = &CustomValidator{validator: validator.New()}

	server := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		metrics: &RequestMetrics{
			RequestCount: make(map[string]int),
			DurationSum:  make(map[string]float64),
		},
	}

	server.configureMiddleware()
	server.configureRoutes()

	return server
}

// configureMiddleware sets up Echo middleware
func (s *Server) configureMiddleware() {
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.RequestID())

	// Add metrics middleware
	s.echo.Use(s.metricsMiddleware)

	// Custom middleware to set request ID in context and structured logging
	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			c.Set("requestID", requestID)

			requestLogger := s.logger.With(
				"requestID", requestID,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"clientIP", c.RealIP(),
			)
			c.Set("logger", requestLogger)

			return next(c)
		}
	})
}

// metricsMiddleware records metrics for each request
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)

		duration := time.Since(start).Seconds()
		key := c.Request().Method + ":" + c.Request().URL.Path + ":" + strconv.Itoa(c.Response().Status)

		s.metrics.mutex.Lock()
		s.metrics.RequestCount[key]++
		s.metrics.DurationSum[key] += duration
		s.metrics.mutex.Unlock()

		return err
	}
}

// configureRoutes sets up API routes
func (s *Server) configureRoutes() {
	authHandler := handlers.NewAuthHandler(s.cfg, s.logger)
	campaignHandler := handlers.NewCampaignHandler(s.deps.Members, s.deps.Sessions, s.deps.Events, s.deps.Engine, s.logger)
	wsHandler := handlers.NewWebSocketHandler(s.deps.Hub, s.deps.Members, s.logger)
	healthHandler := handlers.NewHealthHandler(s.deps.MongoClient, s.deps.RedisClient, s.deps.EventQueue, s.deps.Engine, s.logger)

	// API version group
	apiV1 := s.echo.Group("/api/v1")

	// Token issuance (no JWT required)
	apiV1.POST("/auth/token", authHandler.IssueToken)

	// JWT middleware for protected routes
	jwtMiddleware := auth.JWTMiddleware(s.cfg.JWT.Secret)

	// Campaign routes (JWT required)
	campaignGroup := apiV1.Group("/campaigns/:campaignId", jwtMiddleware)
	campaignGroup.PUT("/members", campaignHandler.UpsertMember)
	campaignGroup.GET("/members", campaignHandler.ListMembers)
	campaignGroup.GET("/live", campaignHandler.LiveStatus)

	// Session history routes (JWT required)
	sessionGroup := apiV1.Group("/sessions/:sessionId", jwtMiddleware)
	sessionGroup.GET("", campaignHandler.GetSession)
	sessionGroup.GET("/events", campaignHandler.ListSessionEvents)

	// WebSocket route (JWT required; the token may ride the query string
	// since browsers cannot set headers on websocket upgrades)
	s.echo.GET("/ws/:campaignId", wsHandler.HandleConnection, jwtMiddleware)

	// Health check endpoints (no auth required)
	s.echo.GET("/health", healthHandler.Check)
	s.echo.GET("/health/detailed", healthHandler.DetailedCheck)

	// Metrics endpoint - simplified version that returns our basic metrics
	s.echo.GET("/metrics", func(c echo.Context) error {
		s.metrics.mutex.RLock()
		defer s.metrics.mutex.RUnlock()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"requestCount": s.metrics.RequestCount,
			"durationSum":  s.metrics.DurationSum,
		})
	})
}

// Start starts the API server
func (s *Server) Start() error {
	address := s.cfg.Server.Host + ":" + strconv.Itoa(s.cfg.Server.Port)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
