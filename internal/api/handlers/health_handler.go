package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/queue"
	"github.com/hexcrawl/backend/internal/session"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongoClient *mongo.Client
	redisClient *redis.Client
	eventQueue  *queue.EventQueue
	engine      *session.Engine
	logger      *zap.SugaredLogger
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTimeMs"`
	Detail       string `json:"detail,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SystemHealth represents the health of the entire system
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  string                  `json:"timestamp"`
	Version    string                  `json:"version"`
	LiveRooms  int                     `json:"liveRooms"`
	Components map[string]HealthStatus `json:"components"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client, eventQueue *queue.EventQueue, engine *session.Engine, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{
		mongoClient: mongoClient,
		redisClient: redisClient,
		eventQueue:  eventQueue,
		engine:      engine,
		logger:      logger,
	}
}

// Check performs a health check of all system components
func (h *HealthHandler) Check(c echo.Context) error {
	systemHealth := SystemHealth{
		Status:     "healthy",
		Timestamp:  time.Now().Format(time.RFC3339),
		Version:    "1.0.0",
		LiveRooms:  h.engine.RoomCount(),
		Components: make(map[string]HealthStatus),
	}

	// Check components in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	record := func(name string, status HealthStatus) {
		mu.Lock()
		systemHealth.Components[name] = status
		if status.Status != "healthy" {
			systemHealth.Status = "degraded"
		}
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		record("mongodb", h.checkMongoDB())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		record("redis", h.checkRedis())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		record("eventQueue", h.checkEventQueue())
	}()

	wg.Wait()

	statusCode := http.StatusOK
	if systemHealth.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, systemHealth)
}

// DetailedCheck performs a health check with component detail. Checks run
// serially with longer timeouts than Check, so this endpoint is for
// operators rather than load balancers.
func (h *HealthHandler) DetailedCheck(c echo.Context) error {
	systemHealth := SystemHealth{
		Status:     "healthy",
		Timestamp:  time.Now().Format(time.RFC3339),
		Version:    "1.0.0",
		LiveRooms:  h.engine.RoomCount(),
		Components: make(map[string]HealthStatus),
	}

	mongoStatus := h.checkMongoDBDetailed()
	systemHealth.Components["mongodb"] = mongoStatus
	if mongoStatus.Status != "healthy" {
		systemHealth.Status = "degraded"
	}

	redisStatus := h.checkRedisDetailed()
	systemHealth.Components["redis"] = redisStatus
	if redisStatus.Status != "healthy" {
		systemHealth.Status = "degraded"
	}

	queueStatus := h.checkEventQueue()
	systemHealth.Components["eventQueue"] = queueStatus
	if queueStatus.Status != "healthy" {
		systemHealth.Status = "degraded"
	}

	statusCode := http.StatusOK
	if systemHealth.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, systemHealth)
}

// checkMongoDB checks the health of the MongoDB connection
func (h *HealthHandler) checkMongoDB() HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := h.mongoClient.Ping(ctx, readpref.Primary())
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		h.logger.Errorw("MongoDB health check failed", "error", err)
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	return HealthStatus{
		Status:       "healthy",
		ResponseTime: elapsed,
	}
}

// checkRedis checks the health of the Redis connection
func (h *HealthHandler) checkRedis() HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := h.redisClient.Ping(ctx).Result()
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		h.logger.Errorw("Redis health check failed", "error", err)
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	return HealthStatus{
		Status:       "healthy",
		ResponseTime: elapsed,
	}
}

// checkMongoDBDetailed pings the primary and reports how many collections
// the configured database exposes.
func (h *HealthHandler) checkMongoDBDetailed() HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		h.logger.Errorw("MongoDB detailed health check failed", "error", err)
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
			Error:        err.Error(),
		}
	}

	names, err := h.mongoClient.ListDatabaseNames(ctx, bson.M{})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	return HealthStatus{
		Status:       "healthy",
		ResponseTime: elapsed,
		Detail:       fmt.Sprintf("databases=%d", len(names)),
	}
}

// checkRedisDetailed pings Redis and reports the keyspace size.
func (h *HealthHandler) checkRedisDetailed() HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.redisClient.Ping(ctx).Result(); err != nil {
		h.logger.Errorw("Redis detailed health check failed", "error", err)
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
			Error:        err.Error(),
		}
	}

	size, err := h.redisClient.DBSize(ctx).Result()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	return HealthStatus{
		Status:       "healthy",
		ResponseTime: elapsed,
		Detail:       fmt.Sprintf("keys=%d", size),
	}
}

// checkEventQueue reports the audit event backlog. A growing dead letter
// queue means the worker cannot reach MongoDB and operator attention is
// needed, so it degrades health.
func (h *HealthHandler) checkEventQueue() HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pending, err := h.eventQueue.Length(ctx)
	if err != nil {
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
			Error:        err.Error(),
		}
	}
	dead, err := h.eventQueue.DeadLetterLength(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{
			Status:       "unhealthy",
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	status := "healthy"
	if dead > 0 {
		status = "degraded"
	}
	return HealthStatus{
		Status:       status,
		ResponseTime: elapsed,
		Detail:       fmt.Sprintf("pending=%d dead=%d", pending, dead),
	}
}
