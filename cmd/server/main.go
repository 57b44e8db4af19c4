package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/api"
	"github.com/hexcrawl/backend/internal/config"
	"github.com/hexcrawl/backend/internal/db/mongodb"
	"github.com/hexcrawl/backend/internal/db/redis"
	"github.com/hexcrawl/backend/internal/queue"
	"github.com/hexcrawl/backend/internal/session"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MongoDB connection with retry capabilities
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoDB.URI, sugar)
	if err != nil {
		sugar.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			sugar.Errorf("Failed to disconnect from MongoDB: %v", err)
		}
	}()
	sugar.Info("Connected to MongoDB")

	if err := mongodb.CreateIndexes(ctx, mongoClient, cfg.MongoDB.Database); err != nil {
		sugar.Fatalf("Failed to create MongoDB indexes: %v", err)
	}

	// Initialize Redis connection with retry capabilities
	redisClient, err := redis.Connect(ctx, cfg.Redis.URI, sugar)
	if err != nil {
		sugar.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			sugar.Errorf("Failed to close Redis connection: %v", err)
		}
	}()
	sugar.Info("Connected to Redis")

	// Build the persistence layer
	db := mongoClient.Database(cfg.MongoDB.Database)
	sessionStore := mongodb.NewSessionStore(db, cfg.MongoDB.SessionColl)
	eventStore := mongodb.NewEventStore(db, cfg.MongoDB.EventColl)
	fogStore := mongodb.NewFogStore(db, cfg.MongoDB.VisibilityColl)
	hexStore := mongodb.NewHexStore(db, cfg.MongoDB.HexColl)
	tokenStore := mongodb.NewTokenStore(db, cfg.MongoDB.TokenColl)
	memberStore := mongodb.NewMembershipStore(db, cfg.MongoDB.MemberColl)

	// Audit events route through Redis so MongoDB hiccups never stall the
	// session engine; the worker drains them into the event store.
	eventQueue := queue.NewEventQueue(redisClient, logger)
	worker := queue.NewWorker(eventQueue, eventStore, cfg.Session.EventQueueBatch, logger)
	worker.Start()

	// Room membership is mirrored into Redis for out-of-process observers.
	presence := redis.NewPresence(redisClient, sugar)

	// Initialize the session engine and its websocket transport
	engine := session.NewEngine(ctx, session.Stores{
		Sessions: sessionStore,
		Events:   eventQueue,
		Fog:      fogStore,
		Hexes:    hexStore,
		Tokens:   tokenStore,
		Presence: presence,
	}, sugar)
	hub := session.NewHub(engine, sugar)
	sugar.Info("Session engine initialized")

	// Initialize API server
	server := api.NewServer(cfg, api.Deps{
		Engine:      engine,
		Hub:         hub,
		Members:     memberStore,
		Sessions:    sessionStore,
		Events:      eventStore,
		EventQueue:  eventQueue,
		MongoClient: mongoClient,
		RedisClient: redisClient,
	}, sugar)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("Failed to start the server: %v", err)
		}
	}()
	sugar.Infof("Server started on port %d", cfg.Server.Port)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Server forced to shutdown: %v", err)
	}

	// Give the worker a chance to drain buffered audit events
	if err := eventQueue.WaitIdle(shutdownCtx, 5*time.Second); err != nil {
		sugar.Warnf("Event queue not fully drained: %v", err)
	}
	worker.Stop()

	sugar.Info("Server exited properly")
}
