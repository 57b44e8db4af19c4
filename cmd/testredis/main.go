package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/config"
	"github.com/hexcrawl/backend/internal/db/redis"
	"github.com/hexcrawl/backend/internal/queue"
	"github.com/hexcrawl/backend/internal/session"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create a context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Create logger
	logger, _ := zap.NewDevelopment()
	sugar := logger.Sugar()
	defer logger.Sync()

	// Connect through the circuit breaker wrapper so this tool exercises
	// the same resilience path the server depends on.
	fmt.Println("Attempting to connect to Redis...")
	client, err := redis.CreateClient(ctx, cfg.Redis.URI, sugar)
	if err != nil {
		fmt.Printf("Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Client().Close()

	// Try to ping
	fmt.Println("Connection established, attempting to ping...")
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("Failed to ping Redis: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Successfully connected to Redis!")

	// Set and get a value through the breaker
	fmt.Println("\nTrying to set and get a test value...")

	testKey := "test_connection"
	testValue := fmt.Sprintf("Test value at %s", time.Now().Format(time.RFC3339))

	if err := client.SetWithTTL(ctx, testKey, testValue, 5*time.Minute); err != nil {
		fmt.Printf("Failed to set test value: %v\n", err)
		os.Exit(1)
	}

	val, err := client.Get(ctx, testKey)
	if err != nil {
		fmt.Printf("Failed to get test value: %v\n", err)
		os.Exit(1)
	}
	if val == testValue {
		fmt.Println("Successfully set and retrieved test value!")
	} else {
		fmt.Printf("Warning: Retrieved value doesn't match: got %s, want %s\n", val, testValue)
	}

	// Round-trip a probe event through the audit queue to verify the
	// path the session engine uses.
	fmt.Println("\nTrying to enqueue and dequeue a probe event...")

	eventQueue := queue.NewEventQueue(client.Client(), logger)
	probe := session.Event{
		ID:        uuid.NewString(),
		SessionID: "probe",
		Type:      "connectivity_probe",
		UserID:    "testredis",
		CreatedAt: time.Now(),
	}

	if err := eventQueue.Record(ctx, probe); err != nil {
		fmt.Printf("Failed to enqueue probe event: %v\n", err)
		os.Exit(1)
	}

	pending, err := eventQueue.Length(ctx)
	if err != nil {
		fmt.Printf("Failed to read queue length: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Queue length after enqueue: %d\n", pending)

	msgs, err := eventQueue.Dequeue(ctx, int(pending))
	if err != nil {
		fmt.Printf("Failed to dequeue probe event: %v\n", err)
		os.Exit(1)
	}

	found := false
	for _, msg := range msgs {
		if msg.Event.ID == probe.ID {
			found = true
			continue
		}
		// Put back anything that was already queued by a running server.
		if err := eventQueue.Retry(ctx, msg); err != nil {
			fmt.Printf("Warning: failed to requeue message: %v\n", err)
		}
	}

	if found {
		fmt.Println("Successfully round-tripped the probe event!")
	} else {
		fmt.Println("Warning: probe event was not found in the queue")
	}

	dead, err := eventQueue.DeadLetterLength(ctx)
	if err != nil {
		fmt.Printf("Failed to read dead letter length: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Dead letter queue length: %d\n", dead)

	// Round-trip the presence registry: join, look up, heartbeat, watch the
	// pub/sub channel, then leave and clear.
	fmt.Println("\nTrying a presence round trip...")

	presence := redis.NewPresence(client.Client(), sugar)
	campaignID := "probe-" + uuid.NewString()
	userID := "testredis"

	watch := presence.Watch(ctx, campaignID)
	defer watch.Close()

	if err := presence.Join(ctx, campaignID, userID, "Redis Probe"); err != nil {
		fmt.Printf("Failed to join presence registry: %v\n", err)
		os.Exit(1)
	}
	name, err := presence.Member(ctx, campaignID, userID)
	if err != nil {
		fmt.Printf("Failed to look up member: %v\n", err)
		os.Exit(1)
	}
	members, err := presence.Members(ctx, campaignID)
	if err != nil {
		fmt.Printf("Failed to list members: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Presence registry holds %d member(s); %s is %q\n", len(members), userID, name)

	if err := presence.Heartbeat(ctx, campaignID, userID, time.Minute); err != nil {
		fmt.Printf("Failed to record heartbeat: %v\n", err)
		os.Exit(1)
	}
	seen, err := presence.LastSeen(ctx, campaignID, userID)
	if err != nil {
		fmt.Printf("Failed to read last-seen timestamp: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Last heartbeat recorded at %s\n", seen)

	msg, err := watch.ReceiveMessage(ctx)
	if err != nil {
		fmt.Printf("Failed to receive presence event: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Received presence event on %s: %s\n", msg.Channel, msg.Payload)

	if err := presence.Leave(ctx, campaignID, userID); err != nil {
		fmt.Printf("Failed to leave presence registry: %v\n", err)
		os.Exit(1)
	}
	if err := presence.Clear(ctx, campaignID); err != nil {
		fmt.Printf("Failed to clear presence registry: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Presence round trip complete!")
}
